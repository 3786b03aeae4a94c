package posture

import "fmt"

// 提醒级别
const (
	LevelReminder = "reminder"
	LevelRenewed  = "renewed"
	LevelAlarm    = "alarm"
)

// Rule 提醒规则：Match 对不良坐姿持续秒数求值
type Rule struct {
	Name  string
	Level string
	Match func(elapsed int) bool
}

// Schedule 有序规则表；一次求值最多触发一条（第一条命中的规则）
type Schedule []Rule

// Exactly 恰好第 n 秒
func Exactly(name, level string, n int) Rule {
	return Rule{
		Name:  name,
		Level: level,
		Match: func(elapsed int) bool { return elapsed == n },
	}
}

// Between 闭区间 [min, max]
func Between(name, level string, min, max int) Rule {
	return Rule{
		Name:  name,
		Level: level,
		Match: func(elapsed int) bool { return elapsed >= min && elapsed <= max },
	}
}

// AtLeast 第 n 秒及之后每秒
func AtLeast(name, level string, n int) Rule {
	return Rule{
		Name:  name,
		Level: level,
		Match: func(elapsed int) bool { return elapsed >= n },
	}
}

// DefaultSchedule 升级提醒：5 秒轻提醒，约 1 分钟再次提醒（61、62 秒），2 分钟后持续报警
func DefaultSchedule() Schedule {
	return Schedule{
		Exactly("bad_posture_5s", LevelReminder, 5),
		Between("bad_posture_1m", LevelRenewed, 61, 62),
		AtLeast("bad_posture_2m", LevelAlarm, 120),
	}
}

// Evaluate 返回第一条命中的规则
func (s Schedule) Evaluate(elapsed int) (Rule, bool) {
	for _, r := range s {
		if r.Match != nil && r.Match(elapsed) {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(%s)", r.Name, r.Level)
}
