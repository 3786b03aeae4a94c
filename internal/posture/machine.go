package posture

import "wisefido-posture/internal/models"

// Change 一次结论应用后的状态变化
type Change struct {
	Prev Streak
	Curr Streak
}

// KindChanged 类型是否发生变化（需要重启或停止计时器）
func (c Change) KindChanged() bool {
	return c.Prev.Kind != c.Curr.Kind
}

// Alert 一次触发的提醒
type Alert struct {
	Rule    Rule
	Elapsed int
}

// Machine 坐姿状态机（非并发安全，由会话事件循环独占）
type Machine struct {
	streak   Streak
	schedule Schedule
}

// NewMachine 创建状态机；schedule 为空时使用默认规则
func NewMachine(schedule Schedule) *Machine {
	if len(schedule) == 0 {
		schedule = DefaultSchedule()
	}
	return &Machine{schedule: schedule}
}

// Streak 当前连续状态
func (m *Machine) Streak() Streak {
	return m.streak
}

// Apply 应用一次分类结论
func (m *Machine) Apply(v models.Verdict) Change {
	prev := m.streak
	m.streak = Transition(prev, v)
	return Change{Prev: prev, Curr: m.streak}
}

// Tick 每秒计时；仅对不良坐姿求值提醒规则
func (m *Machine) Tick() (Streak, *Alert) {
	m.streak = Tick(m.streak)
	if m.streak.Kind != KindBad {
		return m.streak, nil
	}
	rule, ok := m.schedule.Evaluate(m.streak.Elapsed)
	if !ok {
		return m.streak, nil
	}
	return m.streak, &Alert{Rule: rule, Elapsed: m.streak.Elapsed}
}

// Reset 清空连续状态
func (m *Machine) Reset() {
	m.streak = Streak{}
}
