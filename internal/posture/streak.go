package posture

import "wisefido-posture/internal/models"

// Kind 连续状态类型
type Kind int

const (
	KindNone Kind = iota
	KindGood
	KindBad
)

func (k Kind) String() string {
	switch k {
	case KindGood:
		return "good"
	case KindBad:
		return "bad"
	default:
		return "none"
	}
}

// Streak 当前连续状态；同一时刻最多一个处于活跃
type Streak struct {
	Kind    Kind
	Elapsed int // 已持续秒数（计时 tick 次数）
}

// Active 是否有活跃的连续状态
func (s Streak) Active() bool {
	return s.Kind != KindNone
}

// kindOf 结论对应的连续状态类型
func kindOf(v models.Verdict) Kind {
	switch v {
	case models.VerdictGood:
		return KindGood
	case models.VerdictBad:
		return KindBad
	default:
		return KindNone
	}
}

// Transition 收到新结论后的状态转移
// 同类结论保持计时不变；类型变化（包括经过 unknown）一律从 0 开始
func Transition(cur Streak, v models.Verdict) Streak {
	next := kindOf(v)
	if next == KindNone {
		return Streak{}
	}
	if cur.Kind == next {
		return cur
	}
	return Streak{Kind: next}
}

// Tick 每秒计时；无活跃状态时不变
func Tick(cur Streak) Streak {
	if !cur.Active() {
		return cur
	}
	cur.Elapsed++
	return cur
}
