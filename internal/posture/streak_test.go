package posture

import (
	"math/rand"
	"testing"

	"wisefido-posture/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		cur     Streak
		verdict models.Verdict
		want    Streak
	}{
		{"none to bad", Streak{}, models.VerdictBad, Streak{Kind: KindBad}},
		{"none to good", Streak{}, models.VerdictGood, Streak{Kind: KindGood}},
		{"bad continues keeps elapsed", Streak{KindBad, 42}, models.VerdictBad, Streak{KindBad, 42}},
		{"good continues keeps elapsed", Streak{KindGood, 7}, models.VerdictGood, Streak{KindGood, 7}},
		{"good to bad resets", Streak{KindGood, 30}, models.VerdictBad, Streak{Kind: KindBad}},
		{"bad to good resets", Streak{KindBad, 30}, models.VerdictGood, Streak{Kind: KindGood}},
		{"unknown clears bad", Streak{KindBad, 150}, models.VerdictUnknown, Streak{}},
		{"unknown clears good", Streak{KindGood, 3}, models.VerdictUnknown, Streak{}},
		{"unknown on none", Streak{}, models.VerdictUnknown, Streak{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.cur, tt.verdict))
		})
	}
}

func TestTick(t *testing.T) {
	assert.Equal(t, Streak{}, Tick(Streak{}))
	assert.Equal(t, Streak{KindBad, 1}, Tick(Streak{Kind: KindBad}))
	assert.Equal(t, Streak{KindGood, 10}, Tick(Streak{KindGood, 9}))
}

// 任意结论序列下，最多一个连续状态活跃，且计时等于激活后的 tick 次数
func TestTransition_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	verdicts := []models.Verdict{models.VerdictGood, models.VerdictBad, models.VerdictUnknown}

	for run := 0; run < 200; run++ {
		var s Streak
		ticksSinceActivation := 0
		for step := 0; step < 100; step++ {
			if rng.Intn(2) == 0 {
				s = Tick(s)
				if s.Active() {
					ticksSinceActivation++
				}
			} else {
				prev := s
				s = Transition(s, verdicts[rng.Intn(len(verdicts))])
				if s.Kind != prev.Kind {
					ticksSinceActivation = 0
				}
			}

			assert.Contains(t, []Kind{KindNone, KindGood, KindBad}, s.Kind)
			if s.Active() {
				assert.Equal(t, ticksSinceActivation, s.Elapsed)
			} else {
				assert.Equal(t, 0, s.Elapsed)
			}
		}
	}
}

// 快速抖动（坏→好→坏）每次切换都清零
func TestTransition_Flapping(t *testing.T) {
	s := Streak{KindBad, 12}
	s = Transition(s, models.VerdictGood)
	assert.Equal(t, 0, s.Elapsed)
	s = Tick(s)
	s = Transition(s, models.VerdictBad)
	assert.Equal(t, Streak{Kind: KindBad}, s)
}
