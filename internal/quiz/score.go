package quiz

import (
	"math"
	"time"
)

// ScorePolicy awards a base score for a correct answer plus a time bonus that
// decays linearly with elapsed question time. The curve is a policy knob, not
// a law; both fields come from config.
type ScorePolicy struct {
	BasePoints   int
	MaxTimeBonus int
}

// DefaultScorePolicy matches the production scoring endpoint: 1000 base
// points, up to 200 bonus points at full time remaining.
func DefaultScorePolicy() ScorePolicy {
	return ScorePolicy{BasePoints: 1000, MaxTimeBonus: 200}
}

// Score computes the awarded score for an answer submitted with `remaining`
// time left out of `total`. Wrong answers score zero; the bonus fraction is
// clamped to [0, 1].
func (p ScorePolicy) Score(correct bool, remaining, total time.Duration) int {
	if !correct {
		return 0
	}
	if total <= 0 {
		return p.BasePoints
	}
	frac := float64(remaining) / float64(total)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return p.BasePoints + int(math.Floor(frac*float64(p.MaxTimeBonus)))
}
