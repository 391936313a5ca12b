package quiz

import (
	"testing"
	"time"
)

func TestScoreWrongAnswerIsZero(t *testing.T) {
	p := DefaultScorePolicy()
	if got := p.Score(false, 30*time.Second, 30*time.Second); got != 0 {
		t.Fatalf("expected 0 for wrong answer, got %d", got)
	}
}

func TestScoreFullTimeBonus(t *testing.T) {
	p := DefaultScorePolicy()
	if got := p.Score(true, 30*time.Second, 30*time.Second); got != 1200 {
		t.Fatalf("expected 1200 at full time, got %d", got)
	}
}

func TestScoreDecaysLinearly(t *testing.T) {
	p := DefaultScorePolicy()
	if got := p.Score(true, 15*time.Second, 30*time.Second); got != 1100 {
		t.Fatalf("expected 1100 at half time, got %d", got)
	}
	if got := p.Score(true, 0, 30*time.Second); got != 1000 {
		t.Fatalf("expected base 1000 at zero remaining, got %d", got)
	}
}

func TestScoreClampsOutOfRangeRemaining(t *testing.T) {
	p := DefaultScorePolicy()
	if got := p.Score(true, 45*time.Second, 30*time.Second); got != 1200 {
		t.Fatalf("expected clamp to max bonus, got %d", got)
	}
	if got := p.Score(true, -5*time.Second, 30*time.Second); got != 1000 {
		t.Fatalf("expected clamp to base, got %d", got)
	}
}

func TestScoreZeroDurationAwardsBase(t *testing.T) {
	p := ScorePolicy{BasePoints: 500, MaxTimeBonus: 100}
	if got := p.Score(true, 0, 0); got != 500 {
		t.Fatalf("expected base for zero duration, got %d", got)
	}
}
