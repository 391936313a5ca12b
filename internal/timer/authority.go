package timer

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/quiz"
)

var advances = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "quizblitz_timer_advances_total",
	Help: "Question transitions attempted by the timer authority, by outcome.",
}, []string{"outcome"})

// SessionLister scans sessions the authority is responsible for.
type SessionLister interface {
	ListActive(ctx context.Context) ([]*domain.Session, error)
}

// Advancer applies a question transition under the conditional-write guard.
// *quiz.Service satisfies this.
type Advancer interface {
	AdvanceQuestion(ctx context.Context, quizCode string, expectedIndex int) (*quiz.AdvanceResult, error)
}

// Authority is the single server-side process that decides when a question's
// time is up. It never trusts client clocks or previously emitted countdown
// values: every tick re-derives remaining time from the stored anchor.
//
// Losing the conditional write to a concurrent host action is normal control
// flow, not an error. If the authority is down no question auto-advances;
// the system degrades to a stuck question, never to corrupted state.
type Authority struct {
	sessions   SessionLister
	advancer   Advancer
	tick       time.Duration
	resultsGap time.Duration
	log        *zap.Logger
	now        func() time.Time
}

// New builds an authority ticking at the given interval. resultsGap holds the
// expired question on screen for a beat so clients can show the breakdown
// before the next question starts.
func New(sessions SessionLister, advancer Advancer, tick, resultsGap time.Duration, log *zap.Logger) *Authority {
	if log == nil {
		log = zap.NewNop()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Authority{
		sessions:   sessions,
		advancer:   advancer,
		tick:       tick,
		resultsGap: resultsGap,
		log:        log,
		now:        time.Now,
	}
}

// WithClock is test-only for deterministic sweeps.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

// Run ticks until ctx is done.
func (a *Authority) Run(ctx context.Context) {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()
	a.log.Info("timer authority running",
		zap.Duration("tick", a.tick),
		zap.Duration("resultsGap", a.resultsGap))
	for {
		select {
		case <-ctx.Done():
			a.log.Info("timer authority stopped")
			return
		case <-ticker.C:
			a.Sweep(ctx)
		}
	}
}

// Sweep checks every active session once and advances those whose question
// time (plus the results gap) has fully elapsed.
func (a *Authority) Sweep(ctx context.Context) {
	sessions, err := a.sessions.ListActive(ctx)
	if err != nil {
		a.log.Warn("active session scan failed", zap.Error(err))
		return
	}
	now := a.now()
	for _, session := range sessions {
		if session.RemainingAt(now) > 0 {
			continue
		}
		deadline := session.QuestionStartedAt.
			Add(time.Duration(session.TimerDuration) * time.Second).
			Add(a.resultsGap)
		if now.Before(deadline) {
			continue
		}
		a.advance(ctx, session)
	}
}

func (a *Authority) advance(ctx context.Context, session *domain.Session) {
	result, err := a.advancer.AdvanceQuestion(ctx, session.QuizCode, session.CurrentQuestionIndex)
	switch {
	case err == nil && result.Finished:
		advances.WithLabelValues("finished").Inc()
	case err == nil:
		advances.WithLabelValues("advanced").Inc()
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		// Another writer (host control, a concurrent tick) already applied
		// this transition.
		advances.WithLabelValues("conflict").Inc()
		a.log.Debug("transition already handled",
			zap.String("quizCode", session.QuizCode),
			zap.Int("questionIndex", session.CurrentQuestionIndex))
	default:
		advances.WithLabelValues("error").Inc()
		a.log.Warn("question advance failed",
			zap.String("quizCode", session.QuizCode),
			zap.Error(err))
	}
}
