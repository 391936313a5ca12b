// Package notify bridges quiz transitions to slow consumers that cannot hold
// an SSE stream open, Telegram chats chiefly. It is a read-side consumer: it
// never mutates quiz state beyond its own notification watermark.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
)

// Watcher streams newly appended quiz events. The channel closes when the
// underlying stream breaks; the notifier reconnects with backoff.
type Watcher interface {
	Watch(ctx context.Context) (<-chan domain.QuizEvent, error)
}

// SessionSource is the slice of the session store the notifier needs: reads
// plus the watermark compare-and-swap that makes notifications exactly-once
// across replicas.
type SessionSource interface {
	Get(ctx context.Context, quizCode string) (*domain.Session, error)
	ListActive(ctx context.Context) ([]*domain.Session, error)
	ClaimNotified(ctx context.Context, quizCode string, expectedIndex, nextIndex int) (bool, error)
}

// Sender delivers notifications to the external channel.
type Sender interface {
	// SendQuestion pushes the current question of an active session.
	SendQuestion(ctx context.Context, session *domain.Session) error
	// SendFinished pushes the final standings of a finished session.
	SendFinished(ctx context.Context, session *domain.Session) error
}

// Notifier consumes the event stream and drives the Sender. A fallback poll
// re-derives missed transitions from session documents, so a dropped stream
// (or a lost event append) delays a notification instead of losing it.
type Notifier struct {
	watcher  Watcher
	sessions SessionSource
	sender   Sender
	poll     time.Duration
	log      *zap.Logger
}

func New(watcher Watcher, sessions SessionSource, sender Sender, poll time.Duration, log *zap.Logger) *Notifier {
	if poll <= 0 {
		poll = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		watcher:  watcher,
		sessions: sessions,
		sender:   sender,
		poll:     poll,
		log:      log,
	}
}

// Run blocks until ctx is done, consuming the event stream and polling as a
// safety net.
func (n *Notifier) Run(ctx context.Context) {
	go n.pollLoop(ctx)
	n.watchLoop(ctx)
}

func (n *Notifier) watchLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		events, err := n.watcher.Watch(ctx)
		if err != nil {
			n.log.Warn("event watch failed, retrying",
				zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		for event := range events {
			n.handleEvent(ctx, event)
		}
		// Stream closed; loop and reconnect.
	}
}

func (n *Notifier) handleEvent(ctx context.Context, event domain.QuizEvent) {
	switch event.Type {
	case domain.EventQuestionStarted, domain.EventQuizStarted, domain.EventQuizEnded:
		n.notify(ctx, event.QuizCode)
	}
}

func (n *Notifier) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, err := n.sessions.ListActive(ctx)
			if err != nil {
				n.log.Warn("notifier poll failed", zap.Error(err))
				continue
			}
			for _, session := range sessions {
				if session.CurrentQuestionIndex > session.LastNotifiedQuestionIndex {
					n.notify(ctx, session.QuizCode)
				}
			}
		}
	}
}

// notify re-reads the session and claims the watermark before sending. The
// claim is a conditional write on lastNotifiedQuestionIndex: when several
// notifier replicas race, exactly one wins and sends. A finished session
// claims one past the last question index.
func (n *Notifier) notify(ctx context.Context, quizCode string) {
	session, err := n.sessions.Get(ctx, quizCode)
	if err != nil {
		n.log.Warn("notifier session read failed",
			zap.String("quizCode", quizCode), zap.Error(err))
		return
	}

	switch session.Status {
	case domain.StatusActive:
		if session.CurrentQuestionIndex <= session.LastNotifiedQuestionIndex {
			return
		}
		claimed, err := n.sessions.ClaimNotified(ctx, quizCode,
			session.LastNotifiedQuestionIndex, session.CurrentQuestionIndex)
		if err != nil {
			n.log.Warn("notification claim failed",
				zap.String("quizCode", quizCode), zap.Error(err))
			return
		}
		if !claimed {
			return
		}
		if err := n.sender.SendQuestion(ctx, session); err != nil {
			n.log.Warn("question notification failed",
				zap.String("quizCode", quizCode),
				zap.Int("questionIndex", session.CurrentQuestionIndex),
				zap.Error(err))
			return
		}
		n.log.Info("question notified",
			zap.String("quizCode", quizCode),
			zap.Int("questionIndex", session.CurrentQuestionIndex))
	case domain.StatusFinished:
		finishedMark := len(session.Questions)
		if session.LastNotifiedQuestionIndex >= finishedMark {
			return
		}
		claimed, err := n.sessions.ClaimNotified(ctx, quizCode,
			session.LastNotifiedQuestionIndex, finishedMark)
		if err != nil || !claimed {
			return
		}
		if err := n.sender.SendFinished(ctx, session); err != nil {
			n.log.Warn("finish notification failed",
				zap.String("quizCode", quizCode), zap.Error(err))
			return
		}
		n.log.Info("quiz finish notified", zap.String("quizCode", quizCode))
	}
}
