package quiz

import (
	"context"
	"time"

	"quizblitz-service/internal/domain"
)

// SessionStore persists quiz sessions. Implementations must apply every
// index/status/anchor mutation as a conditional write keyed on the expected
// prior value; that compare-and-swap discipline is the only coordination
// between the Control API, the Timer Authority, and the Change Notifier.
type SessionStore interface {
	// Create inserts a new waiting session. Returns domain.ErrSessionExists
	// if the quiz code is taken.
	Create(ctx context.Context, session *domain.Session) error
	// Get loads a session by quiz code (domain.ErrSessionNotFound if unknown).
	Get(ctx context.Context, quizCode string) (*domain.Session, error)
	// ListActive returns all sessions with status active, for the Timer
	// Authority's tick scan.
	ListActive(ctx context.Context) ([]*domain.Session, error)
	// Start moves a waiting session to active with question 0 anchored at
	// startedAt. Returns domain.ErrInvalidState unless the session is waiting.
	Start(ctx context.Context, quizCode string, startedAt time.Time) (*domain.Session, error)
	// Advance increments currentQuestionIndex and resets the anchor, but only
	// if the stored index still equals expectedIndex and the session is
	// active. Returns domain.ErrConflict when another writer got there first.
	Advance(ctx context.Context, quizCode string, expectedIndex int, startedAt time.Time) (*domain.Session, error)
	// Finish moves an active session to finished under the same conditional
	// guard as Advance.
	Finish(ctx context.Context, quizCode string, expectedIndex int, finishedAt time.Time) (*domain.Session, error)
	// RecordAnswer writes an answer record and bumps the player's running
	// score in one atomic step. First write wins: a record that already
	// exists for the (player, question) pair yields domain.ErrAlreadyAnswered,
	// and a record for a question that is no longer current yields
	// domain.ErrStaleQuestion.
	RecordAnswer(ctx context.Context, quizCode string, record domain.AnswerRecord) error
	// AddPlayer registers a player; adding the same player id twice is a no-op.
	AddPlayer(ctx context.Context, quizCode string, player domain.Player) error
	// ClaimNotified advances lastNotifiedQuestionIndex from expected to next.
	// Returns false when another notifier trigger already claimed it.
	ClaimNotified(ctx context.Context, quizCode string, expected, next int) (bool, error)
}

// EventLog is the append-only change-notification substrate. Rows are never
// updated; per-tick timer values are deliberately not persisted here.
type EventLog interface {
	Append(ctx context.Context, event domain.QuizEvent) error
}

// QuestionLoader fetches a question set by access code from a backing store.
type QuestionLoader interface {
	LoadQuestionSet(ctx context.Context, accessCode string) ([]domain.Question, error)
}
