package memory

import (
	"context"
	"sync"
	"time"

	"quizblitz-service/internal/domain"
)

// SessionStore is an in-memory implementation of quiz.SessionStore, used by
// unit tests and the zero-dependency dev mode. It enforces the same
// conditional-write semantics as the Mongo store under a single mutex.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.QuizCode]; ok {
		return domain.ErrSessionExists
	}
	s.sessions[session.QuizCode] = cloneSession(session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, quizCode string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

func (s *SessionStore) ListActive(_ context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []*domain.Session
	for _, session := range s.sessions {
		if session.Status == domain.StatusActive {
			active = append(active, cloneSession(session))
		}
	}
	return active, nil
}

func (s *SessionStore) Start(_ context.Context, quizCode string, startedAt time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusWaiting {
		return nil, domain.ErrInvalidState
	}
	session.Status = domain.StatusActive
	session.CurrentQuestionIndex = 0
	session.QuestionStartedAt = startedAt
	session.Version++
	return cloneSession(session), nil
}

func (s *SessionStore) Advance(_ context.Context, quizCode string, expectedIndex int, startedAt time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive || session.CurrentQuestionIndex != expectedIndex {
		return nil, domain.ErrConflict
	}
	session.CurrentQuestionIndex++
	session.QuestionStartedAt = startedAt
	session.Version++
	return cloneSession(session), nil
}

func (s *SessionStore) Finish(_ context.Context, quizCode string, expectedIndex int, finishedAt time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive || session.CurrentQuestionIndex != expectedIndex {
		return nil, domain.ErrConflict
	}
	session.Status = domain.StatusFinished
	session.FinishedAt = finishedAt
	session.Version++
	return cloneSession(session), nil
}

func (s *SessionStore) RecordAnswer(_ context.Context, quizCode string, record domain.AnswerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusActive || session.CurrentQuestionIndex != record.QuestionIndex {
		return domain.ErrStaleQuestion
	}
	key := domain.AnswerKey(record.QuestionIndex)
	byQuestion, ok := session.PlayerAnswers[record.PlayerID]
	if !ok {
		byQuestion = make(map[string]domain.AnswerRecord)
		session.PlayerAnswers[record.PlayerID] = byQuestion
	}
	if _, exists := byQuestion[key]; exists {
		return domain.ErrAlreadyAnswered
	}
	byQuestion[key] = record
	for i := range session.Players {
		if session.Players[i].ID == record.PlayerID {
			session.Players[i].Score += record.Score
			break
		}
	}
	return nil
}

func (s *SessionStore) AddPlayer(_ context.Context, quizCode string, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return domain.ErrSessionNotFound
	}
	for _, p := range session.Players {
		if p.ID == player.ID {
			return nil
		}
	}
	session.Players = append(session.Players, player)
	return nil
}

func (s *SessionStore) ClaimNotified(_ context.Context, quizCode string, expected, next int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[quizCode]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.LastNotifiedQuestionIndex != expected {
		return false, nil
	}
	session.LastNotifiedQuestionIndex = next
	return true, nil
}

func cloneSession(session *domain.Session) *domain.Session {
	clone := *session
	clone.Questions = append([]domain.Question(nil), session.Questions...)
	clone.Players = append([]domain.Player(nil), session.Players...)
	clone.PlayerAnswers = make(map[string]map[string]domain.AnswerRecord, len(session.PlayerAnswers))
	for playerID, byQuestion := range session.PlayerAnswers {
		inner := make(map[string]domain.AnswerRecord, len(byQuestion))
		for key, record := range byQuestion {
			inner[key] = record
		}
		clone.PlayerAnswers[playerID] = inner
	}
	return &clone
}
