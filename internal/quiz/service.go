package quiz

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
)

// Service contains the QuizBlitz control use cases. It is the only writer of
// session state besides the Timer Authority, which also funnels its advances
// through AdvanceQuestion here.
type Service struct {
	store           SessionStore
	events          EventLog
	questions       QuestionLoader
	scoring         ScorePolicy
	defaultDuration int
	log             *zap.Logger
	now             func() time.Time
}

func NewService(store SessionStore, events EventLog, questions QuestionLoader, scoring ScorePolicy, log *zap.Logger) *Service {
	return NewServiceWithClock(store, events, questions, scoring, log, time.Now)
}

// NewServiceWithClock allows deterministic timestamps in tests.
func NewServiceWithClock(store SessionStore, events EventLog, questions QuestionLoader, scoring ScorePolicy, log *zap.Logger, now func() time.Time) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:           store,
		events:          events,
		questions:       questions,
		scoring:         scoring,
		defaultDuration: 30,
		log:             log,
		now:             now,
	}
}

// WithDefaultTimerDuration overrides the per-question seconds used when a
// create request carries none.
func (s *Service) WithDefaultTimerDuration(seconds int) *Service {
	if seconds > 0 {
		s.defaultDuration = seconds
	}
	return s
}

// AdvanceResult describes the outcome of a question transition.
type AdvanceResult struct {
	Finished bool
	Session  *domain.Session
}

// CreateSession inserts a new waiting session for the quiz code.
func (s *Service) CreateSession(ctx context.Context, quizCode string, questions []domain.Question, timerDuration int) (*domain.Session, error) {
	code := NormalizeCode(quizCode)
	if code == "" || len(questions) == 0 {
		return nil, domain.ErrQuestionSetNotFound
	}
	if timerDuration <= 0 {
		timerDuration = s.defaultDuration
	}
	session := &domain.Session{
		QuizCode:                  code,
		Status:                    domain.StatusWaiting,
		Questions:                 questions,
		CurrentQuestionIndex:      0,
		TimerDuration:             timerDuration,
		PlayerAnswers:             map[string]map[string]domain.AnswerRecord{},
		Players:                   []domain.Player{},
		LastNotifiedQuestionIndex: -1,
		CreatedAt:                 s.now(),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.log.Info("quiz session created",
		zap.String("quizCode", code),
		zap.Int("questions", len(questions)),
		zap.Int("timerDuration", timerDuration))
	return session, nil
}

// CreateSessionFromAccessCode loads the question set behind an access code
// (through the cache when configured) and creates a session from it.
func (s *Service) CreateSessionFromAccessCode(ctx context.Context, quizCode, accessCode string, timerDuration int) (*domain.Session, error) {
	if s.questions == nil {
		return nil, domain.ErrQuestionSetNotFound
	}
	questions, err := s.questions.LoadQuestionSet(ctx, NormalizeCode(accessCode))
	if err != nil {
		return nil, err
	}
	return s.CreateSession(ctx, quizCode, questions, timerDuration)
}

// StartSession moves a waiting session to active and emits quiz_started
// followed by question_started for index 0.
func (s *Service) StartSession(ctx context.Context, quizCode string) (*domain.Session, error) {
	now := s.now()
	session, err := s.store.Start(ctx, NormalizeCode(quizCode), now)
	if err != nil {
		return nil, err
	}
	s.append(ctx, domain.QuizEvent{
		QuizCode: session.QuizCode,
		Type:     domain.EventQuizStarted,
		Data: map[string]interface{}{
			"totalQuestions": len(session.Questions),
			"timerDuration":  session.TimerDuration,
		},
		LastUpdated: now,
	})
	s.append(ctx, questionStartedEvent(session, now))
	s.log.Info("quiz session started", zap.String("quizCode", session.QuizCode))
	return session, nil
}

// Join registers a player. Web players get a generated id when none is
// supplied; Telegram players carry their chat id.
func (s *Service) Join(ctx context.Context, quizCode string, player domain.Player) (domain.Player, error) {
	code := NormalizeCode(quizCode)
	session, err := s.store.Get(ctx, code)
	if err != nil {
		return domain.Player{}, err
	}
	if session.Status == domain.StatusFinished {
		return domain.Player{}, domain.ErrInvalidState
	}
	if err := s.store.AddPlayer(ctx, code, player); err != nil {
		return domain.Player{}, err
	}
	s.append(ctx, domain.QuizEvent{
		QuizCode: code,
		Type:     domain.EventPlayerJoined,
		Data: map[string]interface{}{
			"playerId":   player.ID,
			"playerName": player.Name,
			"source":     string(player.Source),
		},
		LastUpdated: s.now(),
	})
	return player, nil
}

// SubmitAnswer validates and records a player's answer. First write wins;
// answers for a question that already advanced are refused with
// ErrStaleQuestion. The time bonus is derived from the server-side anchor,
// never from the client-reported timestamp (which is recorded for audit only).
func (s *Service) SubmitAnswer(ctx context.Context, quizCode, playerID string, questionIndex int, answer string, clientTimestamp int64) (domain.AnswerRecord, error) {
	code := NormalizeCode(quizCode)
	session, err := s.store.Get(ctx, code)
	if err != nil {
		return domain.AnswerRecord{}, err
	}
	if session.Status != domain.StatusActive {
		return domain.AnswerRecord{}, domain.ErrInvalidState
	}
	if questionIndex < 0 || questionIndex >= len(session.Questions) {
		return domain.AnswerRecord{}, domain.ErrQuestionNotFound
	}
	if questionIndex != session.CurrentQuestionIndex {
		return domain.AnswerRecord{}, domain.ErrStaleQuestion
	}

	now := s.now()
	question := session.Questions[questionIndex]
	correct := strings.EqualFold(answer, question.CorrectAnswer)
	duration := time.Duration(session.TimerDuration) * time.Second
	record := domain.AnswerRecord{
		PlayerID:        playerID,
		QuestionIndex:   questionIndex,
		Answer:          strings.ToUpper(answer),
		Correct:         correct,
		Score:           s.scoring.Score(correct, session.RemainingAt(now), duration),
		SubmittedAt:     now,
		ClientTimestamp: clientTimestamp,
	}

	// The store re-checks currency and first-write-wins atomically; the
	// checks above only give callers a fast path.
	if err := s.store.RecordAnswer(ctx, code, record); err != nil {
		return domain.AnswerRecord{}, err
	}

	s.append(ctx, domain.QuizEvent{
		QuizCode: code,
		Type:     domain.EventAnswerSubmitted,
		Data: map[string]interface{}{
			"playerId":      playerID,
			"questionIndex": questionIndex,
			"isCorrect":     correct,
			"score":         record.Score,
		},
		LastUpdated: now,
	})
	return record, nil
}

// AdvanceQuestion applies the question->next-question (or question->finished)
// transition, conditional on the caller's observed index. Both the host
// control endpoint and the Timer Authority call this; whoever loses the
// conditional write receives ErrConflict and must treat the transition as
// already handled.
func (s *Service) AdvanceQuestion(ctx context.Context, quizCode string, expectedIndex int) (*AdvanceResult, error) {
	code := NormalizeCode(quizCode)
	session, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusActive {
		return nil, domain.ErrInvalidState
	}
	if session.CurrentQuestionIndex != expectedIndex {
		return nil, domain.ErrConflict
	}

	now := s.now()
	ended := questionEndedEvent(session, expectedIndex, now)

	if expectedIndex+1 < len(session.Questions) {
		next, err := s.store.Advance(ctx, code, expectedIndex, now)
		if err != nil {
			return nil, err
		}
		s.append(ctx, ended)
		s.append(ctx, questionStartedEvent(next, now))
		s.log.Info("question advanced",
			zap.String("quizCode", code),
			zap.Int("questionIndex", next.CurrentQuestionIndex))
		return &AdvanceResult{Session: next}, nil
	}

	final, err := s.store.Finish(ctx, code, expectedIndex, now)
	if err != nil {
		return nil, err
	}
	s.append(ctx, ended)
	s.append(ctx, domain.QuizEvent{
		QuizCode: code,
		Type:     domain.EventQuizEnded,
		Data: map[string]interface{}{
			"totalQuestions": len(final.Questions),
			"finalScores":    finalScores(final),
		},
		LastUpdated: now,
	})
	s.log.Info("quiz finished", zap.String("quizCode", code))
	return &AdvanceResult{Finished: true, Session: final}, nil
}

// View returns the derived client-facing state of a session at this instant.
func (s *Service) View(ctx context.Context, quizCode string) (domain.SessionView, error) {
	session, err := s.store.Get(ctx, NormalizeCode(quizCode))
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(s.now()), nil
}

// Session exposes the raw stored session (host views need correct answers).
func (s *Service) Session(ctx context.Context, quizCode string) (*domain.Session, error) {
	return s.store.Get(ctx, NormalizeCode(quizCode))
}

// append best-effort writes an event log row. A failed append never unwinds
// the session mutation it describes; the notifier's fallback poll re-derives
// missed transitions from the session document.
func (s *Service) append(ctx context.Context, event domain.QuizEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn("event append failed",
			zap.String("quizCode", event.QuizCode),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// NormalizeCode canonicalizes quiz and access codes (upper-case, trimmed).
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func questionStartedEvent(session *domain.Session, now time.Time) domain.QuizEvent {
	question := session.CurrentQuestion()
	return domain.QuizEvent{
		QuizCode: session.QuizCode,
		Type:     domain.EventQuestionStarted,
		Data: map[string]interface{}{
			"questionIndex":     session.CurrentQuestionIndex,
			"question":          question.Text,
			"options":           question.Options,
			"correctAnswer":     question.CorrectAnswer,
			"timeLimit":         session.TimerDuration,
			"totalQuestions":    len(session.Questions),
			"questionStartedAt": session.QuestionStartedAt.UnixMilli(),
		},
		LastUpdated: now,
	}
}

func questionEndedEvent(session *domain.Session, questionIndex int, now time.Time) domain.QuizEvent {
	question := session.Questions[questionIndex]
	breakdown := make(map[string]int, len(question.Options))
	for option := range question.Options {
		breakdown[option] = 0
	}
	total := 0
	for _, byQuestion := range session.PlayerAnswers {
		record, ok := byQuestion[domain.AnswerKey(questionIndex)]
		if !ok {
			continue
		}
		total++
		if _, known := breakdown[record.Answer]; known {
			breakdown[record.Answer]++
		}
	}
	return domain.QuizEvent{
		QuizCode: session.QuizCode,
		Type:     domain.EventQuestionEnded,
		Data: map[string]interface{}{
			"questionIndex":   questionIndex,
			"correctAnswer":   question.CorrectAnswer,
			"explanation":     question.Explanation,
			"answerBreakdown": breakdown,
			"totalAnswers":    total,
		},
		LastUpdated: now,
	}
}

func finalScores(session *domain.Session) []map[string]interface{} {
	players := make([]domain.Player, len(session.Players))
	copy(players, session.Players)
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].Name < players[j].Name
	})
	scores := make([]map[string]interface{}, 0, len(players))
	for _, p := range players {
		scores = append(scores, map[string]interface{}{
			"playerId":   p.ID,
			"playerName": p.Name,
			"score":      p.Score,
		})
	}
	return scores
}
