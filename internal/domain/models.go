package domain

import (
	"strconv"
	"time"
)

// SessionStatus is the lifecycle state of a quiz session. Transitions are
// forward-only: waiting -> active -> finished.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// PlayerSource tags which transport a player joined from.
type PlayerSource string

const (
	SourceWeb      PlayerSource = "web"
	SourceTelegram PlayerSource = "telegram"
)

// Question is one multiple-choice question. Options are keyed by answer
// letter ("A".."F"); CorrectAnswer holds the winning letter and must never
// be sent to players mid-quiz.
type Question struct {
	ID            string            `bson:"id" json:"id"`
	Text          string            `bson:"question" json:"question"`
	Options       map[string]string `bson:"options" json:"options"`
	CorrectAnswer string            `bson:"correctAnswer" json:"correctAnswer,omitempty"`
	Explanation   string            `bson:"explanation,omitempty" json:"explanation,omitempty"`
	Difficulty    string            `bson:"difficulty,omitempty" json:"difficulty,omitempty"`
}

// Player is a participant with a running score.
type Player struct {
	ID     string       `bson:"id" json:"id"`
	Name   string       `bson:"name" json:"name"`
	Score  int          `bson:"score" json:"score"`
	Source PlayerSource `bson:"source" json:"source"`
}

// AnswerRecord is a player's answer to one question. Write-once: the first
// record for a (player, question) pair wins and later writes are refused.
type AnswerRecord struct {
	PlayerID        string    `bson:"playerId" json:"playerId"`
	QuestionIndex   int       `bson:"questionIndex" json:"questionIndex"`
	Answer          string    `bson:"answer" json:"answer"`
	Correct         bool      `bson:"isCorrect" json:"isCorrect"`
	Score           int       `bson:"score" json:"score"`
	SubmittedAt     time.Time `bson:"timestamp" json:"timestamp"`
	ClientTimestamp int64     `bson:"clientTimestamp,omitempty" json:"clientTimestamp,omitempty"`
}

// Session is the authoritative quiz session document. Only the session store
// mutates it, and index/status/anchor changes go through conditional writes.
type Session struct {
	QuizCode             string        `bson:"quizCode" json:"quizCode"`
	Status               SessionStatus `bson:"status" json:"status"`
	Questions            []Question    `bson:"questions" json:"questions"`
	CurrentQuestionIndex int           `bson:"currentQuestionIndex" json:"currentQuestionIndex"`
	QuestionStartedAt    time.Time     `bson:"questionStartedAt" json:"questionStartedAt"`
	// TimerDuration is the seconds allotted per question, constant for the session.
	TimerDuration int `bson:"timerDuration" json:"timerDuration"`
	// PlayerAnswers maps player id -> "q{index}" -> record.
	PlayerAnswers map[string]map[string]AnswerRecord `bson:"playerAnswers" json:"playerAnswers"`
	Players       []Player                           `bson:"players" json:"players"`
	// LastNotifiedQuestionIndex is the Change Notifier watermark: the highest
	// question index already pushed to non-SSE consumers.
	LastNotifiedQuestionIndex int       `bson:"lastNotifiedQuestionIndex" json:"lastNotifiedQuestionIndex"`
	Version                   int64     `bson:"version" json:"version"`
	CreatedAt                 time.Time `bson:"createdAt" json:"createdAt"`
	FinishedAt                time.Time `bson:"finishedAt,omitempty" json:"finishedAt,omitempty"`
}

// AnswerKey is the map key for one question's answers ("q0", "q1", ...).
func AnswerKey(questionIndex int) string {
	return "q" + strconv.Itoa(questionIndex)
}

// HasAnswered reports whether the player has a recorded answer for the question.
func (s *Session) HasAnswered(playerID string, questionIndex int) bool {
	byQuestion, ok := s.PlayerAnswers[playerID]
	if !ok {
		return false
	}
	_, ok = byQuestion[AnswerKey(questionIndex)]
	return ok
}

// CurrentQuestion returns the question at the current index, or nil when the
// index is out of range (waiting or finished sessions).
func (s *Session) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIndex]
}

// OnLastQuestion reports whether the current question is the final one.
func (s *Session) OnLastQuestion() bool {
	return s.CurrentQuestionIndex >= len(s.Questions)-1
}

// RemainingAt derives the time left on the current question from the anchor
// timestamp. Never trusts a previously stored countdown value.
func (s *Session) RemainingAt(now time.Time) time.Duration {
	if s.Status != StatusActive {
		return 0
	}
	elapsed := now.Sub(s.QuestionStartedAt)
	remaining := time.Duration(s.TimerDuration)*time.Second - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// QuestionView is the client-safe projection of a question (no correct answer).
type QuestionView struct {
	ID         string            `json:"id"`
	Text       string            `json:"question"`
	Options    map[string]string `json:"options"`
	Difficulty string            `json:"difficulty,omitempty"`
}

// PlayerView annotates a player with whether they answered the current question.
type PlayerView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Score       int          `json:"score"`
	Source      PlayerSource `json:"source"`
	HasAnswered bool         `json:"hasAnswered"`
}

// SessionView is the derived state pushed to clients. TimeRemaining and
// HasAnswered are recomputed at projection time, never cached.
type SessionView struct {
	QuizCode             string        `json:"quizCode"`
	Status               SessionStatus `json:"status"`
	CurrentQuestion      *QuestionView `json:"currentQuestion"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	TotalQuestions       int           `json:"totalQuestions"`
	TimeRemaining        float64       `json:"timeRemaining"`
	QuestionStartedAt    int64         `json:"questionStartedAt"`
	TimerDuration        int           `json:"timerDuration"`
	Players              []PlayerView  `json:"players"`
	IsQuizCompleted      bool          `json:"isQuizCompleted"`
}

// View projects the session into its client-facing shape at a given instant.
func (s *Session) View(now time.Time) SessionView {
	view := SessionView{
		QuizCode:             s.QuizCode,
		Status:               s.Status,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		TotalQuestions:       len(s.Questions),
		TimerDuration:        s.TimerDuration,
		IsQuizCompleted:      s.Status == StatusFinished,
	}
	if s.Status == StatusWaiting {
		view.CurrentQuestionIndex = -1
	}
	if q := s.CurrentQuestion(); q != nil && s.Status == StatusActive {
		view.CurrentQuestion = &QuestionView{
			ID:         q.ID,
			Text:       q.Text,
			Options:    q.Options,
			Difficulty: q.Difficulty,
		}
		view.TimeRemaining = s.RemainingAt(now).Seconds()
		view.QuestionStartedAt = s.QuestionStartedAt.UnixMilli()
	}
	view.Players = make([]PlayerView, 0, len(s.Players))
	for _, p := range s.Players {
		view.Players = append(view.Players, PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Score:       p.Score,
			Source:      p.Source,
			HasAnswered: s.HasAnswered(p.ID, s.CurrentQuestionIndex),
		})
	}
	return view
}
