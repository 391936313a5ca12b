package domain

import "time"

// EventType enumerates the quiz event log entries.
type EventType string

const (
	EventQuizStarted     EventType = "quiz_started"
	EventQuestionStarted EventType = "question_started"
	EventQuestionEnded   EventType = "question_ended"
	// EventTimerUpdate exists only so maintenance tooling can prune legacy
	// rows; the live system never writes per-tick timer events. Remaining
	// time is always recomputed from the question anchor.
	EventTimerUpdate     EventType = "timer_update"
	EventQuizEnded       EventType = "quiz_ended"
	EventPlayerJoined    EventType = "player_joined"
	EventAnswerSubmitted EventType = "answer_submitted"
)

// QuizEvent is one append-only event log entry. Rows are never mutated after
// insert and only deleted by maintenance tooling.
type QuizEvent struct {
	QuizCode    string                 `bson:"quizCode" json:"quizCode"`
	Type        EventType              `bson:"type" json:"type"`
	Data        map[string]interface{} `bson:"data" json:"data"`
	LastUpdated time.Time              `bson:"lastUpdated" json:"lastUpdated"`
}
