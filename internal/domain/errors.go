package domain

import "errors"

var (
	// ErrSessionExists is returned when creating a session with a taken quiz code.
	ErrSessionExists = errors.New("quiz session already exists")
	// ErrSessionNotFound is returned for an unknown quiz code.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidState is returned when an action is not valid from the session's
	// current status (e.g. starting an already-active session).
	ErrInvalidState = errors.New("action not valid in current session state")
	// ErrConflict means a conditional state advance lost the race to another
	// writer. Callers treat this as handled-by-someone-else, never retry.
	ErrConflict = errors.New("quiz state changed by another process")
	// ErrAlreadyAnswered rejects a second answer for the same (player, question).
	ErrAlreadyAnswered = errors.New("answer already recorded for this question")
	// ErrStaleQuestion rejects an answer that arrived after the question advanced.
	ErrStaleQuestion = errors.New("question is no longer current")
	// ErrQuestionNotFound indicates a submitted question index is out of range.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionSetNotFound indicates no questions exist for an access code.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrPlayerNotFound is returned when a player id is not part of the session.
	ErrPlayerNotFound = errors.New("player not found in quiz session")
)
