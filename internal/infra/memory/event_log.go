package memory

import (
	"context"
	"sync"
	"time"

	"quizblitz-service/internal/domain"
)

// EventLog is an in-memory append-only event log with subscriber fan-out,
// standing in for the Mongo change stream in tests and dev mode.
type EventLog struct {
	mu          sync.Mutex
	events      []domain.QuizEvent
	subscribers map[chan domain.QuizEvent]struct{}
}

func NewEventLog() *EventLog {
	return &EventLog{subscribers: make(map[chan domain.QuizEvent]struct{})}
}

func (l *EventLog) Append(_ context.Context, event domain.QuizEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	for ch := range l.subscribers {
		select {
		case ch <- event:
		default:
			// Drop for slow subscribers; the fallback poll covers gaps.
		}
	}
	return nil
}

// Watch returns a channel of events appended after the call. The channel
// closes when ctx is done.
func (l *EventLog) Watch(ctx context.Context) (<-chan domain.QuizEvent, error) {
	ch := make(chan domain.QuizEvent, 16)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subscribers, ch)
		l.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// Events returns a snapshot of all appended events for a quiz code.
func (l *EventLog) Events(quizCode string) []domain.QuizEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.QuizEvent
	for _, event := range l.events {
		if event.QuizCode == quizCode {
			out = append(out, event)
		}
	}
	return out
}

// DeleteOldByTypes removes events of the given types older than cutoff,
// returning the number removed. Maintenance tooling only.
func (l *EventLog) DeleteOldByTypes(_ context.Context, types []domain.EventType, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	match := make(map[domain.EventType]struct{}, len(types))
	for _, t := range types {
		match[t] = struct{}{}
	}
	kept := l.events[:0]
	var removed int64
	for _, event := range l.events {
		if _, ok := match[event.Type]; ok && event.LastUpdated.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, event)
	}
	l.events = kept
	return removed, nil
}
