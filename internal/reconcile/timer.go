// Package reconcile merges the two timer feeds a quiz client sees (the
// authoritative once-per-second SSE value and a slower change-notification
// channel) with a fast local extrapolation that keeps the displayed
// countdown moving smoothly between server pushes.
package reconcile

import (
	"sync"
	"time"
)

// Source identifies which feed produced the current timer value, in
// decreasing priority order: sse beats synchronized beats fallback.
type Source string

const (
	// SourceSSE is the server-computed remaining time pushed over SSE.
	SourceSSE Source = "sse"
	// SourceSynchronized is the local extrapolation from the question anchor.
	SourceSynchronized Source = "synchronized"
	// SourceFallback is the slower polling/change-notification channel,
	// honored only while SSE is disconnected.
	SourceFallback Source = "fallback"
)

// State is the renderable timer snapshot.
type State struct {
	TimeRemaining float64 // seconds
	Progress      float64 // 0-100, fraction of question time elapsed
	Source        Source
	IsActive      bool
	IsExpired     bool
}

// Options configures callbacks and milestone thresholds.
type Options struct {
	// OnExpired fires once per question index when the countdown reaches
	// zero. It drives UI affordances only; advancing the question is the
	// server's decision.
	OnExpired func(questionIndex int)
	// OnMilestone fires once per (question, threshold) when elapsed progress
	// crosses the threshold percentage.
	OnMilestone func(questionIndex, milestone int, state State)
	// Milestones are elapsed-progress percentages. Defaults to
	// 25, 50, 75, 90, 95.
	Milestones []int
}

var defaultMilestones = []int{25, 50, 75, 90, 95}

// Timer is the per-client reconciler. All methods are safe for concurrent use.
type Timer struct {
	mu          sync.Mutex
	onExpired   func(int)
	onMilestone func(int, int, State)
	milestones  []int

	questionIndex int
	startedAt     time.Time
	duration      time.Duration
	hasQuestion   bool
	sseConnected  bool
	state         State

	expiredFired   map[int]bool
	milestoneFired map[int]map[int]bool
}

func NewTimer(opts Options) *Timer {
	milestones := opts.Milestones
	if len(milestones) == 0 {
		milestones = defaultMilestones
	}
	return &Timer{
		onExpired:      opts.OnExpired,
		onMilestone:    opts.OnMilestone,
		milestones:     milestones,
		expiredFired:   make(map[int]bool),
		milestoneFired: make(map[int]map[int]bool),
	}
}

// StartQuestion points the reconciler at a new question anchor. Called when a
// question_started view is observed. It does not clear fired flags (that is
// Reset's job), so a re-observed view of the same question cannot re-arm
// callbacks.
func (t *Timer) StartQuestion(questionIndex int, startedAt time.Time, duration time.Duration) {
	t.mu.Lock()
	t.questionIndex = questionIndex
	t.startedAt = startedAt
	t.duration = duration
	t.hasQuestion = true
	fire := t.applyLocked(t.remainingFromAnchor(time.Now()), SourceSynchronized)
	t.mu.Unlock()
	fire()
}

// SetSSEConnected marks the SSE channel up or down. While connected, values
// from the fallback channel are discarded.
func (t *Timer) SetSSEConnected(connected bool) {
	t.mu.Lock()
	t.sseConnected = connected
	t.mu.Unlock()
}

// ApplyServerRemaining ingests an authoritative SSE timer value. It always
// wins over whatever the local extrapolation currently shows.
func (t *Timer) ApplyServerRemaining(remaining float64) {
	t.mu.Lock()
	if !t.hasQuestion {
		t.mu.Unlock()
		return
	}
	fire := t.applyLocked(remaining, SourceSSE)
	t.mu.Unlock()
	fire()
}

// ApplyFallbackRemaining ingests a value from the secondary channel. Ignored
// while SSE is connected.
func (t *Timer) ApplyFallbackRemaining(remaining float64) {
	t.mu.Lock()
	if !t.hasQuestion || t.sseConnected {
		t.mu.Unlock()
		return
	}
	fire := t.applyLocked(remaining, SourceFallback)
	t.mu.Unlock()
	fire()
}

// Tick recomputes the local extrapolation from the anchor. Call it on a fast
// interval (order of 100ms) for smooth display; the next SSE value still
// overrides whatever Tick produced.
func (t *Timer) Tick(now time.Time) State {
	t.mu.Lock()
	if !t.hasQuestion {
		state := t.state
		t.mu.Unlock()
		return state
	}
	fire := t.applyLocked(t.remainingFromAnchor(now), SourceSynchronized)
	state := t.state
	t.mu.Unlock()
	fire()
	return state
}

// Reset clears all per-question fired flags and extrapolation state. Call it
// exactly when a new question_started event is observed, never on arbitrary
// re-renders.
func (t *Timer) Reset() {
	t.mu.Lock()
	t.hasQuestion = false
	t.state = State{}
	t.expiredFired = make(map[int]bool)
	t.milestoneFired = make(map[int]map[int]bool)
	t.mu.Unlock()
}

// State returns the current snapshot.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) remainingFromAnchor(now time.Time) float64 {
	remaining := t.duration - now.Sub(t.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining.Seconds()
}

// applyLocked updates the state and returns a closure firing any callbacks
// outside the lock.
func (t *Timer) applyLocked(remaining float64, source Source) func() {
	if remaining < 0 {
		remaining = 0
	}
	progress := 100.0
	if t.duration > 0 {
		progress = (1 - remaining/t.duration.Seconds()) * 100
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
	}
	expired := remaining <= 0
	t.state = State{
		TimeRemaining: remaining,
		Progress:      progress,
		Source:        source,
		IsActive:      !expired,
		IsExpired:     expired,
	}

	index := t.questionIndex
	state := t.state

	var milestonesHit []int
	if t.onMilestone != nil {
		fired := t.milestoneFired[index]
		if fired == nil {
			fired = make(map[int]bool)
			t.milestoneFired[index] = fired
		}
		for _, m := range t.milestones {
			if progress >= float64(m) && !fired[m] {
				fired[m] = true
				milestonesHit = append(milestonesHit, m)
			}
		}
	}

	fireExpired := false
	if expired && t.onExpired != nil && !t.expiredFired[index] {
		t.expiredFired[index] = true
		fireExpired = true
	}

	onMilestone := t.onMilestone
	onExpired := t.onExpired
	return func() {
		for _, m := range milestonesHit {
			onMilestone(index, m, state)
		}
		if fireExpired {
			onExpired(index)
		}
	}
}
