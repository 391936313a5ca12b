package quiz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/infra/memory"
	"quizblitz-service/internal/quiz"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService() (*quiz.Service, *memory.EventLog, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	events := memory.NewEventLog()
	store := memory.NewSessionStore()
	loader := memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"AWS-101": sampleQuestions(),
	})
	service := quiz.NewServiceWithClock(store, events, loader, quiz.DefaultScorePolicy(), nil, clock.Now)
	return service, events, clock
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:            "q-ec2",
			Text:          "Which service provides resizable compute capacity?",
			Options:       map[string]string{"A": "EC2", "B": "S3", "C": "Route53"},
			CorrectAnswer: "A",
		},
		{
			ID:            "q-s3",
			Text:          "Which service is object storage?",
			Options:       map[string]string{"A": "EBS", "B": "S3", "C": "RDS"},
			CorrectAnswer: "B",
		},
		{
			ID:            "q-iam",
			Text:          "Which service manages access control?",
			Options:       map[string]string{"A": "IAM", "B": "SQS"},
			CorrectAnswer: "A",
		},
	}
}

func startedSession(t *testing.T, service *quiz.Service) *domain.Session {
	t.Helper()
	ctx := context.Background()
	if _, err := service.CreateSession(ctx, "blitz1", sampleQuestions(), 30); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Join(ctx, "BLITZ1", domain.Player{ID: "p1", Name: "Alice", Source: domain.SourceWeb}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Join(ctx, "BLITZ1", domain.Player{ID: "p2", Name: "Bob", Source: domain.SourceTelegram}); err != nil {
		t.Fatalf("join: %v", err)
	}
	session, err := service.StartSession(ctx, "BLITZ1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return session
}

func TestCreateSessionDuplicate(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	if _, err := service.CreateSession(ctx, "blitz1", sampleQuestions(), 30); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := service.CreateSession(ctx, "BLITZ1", sampleQuestions(), 30)
	if !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
}

func TestCreateSessionFromAccessCode(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	session, err := service.CreateSessionFromAccessCode(ctx, "blitz2", "aws-101", 45)
	if err != nil {
		t.Fatalf("create from access code: %v", err)
	}
	if len(session.Questions) != 3 || session.TimerDuration != 45 {
		t.Fatalf("unexpected session %+v", session)
	}
	if _, err := service.CreateSessionFromAccessCode(ctx, "blitz3", "NOPE", 45); !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected ErrQuestionSetNotFound, got %v", err)
	}
}

func TestStartSessionEmitsEvents(t *testing.T) {
	service, events, _ := newTestService()
	session := startedSession(t, service)

	if session.Status != domain.StatusActive || session.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected session after start: %+v", session)
	}

	var types []domain.EventType
	for _, e := range events.Events("BLITZ1") {
		types = append(types, e.Type)
	}
	want := []domain.EventType{
		domain.EventPlayerJoined,
		domain.EventPlayerJoined,
		domain.EventQuizStarted,
		domain.EventQuestionStarted,
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}
}

func TestStartSessionTwice(t *testing.T) {
	service, _, _ := newTestService()
	startedSession(t, service)
	_, err := service.StartSession(context.Background(), "BLITZ1")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestSubmitAnswerScoresFromServerAnchor(t *testing.T) {
	ctx := context.Background()
	service, _, clock := newTestService()
	startedSession(t, service)

	// Half the 30s question has elapsed; the client-reported timestamp lies
	// about answering instantly and must not affect the score.
	clock.Advance(15 * time.Second)
	lyingTimestamp := clock.Now().Add(-14 * time.Second).UnixMilli()
	record, err := service.SubmitAnswer(ctx, "BLITZ1", "p1", 0, "a", lyingTimestamp)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !record.Correct || record.Score != 1100 {
		t.Fatalf("expected correct answer scoring 1100, got %+v", record)
	}
	if record.Answer != "A" {
		t.Fatalf("expected normalized answer A, got %q", record.Answer)
	}

	session, err := service.Session(ctx, "BLITZ1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.Players[0].Score != 1100 {
		t.Fatalf("expected player total 1100, got %d", session.Players[0].Score)
	}
}

func TestSubmitAnswerWrongScoresZero(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	startedSession(t, service)

	record, err := service.SubmitAnswer(ctx, "BLITZ1", "p2", 0, "B", 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.Correct || record.Score != 0 {
		t.Fatalf("expected wrong answer scoring 0, got %+v", record)
	}
}

func TestSubmitAnswerFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	startedSession(t, service)

	if _, err := service.SubmitAnswer(ctx, "BLITZ1", "p1", 0, "A", 0); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := service.SubmitAnswer(ctx, "BLITZ1", "p1", 0, "B", 0)
	if !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	// The first answer stands.
	session, _ := service.Session(ctx, "BLITZ1")
	record := session.PlayerAnswers["p1"][domain.AnswerKey(0)]
	if record.Answer != "A" {
		t.Fatalf("expected first answer to stand, got %q", record.Answer)
	}
}

func TestSubmitAnswerStaleQuestion(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	startedSession(t, service)

	if _, err := service.AdvanceQuestion(ctx, "BLITZ1", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := service.SubmitAnswer(ctx, "BLITZ1", "p1", 0, "A", 0)
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected ErrStaleQuestion, got %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, "BLITZ1", "p1", 7, "A", 0); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestAdvanceQuestionConflict(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	startedSession(t, service)

	if _, err := service.AdvanceQuestion(ctx, "BLITZ1", 0); err != nil {
		t.Fatalf("advance: %v", err)
	}
	// A second caller holding the old index loses the conditional write.
	_, err := service.AdvanceQuestion(ctx, "BLITZ1", 0)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	session, _ := service.Session(ctx, "BLITZ1")
	if session.CurrentQuestionIndex != 1 {
		t.Fatalf("index must advance exactly once, got %d", session.CurrentQuestionIndex)
	}
}

func TestAdvanceResetsAnchor(t *testing.T) {
	ctx := context.Background()
	service, _, clock := newTestService()
	startedSession(t, service)

	clock.Advance(31 * time.Second)
	result, err := service.AdvanceQuestion(ctx, "BLITZ1", 0)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !result.Session.QuestionStartedAt.Equal(clock.Now()) {
		t.Fatalf("anchor not reset: %v", result.Session.QuestionStartedAt)
	}
	if remaining := result.Session.RemainingAt(clock.Now()); remaining != 30*time.Second {
		t.Fatalf("expected fresh 30s, got %v", remaining)
	}
}

func TestAdvancePastLastQuestionFinishes(t *testing.T) {
	ctx := context.Background()
	service, events, _ := newTestService()
	startedSession(t, service)

	for i := 0; i < 2; i++ {
		if _, err := service.AdvanceQuestion(ctx, "BLITZ1", i); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	result, err := service.AdvanceQuestion(ctx, "BLITZ1", 2)
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if !result.Finished || result.Session.Status != domain.StatusFinished {
		t.Fatalf("expected finished session, got %+v", result)
	}

	logged := events.Events("BLITZ1")
	last := logged[len(logged)-1]
	if last.Type != domain.EventQuizEnded {
		t.Fatalf("expected quiz_ended last, got %s", last.Type)
	}
	scores, ok := last.Data["finalScores"].([]map[string]interface{})
	if !ok || len(scores) != 2 {
		t.Fatalf("expected final scores for 2 players, got %v", last.Data["finalScores"])
	}

	// Finished sessions take no further transitions.
	if _, err := service.AdvanceQuestion(ctx, "BLITZ1", 2); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestJoinFinishedSession(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	startedSession(t, service)
	for i := 0; i < 3; i++ {
		if _, err := service.AdvanceQuestion(ctx, "BLITZ1", i); err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
	}
	_, err := service.Join(ctx, "BLITZ1", domain.Player{ID: "late", Name: "Carol"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestViewHidesCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	service, _, clock := newTestService()
	startedSession(t, service)

	if _, err := service.SubmitAnswer(ctx, "BLITZ1", "p1", 0, "A", 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	clock.Advance(10 * time.Second)

	view, err := service.View(ctx, "blitz1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.CurrentQuestion == nil {
		t.Fatal("expected current question in view")
	}
	if view.TimeRemaining != 20 {
		t.Fatalf("expected 20s remaining, got %v", view.TimeRemaining)
	}
	for _, p := range view.Players {
		switch p.ID {
		case "p1":
			if !p.HasAnswered {
				t.Fatal("p1 should be marked answered")
			}
		case "p2":
			if p.HasAnswered {
				t.Fatal("p2 should not be marked answered")
			}
		}
	}
}

func TestViewWaitingSession(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()
	if _, err := service.CreateSession(ctx, "blitz9", sampleQuestions(), 30); err != nil {
		t.Fatalf("create: %v", err)
	}
	view, err := service.View(ctx, "blitz9")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.CurrentQuestionIndex != -1 || view.CurrentQuestion != nil {
		t.Fatalf("waiting view should have no question, got %+v", view)
	}
}
