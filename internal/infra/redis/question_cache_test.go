package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/infra/memory"
)

func TestQuestionCacheHitsRedisOnSecondLoad(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		StaticQuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"AWS-101": sampleQuestions(),
		}),
	}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	questions, err := cache.LoadQuestionSet(context.Background(), "AWS-101")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(questions) != 2 || loader.calls != 1 {
		t.Fatalf("expected 2 questions via 1 loader call, got %d via %d", len(questions), loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	again, err := cache.LoadQuestionSet(context.Background(), "AWS-101")
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if again[0].CorrectAnswer != questions[0].CorrectAnswer {
		t.Fatal("cached questions lost the correct answer")
	}
}

func TestQuestionCacheMissPropagates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		StaticQuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{}),
	}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	_, err = cache.LoadQuestionSet(context.Background(), "NOPE")
	if !errors.Is(err, domain.ErrQuestionSetNotFound) {
		t.Fatalf("expected ErrQuestionSetNotFound, got %v", err)
	}
}

func TestQuestionCacheExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		StaticQuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"AWS-101": sampleQuestions(),
		}),
	}
	cache := NewQuestionCache(newClient(mr), loader, time.Minute)

	if _, err := cache.LoadQuestionSet(context.Background(), "AWS-101"); err != nil {
		t.Fatalf("load: %v", err)
	}
	// TTL carries up to 10% jitter, so fast-forward well past it.
	mr.FastForward(2 * time.Minute)
	if _, err := cache.LoadQuestionSet(context.Background(), "AWS-101"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after expiry, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	*memory.StaticQuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestionSet(ctx context.Context, accessCode string) ([]domain.Question, error) {
	l.calls++
	return l.StaticQuestionLoader.LoadQuestionSet(ctx, accessCode)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "Which service is object storage?", Options: map[string]string{"A": "EBS", "B": "S3"}, CorrectAnswer: "B"},
		{ID: "q2", Text: "Which service manages access?", Options: map[string]string{"A": "IAM", "B": "SQS"}, CorrectAnswer: "A"},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
