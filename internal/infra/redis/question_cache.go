package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/quiz"
)

// QuestionCache caches question sets in Redis (one JSON value per access
// code) and falls back to the backing loader on cache miss. Singleflight
// collapses concurrent misses for the same code into one load.
type QuestionCache struct {
	client *redis.Client
	loader quiz.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader quiz.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) LoadQuestionSet(ctx context.Context, accessCode string) ([]domain.Question, error) {
	key := c.key(accessCode)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(cached, &questions); err == nil && len(questions) > 0 {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(accessCode, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(cached, &questions); err == nil && len(questions) > 0 {
				return questions, nil
			}
		}

		questions, err := c.loader.LoadQuestionSet(ctx, accessCode)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("marshal question set: %w", err)
		}
		// best-effort fill
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) key(accessCode string) string {
	return "quizblitz:questions:" + accessCode
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
