package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quizblitz-service/internal/domain"
)

// SessionStore persists quiz sessions in the quizSessions collection. All
// index/status/anchor transitions are filtered updates conditioned on the
// expected prior value, so concurrent writers resolve to exactly one winner.
type SessionStore struct {
	col *mongo.Collection
}

func NewSessionStore(db *mongo.Database) *SessionStore {
	col := db.Collection("quizSessions")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "quizCode", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return &SessionStore{col: col}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	if _, err := s.col.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrSessionExists
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, quizCode string) (*domain.Session, error) {
	var session domain.Session
	err := s.col.FindOne(ctx, bson.M{"quizCode": quizCode}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) ListActive(ctx context.Context) ([]*domain.Session, error) {
	cur, err := s.col.Find(ctx, bson.M{"status": domain.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer cur.Close(ctx)
	var sessions []*domain.Session
	for cur.Next(ctx) {
		var session domain.Session
		if err := cur.Decode(&session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, cur.Err()
}

func (s *SessionStore) Start(ctx context.Context, quizCode string, startedAt time.Time) (*domain.Session, error) {
	var session domain.Session
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"quizCode": quizCode, "status": domain.StatusWaiting},
		bson.M{
			"$set": bson.M{
				"status":               domain.StatusActive,
				"currentQuestionIndex": 0,
				"questionStartedAt":    startedAt,
			},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, s.classifyMiss(ctx, quizCode, domain.ErrInvalidState)
	}
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Advance(ctx context.Context, quizCode string, expectedIndex int, startedAt time.Time) (*domain.Session, error) {
	var session domain.Session
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{
			"quizCode":             quizCode,
			"status":               domain.StatusActive,
			"currentQuestionIndex": expectedIndex,
		},
		bson.M{
			"$set": bson.M{"questionStartedAt": startedAt},
			"$inc": bson.M{"currentQuestionIndex": 1, "version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, s.classifyMiss(ctx, quizCode, domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("advance question: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) Finish(ctx context.Context, quizCode string, expectedIndex int, finishedAt time.Time) (*domain.Session, error) {
	var session domain.Session
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{
			"quizCode":             quizCode,
			"status":               domain.StatusActive,
			"currentQuestionIndex": expectedIndex,
		},
		bson.M{
			"$set": bson.M{
				"status":     domain.StatusFinished,
				"finishedAt": finishedAt,
			},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, s.classifyMiss(ctx, quizCode, domain.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	return &session, nil
}

func (s *SessionStore) RecordAnswer(ctx context.Context, quizCode string, record domain.AnswerRecord) error {
	field := "playerAnswers." + record.PlayerID + "." + domain.AnswerKey(record.QuestionIndex)
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"quizCode":             quizCode,
			"status":               domain.StatusActive,
			"currentQuestionIndex": record.QuestionIndex,
			field:                  bson.M{"$exists": false},
		},
		bson.M{
			"$set": bson.M{field: record},
			"$inc": bson.M{"players.$[p].score": record.Score, "version": 1},
		},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: []interface{}{bson.M{"p.id": record.PlayerID}},
		}),
	)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// The guarded update missed; load the document to report why.
	session, getErr := s.Get(ctx, quizCode)
	if getErr != nil {
		return getErr
	}
	if session.HasAnswered(record.PlayerID, record.QuestionIndex) {
		return domain.ErrAlreadyAnswered
	}
	return domain.ErrStaleQuestion
}

func (s *SessionStore) AddPlayer(ctx context.Context, quizCode string, player domain.Player) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"quizCode": quizCode, "players.id": bson.M{"$ne": player.ID}},
		bson.M{"$push": bson.M{"players": player}},
	)
	if err != nil {
		return fmt.Errorf("add player: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	// Either the code is unknown or the player already joined.
	if _, err := s.Get(ctx, quizCode); err != nil {
		return err
	}
	return nil
}

func (s *SessionStore) ClaimNotified(ctx context.Context, quizCode string, expected, next int) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"quizCode": quizCode, "lastNotifiedQuestionIndex": expected},
		bson.M{"$set": bson.M{"lastNotifiedQuestionIndex": next}},
	)
	if err != nil {
		return false, fmt.Errorf("claim notified: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// classifyMiss distinguishes "code unknown" from "condition not met" after a
// filtered update matched nothing.
func (s *SessionStore) classifyMiss(ctx context.Context, quizCode string, conditionErr error) error {
	if _, err := s.Get(ctx, quizCode); err != nil {
		return err
	}
	return conditionErr
}
