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

// EventLog is the append-only quizEvents collection. Rows are insert-only;
// Watch exposes a change stream over inserts for the Change Notifier, and
// DeleteOldByTypes exists solely for the cleanup-events maintenance command.
type EventLog struct {
	col *mongo.Collection
}

func NewEventLog(db *mongo.Database) *EventLog {
	col := db.Collection("quizEvents")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "quizCode", Value: 1}, {Key: "lastUpdated", Value: 1}},
	})
	return &EventLog{col: col}
}

func (l *EventLog) Append(ctx context.Context, event domain.QuizEvent) error {
	if _, err := l.col.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Watch opens a change stream over event inserts and forwards decoded events
// on the returned channel until ctx is done or the stream breaks. The caller
// owns reconnecting: when the channel closes, call Watch again (with backoff).
func (l *EventLog) Watch(ctx context.Context) (<-chan domain.QuizEvent, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": "insert"}}},
	}
	stream, err := l.col.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch events: %w", err)
	}

	ch := make(chan domain.QuizEvent, 16)
	go func() {
		defer close(ch)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var change struct {
				FullDocument domain.QuizEvent `bson:"fullDocument"`
			}
			if err := stream.Decode(&change); err != nil {
				continue
			}
			select {
			case ch <- change.FullDocument:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// DeleteOldByTypes removes events of the given types older than cutoff.
// Used by cleanup-events to prune legacy per-tick timer rows.
func (l *EventLog) DeleteOldByTypes(ctx context.Context, types []domain.EventType, cutoff time.Time) (int64, error) {
	res, err := l.col.DeleteMany(ctx, bson.M{
		"type":        bson.M{"$in": types},
		"lastUpdated": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.DeletedCount, nil
}
