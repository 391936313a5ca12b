package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"quizblitz-service/internal/domain"
)

// QuestionLoader loads question sets from the questions collection by access
// code. The redis cache sits in front of this in production wiring.
type QuestionLoader struct {
	col *mongo.Collection
}

func NewQuestionLoader(db *mongo.Database) *QuestionLoader {
	return &QuestionLoader{col: db.Collection("questions")}
}

type questionDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	Text          string             `bson:"question"`
	Options       map[string]string  `bson:"options"`
	CorrectAnswer string             `bson:"correctAnswer"`
	Explanation   string             `bson:"explanation,omitempty"`
	Difficulty    string             `bson:"difficulty,omitempty"`
}

func (l *QuestionLoader) LoadQuestionSet(ctx context.Context, accessCode string) ([]domain.Question, error) {
	cur, err := l.col.Find(ctx, bson.M{"accessCode": accessCode})
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	defer cur.Close(ctx)

	var questions []domain.Question
	for cur.Next(ctx) {
		var doc questionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode question: %w", err)
		}
		difficulty := doc.Difficulty
		if difficulty == "" {
			difficulty = "medium"
		}
		questions = append(questions, domain.Question{
			ID:            doc.ID.Hex(),
			Text:          doc.Text,
			Options:       doc.Options,
			CorrectAnswer: doc.CorrectAnswer,
			Explanation:   doc.Explanation,
			Difficulty:    difficulty,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, domain.ErrQuestionSetNotFound
	}
	return questions, nil
}
