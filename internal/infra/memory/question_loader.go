package memory

import (
	"context"

	"quizblitz-service/internal/domain"
)

// StaticQuestionLoader serves question sets from an in-memory map (tests/demos).
type StaticQuestionLoader struct {
	sets map[string][]domain.Question
}

func NewStaticQuestionLoader(sets map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{sets: sets}
}

func (l *StaticQuestionLoader) LoadQuestionSet(_ context.Context, accessCode string) ([]domain.Question, error) {
	if questions, ok := l.sets[accessCode]; ok {
		return questions, nil
	}
	return nil, domain.ErrQuestionSetNotFound
}
