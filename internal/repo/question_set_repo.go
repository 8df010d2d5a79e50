package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// GetQuestionSet returns the cached question list for candidateID or
// ErrNotFound.
func GetQuestionSet(ctx context.Context, db *gorm.DB, candidateID string) (*domain.QuestionSet, error) {
	var qs domain.QuestionSet
	if err := db.WithContext(ctx).Where("candidate_id = ?", candidateID).First(&qs).Error; err != nil {
		return nil, err
	}
	return &qs, nil
}

// CreateQuestionSet caches questions for candidateID. If another writer
// cached a list first, ErrDuplicate is returned and the caller should read
// the stored one.
func CreateQuestionSet(ctx context.Context, db *gorm.DB, candidateID, source string, questions []domain.Question) (*domain.QuestionSet, error) {
	qs := &domain.QuestionSet{
		CandidateID: candidateID,
		Questions:   questions,
		Source:      source,
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Candidate").Create(qs).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return qs, nil
}
