package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// IdempotencyScope identifies one idempotent operation. Route is the
// registered route template, so one key may be reused across endpoints.
type IdempotencyScope struct {
	UserID      string
	CandidateID string
	Route       string
	Key         string
}

func (s IdempotencyScope) valid() bool {
	return strings.TrimSpace(s.UserID) != "" &&
		strings.TrimSpace(s.CandidateID) != "" &&
		s.Key != ""
}

// GetIdempotency returns the unexpired record of scope, or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, s IdempotencyScope, now time.Time) (*domain.Idempotency, error) {
	if !s.valid() {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND candidate_id = ? AND route = ? AND key = ? AND expires_at > ?",
			s.UserID, s.CandidateID, s.Route, s.Key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores the response of scope for ttl. A second record
// for the same scope fails with ErrDuplicate, even when the first expired
// but was not purged yet.
func CreateIdempotency(ctx context.Context, db *gorm.DB, s IdempotencyScope, status int, body []byte, ttl time.Duration) (*domain.Idempotency, error) {
	if !s.valid() {
		return nil, ErrInvalidInput
	}
	if body == nil {
		body = []byte{}
	}
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:          uuid.NewString(),
		UserID:      s.UserID,
		CandidateID: s.CandidateID,
		Route:       s.Route,
		Key:         s.Key,
		Status:      status,
		Body:        body,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, mapWriteErr(err)
	}
	return rec, nil
}

// DeleteExpiredIdempotency purges records whose TTL elapsed before now.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
