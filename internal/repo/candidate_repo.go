// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for candidates and
// their append-only transcript (chat messages and scored answers).
//
// Appends compute the next Seq/Position inside the caller's statement; the
// composite primary keys turn a racing append into ErrDuplicate instead of a
// silently reordered log. Callers that need several appends to land together
// run them inside one transaction.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

func withTranscript(db *gorm.DB) *gorm.DB {
	return db.
		Preload("ChatHistory", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq asc") }).
		Preload("QuestionsAnswers", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") })
}

// CreateCandidate inserts c without transcript rows. A second attempt for
// the same (room_code, user_id) returns ErrDuplicate.
func CreateCandidate(ctx context.Context, db *gorm.DB, c *domain.Candidate) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	return mapWriteErr(db.WithContext(ctx).Omit("ChatHistory", "QuestionsAnswers").Create(c).Error)
}

// GetCandidate loads a candidate with its ordered transcript.
func GetCandidate(ctx context.Context, db *gorm.DB, id string) (*domain.Candidate, error) {
	var c domain.Candidate
	if err := withTranscript(db.WithContext(ctx)).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCandidateStatus reads only the status of a candidate.
func GetCandidateStatus(ctx context.Context, db *gorm.DB, id string) (domain.Status, error) {
	var c domain.Candidate
	if err := db.WithContext(ctx).Select("id", "status").Where("id = ?", id).First(&c).Error; err != nil {
		return "", err
	}
	return c.Status, nil
}

// ListCandidatesByRoom returns every candidate of a room, oldest first,
// with transcripts.
func ListCandidatesByRoom(ctx context.Context, db *gorm.DB, roomCode string) ([]domain.Candidate, error) {
	var out []domain.Candidate
	err := withTranscript(db.WithContext(ctx)).
		Where("room_code = ?", roomCode).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountCandidates returns the number of candidates in a room.
func CountCandidates(ctx context.Context, db *gorm.DB, roomCode string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Candidate{}).
		Where("room_code = ?", roomCode).
		Count(&total).Error
	return total, err
}

// ListCandidatesPage returns a page of a room's candidates ranked for the
// interviewer: completed attempts by final score, then everyone else by
// arrival.
func ListCandidatesPage(ctx context.Context, db *gorm.DB, roomCode string, offset, limit int) ([]domain.Candidate, error) {
	var out []domain.Candidate
	err := withTranscript(db.WithContext(ctx)).
		Where("room_code = ?", roomCode).
		Order("CASE WHEN status = 'completed' THEN 0 ELSE 1 END").
		Order("final_score desc").
		Order("created_at asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// FindCandidateByIdentity returns the attempt of userID in roomCode. When
// userID has none and email is the account email of another user's attempt,
// it returns ErrIdentityConflict and no record.
func FindCandidateByIdentity(ctx context.Context, db *gorm.DB, roomCode, userID, email string) (*domain.Candidate, error) {
	var c domain.Candidate
	err := db.WithContext(ctx).
		Where("room_code = ? AND user_id = ?", roomCode, userID).
		First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if email = strings.TrimSpace(email); email == "" {
		return nil, ErrNotFound
	}
	var n int64
	err = db.WithContext(ctx).
		Model(&domain.Candidate{}).
		Where("room_code = ? AND user_id <> ? AND lower(account_email) = lower(?)", roomCode, userID, email).
		Count(&n).Error
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrIdentityConflict
	}
	return nil, ErrNotFound
}

// UpdateCandidateFields applies column updates and touches updated_at.
func UpdateCandidateFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	upd := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		upd[k] = v
	}
	upd["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Candidate{}).
		Where("id = ?", id).
		Updates(upd)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendChatMessage stores m as the next transcript entry of candidateID.
func AppendChatMessage(ctx context.Context, db *gorm.DB, candidateID string, m *domain.ChatMessage) error {
	var next int
	if err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("candidate_id = ?", candidateID).
		Select("COALESCE(MAX(seq), 0) + 1").
		Scan(&next).Error; err != nil {
		return err
	}
	m.CandidateID = candidateID
	m.Seq = next
	return mapWriteErr(db.WithContext(ctx).Create(m).Error)
}

// AppendQuestionAnswer stores qa at the next answer position. Answering the
// same question id twice returns ErrDuplicate.
func AppendQuestionAnswer(ctx context.Context, db *gorm.DB, candidateID string, qa *domain.QuestionAnswer) error {
	n, err := CountQuestionAnswers(ctx, db, candidateID)
	if err != nil {
		return err
	}
	qa.CandidateID = candidateID
	qa.Position = int(n)
	return mapWriteErr(db.WithContext(ctx).Create(qa).Error)
}

// CountQuestionAnswers returns how many answers candidateID has recorded.
func CountQuestionAnswers(ctx context.Context, db *gorm.DB, candidateID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.QuestionAnswer{}).
		Where("candidate_id = ?", candidateID).
		Count(&n).Error
	return n, err
}

// DeleteCandidate removes the candidate; transcript rows cascade.
func DeleteCandidate(ctx context.Context, db *gorm.DB, id string) error {
	// Children first so the delete also works without PRAGMA foreign_keys.
	for _, child := range []any{&domain.ChatMessage{}, &domain.QuestionAnswer{}, &domain.QuestionSet{}} {
		if err := db.WithContext(ctx).Where("candidate_id = ?", id).Delete(child).Error; err != nil {
			return err
		}
	}
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Candidate{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
