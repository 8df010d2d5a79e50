// Aggregates behind the candidate ETags.

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// latestUpdate scans the newest updated_at of q. SQLite returns MAX() of a
// datetime column as TEXT, so the row is ordered instead.
func latestUpdate(q *gorm.DB) (time.Time, bool, error) {
	var row struct{ UpdatedAt time.Time }
	res := q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row)
	if res.Error != nil {
		return time.Time{}, false, res.Error
	}
	return row.UpdatedAt, res.RowsAffected > 0, nil
}

// CandidatesStats returns how many candidates a room has and the newest
// UpdatedAt among them; maxUpdatedAt is nil for an empty room.
func CandidatesStats(ctx context.Context, db *gorm.DB, roomCode string) (count int64, maxUpdatedAt *time.Time, err error) {
	inRoom := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Candidate{}).Where("room_code = ?", roomCode)
	}
	if err = inRoom().Count(&count).Error; err != nil || count == 0 {
		return 0, nil, err
	}
	at, _, err := latestUpdate(inRoom())
	if err != nil {
		return 0, nil, err
	}
	return count, &at, nil
}

// TranscriptStats returns the transcript length and answer count of a
// candidate together with its UpdatedAt.
func TranscriptStats(ctx context.Context, db *gorm.DB, candidateID string) (messages, answers int64, updatedAt time.Time, err error) {
	updatedAt, found, err := latestUpdate(db.WithContext(ctx).Model(&domain.Candidate{}).Where("id = ?", candidateID))
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	if !found {
		return 0, 0, time.Time{}, ErrNotFound
	}
	if err = db.WithContext(ctx).Model(&domain.ChatMessage{}).Where("candidate_id = ?", candidateID).Count(&messages).Error; err != nil {
		return 0, 0, time.Time{}, err
	}
	if err = db.WithContext(ctx).Model(&domain.QuestionAnswer{}).Where("candidate_id = ?", candidateID).Count(&answers).Error; err != nil {
		return 0, 0, time.Time{}, err
	}
	return messages, answers, updatedAt, nil
}
