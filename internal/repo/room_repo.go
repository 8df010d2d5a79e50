// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for rooms and
// their membership set.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic, only persistence and query composition.
//
// Error semantics:
//   - Missing rooms return ErrNotFound.
//   - A code collision on insert returns ErrDuplicate so the caller can
//     draw a new code.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// CreateRoom inserts r. CreatedAt is set to UTC when zero.
func CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.UpdatedAt = r.CreatedAt
	return mapWriteErr(db.WithContext(ctx).Create(r).Error)
}

// ListRoomsByOwner returns the owner's rooms, most recent first, with
// CandidateIDs populated.
func ListRoomsByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Room, error) {
	var out []domain.Room
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i := range out {
		ids, err := roomMemberIDs(ctx, db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].CandidateIDs = ids
	}
	return out, nil
}

// GetRoomByCode fetches a room by its normalized (uppercase) code.
func GetRoomByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Room, error) {
	var r domain.Room
	if err := db.WithContext(ctx).Where("code = ?", code).First(&r).Error; err != nil {
		return nil, err
	}
	ids, err := roomMemberIDs(ctx, db, r.ID)
	if err != nil {
		return nil, err
	}
	r.CandidateIDs = ids
	return &r, nil
}

// AddRoomMember records userID as a member of roomID. It reports whether a
// row was inserted; joining twice is a no-op.
func AddRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.RoomMember{RoomID: roomID, UserID: userID, JoinedAt: time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetRoomActive flips the soft-deactivation flag.
func SetRoomActive(ctx context.Context, db *gorm.DB, roomID string, active bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func roomMemberIDs(ctx context.Context, db *gorm.DB, roomID string) ([]string, error) {
	ids := []string{}
	err := db.WithContext(ctx).
		Model(&domain.RoomMember{}).
		Where("room_id = ?", roomID).
		Order("joined_at asc").
		Pluck("user_id", &ids).Error
	return ids, err
}
