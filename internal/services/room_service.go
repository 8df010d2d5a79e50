// Package services – RoomService
//
// This file implements RoomService, which manages interview rooms: creation
// with a unique human-shareable code, lookup by code, membership on join,
// and soft deactivation by the owning interviewer.
//
// Observability: public methods are OpenTelemetry-instrumented with room
// code and user identifiers.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-interview-backend/internal/domain"
	"github.com/tbourn/go-interview-backend/internal/repo"
)

const (
	roomCodePrefix   = "INT-"
	roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLen      = 6
)

// RoomRepo defines the repository contract required by RoomService.
type RoomRepo interface {
	CreateRoom(ctx context.Context, db *gorm.DB, r *domain.Room) error
	ListRoomsByOwner(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Room, error)
	GetRoomByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Room, error)
	AddRoomMember(ctx context.Context, db *gorm.DB, roomID, userID string) (bool, error)
	SetRoomActive(ctx context.Context, db *gorm.DB, roomID string, active bool) error
}

// RoomService provides room-level operations.
type RoomService struct {
	DB   *gorm.DB
	Repo RoomRepo

	// CodeAttempts bounds how many codes are drawn before giving up.
	CodeAttempts int
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// Rand is the entropy source for room codes.
	Rand io.Reader
}

// NewRoomService constructs a RoomService with defaults.
func NewRoomService(db *gorm.DB, r RoomRepo) *RoomService {
	return &RoomService{
		DB:           db,
		Repo:         r,
		CodeAttempts: 5,
		TitleMaxLen:  120,
		Rand:         rand.Reader,
	}
}

// NormalizeRoomCode trims and upper-cases a code as entered by a user.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var nameCase = cases.Title(language.Und)

// Create opens a new room owned by ownerID. A code collision draws a new
// code, up to CodeAttempts times.
func (s *RoomService) Create(ctx context.Context, ownerID, ownerName, title string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingIdentity
	}
	title = collapseSpaces(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		title = string([]rune(title)[:s.TitleMaxLen])
	}
	ownerName = collapseSpaces(ownerName)
	if ownerName == "" {
		ownerName = "Interviewer"
	} else {
		ownerName = nameCase.String(ownerName)
	}

	attempts := s.CodeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		room := &domain.Room{
			ID:        uuid.NewString(),
			Code:      code,
			OwnerID:   ownerID,
			OwnerName: ownerName,
			Title:     title,
			IsActive:  true,
		}
		err = s.Repo.CreateRoom(ctx, s.DB, room)
		if errors.Is(err, repo.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		room.CandidateIDs = []string{}
		span.SetAttributes(attribute.String("room.code", code))
		return room, nil
	}
	return nil, ErrCodeSpace
}

func (s *RoomService) newCode() (string, error) {
	src := s.Rand
	if src == nil {
		src = rand.Reader
	}
	var b strings.Builder
	b.WriteString(roomCodePrefix)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := 0; i < roomCodeLen; i++ {
		n, err := rand.Int(src, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(roomCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ListByOwner returns the rooms created by ownerID, newest first.
func (s *RoomService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "ListByOwner",
		trace.WithAttributes(attribute.String("user.id", ownerID)),
	)
	defer span.End()

	rooms, err := s.Repo.ListRoomsByOwner(ctx, s.DB, ownerID)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	return rooms, nil
}

// GetByCode looks a room up by code, case-insensitively.
func (s *RoomService) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = NormalizeRoomCode(code)
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "GetByCode",
		trace.WithAttributes(attribute.String("room.code", code)),
	)
	defer span.End()

	if code == "" {
		return nil, ErrInvalidRoomCode
	}
	room, err := s.Repo.GetRoomByCode(ctx, s.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// Join records userID as a member of the room. Joining again is a no-op;
// an inactive room rejects new members with ErrRoomClosed.
func (s *RoomService) Join(ctx context.Context, code, userID string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Join",
		trace.WithAttributes(
			attribute.String("room.code", NormalizeRoomCode(code)),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingIdentity
	}
	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomClosed
	}
	added, err := s.Repo.AddRoomMember(ctx, s.DB, room.ID, userID)
	if err != nil {
		return nil, err
	}
	if added {
		room.CandidateIDs = append(room.CandidateIDs, userID)
	}
	return room, nil
}

// Deactivate closes the room to new candidates. Only the owner may do so.
func (s *RoomService) Deactivate(ctx context.Context, ownerID, code string) (*domain.Room, error) {
	ctx, span := otel.Tracer("services/RoomService").Start(ctx, "Deactivate",
		trace.WithAttributes(
			attribute.String("room.code", NormalizeRoomCode(code)),
			attribute.String("user.id", ownerID),
		),
	)
	defer span.End()

	room, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.OwnerID != ownerID {
		return nil, ErrNotRoomOwner
	}
	if !room.IsActive {
		return room, nil
	}
	if err := s.Repo.SetRoomActive(ctx, s.DB, room.ID, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	room.IsActive = false
	return room, nil
}

// collapseSpaces trims s and collapses runs of whitespace to one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
