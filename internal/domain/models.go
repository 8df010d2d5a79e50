// Package domain defines the persistence models for interview rooms,
// candidates, their chat transcript and scored answers. These types are
// mapped with GORM and form the core data layer of the interview backend.
package domain

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Candidate attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// rank orders statuses so that a candidate can only move forward.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether a candidate in status s may be moved to next.
// Staying in the same non-terminal status is allowed.
func (s Status) CanAdvanceTo(next Status) bool {
	if !next.Valid() || s == StatusCompleted {
		return false
	}
	return next.rank() >= s.rank()
}

// Difficulty grades a question and determines its countdown.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// ParseDifficulty normalizes provider output such as "easy" or " HARD ".
func ParseDifficulty(s string) (Difficulty, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, true
	case "medium":
		return DifficultyMedium, true
	case "hard":
		return DifficultyHard, true
	}
	return "", false
}

// TimeLimit returns the countdown in seconds for the difficulty.
func (d Difficulty) TimeLimit() int {
	switch d {
	case DifficultyEasy:
		return 20
	case DifficultyMedium:
		return 60
	case DifficultyHard:
		return 120
	}
	return 0
}

// Order returns the position of d in the Easy, Medium, Hard progression.
func (d Difficulty) Order() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyMedium:
		return 1
	case DifficultyHard:
		return 2
	}
	return 3
}

// MessageType tags who authored a transcript entry.
type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageBot    MessageType = "bot"
	MessageSystem MessageType = "system"
)

// Room is an interviewer's coded container for candidate attempts.
//
// Fields:
//   - ID: UUID primary key.
//   - Code: human-shareable code ("INT-XXXXXX"), stored uppercase, unique.
//   - OwnerID / OwnerName: interviewer identity and display name.
//   - IsActive: rooms are soft-deactivated, never deleted.
//   - CandidateIDs: identities that joined, loaded from room_members.
type Room struct {
	ID           string    `json:"room_id"          gorm:"type:char(36);primaryKey"`
	Code         string    `json:"room_code"        gorm:"type:varchar(16);not null;uniqueIndex:ux_rooms_code"`
	OwnerID      string    `json:"interviewer_id"   gorm:"type:varchar(64);not null;index:idx_owner_rooms"`
	OwnerName    string    `json:"interviewer_name" gorm:"type:varchar(255);not null;default:''"`
	Title        string    `json:"title"            gorm:"type:varchar(255);not null"`
	IsActive     bool      `json:"is_active"        gorm:"not null;default:true"`
	CandidateIDs []string  `json:"candidate_ids"    gorm:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// RoomMember records one identity joining a room. The composite primary key
// makes membership append-once.
type RoomMember struct {
	RoomID   string    `gorm:"type:char(36);primaryKey"`
	UserID   string    `gorm:"type:varchar(64);primaryKey"`
	JoinedAt time.Time `gorm:"not null;index"`

	Room Room `gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RoomMember.
func (RoomMember) TableName() string { return "room_members" }

// ResumeFile is the optional original résumé upload.
type ResumeFile struct {
	Name string `json:"name" validate:"required,max=255"`
	Type string `json:"type" validate:"required,max=127"`
	Data string `json:"data" validate:"required,base64"`
}

// Candidate is one interview attempt by one identity in one room.
//
// The (room_code, user_id) unique index enforces a single attempt per
// identity per room. ChatHistory and QuestionsAnswers are append-only child
// tables ordered by Seq and Position respectively.
type Candidate struct {
	ID                 string      `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID             string      `json:"user_id"             gorm:"type:varchar(64);not null;uniqueIndex:ux_candidate_attempt,priority:2"`
	RoomCode           string      `json:"room_code"           gorm:"type:varchar(16);not null;uniqueIndex:ux_candidate_attempt,priority:1;index:idx_room_candidates"`
	Name               string      `json:"name"                gorm:"type:varchar(255);not null;default:''"`
	Email              string      `json:"email"               gorm:"type:varchar(255);not null;default:''"`
	AccountEmail       string      `json:"-"                   gorm:"type:varchar(255);not null;default:'';index"`
	Phone              string      `json:"phone"               gorm:"type:varchar(64);not null;default:''"`
	ResumeText         string      `json:"resume_text"         gorm:"type:text;not null;default:''"`
	ResumeFile         *ResumeFile `json:"resume_file,omitempty" gorm:"type:text;serializer:json"`
	ProfileDescription string      `json:"profile_description" gorm:"type:text;not null;default:''"`
	Status             Status      `json:"status"              gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','in-progress','completed')"`
	FinalScore         float64     `json:"final_score"         gorm:"not null;default:0"`
	Summary            string      `json:"summary"             gorm:"type:text;not null;default:''"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`

	ChatHistory      []ChatMessage    `json:"chat_history"      gorm:"foreignKey:CandidateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	QuestionsAnswers []QuestionAnswer `json:"questions_answers" gorm:"foreignKey:CandidateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Candidate.
func (Candidate) TableName() string { return "candidates" }

// ChatMessage is one transcript entry. Seq is assigned by the store and
// gives the append order within a candidate.
type ChatMessage struct {
	CandidateID string      `json:"-"         gorm:"type:char(36);primaryKey"`
	Seq         int         `json:"-"         gorm:"primaryKey;autoIncrement:false"`
	ID          string      `json:"id"        gorm:"type:varchar(64);not null" validate:"required,max=64"`
	Type        MessageType `json:"type"      gorm:"column:msg_type;type:varchar(8);not null;check:msg_type IN ('user','bot','system')" validate:"required,oneof=user bot system"`
	Content     string      `json:"content"   gorm:"type:text;not null" validate:"required"`
	Timestamp   int64       `json:"timestamp" gorm:"not null"`
}

// TableName returns the database table name for ChatMessage.
func (ChatMessage) TableName() string { return "chat_messages" }

// QuestionAnswer is one scored answer. Position is the zero-based question
// index; QuestionID is unique per candidate so a question is answered once.
type QuestionAnswer struct {
	CandidateID string     `json:"-"           gorm:"type:char(36);primaryKey;uniqueIndex:ux_answer_question,priority:1"`
	Position    int        `json:"-"           gorm:"primaryKey;autoIncrement:false"`
	QuestionID  string     `json:"question_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_answer_question,priority:2" validate:"required,max=64"`
	Question    string     `json:"question"    gorm:"type:text;not null" validate:"required"`
	Answer      string     `json:"answer"      gorm:"type:text;not null" validate:"required"`
	Difficulty  Difficulty `json:"difficulty"  gorm:"type:varchar(8);not null;check:difficulty IN ('Easy','Medium','Hard')" validate:"required,oneof=Easy Medium Hard"`
	TimeLimit   int        `json:"time_limit"  gorm:"not null" validate:"gt=0"`
	TimeSpent   int        `json:"time_spent"  gorm:"not null" validate:"gte=0,ltefield=TimeLimit"`
	Score       float64    `json:"score"       gorm:"not null;check:score BETWEEN 0 AND 10" validate:"gte=0,lte=10"`
}

// TableName returns the database table name for QuestionAnswer.
func (QuestionAnswer) TableName() string { return "question_answers" }

// Question is an ephemeral interview question. It is not stored on its own;
// the generated list is cached per candidate in QuestionSet.
type Question struct {
	ID         string     `json:"id"`
	Text       string     `json:"question"`
	Difficulty Difficulty `json:"difficulty"`
	TimeLimit  int        `json:"time_limit"`
}

// QuestionSet caches the question list generated for a candidate so a
// resumed session maps its answer count to the same questions.
type QuestionSet struct {
	CandidateID string     `gorm:"type:char(36);primaryKey"`
	Questions   []Question `gorm:"type:text;not null;serializer:json"`
	Source      string     `gorm:"type:varchar(16);not null"`
	CreatedAt   time.Time

	Candidate Candidate `gorm:"foreignKey:CandidateID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for QuestionSet.
func (QuestionSet) TableName() string { return "question_sets" }

// Evaluation is the score and one-line feedback for a single answer.
type Evaluation struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}
