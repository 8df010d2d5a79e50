package domain

import "time"

// Idempotency stores the response of a completed POST on a candidate, keyed
// by (user, candidate, route, Idempotency-Key). A retry with the same key is
// answered from Body instead of submitting again.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_scope,priority:1"`
	CandidateID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_scope,priority:2"`
	Route       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_scope,priority:3"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_idempotency_scope,priority:4"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	Body        []byte    `gorm:"type:BLOB NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

func (Idempotency) TableName() string { return "idempotency" }
