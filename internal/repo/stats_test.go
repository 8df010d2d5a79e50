package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

func TestCandidatesStats_ZeroAndMax(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	n, max, err := CandidatesStats(ctx, db, "INT-AAAAAA")
	if err != nil || n != 0 || max != nil {
		t.Fatalf("empty room: n=%d max=%v err=%v", n, max, err)
	}

	a := seedCandidate(t, db, "INT-AAAAAA", "u1", "")
	seedCandidate(t, db, "INT-AAAAAA", "u2", "")
	later := time.Now().UTC().Add(time.Hour)
	if err := db.Model(&domain.Candidate{}).Where("id = ?", a.ID).UpdateColumn("updated_at", later).Error; err != nil {
		t.Fatalf("bump updated_at: %v", err)
	}

	n, max, err = CandidatesStats(ctx, db, "INT-AAAAAA")
	if err != nil || n != 2 || max == nil {
		t.Fatalf("stats: n=%d max=%v err=%v", n, max, err)
	}
	if d := max.Sub(later); d > time.Millisecond || d < -time.Millisecond {
		t.Fatalf("expected max %v, got %v", later, *max)
	}
}

func TestTranscriptStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	c := seedCandidate(t, db, "INT-AAAAAA", "u1", "")
	_ = AppendChatMessage(ctx, db, c.ID, &domain.ChatMessage{ID: "m1", Type: domain.MessageBot, Content: "x"})
	_ = AppendChatMessage(ctx, db, c.ID, &domain.ChatMessage{ID: "m2", Type: domain.MessageUser, Content: "y"})
	_ = AppendQuestionAnswer(ctx, db, c.ID, answer("q1", 5))

	msgs, answers, updated, err := TranscriptStats(ctx, db, c.ID)
	if err != nil || msgs != 2 || answers != 1 || updated.IsZero() {
		t.Fatalf("TranscriptStats = %d, %d, %v, %v", msgs, answers, updated, err)
	}
	if _, _, _, err := TranscriptStats(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
