package interview

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-interview-backend/internal/domain"
)

// NoAnswerPlaceholder is recorded when the countdown expires on an empty draft.
const NoAnswerPlaceholder = "No answer provided"

// NewMessage builds a transcript entry stamped with now.
func NewMessage(typ domain.MessageType, content string, now time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		ID:        uuid.NewString(),
		Type:      typ,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}
}

// AnnounceText introduces question index (zero-based) of total.
func AnnounceText(index, total int, q domain.Question) string {
	return fmt.Sprintf("Question %d/%d (%s): %s", index+1, total, q.Difficulty, q.Text)
}

// FeedbackText renders a per-answer evaluation.
func FeedbackText(e domain.Evaluation) string {
	return fmt.Sprintf("Score: %s/10 - %s", FormatScore(e.Score), e.Feedback)
}

// CompletionText renders the closing message with the aggregate result.
func CompletionText(finalScore float64, summary string) string {
	return fmt.Sprintf("Interview completed! Final Score: %s/10\n\nSummary: %s", FormatScore(finalScore), summary)
}

// FormatScore prints a score without trailing zeros ("7", "7.5").
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
