package conversation

import (
	"context"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
)

// MessageSource returns every message a user sent or received, newest first,
// with resolved sender and recipient profiles.
type MessageSource interface {
	FindMessagesByUser(ctx context.Context, userID int64) ([]models.Message, error)
}

// Index derives conversation summaries on demand. It keeps no state between calls.
type Index struct {
	src MessageSource
}

// NewIndex creates an index over src.
func NewIndex(src MessageSource) *Index {
	return &Index{src: src}
}

// List returns the conversations of userID, most recently active first.
func (ix *Index) List(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	messages, err := ix.src.FindMessagesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Summarize(userID, messages), nil
}

// Summarize groups messages (newest first) by counterpart. The first message
// seen for a counterpart becomes its last message; unread counts only messages
// that counterpart sent to userID and that are still unread.
func Summarize(userID int64, messages []models.Message) []models.ConversationSummary {
	summaries := make([]models.ConversationSummary, 0)
	position := make(map[int64]int)

	for i := range messages {
		m := &messages[i]
		otherID, profile := m.Counterpart(userID)
		if profile == nil {
			continue
		}

		idx, seen := position[otherID]
		if !seen {
			idx = len(summaries)
			position[otherID] = idx
			summaries = append(summaries, models.ConversationSummary{
				User:        *profile,
				LastMessage: preview(m),
			})
		}

		if m.RecipientID == userID && m.SenderID == otherID && !m.IsRead {
			summaries[idx].UnreadCount++
		}
	}

	return summaries
}

func preview(m *models.Message) models.LastMessage {
	lm := models.LastMessage{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Kind:      m.Kind,
		CreatedAt: m.CreatedAt,
	}
	// zero means no duration
	if m.Duration != nil && *m.Duration > 0 {
		d := *m.Duration
		lm.Duration = &d
	}
	return lm
}
