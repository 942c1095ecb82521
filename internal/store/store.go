package store

import (
	"context"
	"math"
	"strings"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/apperr"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
)

// MessageStore is the durable, append-only message log.
type MessageStore interface {
	// CreateMessage assigns ID and CreatedAt and persists m as unread.
	CreateMessage(ctx context.Context, m *models.Message) (*models.Message, error)
	// FindMessagesByUser returns every message userID sent or received, newest first.
	FindMessagesByUser(ctx context.Context, userID int64) ([]models.Message, error)
	// FindMessagesBetween returns both directions of a pair, oldest first.
	FindMessagesBetween(ctx context.Context, a, b int64) ([]models.Message, error)
	// MarkReadBulk marks every unread message from fromUser to toUser as read
	// in one statement and returns how many rows changed.
	MarkReadBulk(ctx context.Context, fromUser, toUser int64) (int64, error)
}

// UserDirectory resolves user profiles.
type UserDirectory interface {
	FindUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpsertUser(ctx context.Context, u models.User) error
}

// Repository is what the message service needs from persistence.
type Repository interface {
	MessageStore
	UserDirectory
}

// DataStore defines the interface for persistent storage of messages and users.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	Repository

	// Connection management
	Close()
	Ping(ctx context.Context) error

	Stats(ctx context.Context) (*models.Stats, error)
}

// maxContentLength bounds inline text and media URLs.
const maxContentLength = 8192

// validateMessage enforces the invariants every backend shares.
func validateMessage(m *models.Message) error {
	if m == nil {
		return apperr.Validation("message is required")
	}
	if m.SenderID <= 0 {
		return apperr.Validation("sender is required")
	}
	if m.RecipientID <= 0 {
		return apperr.Validation("recipient is required")
	}
	if m.SenderID == m.RecipientID {
		return apperr.Validation("cannot send a message to yourself")
	}
	if strings.TrimSpace(m.Content) == "" {
		return apperr.Validation("content is required")
	}
	if len(m.Content) > maxContentLength {
		return apperr.Validation("content too long (max %d bytes)", maxContentLength)
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if !m.Kind.Valid() {
		return apperr.Validation("unknown message kind %q", m.Kind)
	}
	if m.Duration != nil {
		if m.Kind != models.KindVoice {
			return apperr.Validation("duration is only valid for voice messages")
		}
		d := *m.Duration
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return apperr.Validation("duration must be positive")
		}
	}
	return nil
}

// userProfile builds the resolved profile of a joined user row, nil when the
// row was missing.
func userProfile(id *int64, username *string) *models.UserProfile {
	if id == nil {
		return nil
	}
	p := &models.UserProfile{ID: *id}
	if username != nil {
		p.Username = *username
	}
	return p
}
