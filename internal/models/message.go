package models

import "time"

// Kind determines how a message's content is interpreted.
type Kind string

const (
	KindText  Kind = "text"
	KindVoice Kind = "voice"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	return k == KindText || k == KindVoice
}

// Message is one entry of the direct-message log. Only IsRead changes after creation.
type Message struct {
	ID          int64        `json:"id"`
	SenderID    int64        `json:"sender_id"`
	RecipientID int64        `json:"recipient_id"`
	Content     string       `json:"content"`
	Kind        Kind         `json:"data_type"`
	Duration    *float64     `json:"duration"` // seconds, voice only
	IsRead      bool         `json:"isRead"`
	CreatedAt   time.Time    `json:"createdAt"`
	Sender      *UserProfile `json:"created_user,omitempty"`
	Recipient   *UserProfile `json:"received_user,omitempty"`
}

// Counterpart returns the other participant relative to userID and that
// participant's resolved profile, which may be nil.
func (m *Message) Counterpart(userID int64) (int64, *UserProfile) {
	if m.SenderID == userID {
		return m.RecipientID, m.Recipient
	}
	return m.SenderID, m.Sender
}
