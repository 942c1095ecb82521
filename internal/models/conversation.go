package models

import "time"

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	User        UserProfile `json:"user"`
	LastMessage LastMessage `json:"lastMessage"`
	UnreadCount int         `json:"unreadCount"`
}

// LastMessage is the preview of the most recent message in a conversation.
type LastMessage struct {
	ID        int64     `json:"id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	Kind      Kind      `json:"data_type"`
	Duration  *float64  `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`
}
