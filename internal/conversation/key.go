// Package conversation names the realtime channels of direct conversations and
// derives per-user conversation summaries from the message log.
package conversation

import (
	"strconv"
	"strings"
)

const (
	conversationPrefix = "conversation_"
	userPrefix         = "user_"
)

// Key returns the canonical channel name shared by a and b. The pair is
// unordered: Key(a, b) == Key(b, a).
func Key(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return conversationPrefix + strconv.FormatInt(a, 10) + "_" + strconv.FormatInt(b, 10)
}

// UserChannel returns the personal channel of a user.
func UserChannel(userID int64) string {
	return userPrefix + strconv.FormatInt(userID, 10)
}

// ChannelKind distinguishes the two channel shapes.
type ChannelKind int

const (
	ChannelUser ChannelKind = iota + 1
	ChannelConversation
)

// Channel is a parsed channel name.
type Channel struct {
	Kind         ChannelKind
	Participants []int64
}

// Includes reports whether userID participates in the channel.
func (c Channel) Includes(userID int64) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// ParseChannel recognises user_<id> and conversation_<min>_<max>. Conversation
// names with unordered ids are rejected so that every pair has one spelling.
func ParseChannel(name string) (Channel, bool) {
	switch {
	case strings.HasPrefix(name, userPrefix):
		id, ok := parseID(strings.TrimPrefix(name, userPrefix))
		if !ok {
			return Channel{}, false
		}
		return Channel{Kind: ChannelUser, Participants: []int64{id}}, true

	case strings.HasPrefix(name, conversationPrefix):
		lo, hi, found := strings.Cut(strings.TrimPrefix(name, conversationPrefix), "_")
		if !found {
			return Channel{}, false
		}
		a, okA := parseID(lo)
		b, okB := parseID(hi)
		if !okA || !okB || a > b {
			return Channel{}, false
		}
		return Channel{Kind: ChannelConversation, Participants: []int64{a, b}}, true
	}
	return Channel{}, false
}

func parseID(s string) (int64, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || strconv.FormatInt(id, 10) != s {
		return 0, false
	}
	return id, true
}
