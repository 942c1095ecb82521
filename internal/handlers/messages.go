package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceivedUser userIDParam `json:"received_user"`
	Content      string      `json:"content"`
}

// MarkReadRequest represents the mark-as-read request body.
type MarkReadRequest struct {
	OtherUserID userIDParam `json:"otherUserId"`
}

// MarkReadResponse represents the mark-as-read response.
type MarkReadResponse struct {
	Success bool  `json:"success"`
	Updated int64 `json:"updated"`
}

// SendMessage handles sending a text message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sender, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ReceivedUser <= 0 {
		h.Error(w, http.StatusBadRequest, "received_user is required")
		return
	}

	msg, err := h.messages.SendText(r.Context(), sender, int64(req.ReceivedUser), req.Content)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

// SentMessages lists the messages the caller authored.
func (h *Handler) SentMessages(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	msgs, err := h.messages.Sent(r.Context(), caller)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, msgs)
}

// Conversation returns the history between the caller and another user.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	other, ok := parseUserID(chi.URLParam(r, "receiverUserId"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	msgs, err := h.messages.History(r.Context(), caller, other)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]any{"data": msgs})
}

// MarkAsRead marks the other user's messages to the caller as read.
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OtherUserID <= 0 {
		h.Error(w, http.StatusBadRequest, "otherUserId is required")
		return
	}

	updated, err := h.messages.MarkRead(r.Context(), caller, int64(req.OtherUserID))
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, MarkReadResponse{Success: true, Updated: updated})
}

// ChatUsers lists the caller's conversations, most recent first.
func (h *Handler) ChatUsers(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	summaries, err := h.messages.Conversations(r.Context(), caller)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, summaries)
}
