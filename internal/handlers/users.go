package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UserResponse represents a directory entry in API responses.
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AllUsers lists every user in the directory.
func (h *Handler) AllUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	users, err := h.messages.Users(r.Context())
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i, u := range users {
		resp[i] = UserResponse{ID: u.ID, Username: u.Username, Email: u.Email}
	}
	h.JSON(w, http.StatusOK, resp)
}

// ProfileResponse represents the public profile response.
type ProfileResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	JoinedAt string `json:"joined_at"`
}

// GetUser handles profile lookup.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUserID(chi.URLParam(r, "id"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	u, err := h.messages.User(r.Context(), id)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, ProfileResponse{
		ID:       u.ID,
		Username: u.Username,
		JoinedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}
