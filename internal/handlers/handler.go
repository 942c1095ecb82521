package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/api/middleware"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/apperr"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/hub"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/media"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/service"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/store"
)

// Deps are the collaborators of the HTTP handlers. Redis and Media may be nil.
type Deps struct {
	Messages       *service.MessageService
	Store          store.DataStore
	Redis          *store.RedisStore
	Hub            *hub.Hub
	Media          media.Uploader
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	messages  *service.MessageService
	store     store.DataStore
	redis     *store.RedisStore
	hub       *hub.Hub
	media     media.Uploader
	maxUpload int64
	logger    zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		messages:  d.Messages,
		store:     d.Store,
		redis:     d.Redis,
		hub:       d.Hub,
		media:     d.Media,
		maxUpload: d.MaxUploadBytes,
		logger:    d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// Fail maps a service error to its status. Internal details are logged and
// replaced by a generic message.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int64("user_id", middleware.GetUserIDFromContext(r.Context())).
			Msg("request failed")
		h.Error(w, status, "internal server error")
		return
	}
	h.Error(w, status, clientMessage(err))
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// clientMessage drops the sentinel prefix: "validation failed: content is
// required" becomes "content is required".
func clientMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{apperr.ErrAuth, apperr.ErrValidation, apperr.ErrNotFound} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

// caller returns the authenticated user id or writes a 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id := middleware.GetUserIDFromContext(r.Context())
	if id <= 0 {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return 0, false
	}
	return id, true
}

// userIDParam accepts a user id sent as a JSON number or a numeric string.
type userIDParam int64

func (p *userIDParam) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
		if len(b) == 0 {
			*p = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.New("user id must be an integer")
	}
	*p = userIDParam(n)
	return nil
}

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
