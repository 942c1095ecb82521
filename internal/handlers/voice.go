package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/media"
)

const multipartMemory = 1 << 20

// SendVoice accepts a multipart upload with received_user, duration and
// file fields, stores the audio and sends it as a voice message.
func (h *Handler) SendVoice(w http.ResponseWriter, r *http.Request) {
	sender, ok := h.caller(w, r)
	if !ok {
		return
	}
	if h.media == nil {
		h.Error(w, http.StatusServiceUnavailable, "media uploads are not configured")
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		h.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	recipient, ok := parseUserID(r.FormValue("received_user"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "received_user is required")
		return
	}
	var duration float64
	if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			h.Error(w, http.StatusBadRequest, "duration must be a non-negative number of seconds")
			return
		}
		duration = d
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !media.Allowed(contentType) {
		h.Error(w, http.StatusUnsupportedMediaType, "unsupported audio format")
		return
	}
	if recipient == sender {
		h.Error(w, http.StatusBadRequest, "cannot message yourself")
		return
	}
	// the recipient must exist before anything is stored
	if _, err := h.messages.User(r.Context(), recipient); err != nil {
		h.Fail(w, r, err)
		return
	}

	url, err := h.media.Upload(r.Context(), media.File{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	switch {
	case errors.Is(err, media.ErrTooLarge):
		h.Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	case errors.Is(err, media.ErrEmpty):
		h.Error(w, http.StatusBadRequest, "file is empty")
		return
	case errors.Is(err, media.ErrUnsupportedType):
		h.Error(w, http.StatusUnsupportedMediaType, "unsupported audio format")
		return
	case err != nil:
		h.logger.Error().Err(err).Int64("user_id", sender).Msg("media upload failed")
		h.Error(w, http.StatusBadGateway, "failed to store file")
		return
	}

	msg, err := h.messages.SendVoice(r.Context(), sender, recipient, url, duration)
	if err != nil {
		h.Fail(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}
