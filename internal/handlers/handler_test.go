package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/apperr"
)

func TestUserIDParam(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{`9`, 9, false},
		{`"9"`, 9, false},
		{`" 12 "`, 12, false},
		{`null`, 0, false},
		{`""`, 0, false},
		{`"bob"`, 0, true},
		{`9.5`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var p userIDParam
		err := json.Unmarshal([]byte(tt.in), &p)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && int64(p) != tt.want {
			t.Errorf("%s: got %d, want %d", tt.in, p, tt.want)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
		msg  string
	}{
		{apperr.Auth("no token"), http.StatusUnauthorized, "no token"},
		{apperr.Validation("content is required"), http.StatusBadRequest, "content is required"},
		{apperr.NotFound("user %d", 4), http.StatusNotFound, "user 4"},
		{apperr.Internal("send_text", errors.New("disk full")), http.StatusInternalServerError, ""},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		if got := errorStatus(tt.err); got != tt.want {
			t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
		if tt.msg != "" && clientMessage(tt.err) != tt.msg {
			t.Errorf("clientMessage(%v) = %q, want %q", tt.err, clientMessage(tt.err), tt.msg)
		}
	}
}

func TestParseUserID(t *testing.T) {
	for in, want := range map[string]bool{"1": true, " 42 ": true, "0": false, "-3": false, "x": false, "": false} {
		if _, ok := parseUserID(in); ok != want {
			t.Errorf("parseUserID(%q) ok = %v, want %v", in, ok, want)
		}
	}
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()
	for d, want := range map[time.Duration]string{
		10 * time.Second: "just now",
		time.Minute:      "1 minute ago",
		5 * time.Minute:  "5 minutes ago",
		3 * time.Hour:    "3 hours ago",
		49 * time.Hour:   "2 days ago",
	} {
		if got := formatTimeAgo(now.Add(-d)); got != want {
			t.Errorf("formatTimeAgo(-%v) = %q, want %q", d, got, want)
		}
	}
}
