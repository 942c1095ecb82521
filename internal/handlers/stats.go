package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers     int64  `json:"total_users"`
	TotalMessages  int64  `json:"total_messages"`
	UnreadMessages int64  `json:"unread_messages"`
	LastActivity   string `json:"last_activity"`
	LiveSessions   int    `json:"live_sessions"`
	ActiveRooms    int    `json:"active_rooms"`
}

// Stats returns platform statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("stats query failed")
		h.Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	lastActivity := "no activity yet"
	if stats.LastActivity != nil {
		lastActivity = formatTimeAgo(*stats.LastActivity)
	}

	resp := StatsResponse{
		TotalUsers:     stats.TotalUsers,
		TotalMessages:  stats.TotalMessages,
		UnreadMessages: stats.UnreadTotal,
		LastActivity:   lastActivity,
	}
	if h.hub != nil {
		resp.LiveSessions = h.hub.SessionCount()
		resp.ActiveRooms = h.hub.RoomCount()
	}
	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return strconv.Itoa(n) + " " + unit + "s ago"
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}
