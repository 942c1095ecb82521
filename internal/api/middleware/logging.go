package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const requestUserKey contextKey = "request_user"

// setRequestUser lets the auth middleware, which runs inside the logger,
// report who made the request.
func setRequestUser(ctx context.Context, userID int64) {
	if holder, ok := ctx.Value(requestUserKey).(*atomic.Int64); ok {
		holder.Store(userID)
	}
}

// Logger returns a request logging middleware using zerolog.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			user := new(atomic.Int64)
			r = r.WithContext(context.WithValue(r.Context(), requestUserKey, user))

			// Wrap response writer to capture status code
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ev := logger.Info()
				if ww.Status() >= http.StatusInternalServerError {
					ev = logger.Error()
				}
				if id := user.Load(); id != 0 {
					ev = ev.Int64("user_id", id)
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
