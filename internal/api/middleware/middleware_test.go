package middleware

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/identity"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/models"
)

var secret = []byte("middleware-secret")

type fakeSyncer struct {
	mu    sync.Mutex
	users []models.User
	err   error
}

func (f *fakeSyncer) SyncProfile(_ context.Context, u models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, u)
	return f.err
}

func signed(t *testing.T, c identity.Claims) string {
	t.Helper()
	tok, err := identity.NewHMACSigner(secret, time.Hour).Sign(c)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tok
}

func TestRequireAuth(t *testing.T) {
	syncer := &fakeSyncer{}
	auth := NewAuthMiddleware(identity.NewHMACVerifier(secret), syncer, zerolog.Nop())

	var seen int64
	h := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, identity.Claims{UserID: 5, Username: "alice"}), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = 0
			req := httptest.NewRequest("GET", "/messages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusNoContent && seen != 5 {
				t.Fatalf("user id in context = %d, want 5", seen)
			}
			if tt.want == http.StatusUnauthorized && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestRequireAuthSyncsProfileOnce(t *testing.T) {
	syncer := &fakeSyncer{}
	auth := NewAuthMiddleware(identity.NewHMACVerifier(secret), syncer, zerolog.Nop())
	h := auth.RequireAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	send := func(c identity.Claims) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer "+signed(t, c))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	send(identity.Claims{UserID: 5, Username: "alice"})
	send(identity.Claims{UserID: 5, Username: "alice"})
	send(identity.Claims{UserID: 5, Username: "alice2"})
	send(identity.Claims{UserID: 6}) // id-only token still enters the directory
	send(identity.Claims{UserID: 6})

	if len(syncer.users) != 3 || syncer.users[1].Username != "alice2" {
		t.Fatalf("synced = %+v", syncer.users)
	}
	if u := syncer.users[2]; u.ID != 6 || u.Username != "" {
		t.Fatalf("id-only sync = %+v", u)
	}
}

func TestRequireAuthSurvivesSyncFailure(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("db down")}
	auth := NewAuthMiddleware(identity.NewHMACVerifier(secret), syncer, zerolog.Nop())
	h := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed(t, identity.Claims{UserID: 5, Username: "alice"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name, method, target, ct, body string
		want                           int
	}{
		{"json", "POST", "/messages", "application/json", `{}`, http.StatusOK},
		{"multipart", "POST", "/messages/voice", "multipart/form-data; boundary=x", "--x--", http.StatusOK},
		{"text", "POST", "/messages", "text/plain", "hi", http.StatusUnsupportedMediaType},
		{"empty post", "POST", "/messages/mark-as-read", "", "", http.StatusOK},
		{"traversal", "GET", "/uploads/../etc/passwd", "", "", http.StatusBadRequest},
		{"xss query", "GET", "/messages?q=<script>", "", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			req.URL.Path, req.URL.RawQuery, _ = strings.Cut(tt.target, "?")
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/messages", strings.NewReader("too long")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/uploads/voice/a.webm", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing nosniff")
	}
	if rec.Header().Get("Cross-Origin-Resource-Policy") != "cross-origin" {
		t.Fatal("uploads should be embeddable cross-origin")
	}
}

func TestNormalizePath(t *testing.T) {
	for in, want := range map[string]string{
		"/messages/to/9":          "/messages/to/:id",
		"/users/42":               "/users/:id",
		"/uploads/voice/x.webm":   "/uploads/:file",
		"/messages/chat-users":    "/messages/chat-users",
		"/messages/to/":           "/messages/to/",
	} {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestMetricsWriterHijacks(t *testing.T) {
	h := Metrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("wrapped writer must support hijacking")
		}
		hj.Hijack()
	}))
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws", nil))
	if !rec.hijacked {
		t.Fatal("Hijack was not forwarded")
	}
}

func TestRateLimiterRuleLookup(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	tests := []struct {
		method, path string
		want         string
	}{
		{"POST", "/messages", "send"},
		{"POST", "/messages/voice", "voice"},
		{"POST", "/messages/mark-as-read", "mark_read"},
		{"GET", "/messages", "read"},
		{"GET", "/messages/to/9", "read"},
		{"GET", "/users/9", "profile"},
		{"GET", "/ws", "handshake"},
		{"GET", "/health", ""},
		{"DELETE", "/messages", ""},
	}
	for _, tt := range tests {
		rule, ok := rl.match(httptest.NewRequest(tt.method, tt.path, nil))
		if tt.want == "" {
			if ok {
				t.Errorf("%s %s matched %q, want no limit", tt.method, tt.path, rule.Name)
			}
			continue
		}
		if !ok || rule.Name != tt.want {
			t.Errorf("%s %s matched %q, want %q", tt.method, tt.path, rule.Name, tt.want)
		}
	}
}

func TestRateLimiterSubject(t *testing.T) {
	send := DefaultRules[0]
	handshake := Rule{Name: "handshake", PerIP: true}

	a := httptest.NewRequest("GET", "/messages", nil)
	a.Header.Set("Authorization", "Bearer token-a")
	b := httptest.NewRequest("GET", "/messages", nil)
	b.Header.Set("Authorization", "Bearer token-b")
	if subject(a, send) == subject(b, send) || !strings.HasPrefix(subject(a, send), "token:") {
		t.Fatalf("subjects %q %q", subject(a, send), subject(b, send))
	}

	a.RemoteAddr = "203.0.113.7:5555"
	if got := subject(a, handshake); got != "ip:203.0.113.7" {
		t.Fatalf("per-IP subject = %q", got)
	}
	anon := httptest.NewRequest("GET", "/messages", nil)
	anon.RemoteAddr = "203.0.113.8:5555"
	if got := subject(anon, send); got != "ip:203.0.113.8" {
		t.Fatalf("anonymous subject = %q", got)
	}
}

func TestRateLimiterDecide(t *testing.T) {
	rule := Rule{Limit: 3, Window: time.Minute}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	d := decide(rule, 0, time.Time{}, now)
	if !d.allowed || d.remaining != 2 || !d.resetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("first request = %+v", d)
	}
	oldest := now.Add(-40 * time.Second)
	d = decide(rule, 2, oldest, now)
	if !d.allowed || d.remaining != 0 || !d.resetAt.Equal(oldest.Add(time.Minute)) {
		t.Fatalf("last allowed request = %+v", d)
	}
	d = decide(rule, 3, oldest, now)
	if d.allowed || d.remaining != 0 {
		t.Fatalf("over limit = %+v", d)
	}
}

// TestRateLimiterAgainstRedis needs a disposable Redis at TEST_REDIS_URL.
func TestRateLimiterAgainstRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	rules := []Rule{
		{Name: "test_send_" + t.Name(), Method: "POST", Prefix: "/messages", Limit: 2, Window: time.Minute},
		{Name: "test_read_" + t.Name(), Method: "GET", Prefix: "/messages", Limit: 2, Window: time.Minute},
	}
	ctx := context.Background()
	for _, r := range rules {
		client.Del(ctx, "ratelimit:"+r.Name+":token:"+tokenDigest("tok"))
	}

	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{Rules: rules})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	do := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/messages", nil)
		req.Header.Set("Authorization", "Bearer tok")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("POST"); rec.Code != http.StatusOK {
			t.Fatalf("send %d status = %d", i, rec.Code)
		}
	}
	rec := do("POST")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third send status = %d headers = %v", rec.Code, rec.Header())
	}
	// reads have their own bucket
	if rec := do("GET"); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("read status = %d remaining = %q", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

func TestRateLimiterWithoutRedisPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/messages/voice", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
}
