package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/metrics"
)

// Rule limits one route family. Requests match on method and path prefix;
// the longest matching prefix wins.
type Rule struct {
	Name   string // bucket name, part of the redis key and metric label
	Method string
	Prefix string
	Limit  int
	Window time.Duration
	PerIP  bool // key by client address even when a bearer token is present
}

// DefaultRules are the limits applied when RateLimiterConfig.Rules is empty.
var DefaultRules = []Rule{
	{Name: "send", Method: http.MethodPost, Prefix: "/messages", Limit: 60, Window: time.Minute},
	{Name: "voice", Method: http.MethodPost, Prefix: "/messages/voice", Limit: 20, Window: time.Minute},
	{Name: "mark_read", Method: http.MethodPost, Prefix: "/messages/mark-as-read", Limit: 120, Window: time.Minute},
	{Name: "read", Method: http.MethodGet, Prefix: "/messages", Limit: 120, Window: time.Minute},
	{Name: "profile", Method: http.MethodGet, Prefix: "/users/", Limit: 100, Window: time.Minute},
	{Name: "handshake", Method: http.MethodGet, Prefix: "/ws", Limit: 30, Window: time.Minute, PerIP: true},
	{Name: "stats", Method: http.MethodGet, Prefix: "/stats", Limit: 60, Window: time.Minute, PerIP: true},
}

const (
	violationLimit  = 10
	violationWindow = time.Hour
	blockDuration   = 24 * time.Hour
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Rules            []Rule
	AutoBlockEnabled bool // block an address for a day after repeated 429s
}

// RateLimiter enforces per-route sliding windows stored in Redis sorted sets.
type RateLimiter struct {
	client    *redis.Client
	rules     []Rule
	autoBlock bool
	logger    zerolog.Logger
}

// NewRateLimiter creates a new rate limiter. A nil client disables limiting.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return &RateLimiter{
		client:    client,
		rules:     sorted,
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
	}
}

func (rl *RateLimiter) match(r *http.Request) (Rule, bool) {
	for _, rule := range rl.rules {
		if r.Method == rule.Method && strings.HasPrefix(r.URL.Path, rule.Prefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// subject identifies who a request is counted against. Auth has not run
// yet, so a bearer token is hashed rather than verified.
func subject(r *http.Request, rule Rule) string {
	if !rule.PerIP {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
			sum := sha256.Sum256([]byte(token))
			return "token:" + hex.EncodeToString(sum[:8])
		}
	}
	return "ip:" + clientIP(r)
}

// clientIP relies on chi's RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

type decision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// decide turns the number of requests already in the window into a
// verdict. oldest is the earliest request still in the window, if any.
func decide(rule Rule, inWindow int, oldest time.Time, now time.Time) decision {
	d := decision{
		allowed:   inWindow < rule.Limit,
		remaining: max(rule.Limit-inWindow-1, 0),
		resetAt:   now.Add(rule.Window),
	}
	if !oldest.IsZero() {
		d.resetAt = oldest.Add(rule.Window)
	}
	return d
}

// take records one request in the rule's window for sub and decides it.
func (rl *RateLimiter) take(ctx context.Context, rule Rule, sub string) (decision, error) {
	now := time.Now()
	key := "ratelimit:" + rule.Name + ":" + sub

	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-rule.Window).UnixMilli(), 10))
	count := pipe.ZCard(ctx, key)
	first := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: ulid.Make().String()})
	pipe.PExpire(ctx, key, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return decision{}, err
	}

	var oldest time.Time
	if zs := first.Val(); len(zs) > 0 {
		oldest = time.UnixMilli(int64(zs[0].Score))
	}
	return decide(rule, int(count.Val()), oldest, now), nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.client == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ip := clientIP(r)

		if rl.autoBlock && rl.blocked(ctx, ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		rule, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sub := subject(r, rule)
		d, err := rl.take(ctx, rule, sub)
		if err != nil {
			// fail open
			rl.logger.Warn().Err(err).Str("rule", rule.Name).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))

		if !d.allowed {
			retry := int(time.Until(d.resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			metrics.RateLimitHits.WithLabelValues(rule.Name).Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("rule", rule.Name).
				Str("subject", sub).
				Msg("rate limit exceeded")
			rl.recordViolation(ctx, ip)

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) blocked(ctx context.Context, ip string) bool {
	n, err := rl.client.Exists(ctx, "ratelimit:blocked:"+ip).Result()
	return err == nil && n > 0
}

// recordViolation blocks ip once it has hit a limit violationLimit times
// within violationWindow.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}
	key := "ratelimit:violations:" + ip
	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, violationWindow)
	if _, err := pipe.Exec(ctx); err != nil || incr.Val() < violationLimit {
		return
	}

	rl.client.Set(ctx, "ratelimit:blocked:"+ip, "repeated rate limit violations", blockDuration)
	metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", incr.Val()).
		Msg("IP auto-blocked for repeated violations")
}
