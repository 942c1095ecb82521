package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/api/middleware"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/handlers"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/hub"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/identity"
)

const maxJSONBody = 16 * 1024

// multipartOverhead covers the form fields and boundaries around an upload.
const multipartOverhead = 64 * 1024

// Options configure the router.
type Options struct {
	Handlers    handlers.Deps
	Verifier    identity.Verifier
	CORSOrigins []string
	RateLimit   middleware.RateLimiterConfig
	// Uploads serves locally stored media under /uploads/ when set.
	Uploads http.Handler
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (disabled without redis)
	var redisClient *redis.Client
	if opts.Handlers.Redis != nil {
		redisClient = opts.Handlers.Redis.Client()
	}
	limiter := middleware.NewRateLimiter(redisClient, logger, opts.RateLimit)
	r.Use(limiter.Middleware)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(opts.Handlers)
	auth := middleware.NewAuthMiddleware(opts.Verifier, opts.Handlers.Messages, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	if opts.Uploads != nil {
		r.Handle("/uploads/*", http.StripPrefix("/uploads", opts.Uploads))
	}

	// Realtime handshake authenticates on its own before upgrading
	if opts.Handlers.Hub != nil {
		r.Handle("/ws", hub.NewHandshake(opts.Handlers.Hub, opts.Verifier, opts.CORSOrigins, logger))
	}

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(maxJSONBody))

			r.Post("/messages", h.SendMessage)
			r.Get("/messages", h.SentMessages)
			r.Get("/messages/chat-users", h.ChatUsers)
			r.Get("/messages/all-users", h.AllUsers)
			r.Get("/messages/to/{receiverUserId}", h.Conversation)
			r.Post("/messages/mark-as-read", h.MarkAsRead)
			r.Get("/users/{id}", h.GetUser)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(opts.Handlers.MaxUploadBytes + multipartOverhead))

			r.Post("/messages/voice", h.SendVoice)
		})
	})

	return r
}
