package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/api"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/api/middleware"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/config"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/events"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/handlers"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/hub"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/identity"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/media"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/service"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/store"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Tracing
	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Env)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	// Token verification
	verifier, err := identity.NewVerifier(cfg.JWTSecret, cfg.JWTPublicKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid token configuration")
	}

	// Message store: Postgres when configured, SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("migrations completed")

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite store")
	}
	defer db.Close()

	// Initialize Redis store
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Realtime hub, relayed through Redis when there may be more than one instance
	rt := hub.New(logger, hub.WithRoomAccess(hub.RoomAccess(cfg.RoomAccess)))
	var notifier service.Notifier = rt
	if redisStore != nil {
		bridge := hub.NewBridge(rt, redisStore, cfg.RelayChannel, logger)
		go bridge.Run(ctx)
		notifier = bridge
	}

	// Domain events
	var publisher events.Publisher = events.Nop{}
	if cfg.KafkaBrokers != "" {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka setup failed")
		}
		publisher = kp
		logger.Info().Str("topic", cfg.KafkaTopic).Msg("publishing events to Kafka")
	}
	defer publisher.Close()

	// Media storage
	var uploader media.Uploader
	var uploads http.Handler
	switch cfg.MediaBackend {
	case "minio":
		ms, err := media.NewMinioStore(ctx, media.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
			PublicURL: cfg.Minio.PublicURL,
		}, cfg.MaxUploadBytes)
		if err != nil {
			logger.Fatal().Err(err).Msg("minio setup failed")
		}
		uploader = ms
		logger.Info().Str("bucket", cfg.Minio.Bucket).Msg("storing media in MinIO")
	default:
		ds, err := media.NewDiskStore(cfg.MediaDir, cfg.MediaBaseURL, cfg.MaxUploadBytes)
		if err != nil {
			logger.Fatal().Err(err).Msg("media dir setup failed")
		}
		uploader, uploads = ds, ds.Handler()
		logger.Info().Str("dir", cfg.MediaDir).Msg("storing media on disk")
	}

	messages := service.NewMessageService(db, notifier, publisher, logger)

	// Create router
	router := api.NewRouter(logger, api.Options{
		Handlers: handlers.Deps{
			Messages:       messages,
			Store:          db,
			Redis:          redisStore,
			Hub:            rt,
			Media:          uploader,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Logger:         logger,
		},
		Verifier:    verifier,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit: middleware.RateLimiterConfig{
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
		Uploads: uploads,
	})

	// Create server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "chato.http"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("room_access", cfg.RoomAccess).
			Msg("starting chato server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// websocket connections are hijacked, so Shutdown does not wait for them
	rt.Close()
	stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
