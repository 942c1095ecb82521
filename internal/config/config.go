package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // Postgres; SQLite is used when empty
	SQLitePath  string
	RedisURL    string

	// Identity
	JWTSecret    string
	JWTPublicKey string // base64 Ed25519 public key, preferred over the secret

	CORSOrigins []string

	// RoomAccess is "participant" (default) or "open". The default only lets
	// a session join its own personal channel and conversations it belongs
	// to; the Strapi socket server let clients join any conversation
	// channel, which "open" restores.
	RoomAccess   string
	RelayChannel string // Redis channel shared by all instances

	// Media
	MediaBackend   string // "disk" or "minio"
	MediaDir       string
	MediaBaseURL   string
	MaxUploadBytes int64
	Minio          MinioConfig

	// Events
	KafkaBrokers string
	KafkaTopic   string

	// Tracing
	OTLPEndpoint string
	ServiceName  string

	// Rate limiting
	AutoBlockEnabled bool // block an address for a day after repeated 429s
}

// MinioConfig holds object store settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Port:             port,
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "chato.db"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTPublicKey:     os.Getenv("JWT_PUBLIC_KEY"),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "*")),
		RoomAccess:       getEnv("ROOM_ACCESS", "participant"),
		RelayChannel:     getEnv("RELAY_CHANNEL", "chato:realtime"),
		MediaBackend:     getEnv("MEDIA_BACKEND", "disk"),
		MediaDir:         getEnv("MEDIA_DIR", "uploads"),
		MediaBaseURL:     getEnv("MEDIA_BASE_URL", "http://localhost:"+port+"/uploads"),
		MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		KafkaBrokers:     os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "chato.messages"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:      getEnv("OTEL_SERVICE_NAME", "chato-api"),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "chato-media"),
			UseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",
			PublicURL: os.Getenv("MINIO_PUBLIC_URL"),
		},
	}

	// In production, require database, redis and a token key
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.JWTSecret == "" && cfg.JWTPublicKey == "" {
			panic("JWT_SECRET or JWT_PUBLIC_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	n, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
