package config

import (
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "DATABASE_URL", "REDIS_URL", "ROOM_ACCESS", "MAX_UPLOAD_BYTES", "CORS_ORIGINS", "MEDIA_BASE_URL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.Port != "8080" || cfg.Env != "development" || !cfg.IsDevelopment() {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RoomAccess != "participant" {
		t.Fatalf("RoomAccess = %q", cfg.RoomAccess)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.MediaBaseURL != "http://localhost:8080/uploads" {
		t.Fatalf("MediaBaseURL = %q", cfg.MediaBaseURL)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("PORT", "9000")
	t.Setenv("ROOM_ACCESS", "open")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("AUTO_BLOCK_ENABLED", "true")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	if cfg.Port != "9000" || cfg.RoomAccess != "open" || cfg.MaxUploadBytes != 2048 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.AutoBlockEnabled || !cfg.Minio.UseSSL {
		t.Fatal("boolean flags not applied")
	}
}

func TestLoadInvalidUploadLimitFallsBack(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "lots")
	if got := Load().MaxUploadBytes; got != 10<<20 {
		t.Fatalf("MaxUploadBytes = %d", got)
	}
}

func TestLoadPanicsInProductionWithoutDeps(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("REDIS_URL", "redis://x")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_PUBLIC_KEY", "")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic without a token key")
		}
	}()
	Load()
}
