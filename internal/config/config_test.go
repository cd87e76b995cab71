package config

import "testing"

func TestLoadDoesNotInjectWeakSecretDefaults(t *testing.T) {
	t.Setenv("CONFIRM_SECRET", "")
	t.Setenv("RESET_PIN", "")

	cfg := Load()
	if cfg.ConfirmSecret != "" {
		t.Fatalf("expected empty CONFIRM_SECRET when unset, got %q", cfg.ConfirmSecret)
	}
	if cfg.ResetPIN != "" {
		t.Fatalf("expected empty RESET_PIN when unset, got %q", cfg.ResetPIN)
	}
}

func TestLoadPicksBackendFromDatabaseURL(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("DATABASE_URL", "")
	if got := Load().StorageBackend; got != BackendMemory {
		t.Fatalf("expected memory backend, got %q", got)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/perfumaria")
	if got := Load().StorageBackend; got != BackendPostgres {
		t.Fatalf("expected postgres backend, got %q", got)
	}

	t.Setenv("STORAGE_BACKEND", "Redis")
	if got := Load().StorageBackend; got != BackendRedis {
		t.Fatalf("expected explicit redis backend, got %q", got)
	}
}

func TestLoadParsesListsAndFallbacks(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("CONFIRM_TTL_SECONDS", "-4")
	t.Setenv("ANALYTICS_BUCKET_BY_YEAR", "true")
	t.Setenv("SHOP_TIMEZONE", "")

	cfg := Load()
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.ConfirmTTLSeconds != 120 {
		t.Fatalf("expected fallback ttl 120, got %d", cfg.ConfirmTTLSeconds)
	}
	if !cfg.BucketRevenueByYear {
		t.Fatalf("expected bucket by year enabled")
	}
	if cfg.ShopTimezone != "America/Sao_Paulo" {
		t.Fatalf("expected default shop timezone, got %q", cfg.ShopTimezone)
	}
	if cfg.RedisKeyPrefix != "perfumaria:" {
		t.Fatalf("expected default redis prefix, got %q", cfg.RedisKeyPrefix)
	}
}
