package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGIN", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DEFAULT_SHOP_ID", "")
	t.Setenv("LOW_STOCK_THRESHOLD", "")
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.ShopID != "main-shop" {
		t.Fatalf("expected default shop, got %q", cfg.ShopID)
	}
	if cfg.LowStockThreshold != 10 {
		t.Fatalf("expected threshold 10, got %d", cfg.LowStockThreshold)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	// No baked-in secret: an empty AUTH_SECRET must stay empty so startup
	// validation can refuse to run.
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty auth secret, got %q", cfg.AuthSecret)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9182")
	t.Setenv("DEFAULT_SHOP_ID", "toko-dua")
	t.Setenv("LOW_STOCK_THRESHOLD", "25")
	t.Setenv("AUTH_SECRET", "  secret-with-surrounding-space  ")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "60")

	cfg := Load()
	if cfg.Port != "9182" {
		t.Fatalf("expected port 9182, got %q", cfg.Port)
	}
	if cfg.ShopID != "toko-dua" {
		t.Fatalf("expected shop toko-dua, got %q", cfg.ShopID)
	}
	if cfg.LowStockThreshold != 25 {
		t.Fatalf("expected threshold 25, got %d", cfg.LowStockThreshold)
	}
	if cfg.AuthSecret != "secret-with-surrounding-space" {
		t.Fatalf("expected trimmed secret, got %q", cfg.AuthSecret)
	}
	if cfg.AccessTokenTTLMinutes != 60 {
		t.Fatalf("expected ttl 60, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestLoadRejectsGarbageNumbers(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	if cfg.LowStockThreshold != 10 {
		t.Fatalf("expected fallback threshold 10, got %d", cfg.LowStockThreshold)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected fallback ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
