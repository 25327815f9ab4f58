package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("LOW_STOCK_LOOKBACK_DAYS", "0")

	cfg := Load()
	if cfg.ReportCacheTTLSeconds != 30 {
		t.Fatalf("expected cache TTL fallback 30, got %d", cfg.ReportCacheTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.LowStockLookbackDays != 30 {
		t.Fatalf("expected lookback fallback 30, got %d", cfg.LowStockLookbackDays)
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
}
