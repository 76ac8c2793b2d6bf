package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might affect defaults
	for _, key := range []string{"DATABASE_URL", "COINGECKO_URL", "HTTP_PORT", "COINGECKO_RETRY_MAX",
		"QUOTE_CALL_TIMEOUT", "WALLET_CACHE_TTL", "CORS_ORIGINS", "LOG_LEVEL", "QUOTE_WORKER_INTERVAL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.CoinGeckoURL != "https://api.coingecko.com/api/v3" {
		t.Errorf("CoinGeckoURL = %q, want default", cfg.CoinGeckoURL)
	}
	if cfg.CoinGeckoRetryMax != 2 {
		t.Errorf("CoinGeckoRetryMax = %d, want 2", cfg.CoinGeckoRetryMax)
	}
	if cfg.QuoteCallTimeout != 3*time.Second {
		t.Errorf("QuoteCallTimeout = %v, want 3s", cfg.QuoteCallTimeout)
	}
	if cfg.WalletCacheTTL != 10*time.Second {
		t.Errorf("WalletCacheTTL = %v, want 10s", cfg.WalletCacheTTL)
	}
	if cfg.AvailabilityTTL != time.Minute {
		t.Errorf("AvailabilityTTL = %v, want 1m", cfg.AvailabilityTTL)
	}
	if cfg.QuoteMissTTL != 30*time.Second {
		t.Errorf("QuoteMissTTL = %v, want 30s", cfg.QuoteMissTTL)
	}
	if cfg.QuoteWorkerInterval != 0 {
		t.Errorf("QuoteWorkerInterval = %v, want 0 (disabled)", cfg.QuoteWorkerInterval)
	}
	if cfg.HTTPPort != "3000" {
		t.Errorf("HTTPPort = %q, want 3000", cfg.HTTPPort)
	}
	if cfg.CORSOrigins != nil {
		t.Errorf("CORSOrigins = %v, want nil", cfg.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("COINGECKO_RETRY_MAX", "10")
	t.Setenv("QUOTE_CALL_TIMEOUT", "500ms")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://app.example.com,,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.CoinGeckoRetryMax != 10 {
		t.Errorf("CoinGeckoRetryMax = %d, want 10", cfg.CoinGeckoRetryMax)
	}
	if cfg.QuoteCallTimeout != 500*time.Millisecond {
		t.Errorf("QuoteCallTimeout = %v, want 500ms", cfg.QuoteCallTimeout)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://app.example.com" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("COINGECKO_RETRY_MAX", "not-a-number")
	t.Setenv("WALLET_CACHE_TTL", "invalid-duration")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := Load()

	if cfg.CoinGeckoRetryMax != 2 {
		t.Errorf("CoinGeckoRetryMax = %d, want default 2 on invalid input", cfg.CoinGeckoRetryMax)
	}
	if cfg.WalletCacheTTL != 10*time.Second {
		t.Errorf("WalletCacheTTL = %v, want default 10s on invalid input", cfg.WalletCacheTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want default INFO on invalid input", cfg.LogLevel)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JWT_SECRET=from-file\nHTTP_PORT=4000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("HTTP_PORT", "5000")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	cfg := Load()
	if cfg.JWTSecret != "from-file" {
		t.Errorf("JWTSecret = %q, want from-file", cfg.JWTSecret)
	}
	if cfg.HTTPPort != "5000" {
		t.Errorf("HTTPPort = %q, existing env must win over .env", cfg.HTTPPort)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
