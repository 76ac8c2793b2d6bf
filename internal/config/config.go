package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	HTTPPort             string
	JWTSecret            string
	JWTTTL               time.Duration
	AdminSecretKey       string
	CMCAPIKey            string
	CMCURL               string
	CoinGeckoURL         string
	CoinGeckoRetryMax    int
	CoinGeckoDelay       time.Duration
	QuoteCallTimeout     time.Duration
	QuoteCacheTTL        time.Duration
	WalletCacheTTL       time.Duration
	AvailabilityTTL      time.Duration
	QuoteMissTTL         time.Duration
	QuoteStaleThreshold  time.Duration
	QuoteWorkerInterval  time.Duration
	ReportWorkerInterval time.Duration
	PriceFanoutLimit     int
	CORSOrigins          []string
	NATSURL              string
	GoogleSheetsID       string
	GoogleCredentials    string
	LogLevel             slog.Level
	LogFormat            string
}

// LoadDotEnv reads variables from the given files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:          envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:             envOrDefault("HTTP_PORT", "3000"),
		JWTSecret:            envOrDefaultWarn("JWT_SECRET", ""),
		JWTTTL:               envOrDefaultDuration("JWT_TTL", time.Hour),
		AdminSecretKey:       envOrDefaultWarn("ADMIN_SECRET_KEY", ""),
		CMCAPIKey:            envOrDefault("CMC_API_KEY", ""),
		CMCURL:               envOrDefault("CMC_URL", "https://pro-api.coinmarketcap.com"),
		CoinGeckoURL:         envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoRetryMax:    envOrDefaultInt("COINGECKO_RETRY_MAX", 2),
		CoinGeckoDelay:       envOrDefaultDuration("COINGECKO_DELAY", time.Second),
		QuoteCallTimeout:     envOrDefaultDuration("QUOTE_CALL_TIMEOUT", 3*time.Second),
		QuoteCacheTTL:        envOrDefaultDuration("QUOTE_CACHE_TTL", 10*time.Second),
		WalletCacheTTL:       envOrDefaultDuration("WALLET_CACHE_TTL", 10*time.Second),
		AvailabilityTTL:      envOrDefaultDuration("AVAILABILITY_TTL", time.Minute),
		QuoteMissTTL:         envOrDefaultDuration("QUOTE_MISS_TTL", 30*time.Second),
		QuoteStaleThreshold:  envOrDefaultDuration("QUOTE_STALE_THRESHOLD", 2*time.Hour),
		QuoteWorkerInterval:  envOrDefaultDuration("QUOTE_WORKER_INTERVAL", 0),
		ReportWorkerInterval: envOrDefaultDuration("REPORT_WORKER_INTERVAL", 24*time.Hour),
		PriceFanoutLimit:     envOrDefaultInt("PRICE_FANOUT_LIMIT", 8),
		CORSOrigins:          envList("CORS_ORIGINS"),
		NATSURL:              envOrDefault("NATS_URL", ""),
		GoogleSheetsID:       envOrDefault("GOOGLE_SHEETS_ID", ""),
		GoogleCredentials:    envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		LogLevel:             envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat:            envOrDefault("LOG_FORMAT", "text"),
	}
}

// NewLogger builds the process logger from the configured level and format.
func (c Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envOrDefaultLevel(key string, defaultVal slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(v)); err != nil {
			slog.Warn("invalid log level env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return l
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
