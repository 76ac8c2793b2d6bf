package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/cryptopro/internal/config"
	"github.com/mtlprog/cryptopro/internal/database"
	"github.com/mtlprog/cryptopro/internal/events"
	"github.com/mtlprog/cryptopro/internal/export"
	"github.com/mtlprog/cryptopro/internal/ledger"
	"github.com/mtlprog/cryptopro/internal/metrics"
	"github.com/mtlprog/cryptopro/internal/quote"
	"github.com/mtlprog/cryptopro/internal/snapshot"
	"github.com/mtlprog/cryptopro/internal/trade"
	"github.com/mtlprog/cryptopro/internal/user"
	"github.com/mtlprog/cryptopro/internal/wallet"
	"github.com/mtlprog/cryptopro/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// app holds the wired services shared by every command.
type app struct {
	cfg       config.Config
	pool      *pgxpool.Pool
	metrics   *metrics.Metrics
	users     *user.Service
	quotes    *quote.Adapter
	wallets   *wallet.Service
	trades    *trade.Service
	snapshots *snapshot.Service
	publisher events.Publisher
}

func connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return database.Connect(ctx, cfg.DatabaseURL)
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	return database.RunMigrations(ctx, pool, sub)
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	pool, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	m := metrics.New()

	quoteRepo := quote.NewPgRepository(pool)
	quotes := newQuoteAdapter(cfg, quoteRepo, m)

	ledgerStore := ledger.NewPgStore(pool)
	wallets := wallet.NewService(ledgerStore, quotes, wallet.Config{
		CacheTTL:    cfg.WalletCacheTTL,
		FanoutLimit: cfg.PriceFanoutLimit,
		Recorder:    m,
	})

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			slog.Warn("NATS unavailable, trade events disabled", "url", cfg.NATSURL, "error", err)
		} else {
			publisher = nc
		}
	}

	userRepo := user.NewPgRepository(pool)
	users := user.NewService(userRepo, user.NewTokens(cfg.JWTSecret, cfg.JWTTTL, nil), nil)

	return &app{
		cfg:       cfg,
		pool:      pool,
		metrics:   m,
		users:     users,
		quotes:    quotes,
		wallets:   wallets,
		trades:    trade.NewService(ledgerStore, wallets, publisher, m, nil),
		snapshots: snapshot.NewService(userRepo, wallets, snapshot.NewPgRepository(pool), m),
		publisher: publisher,
	}, nil
}

// newQuoteAdapter builds the provider chain CoinMarketCap, CoinGecko, then the
// last stored quote when repo is set.
func newQuoteAdapter(cfg config.Config, repo quote.Repository, rec quote.Recorder) *quote.Adapter {
	var strategies []quote.Strategy
	if cfg.CMCAPIKey != "" {
		strategies = append(strategies, quote.NewCoinMarketCapClient(cfg.CMCURL, cfg.CMCAPIKey))
	} else {
		slog.Warn("CMC_API_KEY not set, CoinMarketCap provider disabled")
	}
	strategies = append(strategies, quote.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax))
	if repo != nil {
		strategies = append(strategies, quote.NewStoredQuotes(repo, cfg.QuoteStaleThreshold, nil))
	}
	return quote.NewAdapter(strategies, quote.AdapterConfig{
		CallTimeout:     cfg.QuoteCallTimeout,
		CacheTTL:        cfg.QuoteCacheTTL,
		AvailabilityTTL: cfg.AvailabilityTTL,
		MissTTL:         cfg.QuoteMissTTL,
		Store:           repo,
		Recorder:        rec,
	})
}

// exportHook returns the Google Sheets exporter when it is configured.
func (a *app) exportHook(ctx context.Context) worker.AfterSnapshotHook {
	if a.cfg.GoogleSheetsID == "" || a.cfg.GoogleCredentials == "" {
		slog.Info("Google Sheets export disabled")
		return nil
	}
	w, err := export.NewSheetsWriter(ctx, a.cfg.GoogleSheetsID, a.cfg.GoogleCredentials)
	if err != nil {
		slog.Error("failed to create Google Sheets writer, export disabled", "error", err)
		return nil
	}
	return export.NewService(w)
}

func (a *app) Close() {
	a.publisher.Close()
	a.pool.Close()
}
