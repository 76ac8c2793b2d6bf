package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mtlprog/cryptopro/internal/api"
	"github.com/mtlprog/cryptopro/internal/config"
	"github.com/mtlprog/cryptopro/internal/export"
	"github.com/mtlprog/cryptopro/internal/quote"
	"github.com/mtlprog/cryptopro/internal/snapshot"
	"github.com/mtlprog/cryptopro/internal/wallet"
	"github.com/mtlprog/cryptopro/internal/worker"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Failed to load .env: %v", err)
	}
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:  "cryptopro",
		Usage: "crypto wallet backend",
		Action: func(c *cli.Context) error {
			return serve(c.Context, cfg)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API and background workers",
				Action: func(c *cli.Context) error {
					return serve(c.Context, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations and exit",
				Action: func(c *cli.Context) error {
					pool, err := connect(c.Context, cfg)
					if err != nil {
						return err
					}
					defer pool.Close()
					if err := migrate(c.Context, pool); err != nil {
						return err
					}
					slog.Info("migrations applied")
					return nil
				},
			},
			{
				Name:  "wallet",
				Usage: "print the wallet of a user as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "user ID", Required: true},
				},
				Action: walletCommand(cfg),
			},
			{
				Name:      "quote",
				Usage:     "print the current quote of a coin, or every stored quote",
				ArgsUsage: "<coin>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "stored", Usage: "list the last persisted live quote of every coin"},
				},
				Action: quoteCommand(cfg),
			},
			{
				Name:  "snapshot",
				Usage: "store a wallet snapshot of every user",
				Flags: []cli.Flag{
					&cli.TimestampFlag{Name: "date", Usage: "snapshot date", Layout: time.DateOnly},
				},
				Action: snapshotCommand(cfg),
			},
			{
				Name:  "export",
				Usage: "write the portfolio report of all users",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "xlsx output path", Value: "report.xlsx"},
					&cli.BoolFlag{Name: "sheets", Usage: "also push the report to Google Sheets"},
				},
				Action: exportCommand(cfg),
			},
			{
				Name:  "admin",
				Usage: "manage back-office accounts",
				Subcommands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create or reset an admin account",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "email", Required: true},
							&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ADMIN_PASSWORD"}},
						},
						Action: func(c *cli.Context) error {
							a, err := newApp(c.Context, cfg)
							if err != nil {
								return err
							}
							defer a.Close()
							if err := a.users.CreateAdmin(c.Context, c.String("email"), c.String("password")); err != nil {
								return err
							}
							slog.Info("admin account saved", "email", c.String("email"))
							return nil
						},
					},
				},
			},
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil {
		stop()
		log.Fatalf("cryptopro: %v", err)
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.AdminSecretKey == "" {
		slog.Warn("ADMIN_SECRET_KEY not set, admin endpoints reject every request")
	}

	if cfg.QuoteWorkerInterval > 0 {
		go worker.NewQuoteWorker(a.quotes, cfg.QuoteWorkerInterval).Run(ctx)
	}
	if cfg.ReportWorkerInterval > 0 {
		go worker.NewReportWorker(a.snapshots, cfg.ReportWorkerInterval, a.exportHook(ctx)).Run(ctx)
	}

	srv := api.NewServer(cfg.HTTPPort, api.Deps{
		Users:       a.users,
		Wallets:     a.wallets,
		Trades:      a.trades,
		Prices:      a.quotes,
		Snapshots:   a.snapshots,
		Reports:     a.snapshots,
		Metrics:     a.metrics,
		AdminKey:    cfg.AdminSecretKey,
		CORSOrigins: cfg.CORSOrigins,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func walletCommand(cfg config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		id, err := wallet.ParseUserID(c.String("user"))
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		a, err := newApp(c.Context, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := a.wallets.GetWallet(c.Context, id)
		if err != nil {
			return err
		}
		return printJSON(w)
	}
}

func quoteCommand(cfg config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Bool("stored") {
			pool, err := connect(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			quotes, err := quote.NewPgRepository(pool).GetAllQuotes(c.Context)
			if err != nil {
				return err
			}
			return printJSON(quotes)
		}

		coin := c.Args().First()
		if coin == "" {
			return cli.Exit("coin argument is required", 2)
		}
		return printJSON(newQuoteAdapter(cfg, nil, nil).GetPrice(c.Context, coin))
	}
}

func snapshotCommand(cfg config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		date := time.Now()
		if ts := c.Timestamp("date"); ts != nil {
			date = *ts
		}
		a, err := newApp(c.Context, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.snapshots.Generate(c.Context, snapshot.UTCDate(date))
		if err != nil {
			return err
		}
		slog.Info("snapshots stored", "date", res.Date.Format(time.DateOnly), "users", len(res.Entries), "failed", res.Failed)
		return nil
	}
}

func exportCommand(cfg config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := newApp(c.Context, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.snapshots.Collect(c.Context, snapshot.UTCDate(time.Now()))
		if err != nil {
			return err
		}

		f, err := os.Create(c.String("out"))
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if err := export.NewService(export.NewXLSXWriter(f)).Export(c.Context, res); err != nil {
			return err
		}
		slog.Info("report written", "path", c.String("out"), "users", len(res.Entries))

		if c.Bool("sheets") {
			hook := a.exportHook(c.Context)
			if hook == nil {
				return cli.Exit("Google Sheets export is not configured", 1)
			}
			if err := hook.Export(c.Context, res); err != nil {
				return err
			}
			slog.Info("report pushed to Google Sheets")
		}
		return nil
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
