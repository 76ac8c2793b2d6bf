package worker

import (
	"context"
	"log/slog"
	"time"
)

// QuoteFetcher refreshes the stored quote of every supported coin and
// evicts expired in-memory quotes.
type QuoteFetcher interface {
	FetchAndStoreQuotes(ctx context.Context) error
	PruneCaches() int
}

// QuoteWorker keeps stored quotes warm so the stored-quote fallback stays fresh.
type QuoteWorker struct {
	fetcher  QuoteFetcher
	interval time.Duration
}

func NewQuoteWorker(fetcher QuoteFetcher, interval time.Duration) *QuoteWorker {
	return &QuoteWorker{fetcher: fetcher, interval: interval}
}

func (w *QuoteWorker) refresh(ctx context.Context) {
	w.fetcher.PruneCaches()
	if err := w.fetcher.FetchAndStoreQuotes(ctx); err != nil {
		slog.Warn("quote refresh incomplete", "error", err)
		return
	}
	slog.Debug("quote refresh completed")
}

// Run blocks until the context is cancelled. A non-positive interval disables the worker.
func (w *QuoteWorker) Run(ctx context.Context) {
	every(ctx, "quotes", w.interval, w.refresh)
}
