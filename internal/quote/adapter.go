package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/cache"
	"github.com/mtlprog/cryptopro/internal/domain"
)

const availabilityProbeTicker = "BTC"

// Recorder observes which source served each quote.
type Recorder interface {
	ObserveQuote(provider string, source domain.QuoteSource)
}

// AdapterConfig holds the tunables of an Adapter.
type AdapterConfig struct {
	CallTimeout     time.Duration
	CacheTTL        time.Duration
	AvailabilityTTL time.Duration
	// MissTTL is how long a ticker that no strategy could price skips the
	// chain. Zero disables it.
	MissTTL         time.Duration
	Clock           cache.Clock
	Synthesizer     *Synthesizer
	Store           Repository // optional; live quotes are persisted here
	Recorder        Recorder   // optional
}

// Adapter is the single entry point for prices. It never fails: when every
// strategy fails it returns a synthetic quote.
type Adapter struct {
	strategies  []Strategy
	live        []Strategy
	callTimeout time.Duration
	quotes      *cache.TTL[string, domain.Quote]
	available   *cache.TTL[string, bool]
	misses      *cache.TTL[string, error]
	synth       *Synthesizer
	store       Repository
	recorder    Recorder
	now         cache.Clock
}

// NewAdapter creates an Adapter that tries strategies in the given order.
func NewAdapter(strategies []Strategy, cfg AdapterConfig) *Adapter {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	synth := cfg.Synthesizer
	if synth == nil {
		synth = NewSynthesizer(nil)
	}
	return &Adapter{
		strategies: strategies,
		live: lo.Filter(strategies, func(s Strategy, _ int) bool {
			_, stored := s.(*StoredQuotes)
			return !stored
		}),
		callTimeout: cfg.CallTimeout,
		quotes:      cache.New[string, domain.Quote](cfg.CacheTTL, now),
		available:   cache.New[string, bool](cfg.AvailabilityTTL, now),
		misses:      cache.New[string, error](cfg.MissTTL, now),
		synth:       synth,
		store:       cfg.Store,
		recorder:    cfg.Recorder,
		now:         now,
	}
}

// GetPrice returns a quote for the coin named asset ("Bitcoin" or "BTC").
func (a *Adapter) GetPrice(ctx context.Context, asset string) domain.Quote {
	ticker := domain.Ticker(asset)

	if q, ok := a.quotes.Get(ticker); ok {
		q.Asset = asset
		return q
	}

	if _, missed := a.misses.Get(ticker); missed {
		return a.synthetic(asset, ticker)
	}

	res, err := FirstSuccess(ctx, ticker, a.callTimeout, a.strategies)
	if err != nil {
		slog.Warn("all price providers failed, using synthetic price", "ticker", ticker, "error", err)
		if ctx.Err() == nil {
			a.misses.Set(ticker, err)
		}
		return a.synthetic(asset, ticker)
	}

	q := domain.Quote{
		Asset:     asset,
		Ticker:    ticker,
		Price:     res.Price,
		Source:    domain.QuoteLive,
		Provider:  res.Provider,
		FetchedAt: a.now(),
	}
	a.quotes.Set(ticker, q)
	a.observe(q)

	if a.store != nil && res.Provider != "stored" {
		if err := a.store.SaveQuote(ctx, q); err != nil {
			slog.Warn("failed to persist live quote", "ticker", ticker, "error", err)
		}
	}
	return q
}

func (a *Adapter) synthetic(asset, ticker string) domain.Quote {
	q := domain.Quote{
		Asset:     asset,
		Ticker:    ticker,
		Price:     a.synth.Price(ticker),
		Source:    domain.QuoteSynthetic,
		Provider:  "synthetic",
		FetchedAt: a.now(),
	}
	a.observe(q)
	return q
}

// Available reports whether any live provider currently answers. The result is
// cached for the availability window.
func (a *Adapter) Available(ctx context.Context) bool {
	if up, ok := a.available.Get(availabilityProbeTicker); ok {
		return up
	}
	_, err := FirstSuccess(ctx, availabilityProbeTicker, a.callTimeout, a.live)
	up := err == nil
	if !up {
		slog.Warn("price providers unavailable", "error", err)
	}
	a.available.Set(availabilityProbeTicker, up)
	return up
}

// BatchFetcher is a live strategy that can price every known ticker in one call.
type BatchFetcher interface {
	Strategy
	FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error)
}

// FetchAndStoreQuotes refreshes the stored quote of every known ticker from
// live providers. Batch-capable providers are asked first; tickers they miss
// fall back to the per-ticker chain.
func (a *Adapter) FetchAndStoreQuotes(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	batched := a.fetchBatch(ctx)

	var failed []string
	for _, ticker := range domain.KnownTickers() {
		res, ok := batched[ticker]
		if !ok {
			var err error
			res, err = FirstSuccess(ctx, ticker, a.callTimeout, a.live)
			if err != nil {
				failed = append(failed, ticker)
				continue
			}
		}
		q := domain.Quote{
			Ticker:    ticker,
			Price:     res.Price,
			Source:    domain.QuoteLive,
			Provider:  res.Provider,
			FetchedAt: a.now(),
		}
		if err := a.store.SaveQuote(ctx, q); err != nil {
			return fmt.Errorf("storing quote for %s: %w", ticker, err)
		}
		a.quotes.Set(ticker, q)
		a.misses.Delete(ticker)
	}

	if len(failed) > 0 {
		return fmt.Errorf("no live price for %v", failed)
	}
	return nil
}

// fetchBatch collects positive prices from the first live provider that
// answers a batch request.
func (a *Adapter) fetchBatch(ctx context.Context) map[string]Result {
	for _, s := range a.live {
		b, ok := s.(BatchFetcher)
		if !ok {
			continue
		}
		prices, err := b.FetchPrices(ctx)
		if err != nil {
			slog.Warn("batch quote fetch failed", "provider", b.Name(), "error", err)
			continue
		}
		out := make(map[string]Result, len(prices))
		for ticker, p := range prices {
			if p.IsPositive() {
				out[ticker] = Result{Price: p, Provider: b.Name()}
			}
		}
		return out
	}
	return nil
}

// PruneCaches drops expired entries from the adapter's caches and returns how
// many were removed.
func (a *Adapter) PruneCaches() int {
	n := a.quotes.Prune() + a.available.Prune() + a.misses.Prune()
	slog.Debug("pruned quote caches", "removed", n, "quotes", a.quotes.Len(), "misses", a.misses.Len())
	return n
}

func (a *Adapter) observe(q domain.Quote) {
	if a.recorder != nil {
		a.recorder.ObserveQuote(q.Provider, q.Source)
	}
}
