package quote

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
)

type mockRepo struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
	saves  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{quotes: make(map[string]domain.Quote)}
}

func (m *mockRepo) SaveQuote(_ context.Context, q domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.quotes[q.Ticker] = q
	return nil
}

func (m *mockRepo) GetQuote(_ context.Context, ticker string) (domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[ticker]
	if !ok {
		return domain.Quote{}, ErrNotFound
	}
	return q, nil
}

func (m *mockRepo) GetAllQuotes(_ context.Context) ([]domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Quote
	for _, q := range m.quotes {
		out = append(out, q)
	}
	return out, nil
}

type mockRecorder struct {
	observed []domain.QuoteSource
}

func (r *mockRecorder) ObserveQuote(_ string, source domain.QuoteSource) {
	r.observed = append(r.observed, source)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestAdapterLivePriceIsCached(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	live := &stubStrategy{name: "live", price: decimal.NewFromInt(60000)}
	repo := newMockRepo()

	a := NewAdapter([]Strategy{live}, AdapterConfig{
		CacheTTL: 10 * time.Second,
		Clock:    clock.Now,
		Store:    repo,
	})

	q := a.GetPrice(context.Background(), "Bitcoin")
	if q.Source != domain.QuoteLive {
		t.Errorf("source = %s, want live", q.Source)
	}
	if q.Ticker != "BTC" || q.Asset != "Bitcoin" {
		t.Errorf("ticker/asset = %s/%s, want BTC/Bitcoin", q.Ticker, q.Asset)
	}
	if !q.Price.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("price = %s, want 60000", q.Price)
	}

	clock.Advance(5 * time.Second)
	a.GetPrice(context.Background(), "BTC")
	if live.calls != 1 {
		t.Errorf("strategy called %d times within TTL, want 1", live.calls)
	}

	clock.Advance(5 * time.Second)
	a.GetPrice(context.Background(), "Bitcoin")
	if live.calls != 2 {
		t.Errorf("strategy called %d times after TTL, want 2", live.calls)
	}

	if repo.saves != 2 {
		t.Errorf("saves = %d, want 2", repo.saves)
	}
}

func TestAdapterSyntheticFallback(t *testing.T) {
	failing := &stubStrategy{name: "down", err: errors.New("unreachable")}
	rec := &mockRecorder{}
	repo := newMockRepo()

	a := NewAdapter([]Strategy{failing}, AdapterConfig{
		CacheTTL:    10 * time.Second,
		Synthesizer: NewSynthesizer(rand.NewPCG(3, 5)),
		Store:       repo,
		Recorder:    rec,
	})

	q := a.GetPrice(context.Background(), "Dogecoin")
	if q.Source != domain.QuoteSynthetic {
		t.Fatalf("source = %s, want synthetic", q.Source)
	}
	lo := decimal.RequireFromString("0.2375")
	hi := decimal.RequireFromString("0.2625")
	if q.Price.LessThan(lo) || q.Price.GreaterThan(hi) {
		t.Errorf("DOGE synthetic price %s outside [%s, %s]", q.Price, lo, hi)
	}

	// synthetic quotes are never cached or persisted
	a.GetPrice(context.Background(), "Dogecoin")
	if failing.calls != 2 {
		t.Errorf("strategy called %d times, want 2", failing.calls)
	}
	if repo.saves != 0 {
		t.Errorf("synthetic quote persisted %d times, want 0", repo.saves)
	}
	if len(rec.observed) != 2 || rec.observed[0] != domain.QuoteSynthetic {
		t.Errorf("observed = %v, want two synthetic observations", rec.observed)
	}
}

func TestAdapterStoredQuoteNotPersistedAgain(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := newMockRepo()
	repo.quotes["ETH"] = domain.Quote{Ticker: "ETH", Price: decimal.NewFromInt(3100), FetchedAt: now.Add(-time.Hour)}

	down := &stubStrategy{name: "down", err: errors.New("unreachable")}
	stored := NewStoredQuotes(repo, 2*time.Hour, func() time.Time { return now })

	a := NewAdapter([]Strategy{down, stored}, AdapterConfig{Store: repo, Clock: func() time.Time { return now }})
	q := a.GetPrice(context.Background(), "Ethereum")
	if q.Provider != "stored" {
		t.Errorf("provider = %q, want stored", q.Provider)
	}
	if !q.Price.Equal(decimal.NewFromInt(3100)) {
		t.Errorf("price = %s, want 3100", q.Price)
	}
	if repo.saves != 0 {
		t.Errorf("stored quote written back %d times, want 0", repo.saves)
	}
}

func TestAdapterPersistFailureStillReturnsQuote(t *testing.T) {
	repo := newMockRepo()
	repo.err = errors.New("db down")
	live := &stubStrategy{name: "live", price: decimal.NewFromInt(150)}

	a := NewAdapter([]Strategy{live}, AdapterConfig{Store: repo})
	q := a.GetPrice(context.Background(), "Solana")
	if q.Source != domain.QuoteLive || !q.Price.Equal(decimal.NewFromInt(150)) {
		t.Errorf("quote = %+v, want live 150", q)
	}
}

func TestAdapterAvailableIsCached(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	live := &stubStrategy{name: "live", err: errors.New("down")}
	repo := newMockRepo()
	repo.quotes["BTC"] = domain.Quote{Ticker: "BTC", Price: decimal.NewFromInt(1), FetchedAt: clock.now}
	stored := NewStoredQuotes(repo, time.Hour, clock.Now)

	a := NewAdapter([]Strategy{live, stored}, AdapterConfig{
		AvailabilityTTL: time.Minute,
		Clock:           clock.Now,
	})

	if a.Available(context.Background()) {
		t.Error("Available() = true, want false when only stored quotes answer")
	}
	live.err = nil
	live.price = decimal.NewFromInt(50000)

	if a.Available(context.Background()) {
		t.Error("Available() should be cached within the availability window")
	}
	clock.Advance(time.Minute)
	if !a.Available(context.Background()) {
		t.Error("Available() = false after window, want true")
	}
}

func TestFetchAndStoreQuotes(t *testing.T) {
	repo := newMockRepo()
	live := &stubStrategy{name: "live", price: decimal.NewFromInt(10)}

	a := NewAdapter([]Strategy{live}, AdapterConfig{Store: repo})
	if err := a.FetchAndStoreQuotes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.quotes) != len(domain.KnownTickers()) {
		t.Errorf("stored %d quotes, want %d", len(repo.quotes), len(domain.KnownTickers()))
	}
}

func TestFetchAndStoreQuotesReportsFailures(t *testing.T) {
	repo := newMockRepo()
	live := &stubStrategy{name: "live", err: errors.New("down")}

	a := NewAdapter([]Strategy{live}, AdapterConfig{Store: repo})
	if err := a.FetchAndStoreQuotes(context.Background()); err == nil {
		t.Error("expected error when no ticker could be priced")
	}
	if repo.saves != 0 {
		t.Errorf("saves = %d, want 0", repo.saves)
	}
}

func TestStoredQuotesStaleness(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := newMockRepo()
	repo.quotes["BTC"] = domain.Quote{Ticker: "BTC", Price: decimal.NewFromInt(50000), FetchedAt: now.Add(-3 * time.Hour)}
	repo.quotes["ETH"] = domain.Quote{Ticker: "ETH", Price: decimal.NewFromInt(3000), FetchedAt: now.Add(-time.Hour)}

	s := NewStoredQuotes(repo, 2*time.Hour, func() time.Time { return now })

	if _, err := s.Attempt(context.Background(), "BTC"); err == nil {
		t.Error("expected stale error for 3h old quote")
	}
	p, err := s.Attempt(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("price = %s, want 3000", p)
	}
	if _, err := s.Attempt(context.Background(), "SOL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAdapterMissSkipsChainWithinWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	failing := &stubStrategy{name: "down", err: errors.New("unknown coin")}
	repo := newMockRepo()

	a := NewAdapter([]Strategy{failing}, AdapterConfig{
		CacheTTL: 10 * time.Second,
		MissTTL:  30 * time.Second,
		Clock:    clock.Now,
		Store:    repo,
	})

	for i := range 5 {
		q := a.GetPrice(context.Background(), "Shiba")
		if q.Source != domain.QuoteSynthetic {
			t.Fatalf("call %d: source = %s, want synthetic", i, q.Source)
		}
	}
	if failing.calls != 1 {
		t.Errorf("strategy called %d times within miss window, want 1", failing.calls)
	}
	if repo.saves != 0 {
		t.Errorf("synthetic quote persisted %d times, want 0", repo.saves)
	}

	clock.Advance(30 * time.Second)
	a.GetPrice(context.Background(), "Shiba")
	if failing.calls != 2 {
		t.Errorf("strategy called %d times after miss window, want 2", failing.calls)
	}
}

func TestAdapterMissNotRecordedOnCancel(t *testing.T) {
	failing := &stubStrategy{name: "down", err: context.Canceled}
	a := NewAdapter([]Strategy{failing}, AdapterConfig{MissTTL: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.GetPrice(ctx, "Bitcoin")
	a.GetPrice(context.Background(), "Bitcoin")
	if failing.calls != 2 {
		t.Errorf("strategy called %d times, want 2", failing.calls)
	}
}

func TestAdapterRefreshClearsMiss(t *testing.T) {
	repo := newMockRepo()
	live := &stubStrategy{name: "live", err: errors.New("down")}
	a := NewAdapter([]Strategy{live}, AdapterConfig{
		CacheTTL: time.Minute,
		MissTTL:  time.Minute,
		Store:    repo,
	})

	if q := a.GetPrice(context.Background(), "Bitcoin"); q.Source != domain.QuoteSynthetic {
		t.Fatalf("source = %s, want synthetic", q.Source)
	}

	live.err = nil
	live.price = decimal.NewFromInt(60000)
	if err := a.FetchAndStoreQuotes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q := a.GetPrice(context.Background(), "Bitcoin")
	if q.Source != domain.QuoteLive || !q.Price.Equal(decimal.NewFromInt(60000)) {
		t.Errorf("quote = %s %s, want live 60000", q.Source, q.Price)
	}
}

type batchStrategy struct {
	stubStrategy
	prices  map[string]decimal.Decimal
	err     error
	batches int
}

func (b *batchStrategy) FetchPrices(_ context.Context) (map[string]decimal.Decimal, error) {
	b.batches++
	return b.prices, b.err
}

func TestFetchAndStoreQuotesUsesBatch(t *testing.T) {
	tickers := domain.KnownTickers()
	prices := make(map[string]decimal.Decimal)
	for _, ticker := range tickers[1:] {
		prices[ticker] = decimal.NewFromInt(5)
	}
	batch := &batchStrategy{stubStrategy: stubStrategy{name: "batch", err: errors.New("single lookups down")}, prices: prices}
	single := &stubStrategy{name: "single", price: decimal.NewFromInt(7)}
	repo := newMockRepo()

	a := NewAdapter([]Strategy{batch, single}, AdapterConfig{Store: repo})
	if err := a.FetchAndStoreQuotes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if batch.batches != 1 {
		t.Errorf("batch requests = %d, want 1", batch.batches)
	}
	if single.calls != 1 {
		t.Errorf("single lookups = %d, want 1 for the ticker the batch missed", single.calls)
	}
	if got := repo.quotes[tickers[0]]; got.Provider != "single" || !got.Price.Equal(decimal.NewFromInt(7)) {
		t.Errorf("%s = %s from %s, want 7 from single", tickers[0], got.Price, got.Provider)
	}
	if got := repo.quotes[tickers[1]]; got.Provider != "batch" || !got.Price.Equal(decimal.NewFromInt(5)) {
		t.Errorf("%s = %s from %s, want 5 from batch", tickers[1], got.Price, got.Provider)
	}
}

func TestFetchAndStoreQuotesBatchFailureFallsBack(t *testing.T) {
	batch := &batchStrategy{stubStrategy: stubStrategy{name: "batch", price: decimal.NewFromInt(3)}, err: errors.New("rate limited")}
	repo := newMockRepo()

	a := NewAdapter([]Strategy{batch}, AdapterConfig{Store: repo})
	if err := a.FetchAndStoreQuotes(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.calls != len(domain.KnownTickers()) {
		t.Errorf("single lookups = %d, want %d", batch.calls, len(domain.KnownTickers()))
	}
}

func TestAdapterPruneCaches(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	live := &stubStrategy{name: "live", price: decimal.NewFromInt(1)}
	down := &stubStrategy{name: "down", err: errors.New("down")}

	a := NewAdapter([]Strategy{live}, AdapterConfig{CacheTTL: 10 * time.Second, Clock: clock.Now})
	a.GetPrice(context.Background(), "Bitcoin")
	a.GetPrice(context.Background(), "Ethereum")

	if n := a.PruneCaches(); n != 0 {
		t.Errorf("pruned %d fresh entries, want 0", n)
	}
	clock.Advance(10 * time.Second)
	if n := a.PruneCaches(); n != 2 {
		t.Errorf("pruned %d entries, want 2", n)
	}

	b := NewAdapter([]Strategy{down}, AdapterConfig{MissTTL: time.Second, Clock: clock.Now})
	b.GetPrice(context.Background(), "Bitcoin")
	clock.Advance(time.Second)
	if n := b.PruneCaches(); n != 1 {
		t.Errorf("pruned %d misses, want 1", n)
	}
}
