// Package wallet assembles a user's wallet view: holdings valued at current
// prices plus a formatted transaction history.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/cryptopro/internal/cache"
	"github.com/mtlprog/cryptopro/internal/domain"
	"github.com/mtlprog/cryptopro/internal/ledger"
	"github.com/mtlprog/cryptopro/internal/quote"
	"github.com/mtlprog/cryptopro/internal/valuation"
)

// ErrInvalidUser is returned for a missing or malformed user ID.
var ErrInvalidUser = errors.New("invalid user id")

const (
	defaultFanoutLimit = 8
	generationStripes  = 64
)

// Pricer returns a quote for an asset. It must never fail.
type Pricer interface {
	GetPrice(ctx context.Context, asset string) domain.Quote
}

// Recorder observes wallet cache behaviour and data-quality issues.
type Recorder interface {
	ObserveWalletCache(hit bool)
	ObserveDataIssue(field string)
}

// Config holds the tunables of a Service.
type Config struct {
	CacheTTL    time.Duration
	FanoutLimit int
	Clock       cache.Clock
	Recorder    Recorder // optional
}

// Service builds wallet views from the ledger and the price adapter.
type Service struct {
	ledger   ledger.Store
	prices   Pricer
	wallets  *cache.TTL[uuid.UUID, domain.Wallet]
	limit    int
	recorder Recorder
	now      cache.Clock

	// gens[stripe(user)] is bumped by Invalidate. A build only fills the cache
	// if its stripe did not move while it ran, so a wallet read before a trade
	// is never cached after that trade.
	genMu sync.Mutex
	gens  [generationStripes]uint64
	seed  maphash.Seed
}

// NewService creates a new wallet service.
func NewService(store ledger.Store, prices Pricer, cfg Config) *Service {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	limit := cfg.FanoutLimit
	if limit <= 0 {
		limit = defaultFanoutLimit
	}
	return &Service{
		ledger:   store,
		prices:   prices,
		wallets:  cache.New[uuid.UUID, domain.Wallet](cfg.CacheTTL, now),
		limit:    limit,
		recorder: cfg.Recorder,
		now:      now,
		seed:     maphash.MakeSeed(),
	}
}

// ParseUserID parses raw as a user ID, mapping failures to ErrInvalidUser.
func ParseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidUser, raw)
	}
	return id, nil
}

// GetWallet returns the wallet of userID. Results are cached for the configured
// window. Only a ledger failure is returned as an error; price failures are
// masked by synthetic quotes.
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (domain.Wallet, error) {
	if userID == uuid.Nil {
		return domain.Wallet{}, ErrInvalidUser
	}

	if w, ok := s.wallets.Get(userID); ok {
		s.observeCache(true)
		return clone(w), nil
	}
	s.observeCache(false)
	gen := s.generation(userID)

	raw, err := s.ledger.LoadTransactions(ctx, userID)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("loading transactions for %s: %w", userID, err)
	}

	txs, issues := ledger.FromRaw(raw)
	for _, issue := range issues {
		slog.Warn("defaulted malformed ledger field",
			"user", userID, "transaction", issue.TransactionID, "field", issue.Field, "raw", issue.Raw)
		if s.recorder != nil {
			s.recorder.ObserveDataIssue(issue.Field)
		}
	}

	positions := ledger.Aggregate(txs).Displayable()
	holdings := s.valueAll(ctx, positions)

	w := domain.Wallet{
		Holdings:     holdings,
		TotalBalance: valuation.TotalBalance(holdings),
		Transactions: FormatTransactions(txs),
		GeneratedAt:  s.now(),
	}
	s.cacheIfCurrent(userID, gen, w)
	return clone(w), nil
}

// Invalidate drops the cached wallet of userID. Builds already in flight for
// the user will not cache their result.
func (s *Service) Invalidate(userID uuid.UUID) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[s.stripe(userID)]++
	s.wallets.Delete(userID)
}

func (s *Service) stripe(userID uuid.UUID) int {
	return int(maphash.Comparable(s.seed, userID) % generationStripes)
}

func (s *Service) generation(userID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[s.stripe(userID)]
}

func (s *Service) cacheIfCurrent(userID uuid.UUID, gen uint64, w domain.Wallet) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[s.stripe(userID)] != gen {
		slog.Debug("wallet changed during build, not caching", "user", userID)
		return
	}
	s.wallets.Set(userID, w)
}

// valueAll prices every position concurrently and waits for all of them.
// Lookups run detached from request cancellation; the adapter bounds each call.
func (s *Service) valueAll(ctx context.Context, positions []domain.Position) []domain.Holding {
	ctx = context.WithoutCancel(ctx)
	holdings := make([]domain.Holding, len(positions))

	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, pos := range positions {
		g.Go(func() error {
			holdings[i] = s.valueOne(ctx, pos)
			return nil
		})
	}
	_ = g.Wait()

	return holdings
}

func (s *Service) valueOne(ctx context.Context, pos domain.Position) (h domain.Holding) {
	ticker := domain.Ticker(pos.Asset)
	q := domain.Quote{
		Asset:  pos.Asset,
		Ticker: ticker,
		Price:  quote.BasePrice(ticker),
		Source: domain.QuoteSynthetic,
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("valuation failed, showing neutral row", "asset", pos.Asset, "panic", r)
			h = valuation.Neutral(pos, q)
		}
	}()

	q = s.prices.GetPrice(ctx, pos.Asset)
	if err := valuation.Validate(pos); err != nil {
		slog.Warn("invalid position, showing neutral row", "asset", pos.Asset, "error", err)
		return valuation.Neutral(pos, q)
	}
	return valuation.Valuate(pos, q)
}

func (s *Service) observeCache(hit bool) {
	if s.recorder != nil {
		s.recorder.ObserveWalletCache(hit)
	}
}

func clone(w domain.Wallet) domain.Wallet {
	w.Holdings = slices.Clone(w.Holdings)
	w.Transactions = slices.Clone(w.Transactions)
	return w
}

