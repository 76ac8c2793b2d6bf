// Package trade records buy and sell orders in the ledger.
package trade

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
	"github.com/mtlprog/cryptopro/internal/events"
	"github.com/mtlprog/cryptopro/internal/ledger"
)

var (
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInsufficientQuantity = errors.New("insufficient quantity to sell")
)

const lockStripes = 64

// Orders above these bounds are rejected. Totals must stay representable as
// int64 cents when histories are formatted.
var (
	MaxOrderQuantity = decimal.New(1, 15)
	MaxOrderTotal    = decimal.New(1, 15)
)

// Order is a request to buy or sell a coin.
type Order struct {
	Coin       string          `json:"coin"`
	Quantity   decimal.Decimal `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

// Result is a recorded trade together with the user's positions after it.
type Result struct {
	Transaction domain.Transaction
	Positions   []domain.Position
}

// Invalidator drops cached views of a user after their ledger changes.
type Invalidator interface {
	Invalidate(userID uuid.UUID)
}

// Recorder counts recorded trades.
type Recorder interface {
	ObserveTrade(t domain.TransactionType)
}

// Service validates orders and appends them to the ledger.
type Service struct {
	ledger    ledger.Store
	wallets   Invalidator
	publisher events.Publisher
	recorder  Recorder
	now       func() time.Time

	// serializes trades per user so two concurrent sells cannot both pass the
	// quantity check; users share a stripe when their IDs hash together
	locks [lockStripes]sync.Mutex
	seed  maphash.Seed
}

// NewService creates a trade service. publisher and recorder may be nil.
func NewService(store ledger.Store, wallets Invalidator, publisher events.Publisher, recorder Recorder, now func() time.Time) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		ledger:    store,
		wallets:   wallets,
		publisher: publisher,
		recorder:  recorder,
		now:       now,
		seed:      maphash.MakeSeed(),
	}
}

// Buy records a purchase.
func (s *Service) Buy(ctx context.Context, userID uuid.UUID, o Order) (Result, error) {
	return s.execute(ctx, userID, domain.TransactionBuy, o)
}

// Sell records a sale. The user must hold at least the sold quantity.
func (s *Service) Sell(ctx context.Context, userID uuid.UUID, o Order) (Result, error) {
	return s.execute(ctx, userID, domain.TransactionSell, o)
}

func (s *Service) execute(ctx context.Context, userID uuid.UUID, side domain.TransactionType, o Order) (Result, error) {
	o.Coin = strings.TrimSpace(o.Coin)
	if userID == uuid.Nil || o.Coin == "" || !o.Quantity.IsPositive() || !o.TotalPrice.IsPositive() {
		return Result{}, ErrInvalidOrder
	}
	if o.Quantity.GreaterThan(MaxOrderQuantity) || o.TotalPrice.GreaterThan(MaxOrderTotal) {
		return Result{}, fmt.Errorf("%w: quantity or total above %s", ErrInvalidOrder, MaxOrderTotal)
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	positions, err := s.positions(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	if side == domain.TransactionSell {
		held, _ := positions.Get(o.Coin)
		if held.Quantity.LessThan(o.Quantity) {
			return Result{}, fmt.Errorf("%w: have %s %s, selling %s", ErrInsufficientQuantity, held.Quantity, o.Coin, o.Quantity)
		}
	}

	tx := domain.Transaction{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       side,
		Asset:      o.Coin,
		Quantity:   o.Quantity,
		TotalPrice: o.TotalPrice,
		Timestamp:  s.now().UTC(),
	}
	if err := s.ledger.RecordTransaction(ctx, tx); err != nil {
		return Result{}, fmt.Errorf("recording %s of %s: %w", side, o.Coin, err)
	}

	s.wallets.Invalidate(userID)
	if s.recorder != nil {
		s.recorder.ObserveTrade(side)
	}
	if err := s.publisher.PublishTrade(ctx, events.NewTradeEvent(tx)); err != nil {
		slog.Warn("failed to publish trade event", "transaction", tx.ID, "error", err)
	}

	after, err := s.positions(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return Result{Transaction: tx, Positions: after.Displayable()}, nil
}

func (s *Service) positions(ctx context.Context, userID uuid.UUID) (ledger.Positions, error) {
	raw, err := s.ledger.LoadTransactions(ctx, userID)
	if err != nil {
		return ledger.Positions{}, fmt.Errorf("loading transactions for %s: %w", userID, err)
	}
	txs, _ := ledger.FromRaw(raw)
	return ledger.Aggregate(txs), nil
}

func (s *Service) userLock(userID uuid.UUID) *sync.Mutex {
	return &s.locks[maphash.Comparable(s.seed, userID)%lockStripes]
}
