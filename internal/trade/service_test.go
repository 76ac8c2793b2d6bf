package trade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
	"github.com/mtlprog/cryptopro/internal/events"
)

type mockLedger struct {
	mu        sync.Mutex
	txs       []domain.RawTransaction
	recordErr error
}

func (m *mockLedger) LoadTransactions(_ context.Context, userID uuid.UUID) ([]domain.RawTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RawTransaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *mockLedger) RecordTransaction(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.txs = append(m.txs, domain.RawTransaction{
		ID: tx.ID, UserID: tx.UserID, Type: string(tx.Type), Asset: tx.Asset,
		Quantity: tx.Quantity.String(), TotalPrice: tx.TotalPrice.String(), Timestamp: tx.Timestamp,
	})
	return nil
}

type mockInvalidator struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (m *mockInvalidator) Invalidate(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
}

type mockPublisher struct {
	mu     sync.Mutex
	events []events.TradeEvent
	err    error
}

func (m *mockPublisher) PublishTrade(_ context.Context, evt events.TradeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockPublisher) Close() {}

var (
	user  = uuid.MustParse("0b8e1c52-5f1a-4d8e-9a57-3c2f4a6b7d10")
	clock = func() time.Time { return time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC) }
)

func order(coin, qty, total string) Order {
	return Order{Coin: coin, Quantity: decimal.RequireFromString(qty), TotalPrice: decimal.RequireFromString(total)}
}

func TestBuyRecordsAndNotifies(t *testing.T) {
	l := &mockLedger{}
	inv := &mockInvalidator{}
	pub := &mockPublisher{}
	s := NewService(l, inv, pub, nil, clock)

	res, err := s.Buy(context.Background(), user, order("Bitcoin", "0.5", "25000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Transaction.Type != domain.TransactionBuy || !res.Transaction.Timestamp.Equal(clock()) {
		t.Errorf("transaction = %+v", res.Transaction)
	}
	if len(l.txs) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(l.txs))
	}
	if len(inv.users) != 1 || inv.users[0] != user {
		t.Errorf("invalidated = %v, want [%s]", inv.users, user)
	}
	if len(pub.events) != 1 || pub.events[0].Symbol != "BTC" {
		t.Errorf("events = %+v", pub.events)
	}
	if len(res.Positions) != 1 || res.Positions[0].Quantity.String() != "0.5" {
		t.Errorf("positions = %+v", res.Positions)
	}
}

func TestInvalidOrders(t *testing.T) {
	tests := []struct {
		name  string
		user  uuid.UUID
		order Order
	}{
		{"empty coin", user, order(" ", "1", "1")},
		{"zero quantity", user, order("Bitcoin", "0", "1")},
		{"negative quantity", user, order("Bitcoin", "-1", "1")},
		{"zero price", user, order("Bitcoin", "1", "0")},
		{"nil user", uuid.Nil, order("Bitcoin", "1", "1")},
		{"total above limit", user, order("Bitcoin", "1", "100000000000000000")},
		{"quantity above limit", user, order("Bitcoin", "1000000000000001", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &mockLedger{}
			s := NewService(l, &mockInvalidator{}, nil, nil, clock)
			if _, err := s.Buy(context.Background(), tt.user, tt.order); !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("Buy error = %v, want ErrInvalidOrder", err)
			}
			if _, err := s.Sell(context.Background(), tt.user, tt.order); !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("Sell error = %v, want ErrInvalidOrder", err)
			}
			if len(l.txs) != 0 {
				t.Errorf("ledger entries = %d, want 0", len(l.txs))
			}
		})
	}
}

func TestOrderAtLimitAccepted(t *testing.T) {
	l := &mockLedger{}
	s := NewService(l, &mockInvalidator{}, nil, nil, clock)

	o := Order{Coin: "Bitcoin", Quantity: MaxOrderQuantity, TotalPrice: MaxOrderTotal}
	if _, err := s.Buy(context.Background(), user, o); err != nil {
		t.Fatalf("Buy at limit error = %v, want nil", err)
	}
	if len(l.txs) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(l.txs))
	}
}

func TestUserLockIsStableAndBounded(t *testing.T) {
	s := NewService(&mockLedger{}, &mockInvalidator{}, nil, nil, clock)

	if s.userLock(user) != s.userLock(user) {
		t.Error("userLock returned different mutexes for the same user")
	}
	seen := make(map[*sync.Mutex]bool)
	for range 1000 {
		seen[s.userLock(uuid.New())] = true
	}
	if len(seen) > lockStripes {
		t.Errorf("distinct locks = %d, want at most %d", len(seen), lockStripes)
	}
}

func TestSellRequiresHolding(t *testing.T) {
	l := &mockLedger{}
	inv := &mockInvalidator{}
	s := NewService(l, inv, nil, nil, clock)

	if _, err := s.Sell(context.Background(), user, order("Ethereum", "1", "3000")); !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("sell without holding error = %v, want ErrInsufficientQuantity", err)
	}
	if _, err := s.Buy(context.Background(), user, order("Ethereum", "2", "6000")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Sell(context.Background(), user, order("Ethereum", "2.5", "7000")); !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("oversell error = %v, want ErrInsufficientQuantity", err)
	}

	res, err := s.Sell(context.Background(), user, order("Ethereum", "2", "7000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Positions) != 0 {
		t.Errorf("positions after full sell = %+v, want none", res.Positions)
	}
	if len(l.txs) != 2 {
		t.Errorf("ledger entries = %d, want 2", len(l.txs))
	}
	if len(inv.users) != 2 {
		t.Errorf("invalidations = %d, want 2 (rejected sells do not invalidate)", len(inv.users))
	}
}

func TestConcurrentSellsCannotOversell(t *testing.T) {
	l := &mockLedger{}
	s := NewService(l, &mockInvalidator{}, nil, nil, clock)
	if _, err := s.Buy(context.Background(), user, order("Solana", "1", "150")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Sell(context.Background(), user, order("Solana", "1", "150")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("successful sells = %d, want 1", succeeded)
	}
}

func TestLedgerFailureIsReturned(t *testing.T) {
	dbErr := errors.New("disk full")
	l := &mockLedger{recordErr: dbErr}
	inv := &mockInvalidator{}
	pub := &mockPublisher{}
	s := NewService(l, inv, pub, nil, clock)

	if _, err := s.Buy(context.Background(), user, order("Bitcoin", "1", "1")); !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped ledger error", err)
	}
	if len(inv.users) != 0 || len(pub.events) != 0 {
		t.Error("failed trade should neither invalidate nor publish")
	}
}

func TestPublishFailureDoesNotFailTrade(t *testing.T) {
	pub := &mockPublisher{err: errors.New("nats down")}
	s := NewService(&mockLedger{}, &mockInvalidator{}, pub, nil, clock)

	if _, err := s.Buy(context.Background(), user, order("Bitcoin", "1", "1")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
