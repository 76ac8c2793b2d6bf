package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/cache"
	"github.com/mtlprog/cryptopro/internal/domain"
)

// ErrNotFound indicates that no stored quote exists for a ticker.
var ErrNotFound = errors.New("quote not found")

// Repository defines persistent storage for the last live quote of each ticker.
type Repository interface {
	SaveQuote(ctx context.Context, q domain.Quote) error
	GetQuote(ctx context.Context, ticker string) (domain.Quote, error)
	GetAllQuotes(ctx context.Context) ([]domain.Quote, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL quote repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) SaveQuote(ctx context.Context, q domain.Quote) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quotes (symbol, price_usd, provider, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (symbol) DO UPDATE SET price_usd = $2, provider = $3, updated_at = $4`,
		q.Ticker, q.Price, q.Provider, q.FetchedAt)
	if err != nil {
		return fmt.Errorf("saving quote for %s: %w", q.Ticker, err)
	}
	return nil
}

func (r *PgRepository) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	q := domain.Quote{Source: domain.QuoteLive}
	err := r.pool.QueryRow(ctx,
		`SELECT symbol, price_usd, provider, updated_at FROM quotes WHERE symbol = $1`,
		ticker).Scan(&q.Ticker, &q.Price, &q.Provider, &q.FetchedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quote{}, ErrNotFound
		}
		return domain.Quote{}, fmt.Errorf("getting quote for %s: %w", ticker, err)
	}
	return q, nil
}

func (r *PgRepository) GetAllQuotes(ctx context.Context) ([]domain.Quote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT symbol, price_usd, provider, updated_at FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("getting all quotes: %w", err)
	}
	defer rows.Close()

	var quotes []domain.Quote
	for rows.Next() {
		q := domain.Quote{Source: domain.QuoteLive}
		if err := rows.Scan(&q.Ticker, &q.Price, &q.Provider, &q.FetchedAt); err != nil {
			return nil, fmt.Errorf("scanning quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// StoredQuotes is a strategy that serves the last persisted live quote while it is fresh enough.
type StoredQuotes struct {
	repo   Repository
	maxAge time.Duration
	now    cache.Clock
}

// NewStoredQuotes creates the stored-quote strategy. A nil clock means time.Now.
func NewStoredQuotes(repo Repository, maxAge time.Duration, now cache.Clock) *StoredQuotes {
	if now == nil {
		now = time.Now
	}
	return &StoredQuotes{repo: repo, maxAge: maxAge, now: now}
}

func (s *StoredQuotes) Name() string { return "stored" }

func (s *StoredQuotes) Attempt(ctx context.Context, ticker string) (decimal.Decimal, error) {
	q, err := s.repo.GetQuote(ctx, ticker)
	if err != nil {
		return decimal.Zero, err
	}
	if age := s.now().Sub(q.FetchedAt); age > s.maxAge {
		return decimal.Zero, fmt.Errorf("stored quote for %s is stale (%s old)", ticker, age.Truncate(time.Second))
	}
	return q.Price, nil
}
