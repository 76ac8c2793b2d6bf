package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/cryptopro/internal/domain"
)

// Store is the durable, append-only transaction ledger.
type Store interface {
	LoadTransactions(ctx context.Context, userID uuid.UUID) ([]domain.RawTransaction, error)
	RecordTransaction(ctx context.Context, tx domain.Transaction) error
}

// PgStore implements Store with PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL ledger store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// LoadTransactions returns all ledger entries of a user in insertion order.
// Numeric columns are read as text so malformed legacy rows survive the scan.
func (s *PgStore) LoadTransactions(ctx context.Context, userID uuid.UUID) ([]domain.RawTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, coin, quantity::text, total_price::text, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("loading transactions for %s: %w", userID, err)
	}
	defer rows.Close()

	var txs []domain.RawTransaction
	for rows.Next() {
		var tx domain.RawTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Asset, &tx.Quantity, &tx.TotalPrice, &tx.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}

// RecordTransaction appends a single entry to the ledger.
func (s *PgStore) RecordTransaction(ctx context.Context, tx domain.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, coin, quantity, total_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tx.ID, tx.UserID, string(tx.Type), tx.Asset, tx.Quantity, tx.TotalPrice, tx.Timestamp)
	if err != nil {
		return fmt.Errorf("recording %s transaction for %s: %w", tx.Type, tx.UserID, err)
	}
	return nil
}
