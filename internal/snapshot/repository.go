package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is a stored daily wallet valuation of one user.
type Snapshot struct {
	ID           int64           `json:"id"`
	UserID       uuid.UUID       `json:"userId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
	Data         json.RawMessage `json:"data"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, userID uuid.UUID, date time.Time, total decimal.Decimal, data json.RawMessage) error
	GetLatest(ctx context.Context, userID uuid.UUID) (*Snapshot, error)
	GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Snapshot, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const snapshotColumns = `id, user_id, snapshot_date, total_balance, data, created_at`

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	if err := row.Scan(&s.ID, &s.UserID, &s.SnapshotDate, &s.TotalBalance, &s.Data, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) Save(ctx context.Context, userID uuid.UUID, date time.Time, total decimal.Decimal, data json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wallet_snapshots (user_id, snapshot_date, total_balance, data)
		 VALUES ($1, $2, $3, $4::jsonb)
		 ON CONFLICT (user_id, snapshot_date)
		 DO UPDATE SET total_balance = $3, data = $4::jsonb`,
		userID, date, total, data)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM wallet_snapshots
		 WHERE user_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT 1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return s, nil
}

func (r *PgRepository) GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM wallet_snapshots
		 WHERE user_id = $1 AND snapshot_date = $2`, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return s, nil
}

func (r *PgRepository) List(ctx context.Context, userID uuid.UUID, limit int) ([]Snapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM wallet_snapshots
		 WHERE user_id = $1
		 ORDER BY snapshot_date DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}
