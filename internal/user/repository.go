package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/cryptopro/internal/domain"
)

// Lookup names a unique user attribute.
type Lookup string

const (
	ByEmail         Lookup = "email"
	ByContactNumber Lookup = "contact_number"
	ByIDProofNumber Lookup = "id_proof_number"
)

// Repository defines persistent storage for users and admins.
type Repository interface {
	CreateUser(ctx context.Context, u domain.User) error
	FindUser(ctx context.Context, by Lookup, value string) (domain.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	DeleteUser(ctx context.Context, email string) (domain.User, error)
	FindAdmin(ctx context.Context, email string) (domain.Admin, error)
	CreateAdmin(ctx context.Context, a domain.Admin) error
}

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL user repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, name, contact_number, id_proof_number, dob, email, password_hash, id_proof_image, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.ContactNumber, &u.IDProofNumber, &u.DOB,
		&u.Email, &u.PasswordHash, &u.IDProofImage, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (r *PgRepository) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Name, u.ContactNumber, u.IDProofNumber, u.DOB, u.Email, u.PasswordHash, u.IDProofImage, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("creating user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("creating user %s: %w", u.Email, err)
	}
	return nil
}

func (r *PgRepository) FindUser(ctx context.Context, by Lookup, value string) (domain.User, error) {
	var query string
	switch by {
	case ByEmail, ByContactNumber, ByIDProofNumber:
		query = `SELECT ` + userColumns + ` FROM users WHERE ` + string(by) + ` = $1`
	default:
		return domain.User{}, fmt.Errorf("unsupported user lookup %q", by)
	}
	u, err := scanUser(r.pool.QueryRow(ctx, query, value))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.User{}, fmt.Errorf("finding user by %s: %w", by, err)
	}
	return u, err
}

func (r *PgRepository) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.User{}, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, err
}

func (r *PgRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser removes the user and, through the foreign key, their transactions.
func (r *PgRepository) DeleteUser(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`DELETE FROM users WHERE email = $1 RETURNING `+userColumns, email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return domain.User{}, fmt.Errorf("deleting user %s: %w", email, err)
	}
	return u, err
}

func (r *PgRepository) FindAdmin(ctx context.Context, email string) (domain.Admin, error) {
	var a domain.Admin
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM admins WHERE email = $1`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Admin{}, ErrNotFound
		}
		return domain.Admin{}, fmt.Errorf("finding admin %s: %w", email, err)
	}
	return a, nil
}

func (r *PgRepository) CreateAdmin(ctx context.Context, a domain.Admin) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO admins (id, email, password_hash) VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO UPDATE SET password_hash = $3`,
		a.ID, a.Email, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("creating admin %s: %w", a.Email, err)
	}
	return nil
}
