// Package snapshot stores a daily valuation of every user's wallet.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/cryptopro/internal/domain"
)

const (
	DefaultListLimit = 30
	MaxListLimit     = 365
)

// UserLister enumerates registered users.
type UserLister interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// WalletSource computes a user's wallet.
type WalletSource interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (domain.Wallet, error)
}

// Recorder counts stored snapshots.
type Recorder interface {
	ObserveSnapshots(n int)
}

// Entry is one user's wallet as captured by a generation run.
type Entry struct {
	UserID uuid.UUID
	Name   string
	Email  string
	Wallet domain.Wallet
}

// Result is the outcome of a generation run.
type Result struct {
	Date    time.Time
	Entries []Entry
	Failed  int
}

// Service manages snapshot generation and retrieval.
type Service struct {
	users    UserLister
	wallets  WalletSource
	repo     Repository
	recorder Recorder
}

// NewService creates a new snapshot Service. The recorder is optional.
func NewService(users UserLister, wallets WalletSource, repo Repository, recorders ...Recorder) *Service {
	var recorder Recorder
	if len(recorders) > 0 {
		recorder = recorders[0]
	}
	return &Service{users: users, wallets: wallets, repo: repo, recorder: recorder}
}

// Collect values every user's wallet without storing anything. A failure for
// one user is logged and counted; it does not stop the run.
func (s *Service) Collect(ctx context.Context, date time.Time) (Result, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("listing users: %w", err)
	}

	res := Result{Date: date}
	for _, u := range users {
		w, err := s.wallets.GetWallet(ctx, u.ID)
		if err != nil {
			slog.Warn("snapshot: wallet unavailable", "user", u.ID, "error", err)
			res.Failed++
			continue
		}
		res.Entries = append(res.Entries, Entry{UserID: u.ID, Name: u.Name, Email: u.Email, Wallet: w})
	}
	return res, nil
}

// Generate collects every wallet and stores it under date.
func (s *Service) Generate(ctx context.Context, date time.Time) (Result, error) {
	res, err := s.Collect(ctx, date)
	if err != nil {
		return Result{}, err
	}
	total := len(res.Entries) + res.Failed

	stored := res.Entries[:0]
	for _, e := range res.Entries {
		data, err := json.Marshal(e.Wallet)
		if err != nil {
			return Result{}, fmt.Errorf("marshaling wallet of %s: %w", e.UserID, err)
		}
		if err := s.repo.Save(ctx, e.UserID, date, e.Wallet.TotalBalance, data); err != nil {
			slog.Warn("snapshot: save failed", "user", e.UserID, "error", err)
			res.Failed++
			continue
		}
		stored = append(stored, e)
	}
	res.Entries = stored

	if s.recorder != nil {
		s.recorder.ObserveSnapshots(len(res.Entries))
	}
	if total > 0 && len(res.Entries) == 0 {
		return res, fmt.Errorf("no snapshot stored for %d users", total)
	}
	return res, nil
}

// GetLatest retrieves the most recent snapshot of a user.
func (s *Service) GetLatest(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	return s.repo.GetLatest(ctx, userID)
}

// GetByDate retrieves a user's snapshot for the UTC day containing date.
func (s *Service) GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, userID, UTCDate(date))
}

// List retrieves recent snapshots, newest first. limit is clamped to [1, MaxListLimit].
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]Snapshot, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo.List(ctx, userID, limit)
}

// UTCDate returns t truncated to midnight UTC.
func UTCDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
