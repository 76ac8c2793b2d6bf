package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtlprog/cryptopro/internal/domain"
	"github.com/mtlprog/cryptopro/internal/export"
	"github.com/mtlprog/cryptopro/internal/snapshot"
	"github.com/mtlprog/cryptopro/internal/trade"
	"github.com/mtlprog/cryptopro/internal/user"
	"github.com/mtlprog/cryptopro/internal/wallet"
)

const maxBodyBytes = 4 << 20

// WalletReader returns the wallet view of a user.
type WalletReader interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (domain.Wallet, error)
}

// Trader records buy and sell orders.
type Trader interface {
	Buy(ctx context.Context, userID uuid.UUID, o trade.Order) (trade.Result, error)
	Sell(ctx context.Context, userID uuid.UUID, o trade.Order) (trade.Result, error)
}

// PriceSource quotes coins and reports provider health.
type PriceSource interface {
	GetPrice(ctx context.Context, asset string) domain.Quote
	Available(ctx context.Context) bool
}

// SnapshotReader reads stored daily wallet snapshots.
type SnapshotReader interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]snapshot.Snapshot, error)
	GetLatest(ctx context.Context, userID uuid.UUID) (*snapshot.Snapshot, error)
	GetByDate(ctx context.Context, userID uuid.UUID, date time.Time) (*snapshot.Snapshot, error)
}

// ReportSource values every wallet for the admin report.
type ReportSource interface {
	Collect(ctx context.Context, date time.Time) (snapshot.Result, error)
}

// Handler provides the HTTP endpoints of the wallet backend.
type Handler struct {
	users     *user.Service
	wallets   WalletReader
	trades    Trader
	prices    PriceSource
	snapshots SnapshotReader
	reports   ReportSource
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		users:     d.Users,
		wallets:   d.Wallets,
		trades:    d.Trades,
		prices:    d.Prices,
		snapshots: d.Snapshots,
		reports:   d.Reports,
		now:       time.Now,
	}
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in user.RegisterInput
	if !decodeBody(w, r, &in) {
		return
	}
	if _, err := h.users.Register(r.Context(), in); err != nil {
		writeUserError(w, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "User registered successfully"})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decodeBody(w, r, &in) {
		return
	}
	token, u, err := h.users.Login(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		writeUserError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"token":   token,
		"name":    u.Name,
	})
}

// CheckUserExists handles POST /check-user-exists.
func (h *Handler) CheckUserExists(w http.ResponseWriter, r *http.Request) {
	var in user.CheckInput
	if !decodeBody(w, r, &in) {
		return
	}
	exists, msg, err := h.users.CheckExists(r.Context(), in)
	if err != nil {
		writeUserError(w, "check user exists", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "exists": exists, "message": msg})
}

// GetUser handles GET /user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	u, err := h.users.Get(r.Context(), id.ID)
	if err != nil {
		writeUserError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]string{"name": u.Name, "email": u.Email},
	})
}

// Buy handles POST /buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, domain.TransactionBuy)
}

// Sell handles POST /sell.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, domain.TransactionSell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, side domain.TransactionType) {
	var o trade.Order
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&o); err != nil {
		writeFailure(w, http.StatusBadRequest, "All fields are required and must be valid")
		return
	}
	id, _ := identityFrom(r.Context())

	exec, verb := h.trades.Buy, "purchased"
	if side == domain.TransactionSell {
		exec, verb = h.trades.Sell, "sold"
	}
	res, err := exec(r.Context(), id.ID, o)
	switch {
	case errors.Is(err, trade.ErrInvalidOrder):
		writeFailure(w, http.StatusBadRequest, "All fields are required and must be valid")
		return
	case errors.Is(err, trade.ErrInsufficientQuantity):
		writeFailure(w, http.StatusBadRequest, "Insufficient quantity to sell.")
		return
	case err != nil:
		slog.Error("failed to record trade", "side", side, "user", id.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	tx := res.Transaction
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("Successfully %s %s %s(s) for $%s.", verb, tx.Quantity, tx.Asset, tx.TotalPrice),
		"purchases":   res.Positions,
		"transaction": tx,
	})
}

// GetWallet handles GET /wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	wl, err := h.wallets.GetWallet(r.Context(), id.ID)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidUser) {
			writeFailure(w, http.StatusBadRequest, "Invalid user")
			return
		}
		slog.Error("failed to build wallet", "user", id.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"wallet":       wl.Holdings,
		"totalBalance": wl.TotalBalance,
		"transactions": wl.Transactions,
		"generatedAt":  wl.GeneratedAt,
	})
}

// GetWalletHistory handles GET /wallet/history. With ?date=YYYY-MM-DD it
// returns the snapshot of that day instead of a list.
func (h *Handler) GetWalletHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "Date must be YYYY-MM-DD")
			return
		}
		snap, err := h.snapshots.GetByDate(r.Context(), id.ID, snapshot.UTCDate(date))
		h.writeSnapshot(w, id.ID, snap, err)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), snapshot.DefaultListLimit)

	snaps, err := h.snapshots.List(r.Context(), id.ID, limit)
	if err != nil {
		slog.Error("failed to list wallet snapshots", "user", id.ID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if snaps == nil {
		snaps = []snapshot.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "snapshots": snaps})
}

// GetLatestSnapshot handles GET /wallet/history/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	snap, err := h.snapshots.GetLatest(r.Context(), id.ID)
	h.writeSnapshot(w, id.ID, snap, err)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, userID uuid.UUID, snap *snapshot.Snapshot, err error) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Snapshot not found")
	case err != nil:
		slog.Error("failed to read wallet snapshot", "user", userID, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "snapshot": snap})
	}
}

// GetCryptoPrice handles GET /crypto-price?coin=.
func (h *Handler) GetCryptoPrice(w http.ResponseWriter, r *http.Request) {
	coin := strings.TrimSpace(r.URL.Query().Get("coin"))
	if coin == "" {
		writeFailure(w, http.StatusBadRequest, "Coin parameter is required")
		return
	}
	q := h.prices.GetPrice(r.Context(), coin)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"price":     q.Price,
		"symbol":    q.Ticker,
		"source":    q.Source,
		"provider":  q.Provider,
		"timestamp": q.FetchedAt,
	})
}

// GetIDProof handles GET /get-idproof/{id}.
func (h *Handler) GetIDProof(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "ID proof image not found", http.StatusNotFound)
		return
	}
	img, err := h.users.IDProof(r.Context(), id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			http.Error(w, "ID proof image not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to load ID proof", "user", id, "error", err)
		http.Error(w, "Failed to fetch ID proof image", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img); err != nil {
		slog.Warn("failed to write ID proof", "error", err)
	}
}

// AdminLogin handles POST /api/admin/login.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.users.AdminLogin(r.Context(), strings.TrimSpace(in.Email), in.Password); err != nil {
		writeUserError(w, "admin login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Login successful."})
}

// ListUsers handles GET /admin/users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeFailure(w, http.StatusInternalServerError, "Failed to fetch users")
		return
	}
	if users == nil {
		users = []user.AdminView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

// DeleteUser handles DELETE /admin/users/{email}.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.users.DeleteUser(r.Context(), r.PathValue("email"))
	if err != nil {
		writeUserError(w, "delete user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "User deleted successfully",
		"deletedUser": deleted,
	})
}

// DownloadReport handles GET /admin/report.xlsx.
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	res, err := h.reports.Collect(r.Context(), h.now())
	if err != nil {
		slog.Error("failed to collect wallets for report", "error", err)
		writeFailure(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	body, err := export.RenderXLSX(export.BuildReport(res))
	if err != nil {
		slog.Error("failed to render report", "error", err)
		writeFailure(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	name := fmt.Sprintf("cryptopro-%s.xlsx", res.Date.Format(time.DateOnly))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	if _, err := bytes.NewReader(body).WriteTo(w); err != nil {
		slog.Warn("failed to write report", "error", err)
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	provider := "up"
	if !h.prices.Available(r.Context()) {
		provider = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "priceProvider": provider})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeUserError maps account errors to their status and client message.
func writeUserError(w http.ResponseWriter, op string, err error) {
	var ue *user.Error
	if !errors.As(err, &ue) {
		slog.Error("request failed", "op", op, "error", err)
		writeFailure(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, user.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, user.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	writeFailure(w, status, ue.Message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"success":false,"message":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "message": msg})
}
