package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"

	"github.com/mtlprog/cryptopro/internal/user"
)

// MetricsRecorder observes served requests.
type MetricsRecorder interface {
	ObserveRequest(method, route string, status int, d time.Duration)
	Handler() http.Handler
}

// Deps bundles the services behind the HTTP API.
type Deps struct {
	Users       *user.Service
	Wallets     WalletReader
	Trades      Trader
	Prices      PriceSource
	Snapshots   SnapshotReader
	Reports     ReportSource    // optional; enables GET /admin/report.xlsx
	Metrics     MetricsRecorder // optional
	AdminKey    string
	CORSOrigins []string
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, d Deps) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(d),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter builds the route table wrapped in CORS and request metrics.
func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)
	auth := func(fn http.HandlerFunc) http.Handler { return requireAuth(d.Users, fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return requireAdmin(d.AdminKey, fn) }

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /check-user-exists", h.CheckUserExists)
	mux.Handle("POST /buy", auth(h.Buy))
	mux.Handle("POST /sell", auth(h.Sell))
	mux.Handle("GET /wallet", auth(h.GetWallet))
	mux.Handle("GET /wallet/history", auth(h.GetWalletHistory))
	mux.Handle("GET /wallet/history/latest", auth(h.GetLatestSnapshot))
	mux.Handle("GET /user", auth(h.GetUser))
	mux.HandleFunc("GET /crypto-price", h.GetCryptoPrice)
	mux.Handle("GET /get-idproof/{id}", admin(h.GetIDProof))

	mux.HandleFunc("POST /api/admin/login", h.AdminLogin)
	mux.Handle("GET /admin/users", admin(h.ListUsers))
	mux.Handle("DELETE /admin/users/{email}", admin(h.DeleteUser))
	if d.Reports != nil {
		mux.Handle("GET /admin/report.xlsx", admin(h.DownloadReport))
	}

	mux.HandleFunc("GET /health", h.Health)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})

	var handler http.Handler = mux
	if d.Metrics != nil {
		handler = instrument(d.Metrics, mux, handler)
	}
	return cors.Handler(corsOptions(d.CORSOrigins))(handler)
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Admin-Key"},
		MaxAge:         300,
	}
}

type identityKey struct{}

func withIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(user.Identity)
	return id, ok
}

func requireAuth(users *user.Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if !strings.HasPrefix(auth, "Bearer ") || token == "" {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized: No token provided")
			return
		}
		id, err := users.Authenticate(token)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

func requireAdmin(adminKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Admin-Key")
		if key == "" {
			writeFailure(w, http.StatusUnauthorized, "Unauthorized: No Admin-Key provided")
			return
		}
		if adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			writeFailure(w, http.StatusForbidden, "Forbidden: Invalid Admin-Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// instrument records the duration of every request under its route pattern,
// so path values do not blow up label cardinality.
func instrument(m MetricsRecorder, mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		_, route := mux.Handler(r)
		if route == "" || route == "/" {
			route = "unmatched"
		}
		m.ObserveRequest(r.Method, route, sw.status, time.Since(start))
	})
}

func parseLimit(raw string, fallback int) int {
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return n
	}
	return fallback
}
