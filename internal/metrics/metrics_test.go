package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mtlprog/cryptopro/internal/domain"
)

func TestObserveCounters(t *testing.T) {
	m := New()

	m.ObserveQuote("coingecko", domain.QuoteLive)
	m.ObserveQuote("coingecko", domain.QuoteLive)
	m.ObserveQuote("synthetic", domain.QuoteSynthetic)
	m.ObserveWalletCache(true)
	m.ObserveWalletCache(false)
	m.ObserveWalletCache(false)
	m.ObserveDataIssue("quantity")
	m.ObserveTrade(domain.TransactionSell)
	m.ObserveSnapshots(3)

	if got := testutil.ToFloat64(m.Quotes.WithLabelValues("coingecko", "live")); got != 2 {
		t.Errorf("live quotes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Quotes.WithLabelValues("synthetic", "synthetic")); got != 1 {
		t.Errorf("synthetic quotes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WalletCache.WithLabelValues("miss")); got != 2 {
		t.Errorf("cache misses = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.DataIssues.WithLabelValues("quantity")); got != 1 {
		t.Errorf("data issues = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Trades.WithLabelValues("Sell")); got != 1 {
		t.Errorf("sell trades = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SnapshotsSaved); got != 3 {
		t.Errorf("snapshots = %v, want 3", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "/wallet", 200, 15*time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), `cryptopro_http_request_duration_seconds_count{method="GET",route="/wallet",status="200"} 1`) {
		t.Errorf("request histogram missing from output:\n%s", body)
	}
}

func TestNewIsolatedRegistries(t *testing.T) {
	// two instances must not collide on registration
	a, b := New(), New()
	a.ObserveTrade(domain.TransactionBuy)
	if got := testutil.ToFloat64(b.Trades.WithLabelValues("Buy")); got != 0 {
		t.Errorf("registries leak: got %v, want 0", got)
	}
}
