// Package metrics exposes Prometheus instrumentation for the wallet backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/cryptopro/internal/domain"
)

// Metrics holds all collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Quotes          *prometheus.CounterVec
	WalletCache     *prometheus.CounterVec
	DataIssues      *prometheus.CounterVec
	Trades          *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SnapshotsSaved  prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Quotes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopro_quotes_total",
			Help: "Quotes served, by provider and live/synthetic source",
		}, []string{"provider", "source"}),

		WalletCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopro_wallet_cache_total",
			Help: "Wallet cache lookups",
		}, []string{"result"}),

		DataIssues: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopro_ledger_data_issues_total",
			Help: "Malformed ledger fields replaced by defaults",
		}, []string{"field"}),

		Trades: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopro_trades_total",
			Help: "Recorded trades",
		}, []string{"type"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cryptopro_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		SnapshotsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "cryptopro_wallet_snapshots_saved_total",
			Help: "Daily wallet snapshots written",
		}),
	}
}

func (m *Metrics) ObserveQuote(provider string, source domain.QuoteSource) {
	m.Quotes.WithLabelValues(provider, string(source)).Inc()
}

func (m *Metrics) ObserveWalletCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.WalletCache.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDataIssue(field string) {
	m.DataIssues.WithLabelValues(field).Inc()
}

func (m *Metrics) ObserveTrade(t domain.TransactionType) {
	m.Trades.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ObserveSnapshots(n int) {
	m.SnapshotsSaved.Add(float64(n))
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
