package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFetchPricesAllTickers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Errorf("vs_currencies = %q, want usd", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bitcoin": {"usd": 60000.00},
			"ethereum": {"usd": 3100.50},
			"dogecoin": {"usd": 0.1234}
		}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, 0, 1)
	prices, err := client.FetchPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !prices["BTC"].Equal(decimal.NewFromInt(60000)) {
		t.Errorf("BTC = %s, want 60000", prices["BTC"])
	}
	if !prices["ETH"].Equal(decimal.RequireFromString("3100.5")) {
		t.Errorf("ETH = %s, want 3100.5", prices["ETH"])
	}
	if !prices["DOGE"].Equal(decimal.RequireFromString("0.1234")) {
		t.Errorf("DOGE = %s, want 0.1234", prices["DOGE"])
	}
	if _, ok := prices["SOL"]; ok {
		t.Error("SOL should be absent when CoinGecko omits it")
	}
}

func TestCoinGeckoAttemptSingleTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "solana" {
			t.Errorf("ids = %q, want solana", got)
		}
		w.Write([]byte(`{"solana": {"usd": 142.7}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, 0, 0)
	price, err := client.Attempt(context.Background(), "SOL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("142.7")) {
		t.Errorf("price = %s, want 142.7", price)
	}
}

func TestCoinGeckoAttemptUnsupported(t *testing.T) {
	client := NewCoinGeckoClient("http://unused.invalid", 0, 0)
	_, err := client.Attempt(context.Background(), "XYZ")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestFetchPricesRetryOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin": {"usd": 55000}}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, 10*time.Millisecond, 2)
	prices, err := client.FetchPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if !prices["BTC"].Equal(decimal.NewFromInt(55000)) {
		t.Errorf("BTC = %s, want 55000", prices["BTC"])
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestFetchPricesRateLimitExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, time.Millisecond, 1)
	_, err := client.FetchPrices(context.Background())
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %v, want rate limited", err)
	}
}

func TestFetchPricesContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1 * time.Second)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	client := NewCoinGeckoClient(server.URL, 0, 1)
	_, err := client.FetchPrices(ctx)
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("parseRetryAfter(2) = %s, want 2s", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %s, want 0", got)
	}
}
