package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// CoinGeckoIDs maps tickers to CoinGecko coin IDs.
var CoinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"DOGE": "dogecoin",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"SOL":  "solana",
	"DOT":  "polkadot",
	"LTC":  "litecoin",
}

// CoinGeckoClient fetches prices from the CoinGecko API.
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	delay      time.Duration
	maxRetries int
}

// NewCoinGeckoClient creates a new CoinGecko API client.
func NewCoinGeckoClient(baseURL string, delay time.Duration, maxRetries int) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		delay:      delay,
		maxRetries: maxRetries,
	}
}

func (c *CoinGeckoClient) Name() string { return "coingecko" }

// Attempt fetches the USD price of a single ticker.
func (c *CoinGeckoClient) Attempt(ctx context.Context, ticker string) (decimal.Decimal, error) {
	id, ok := CoinGeckoIDs[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko %s: %w", ticker, ErrUnsupported)
	}

	prices, err := c.fetch(ctx, []string{id})
	if err != nil {
		return decimal.Zero, err
	}
	p, ok := prices[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("CoinGecko has no USD price for %s", ticker)
	}
	return p, nil
}

// FetchPrices fetches USD prices for all known tickers in one request.
// Returns a map of ticker -> price.
func (c *CoinGeckoClient) FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	ids := lo.Uniq(lo.Values(CoinGeckoIDs))
	slices.Sort(ids)

	prices, err := c.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal)
	for ticker, id := range CoinGeckoIDs {
		if p, ok := prices[id]; ok {
			result[ticker] = p
		}
	}
	return result, nil
}

func (c *CoinGeckoClient) fetch(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, strings.Join(ids, ","))

	body, err := c.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	// Parse: {"bitcoin":{"usd":45000},"ethereum":{"usd":2500},...}
	var raw map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing CoinGecko response: %w", err)
	}

	result := make(map[string]decimal.Decimal, len(raw))
	for id, quotes := range raw {
		if usd, ok := quotes["usd"]; ok {
			result[id] = usd
		}
	}
	return result, nil
}

func (c *CoinGeckoClient) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	var retryAfter time.Duration
	for attempt := range c.maxRetries + 1 {
		if attempt > 0 {
			delay := retryAfter
			if delay == 0 {
				baseDelay := c.delay
				if baseDelay == 0 {
					baseDelay = time.Second
				}
				delay = baseDelay * time.Duration(1<<uint(attempt-1))
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating CoinGecko request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("CoinGecko request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading CoinGecko response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = fmt.Errorf("CoinGecko rate limited (attempt %d/%d)", attempt+1, c.maxRetries+1)
			continue
		}

		return nil, fmt.Errorf("CoinGecko HTTP %d: %s", resp.StatusCode, string(body))
	}

	return nil, lastErr
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
