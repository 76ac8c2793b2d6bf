package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// CoinMarketCapClient fetches latest USD quotes from the CoinMarketCap Pro API.
type CoinMarketCapClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewCoinMarketCapClient creates a new CoinMarketCap API client.
func NewCoinMarketCapClient(baseURL, apiKey string) *CoinMarketCapClient {
	return &CoinMarketCapClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *CoinMarketCapClient) Name() string { return "coinmarketcap" }

type cmcResponse struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]struct {
		Quote map[string]struct {
			Price *decimal.Decimal `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// Attempt fetches the USD price of ticker.
func (c *CoinMarketCapClient) Attempt(ctx context.Context, ticker string) (decimal.Decimal, error) {
	if c.apiKey == "" {
		return decimal.Zero, errors.New("CoinMarketCap API key not configured")
	}

	u := fmt.Sprintf("%s/v1/cryptocurrency/quotes/latest?symbol=%s", c.baseURL, url.QueryEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("creating CoinMarketCap request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("CoinMarketCap request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading CoinMarketCap response: %w", err)
	}

	var parsed cmcResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("parsing CoinMarketCap response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("CoinMarketCap HTTP %d: %s", resp.StatusCode, parsed.Status.ErrorMessage)
	}

	coin, ok := parsed.Data[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("CoinMarketCap has no data for %s", ticker)
	}
	usd, ok := coin.Quote["USD"]
	if !ok || usd.Price == nil {
		return decimal.Zero, fmt.Errorf("CoinMarketCap has no USD price for %s", ticker)
	}
	return *usd.Price, nil
}
