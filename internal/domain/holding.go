package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the derived quantity and cost basis of one asset.
type Position struct {
	Asset     string          `json:"coin"`
	Quantity  decimal.Decimal `json:"quantity"`
	CostBasis decimal.Decimal `json:"totalPrice"`
}

// QuoteSource tells whether a quote came from a market-data provider or was synthesized.
type QuoteSource string

const (
	QuoteLive      QuoteSource = "live"
	QuoteSynthetic QuoteSource = "synthetic"
)

// Quote is a single price observation in USD.
type Quote struct {
	Asset     string          `json:"coin"`
	Ticker    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Source    QuoteSource     `json:"source"`
	Provider  string          `json:"provider,omitempty"`
	FetchedAt time.Time       `json:"timestamp"`
}

// PnlClass classifies an unrealized profit/loss for display.
type PnlClass string

const (
	PnlGain    PnlClass = "gain"
	PnlLoss    PnlClass = "loss"
	PnlNeutral PnlClass = "neutral"
)

// Holding is the valuation-enriched view of a position. Values are rounded for display.
type Holding struct {
	Asset                string          `json:"coin"`
	Symbol               string          `json:"symbol"`
	Quantity             decimal.Decimal `json:"quantity"`
	AverageCostBasis     decimal.Decimal `json:"purchasePrice"`
	CurrentPrice         decimal.Decimal `json:"currentPrice"`
	CurrentValue         decimal.Decimal `json:"totalPrice"`
	UnrealizedPnlPercent decimal.Decimal `json:"changeValue"`
	ProfitLoss           decimal.Decimal `json:"profitLoss"`
	PnlClass             PnlClass        `json:"changeClass"`
	PriceSource          QuoteSource     `json:"priceSource"`
}

// Wallet is the assembled wallet view of one user.
type Wallet struct {
	Holdings     []Holding              `json:"holdings"`
	TotalBalance decimal.Decimal        `json:"totalBalance"`
	Transactions []FormattedTransaction `json:"transactions"`
	GeneratedAt  time.Time              `json:"generatedAt"`
}
