package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the side of a trade.
type TransactionType string

const (
	TransactionBuy  TransactionType = "Buy"
	TransactionSell TransactionType = "Sell"
)

// Valid reports whether t is a known trade side.
func (t TransactionType) Valid() bool {
	return t == TransactionBuy || t == TransactionSell
}

// Transaction is a single immutable ledger entry.
type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"userId"`
	Type       TransactionType `json:"type"`
	Asset      string          `json:"coin"`
	Quantity   decimal.Decimal `json:"quantity"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Timestamp  time.Time       `json:"date"`
}

// RawTransaction is a ledger entry as read from the store, before numeric fields are parsed.
type RawTransaction struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Type       string
	Asset      string
	Quantity   string
	TotalPrice string
	Timestamp  time.Time
}

// FormattedTransaction is a transaction prepared for the history table.
type FormattedTransaction struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Asset     string `json:"coin"`
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	Date      string `json:"date"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}
