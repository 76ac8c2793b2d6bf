// Package events publishes trade notifications to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
)

const subjectPrefix = "cryptopro.trades"

// TradeEvent is published after a trade is recorded in the ledger.
type TradeEvent struct {
	TransactionID uuid.UUID              `json:"transactionId"`
	UserID        uuid.UUID              `json:"userId"`
	Type          domain.TransactionType `json:"type"`
	Coin          string                 `json:"coin"`
	Symbol        string                 `json:"symbol"`
	Quantity      decimal.Decimal        `json:"quantity"`
	TotalPrice    decimal.Decimal        `json:"totalPrice"`
	Timestamp     time.Time              `json:"timestamp"`
}

// NewTradeEvent builds the event for a recorded transaction.
func NewTradeEvent(tx domain.Transaction) TradeEvent {
	return TradeEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Type:          tx.Type,
		Coin:          tx.Asset,
		Symbol:        domain.Ticker(tx.Asset),
		Quantity:      tx.Quantity,
		TotalPrice:    tx.TotalPrice,
		Timestamp:     tx.Timestamp,
	}
}

// Subject returns the NATS subject for a user's trades: cryptopro.trades.<userID>.
func Subject(userID uuid.UUID) string {
	return subjectPrefix + "." + userID.String()
}

// Publisher delivers trade events.
type Publisher interface {
	PublishTrade(ctx context.Context, evt TradeEvent) error
	Close()
}

// Nop discards every event. Used when NATS_URL is unset.
type Nop struct{}

func (Nop) PublishTrade(context.Context, TradeEvent) error { return nil }
func (Nop) Close()                                         {}

// NATSPublisher publishes events on a core NATS connection.
type NATSPublisher struct {
	nc *nats.Conn
}

// Connect dials NATS at url.
func Connect(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("cryptopro"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) PublishTrade(_ context.Context, evt TradeEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling trade event: %w", err)
	}
	if err := p.nc.Publish(Subject(evt.UserID), data); err != nil {
		return fmt.Errorf("publishing trade event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
