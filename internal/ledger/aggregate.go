// Package ledger holds the append-only transaction ledger and folds it into positions.
package ledger

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
)

// Positions maps assets to positions, remembering the order in which assets first appeared.
type Positions struct {
	order []string
	byKey map[string]domain.Position
}

// Get returns the position for asset.
func (p Positions) Get(asset string) (domain.Position, bool) {
	pos, ok := p.byKey[asset]
	return pos, ok
}

// All returns every position, including closed ones, in first-appearance order.
func (p Positions) All() []domain.Position {
	return lo.Map(p.order, func(a string, _ int) domain.Position {
		return p.byKey[a]
	})
}

// Displayable returns positions with a quantity above zero.
func (p Positions) Displayable() []domain.Position {
	return lo.Filter(p.All(), func(pos domain.Position, _ int) bool {
		return pos.Quantity.IsPositive()
	})
}

// Aggregate replays transactions in ledger order. Sells clamp quantity and cost
// basis at zero; transactions with an unknown type are skipped.
func Aggregate(txs []domain.Transaction) Positions {
	p := Positions{byKey: make(map[string]domain.Position)}

	for _, tx := range txs {
		if !tx.Type.Valid() {
			continue
		}
		pos, ok := p.byKey[tx.Asset]
		if !ok {
			pos = domain.Position{Asset: tx.Asset, Quantity: decimal.Zero, CostBasis: decimal.Zero}
			p.order = append(p.order, tx.Asset)
		}

		switch tx.Type {
		case domain.TransactionBuy:
			pos.Quantity = pos.Quantity.Add(tx.Quantity)
			pos.CostBasis = pos.CostBasis.Add(tx.TotalPrice)
		case domain.TransactionSell:
			pos.Quantity = domain.ClampZero(pos.Quantity.Sub(tx.Quantity))
			pos.CostBasis = domain.ClampZero(pos.CostBasis.Sub(tx.TotalPrice))
		}

		p.byKey[tx.Asset] = pos
	}

	return p
}

// DataIssue records a field that was defaulted while reading the ledger.
type DataIssue struct {
	TransactionID string
	Field         string
	Raw           string
}

// FromRaw converts stored rows into transactions. Malformed numeric fields become
// zero and are reported as issues instead of failing the whole ledger.
func FromRaw(raw []domain.RawTransaction) ([]domain.Transaction, []DataIssue) {
	var issues []DataIssue

	txs := lo.Map(raw, func(r domain.RawTransaction, _ int) domain.Transaction {
		qty := domain.ParseDecimal(r.Quantity)
		if qty.Defaulted {
			issues = append(issues, DataIssue{TransactionID: r.ID.String(), Field: "quantity", Raw: r.Quantity})
		}
		total := domain.ParseDecimal(r.TotalPrice)
		if total.Defaulted {
			issues = append(issues, DataIssue{TransactionID: r.ID.String(), Field: "totalPrice", Raw: r.TotalPrice})
		}
		txType := domain.TransactionType(r.Type)
		if !txType.Valid() {
			issues = append(issues, DataIssue{TransactionID: r.ID.String(), Field: "type", Raw: r.Type})
		}
		return domain.Transaction{
			ID:         r.ID,
			UserID:     r.UserID,
			Type:       txType,
			Asset:      r.Asset,
			Quantity:   qty.Value,
			TotalPrice: total.Value,
			Timestamp:  r.Timestamp,
		}
	})

	return txs, issues
}
