// Package export turns wallet snapshots into the admin portfolio report.
package export

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
	"github.com/mtlprog/cryptopro/internal/snapshot"
)

// UserRow summarizes one user's wallet.
type UserRow struct {
	Name         string
	Email        string
	Holdings     int
	TotalBalance decimal.Decimal
}

// HoldingRow is one valued position of one user.
type HoldingRow struct {
	Email       string
	Coin        string
	Symbol      string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Value       decimal.Decimal
	PnlPercent  decimal.Decimal
	PriceSource domain.QuoteSource
}

// CoinRow aggregates one coin across all users.
type CoinRow struct {
	Symbol   string
	Holders  int
	Quantity decimal.Decimal
	Value    decimal.Decimal
}

// Report is the full portfolio report for one date.
type Report struct {
	Date         time.Time
	Users        []UserRow
	Holdings     []HoldingRow
	Coins        []CoinRow
	TotalBalance decimal.Decimal
	Failed       int
}

// SheetWriter writes a report to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, r Report) error
}

// Service builds reports and delegates writing to a SheetWriter.
type Service struct {
	writer SheetWriter
}

// NewService creates a new export Service.
func NewService(writer SheetWriter) *Service {
	return &Service{writer: writer}
}

// Export writes the report for a snapshot run. Implements worker.AfterSnapshotHook.
func (s *Service) Export(ctx context.Context, res snapshot.Result) error {
	if err := s.writer.Write(ctx, BuildReport(res)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// BuildReport flattens a snapshot run into report rows. Users are ordered by
// balance, largest first; coins by total value.
func BuildReport(res snapshot.Result) Report {
	r := Report{Date: res.Date, Failed: res.Failed}

	for _, e := range res.Entries {
		r.Users = append(r.Users, UserRow{
			Name:         e.Name,
			Email:        e.Email,
			Holdings:     len(e.Wallet.Holdings),
			TotalBalance: e.Wallet.TotalBalance,
		})
		for _, h := range e.Wallet.Holdings {
			r.Holdings = append(r.Holdings, HoldingRow{
				Email:       e.Email,
				Coin:        h.Asset,
				Symbol:      h.Symbol,
				Quantity:    h.Quantity,
				Price:       h.CurrentPrice,
				Value:       h.CurrentValue,
				PnlPercent:  h.UnrealizedPnlPercent,
				PriceSource: h.PriceSource,
			})
		}
	}

	slices.SortStableFunc(r.Users, func(a, b UserRow) int {
		return b.TotalBalance.Cmp(a.TotalBalance)
	})

	bySymbol := lo.GroupBy(r.Holdings, func(h HoldingRow) string { return h.Symbol })
	r.Coins = lo.MapToSlice(bySymbol, func(symbol string, rows []HoldingRow) CoinRow {
		return CoinRow{
			Symbol:  symbol,
			Holders: len(lo.UniqBy(rows, func(h HoldingRow) string { return h.Email })),
			Quantity: lo.Reduce(rows, func(acc decimal.Decimal, h HoldingRow, _ int) decimal.Decimal {
				return acc.Add(h.Quantity)
			}, decimal.Zero),
			Value: lo.Reduce(rows, func(acc decimal.Decimal, h HoldingRow, _ int) decimal.Decimal {
				return acc.Add(h.Value)
			}, decimal.Zero),
		}
	})
	slices.SortFunc(r.Coins, func(a, b CoinRow) int {
		if c := b.Value.Cmp(a.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})

	r.TotalBalance = lo.Reduce(r.Users, func(acc decimal.Decimal, u UserRow, _ int) decimal.Decimal {
		return acc.Add(u.TotalBalance)
	}, decimal.Zero)

	return r
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
