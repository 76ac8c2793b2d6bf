package wallet

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/cryptopro/internal/domain"
)

const (
	// DateLayout renders transaction dates like "Mar 5, 2025, 02:07 PM".
	DateLayout = "Jan 2, 2006, 03:04 PM"

	statusCompleted = "Completed"
)

// usd renders cents as "$1234.56", without thousands separators.
var usd = money.NewFormatter(2, ".", "", "$", "$1")

// FormatTransactions prepares the ledger for the history table, newest first.
// Transactions with equal timestamps keep their ledger order.
func FormatTransactions(txs []domain.Transaction) []domain.FormattedTransaction {
	out := lo.Map(txs, func(tx domain.Transaction, _ int) domain.FormattedTransaction {
		return Format(tx)
	})
	slices.SortStableFunc(out, func(a, b domain.FormattedTransaction) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	return out
}

// Format renders a single transaction.
func Format(tx domain.Transaction) domain.FormattedTransaction {
	symbol := ""
	if domain.IsKnownCoin(tx.Asset) {
		symbol = domain.Ticker(tx.Asset)
	}

	txType := string(tx.Type)
	if txType == "" {
		txType = string(domain.TransactionBuy)
	}

	return domain.FormattedTransaction{
		ID:        tx.ID.String(),
		Type:      txType,
		Asset:     tx.Asset,
		Symbol:    symbol,
		Amount:    strings.TrimSpace(domain.FormatQuantity(tx.Quantity) + " " + symbol),
		Price:     formatPrice(tx.TotalPrice),
		Date:      tx.Timestamp.UTC().Format(DateLayout),
		Timestamp: tx.Timestamp.UnixMilli(),
		Status:    statusCompleted,
	}
}

// formatPrice renders a USD amount. Values outside int64 cents, which only
// legacy ledger rows can hold, are printed without going through money.
func formatPrice(v decimal.Decimal) string {
	rounded := domain.RoundCurrency(v)
	cents := rounded.Shift(2)
	if !cents.BigInt().IsInt64() {
		if rounded.IsNegative() {
			return "-$" + rounded.Neg().StringFixed(2)
		}
		return "$" + rounded.StringFixed(2)
	}
	return usd.Format(cents.IntPart())
}
