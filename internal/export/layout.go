package export

const (
	sheetUsers    = "USERS"
	sheetHoldings = "HOLDINGS"
	sheetCoins    = "COINS"
	sheetHistory  = "HISTORY"

	historyDateLayout = "02.01.2006"
)

// buildUsers: Name | Email | Holdings | Total Balance
func buildUsers(r Report) [][]any {
	data := make([][]any, 0, len(r.Users)+2)
	data = append(data, []any{"Name", "Email", "Holdings", "Total Balance"})
	for _, u := range r.Users {
		data = append(data, []any{u.Name, u.Email, u.Holdings, toFloat(u.TotalBalance)})
	}
	data = append(data, []any{"Total", "", "", toFloat(r.TotalBalance)})
	return data
}

// buildHoldings: Email | Coin | Symbol | Quantity | Price | Value | PnL % | Source
func buildHoldings(r Report) [][]any {
	data := make([][]any, 0, len(r.Holdings)+1)
	data = append(data, []any{"Email", "Coin", "Symbol", "Quantity", "Price", "Value", "PnL %", "Source"})
	for _, h := range r.Holdings {
		data = append(data, []any{
			h.Email, h.Coin, h.Symbol,
			toFloat(h.Quantity), toFloat(h.Price), toFloat(h.Value), toFloat(h.PnlPercent),
			string(h.PriceSource),
		})
	}
	return data
}

// buildCoins: Symbol | Holders | Quantity | Value
func buildCoins(r Report) [][]any {
	data := make([][]any, 0, len(r.Coins)+1)
	data = append(data, []any{"Symbol", "Holders", "Quantity", "Value"})
	for _, c := range r.Coins {
		data = append(data, []any{c.Symbol, c.Holders, toFloat(c.Quantity), toFloat(c.Value)})
	}
	return data
}

// buildHistoryRow returns the HISTORY header and the row for r:
// Date | Users | Failed | Total Balance | Top Coin
func buildHistoryRow(r Report) (header, row []any) {
	header = []any{"Date", "Users", "Failed", "Total Balance", "Top Coin"}
	top := ""
	if len(r.Coins) > 0 {
		top = r.Coins[0].Symbol
	}
	row = []any{r.Date.UTC().Format(historyDateLayout), len(r.Users), r.Failed, toFloat(r.TotalBalance), top}
	return header, row
}
