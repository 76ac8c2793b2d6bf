package domain

import (
	"slices"
	"strings"
)

// tickers maps display names of supported coins to exchange tickers.
var tickers = map[string]string{
	"Bitcoin":  "BTC",
	"Ethereum": "ETH",
	"Dogecoin": "DOGE",
	"Ripple":   "XRP",
	"Cardano":  "ADA",
	"Solana":   "SOL",
	"Polkadot": "DOT",
	"Litecoin": "LTC",
}

// KnownTickers returns the tickers of all supported coins.
func KnownTickers() []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Ticker maps a coin name such as "Bitcoin" to its ticker. Known tickers map to
// themselves; unknown names fall back to their first three letters upper-cased.
func Ticker(name string) string {
	name = strings.TrimSpace(name)
	if t, ok := tickers[name]; ok {
		return t
	}
	upper := strings.ToUpper(name)
	for _, t := range tickers {
		if t == upper {
			return t
		}
	}
	runes := []rune(upper)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes)
}

// IsKnownCoin reports whether name is a supported coin name or ticker.
func IsKnownCoin(name string) bool {
	name = strings.TrimSpace(name)
	if _, ok := tickers[name]; ok {
		return true
	}
	upper := strings.ToUpper(name)
	for _, t := range tickers {
		if t == upper {
			return true
		}
	}
	return false
}
