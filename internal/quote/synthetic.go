package quote

import (
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
)

const syntheticVariance = 0.05

var basePrices = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(50000),
	"ETH":  decimal.NewFromInt(3000),
	"DOGE": decimal.RequireFromString("0.25"),
	"XRP":  decimal.RequireFromString("1.2"),
	"ADA":  decimal.RequireFromString("2.5"),
	"SOL":  decimal.NewFromInt(150),
	"DOT":  decimal.NewFromInt(30),
	"LTC":  decimal.NewFromInt(180),
}

var defaultBasePrice = decimal.NewFromInt(100)

// BasePrice returns the reference price used for synthetic quotes.
func BasePrice(ticker string) decimal.Decimal {
	if p, ok := basePrices[ticker]; ok {
		return p
	}
	return defaultBasePrice
}

// Synthesizer produces plausible fallback prices: the base price perturbed by up to ±5%.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer creates a Synthesizer. A nil source uses a time-seeded one.
func NewSynthesizer(src rand.Source) *Synthesizer {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Synthesizer{rng: rand.New(src)}
}

// Price returns a synthetic price for ticker.
func (s *Synthesizer) Price(ticker string) decimal.Decimal {
	s.mu.Lock()
	noise := s.rng.Float64()*2 - 1
	s.mu.Unlock()

	factor := decimal.NewFromFloat(1 + syntheticVariance*noise)
	return BasePrice(ticker).Mul(factor)
}
