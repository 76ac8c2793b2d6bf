// Package quote resolves USD prices for coins. Live providers are tried in order;
// when all of them fail the adapter substitutes a synthetic price, so callers
// always get a usable quote.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnsupported is returned by a strategy that cannot price the given ticker.
var ErrUnsupported = errors.New("ticker not supported")

// Strategy is one way of obtaining a price.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, ticker string) (decimal.Decimal, error)
}

// AttemptError records why a strategy did not produce a price.
type AttemptError struct {
	Strategy string
	Err      error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e AttemptError) Unwrap() error {
	return e.Err
}

// Result is the outcome of running a list of strategies.
type Result struct {
	Price    decimal.Decimal
	Provider string
	Attempts []AttemptError
}

// FirstSuccess runs strategies in order and stops at the first one that returns a
// positive price. Each attempt is bounded by timeout when timeout > 0. The error
// joins every failed attempt when no strategy succeeded.
func FirstSuccess(ctx context.Context, ticker string, timeout time.Duration, strategies []Strategy) (Result, error) {
	var res Result
	for _, s := range strategies {
		price, err := attempt(ctx, s, ticker, timeout)
		if err == nil && !price.IsPositive() {
			err = fmt.Errorf("non-positive price %s", price)
		}
		if err != nil {
			res.Attempts = append(res.Attempts, AttemptError{Strategy: s.Name(), Err: err})
			continue
		}
		res.Price = price
		res.Provider = s.Name()
		return res, nil
	}

	errs := make([]error, 0, len(res.Attempts)+1)
	errs = append(errs, fmt.Errorf("no price for %s", ticker))
	for _, a := range res.Attempts {
		errs = append(errs, a)
	}
	return res, errors.Join(errs...)
}

func attempt(ctx context.Context, s Strategy, ticker string, timeout time.Duration) (decimal.Decimal, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.Attempt(ctx, ticker)
}
