// Package valuation converts raw on-chain integer amounts into exact decimal
// quantities and reference-currency (USD) values.
package valuation

import (
	"context"
	"math/big"

	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/types"
	"github.com/shopspring/decimal"
)

// ErrPriceNotFound is returned by a PriceSource when it has no price for a
// symbol. The normalizer treats it as a soft miss, any other error is an
// upstream failure.
var ErrPriceNotFound = errors.NewNotFoundError("price", "symbol")

// PriceSource supplies reference-currency prices per asset symbol
type PriceSource interface {
	// Price returns the USD price for a symbol. A missing symbol must be
	// signalled with an error for which IsPriceNotFound is true.
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// IsPriceNotFound reports whether err signals a missing price rather than a
// failed lookup
func IsPriceNotFound(err error) bool {
	return errors.IsCode(err, errors.CodeNotFound)
}

// Valuation is the result of normalizing one raw amount
type Valuation struct {
	// Amount is the exact decimal quantity: raw / 10^decimals
	Amount decimal.Decimal `json:"amount"`
	// Value is Amount multiplied by the reference price
	Value decimal.Decimal `json:"value"`
	// PriceUsed records the price applied, including the documented
	// fallback of 1 when no price was available
	PriceUsed decimal.Decimal `json:"priceUsed"`
	// Warning is set when the price fell back to 1; never a hard failure
	Warning *types.ServiceError `json:"warning,omitempty"`
}

// Normalizer converts raw on-chain amounts to display and USD values using
// exact decimal arithmetic. Raw amounts routinely exceed float64's safe
// integer range, so everything goes through shopspring/decimal.
type Normalizer struct {
	prices PriceSource
}

// NewNormalizer creates a normalizer backed by the given price source
func NewNormalizer(prices PriceSource) *Normalizer {
	return &Normalizer{prices: prices}
}

// Normalize converts a raw integer-string amount with the given token decimals
// into an exact decimal quantity and its USD value. A missing price defaults
// to 1 and is surfaced as a warning on the result; an unparseable amount or
// negative decimals is an InvalidArgument error.
func (n *Normalizer) Normalize(ctx context.Context, raw string, decimals int, symbol string) (*Valuation, error) {
	amount, err := parseRawAmount(raw, decimals)
	if err != nil {
		return nil, err
	}

	price := decimal.NewFromInt(1)
	var warning *types.ServiceError

	got, err := n.prices.Price(ctx, symbol)
	switch {
	case err == nil:
		price = got
	case IsPriceNotFound(err):
		warning = errors.PriceUnavailableWarning(symbol)
	default:
		// Lookup failed outright; still fall back rather than abort the
		// surrounding batch, but record the miss.
		warning = errors.PriceUnavailableWarning(symbol)
	}

	return &Valuation{
		Amount:    amount,
		Value:     amount.Mul(price),
		PriceUsed: price,
		Warning:   warning,
	}, nil
}

// NormalizeAmount converts a raw integer-string amount without pricing it.
// Used where only the display quantity is needed.
func (n *Normalizer) NormalizeAmount(raw string, decimals int) (decimal.Decimal, error) {
	return parseRawAmount(raw, decimals)
}

// parseRawAmount validates and shifts a raw decimal-integer string
func parseRawAmount(raw string, decimals int) (decimal.Decimal, error) {
	if decimals < 0 {
		return decimal.Zero, errors.NewInvalidArgumentError("decimals", "must be non-negative")
	}
	if raw == "" {
		return decimal.Zero, errors.NewInvalidArgumentError("rawAmount", "must not be empty")
	}

	units, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero, errors.NewInvalidArgumentError("rawAmount", "not a decimal integer")
	}
	if units.Sign() < 0 {
		return decimal.Zero, errors.NewInvalidArgumentError("rawAmount", "must be non-negative")
	}

	// Exact shift: raw * 10^-decimals
	return decimal.NewFromBigInt(units, 0).Shift(int32(-decimals)), nil
}
