package dto

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/iho/golend/internal/domain"
)

// Amount is an on-the-wire asset amount. Base is the integer amount in the
// asset's smallest unit; Units is the same amount scaled by the decimals
// the client asked for.
type Amount struct {
	Base  string           `json:"base"`
	Units *decimal.Decimal `json:"units,omitempty"`
}

// NewAmount renders a. decimals may be nil.
func NewAmount(a *uint256.Int, decimals *int32) Amount {
	out := Amount{Base: domain.CloneAmount(a).Dec()}
	if decimals != nil {
		units := domain.ToDecimal(a, *decimals)
		out.Units = &units
	}
	return out
}

// ParseAmount reads a request amount. Without decimals s must be a
// base-unit integer; with decimals it is a human-unit decimal.
func ParseAmount(s string, decimals *int32) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: amount is required", domain.ErrInvalidAmount)
	}
	if decimals == nil {
		return domain.ParseAmount(s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal", domain.ErrInvalidAmount, s)
	}
	return domain.FromDecimal(d, *decimals)
}

// ParseRate reads a WAD-scaled annual rate ("50000000000000000" is 5%).
func ParseRate(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: rate %q is not a base-unit integer", domain.ErrInvalidTerms, s)
	}
	return v, nil
}
