package domain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// WAD is the fixed-point denominator used for rates and ratios (1e18).
var WAD = uint256.NewInt(1_000_000_000_000_000_000)

// DaysPerYear is the day count used to pro-rate annual interest.
const DaysPerYear = 365

// MaxDecimals caps the number of fractional digits an asset may declare.
const MaxDecimals = 36

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// Amount builds an amount from a uint64 literal.
func Amount(v uint64) *uint256.Int { return uint256.NewInt(v) }

// CloneAmount returns a copy of a, treating nil as zero.
func CloneAmount(a *uint256.Int) *uint256.Int {
	if a == nil {
		return Zero()
	}
	return new(uint256.Int).Set(a)
}

// ParseAmount parses a base-unit decimal string ("1500000").
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a base-unit integer", ErrInvalidAmount, s)
	}
	return v, nil
}

// ToDecimal converts a base-unit amount to a human-readable decimal with
// the given number of fractional digits (formatUnits).
func ToDecimal(a *uint256.Int, decimals int32) decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a.ToBig(), -decimals)
}

// FromDecimal converts a human-readable decimal to base units (parseUnits).
// Digits beyond the asset precision are truncated.
func FromDecimal(d decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: unsupported decimals %d", ErrInvalidAmount, decimals)
	}
	if d.IsNegative() {
		return nil, ErrInvalidAmount
	}

	scaled := d.Shift(decimals).Truncate(0)
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s overflows 256 bits", ErrInvalidAmount, d.String())
	}
	return v, nil
}

// mulDiv returns floor(x*y/d) using a 512-bit intermediate product. The
// boolean reports whether the quotient overflowed 256 bits. A zero divisor
// yields zero.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, bool) {
	return new(uint256.Int).MulDivOverflow(x, y, d)
}
