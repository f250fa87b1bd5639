package domain

import (
	"github.com/holiman/uint256"
)

// FillRatio returns principal/requested as a WAD fraction, floored.
// A zero request yields zero.
func FillRatio(principal, requested *uint256.Int) *uint256.Int {
	if requested == nil || requested.IsZero() || principal == nil {
		return Zero()
	}
	ratio, _ := mulDiv(principal, WAD, requested)
	if ratio.Gt(WAD) {
		return CloneAmount(WAD)
	}
	return ratio
}

// InterestRate interpolates the annual rate inversely with the fill ratio:
// a fully funded loan pays rateMin, an almost empty one approaches rateMax.
//
//	rate = rateMax - fillRatio * (rateMax - rateMin)
//
// The subtracted term is floored, so the result never undercuts the exact
// value.
func InterestRate(fillRatio, rateMin, rateMax *uint256.Int) *uint256.Int {
	if rateMax.Lt(rateMin) {
		return CloneAmount(rateMin)
	}
	spread := new(uint256.Int).Sub(rateMax, rateMin)
	discount, _ := mulDiv(fillRatio, spread, WAD)
	if discount.Gt(spread) {
		discount.Set(spread)
	}
	return new(uint256.Int).Sub(rateMax, discount)
}

// InterestAmount pro-rates an annual WAD rate over periodDays:
//
//	interest = floor(principal * rate * periodDays / (365 * WAD))
//
// The boolean is false when the result does not fit in 256 bits.
func InterestAmount(principal, rate *uint256.Int, periodDays uint64) (*uint256.Int, bool) {
	if principal.IsZero() || rate.IsZero() || periodDays == 0 {
		return Zero(), true
	}

	ratePeriod, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(periodDays))
	if overflow {
		return nil, false
	}
	denominator := new(uint256.Int).Mul(uint256.NewInt(DaysPerYear), WAD)

	interest, overflow := mulDiv(principal, ratePeriod, denominator)
	if overflow {
		return nil, false
	}
	return interest, true
}

// ProRataShare returns floor(contributed * repaid / principal), the part of
// the repaid amount a lender is entitled to. Zero principal yields zero.
func ProRataShare(contributed, repaid, principal *uint256.Int) *uint256.Int {
	if principal == nil || principal.IsZero() {
		return Zero()
	}
	share, overflow := mulDiv(contributed, repaid, principal)
	if overflow {
		// contributed <= principal, so the share is bounded by repaid.
		return CloneAmount(repaid)
	}
	return share
}
