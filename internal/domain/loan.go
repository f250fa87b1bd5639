package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LoanTerms are fixed when a loan is created and never change afterwards.
type LoanTerms struct {
	LoanID          uint64
	Requester       common.Address
	Asset           common.Address
	RequestedAmount *uint256.Int
	PeriodDays      uint64
	RateMin         *uint256.Int // WAD-scaled annual rate
	RateMax         *uint256.Int // WAD-scaled annual rate
}

// Validate checks the terms are internally consistent.
func (t LoanTerms) Validate() error {
	if t.Requester == (common.Address{}) {
		return fmt.Errorf("%w: requester is required", ErrInvalidTerms)
	}
	if t.Asset == (common.Address{}) {
		return fmt.Errorf("%w: asset is required", ErrInvalidTerms)
	}
	if t.RequestedAmount == nil || t.RequestedAmount.IsZero() {
		return fmt.Errorf("%w: requested amount must be positive", ErrInvalidTerms)
	}
	if t.PeriodDays == 0 || t.PeriodDays > MaxLoanPeriodDays {
		return fmt.Errorf("%w: period must be between 1 and %d days", ErrInvalidTerms, MaxLoanPeriodDays)
	}
	if t.RateMin == nil || t.RateMax == nil {
		return fmt.Errorf("%w: rate window is required", ErrInvalidTerms)
	}
	if t.RateMin.Gt(t.RateMax) {
		return fmt.Errorf("%w: minimum rate exceeds maximum rate", ErrInvalidTerms)
	}
	if t.RateMax.Gt(MaxInterestRate) {
		return fmt.Errorf("%w: maximum rate exceeds %s", ErrInvalidTerms, MaxInterestRate.Dec())
	}
	return nil
}

// Clone returns a deep copy of the terms.
func (t LoanTerms) Clone() LoanTerms {
	t.RequestedAmount = CloneAmount(t.RequestedAmount)
	t.RateMin = CloneAmount(t.RateMin)
	t.RateMax = CloneAmount(t.RateMax)
	return t
}

// LoanMetadata is the registry's read model of a loan.
type LoanMetadata struct {
	ID              uint64
	Requester       common.Address
	PoolAddress     common.Address
	Headline        string
	Description     string
	Asset           common.Address
	LoanAmount      *uint256.Int
	LoanPeriod      uint64
	InterestRateMin *uint256.Int
	InterestRateMax *uint256.Int
	Timestamp       time.Time
}

// Terms extracts the immutable pool terms from the metadata.
func (m *LoanMetadata) Terms() LoanTerms {
	return LoanTerms{
		LoanID:          m.ID,
		Requester:       m.Requester,
		Asset:           m.Asset,
		RequestedAmount: CloneAmount(m.LoanAmount),
		PeriodDays:      m.LoanPeriod,
		RateMin:         CloneAmount(m.InterestRateMin),
		RateMax:         CloneAmount(m.InterestRateMax),
	}
}
