package dto

import (
	"fmt"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// CreateLoanRequest represents a request to create a loan. The caller
// becomes the requester.
type CreateLoanRequest struct {
	Headline        string `json:"headline"`
	Description     string `json:"description"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
	Decimals        *int32 `json:"decimals,omitempty"`
	PeriodDays      uint64 `json:"period_days"`
	InterestRateMin string `json:"interest_rate_min"`
	InterestRateMax string `json:"interest_rate_max"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateLoanRequest) ToUseCaseInput(caller domain.Caller) (usecase.CreateLoanInput, error) {
	asset, err := domain.ParseAddress(r.Asset)
	if err != nil {
		return usecase.CreateLoanInput{}, err
	}
	amount, err := ParseAmount(r.Amount, r.Decimals)
	if err != nil {
		return usecase.CreateLoanInput{}, err
	}
	rateMin, err := ParseRate(r.InterestRateMin)
	if err != nil {
		return usecase.CreateLoanInput{}, err
	}
	rateMax, err := ParseRate(r.InterestRateMax)
	if err != nil {
		return usecase.CreateLoanInput{}, err
	}

	return usecase.CreateLoanInput{
		Requester:       caller.Address,
		Headline:        r.Headline,
		Description:     r.Description,
		Asset:           asset,
		Amount:          amount,
		PeriodDays:      r.PeriodDays,
		InterestRateMin: rateMin,
		InterestRateMax: rateMax,
	}, nil
}

// PoolAmountRequest carries the amount of a fund or withdraw call.
type PoolAmountRequest struct {
	Amount   string `json:"amount"`
	Decimals *int32 `json:"decimals,omitempty"`
}

// DepositRequest represents a request to mint an asset to an owner.
type DepositRequest struct {
	Owner    string `json:"owner"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
	Decimals *int32 `json:"decimals,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *DepositRequest) ToUseCaseInput() (usecase.DepositInput, error) {
	owner, err := domain.ParseAddress(r.Owner)
	if err != nil {
		return usecase.DepositInput{}, err
	}
	asset, err := domain.ParseAddress(r.Asset)
	if err != nil {
		return usecase.DepositInput{}, err
	}
	if owner == asset {
		return usecase.DepositInput{}, fmt.Errorf("%w: cannot deposit to the issuer account", domain.ErrSameAccount)
	}
	amount, err := ParseAmount(r.Amount, r.Decimals)
	if err != nil {
		return usecase.DepositInput{}, err
	}
	return usecase.DepositInput{Owner: owner, Asset: asset, Amount: amount}, nil
}

// TransferRequest represents a request to move an asset from the caller.
type TransferRequest struct {
	To       string         `json:"to"`
	Asset    string         `json:"asset"`
	Amount   string         `json:"amount"`
	Decimals *int32         `json:"decimals,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToUseCaseInput converts to use case input.
func (r *TransferRequest) ToUseCaseInput(caller domain.Caller) (usecase.CreateTransferInput, error) {
	to, err := domain.ParseAddress(r.To)
	if err != nil {
		return usecase.CreateTransferInput{}, err
	}
	asset, err := domain.ParseAddress(r.Asset)
	if err != nil {
		return usecase.CreateTransferInput{}, err
	}
	amount, err := ParseAmount(r.Amount, r.Decimals)
	if err != nil {
		return usecase.CreateTransferInput{}, err
	}
	return usecase.CreateTransferInput{
		Metadata: r.Metadata,
		Asset:    asset,
		From:     caller.Address,
		To:       to,
		Amount:   amount,
	}, nil
}
