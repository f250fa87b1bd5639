package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/adapter/http/dto"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// PoolService defines the behavior needed by PoolHandler.
type PoolService interface {
	Fund(ctx context.Context, loanID uint64, lender common.Address, amount *uint256.Int) (*usecase.PoolResult, error)
	Withdraw(ctx context.Context, loanID uint64, lender common.Address, amount *uint256.Int) (*usecase.PoolResult, error)
	Finalize(ctx context.Context, loanID uint64, caller common.Address) (*usecase.PoolResult, error)
	Release(ctx context.Context, loanID uint64, caller common.Address) (*usecase.PoolResult, error)
	AcceptPayment(ctx context.Context, loanID uint64) (*usecase.PoolResult, error)
	Claim(ctx context.Context, loanID uint64, lender common.Address) (*usecase.PoolResult, error)
	GetPool(ctx context.Context, loanID uint64) (*domain.Pool, error)
	LenderInfo(ctx context.Context, loanID uint64, lender common.Address) (domain.LenderInfo, error)
	ClaimableAmount(ctx context.Context, loanID uint64, lender common.Address) (*uint256.Int, error)
}

// PoolHandler handles pool ledger HTTP requests.
type PoolHandler struct {
	poolUC PoolService
}

// NewPoolHandler creates a new PoolHandler.
func NewPoolHandler(poolUC PoolService) *PoolHandler {
	return &PoolHandler{poolUC: poolUC}
}

// Get returns the pool's terms and state.
func (h *PoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, "failed to get pool", err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	pool, err := h.poolUC.GetPool(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get pool", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PoolFromDomain(pool, decimals))
}

// LenderInfo returns one lender's pledge and claimed totals.
func (h *PoolHandler) LenderInfo(w http.ResponseWriter, r *http.Request) {
	id, lender, decimals, ok := h.lenderParams(w, r)
	if !ok {
		return
	}

	info, err := h.poolUC.LenderInfo(r.Context(), id, lender)
	if err != nil {
		writeDomainError(w, "failed to get lender info", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LenderInfoResponse{
		LoanID:        id,
		Lender:        lender.Hex(),
		LendingAmount: dto.NewAmount(info.LendingAmount, decimals),
		ClaimedAmount: dto.NewAmount(info.ClaimedAmount, decimals),
	})
}

// Claimable returns what a lender could claim right now.
func (h *PoolHandler) Claimable(w http.ResponseWriter, r *http.Request) {
	id, lender, decimals, ok := h.lenderParams(w, r)
	if !ok {
		return
	}

	amount, err := h.poolUC.ClaimableAmount(r.Context(), id, lender)
	if err != nil {
		writeDomainError(w, "failed to get claimable amount", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ClaimableResponse{
		LoanID:    id,
		Lender:    lender.Hex(),
		Claimable: dto.NewAmount(amount, decimals),
	})
}

// Fund pledges the request amount from the caller.
func (h *PoolHandler) Fund(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, "failed to fund pool", h.poolUC.Fund)
}

// Withdraw returns part of the caller's pledge.
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, "failed to withdraw from pool", h.poolUC.Withdraw)
}

// Finalize locks in the loan terms. Only the requester may call it.
func (h *PoolHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	h.callerOp(w, r, "failed to finalize pool", h.poolUC.Finalize)
}

// Release transfers the principal to the requester.
func (h *PoolHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.callerOp(w, r, "failed to release funds", h.poolUC.Release)
}

// Claim pays the caller's claimable share.
func (h *PoolHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.callerOp(w, r, "failed to claim", h.poolUC.Claim)
}

// AcceptPayment credits whatever custody received since the last call.
func (h *PoolHandler) AcceptPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := callerFrom(w, r); !ok {
		return
	}
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, "failed to accept payment", err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	res, err := h.poolUC.AcceptPayment(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to accept payment", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PoolResultFromUseCase(res, decimals))
}

type amountFunc func(ctx context.Context, loanID uint64, lender common.Address, amount *uint256.Int) (*usecase.PoolResult, error)

func (h *PoolHandler) amountOp(w http.ResponseWriter, r *http.Request, message string, fn amountFunc) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, message, err)
		return
	}

	var req dto.PoolAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := dto.ParseAmount(req.Amount, req.Decimals)
	if err != nil {
		writeDomainError(w, message, err)
		return
	}

	res, err := fn(r.Context(), id, caller.Address, amount)
	if err != nil {
		writeDomainError(w, message, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PoolResultFromUseCase(res, req.Decimals))
}

type callerFunc func(ctx context.Context, loanID uint64, caller common.Address) (*usecase.PoolResult, error)

func (h *PoolHandler) callerOp(w http.ResponseWriter, r *http.Request, message string, fn callerFunc) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, message, err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	res, err := fn(r.Context(), id, caller.Address)
	if err != nil {
		writeDomainError(w, message, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PoolResultFromUseCase(res, decimals))
}

func (h *PoolHandler) lenderParams(w http.ResponseWriter, r *http.Request) (uint64, common.Address, *int32, bool) {
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, "invalid loan", err)
		return 0, common.Address{}, nil, false
	}
	lender, err := addressParam(r, "address")
	if err != nil {
		writeDomainError(w, "invalid lender", err)
		return 0, common.Address{}, nil, false
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return 0, common.Address{}, nil, false
	}
	return id, lender, decimals, true
}
