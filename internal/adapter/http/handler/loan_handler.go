package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/golend/internal/adapter/http/dto"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// LoanService defines the behavior needed by LoanHandler.
type LoanService interface {
	CreateLoan(ctx context.Context, input usecase.CreateLoanInput) (*domain.LoanMetadata, error)
	GetLoan(ctx context.Context, id uint64) (*domain.LoanMetadata, error)
	ListLoans(ctx context.Context, limit, offset int) ([]*domain.LoanMetadata, error)
	ListLoansByRequester(ctx context.Context, requester common.Address, limit, offset int) ([]*domain.LoanMetadata, error)
}

// LoanHandler handles registry HTTP requests.
type LoanHandler struct {
	registryUC LoanService
}

// NewLoanHandler creates a new LoanHandler.
func NewLoanHandler(registryUC LoanService) *LoanHandler {
	return &LoanHandler{registryUC: registryUC}
}

// Create registers a loan on behalf of the caller.
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(w, r)
	if !ok {
		return
	}

	var req dto.CreateLoanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToUseCaseInput(caller)
	if err != nil {
		writeDomainError(w, "invalid loan request", err)
		return
	}

	loan, err := h.registryUC.CreateLoan(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create loan", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.LoanFromDomain(loan, req.Decimals))
}

// Get retrieves loan metadata by id.
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, "failed to get loan", err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	loan, err := h.registryUC.GetLoan(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to get loan", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.LoanFromDomain(loan, decimals))
}

// List lists loans by id.
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	loans, err := h.registryUC.ListLoans(r.Context(), parseIntQuery(r, "limit", 50), parseIntQuery(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list loans", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.LoansFromDomain(loans, decimals))
}

// ListByRequester lists the loans of one requester.
func (h *LoanHandler) ListByRequester(w http.ResponseWriter, r *http.Request) {
	requester, err := addressParam(r, "address")
	if err != nil {
		writeDomainError(w, "invalid requester", err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	loans, err := h.registryUC.ListLoansByRequester(r.Context(), requester, parseIntQuery(r, "limit", 50), parseIntQuery(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list loans", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.LoansFromDomain(loans, decimals))
}
