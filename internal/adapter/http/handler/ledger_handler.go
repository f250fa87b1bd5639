package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/iho/golend/internal/adapter/http/dto"
	"github.com/iho/golend/internal/usecase"
)

// ConsistencyChecker checks the asset book.
type ConsistencyChecker interface {
	CheckConsistency(ctx context.Context) (*usecase.ConsistencyReport, error)
}

// Reconciler reconciles pools against their custody accounts.
type Reconciler interface {
	ReconcilePool(ctx context.Context, id uint64) (*usecase.PoolReconciliation, error)
	GenerateReconciliationReport(ctx context.Context) (*usecase.ReconciliationReport, error)
}

// LedgerHandler handles book-wide checks.
type LedgerHandler struct {
	ledgerUC         ConsistencyChecker
	reconciliationUC Reconciler
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerUC ConsistencyChecker, reconciliationUC Reconciler) *LedgerHandler {
	return &LedgerHandler{ledgerUC: ledgerUC, reconciliationUC: reconciliationUC}
}

// CheckConsistency checks if the asset book is consistent.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledgerUC.CheckConsistency(r.Context())
	if err != nil {
		if errors.Is(err, usecase.ErrInconsistentLedger) && report != nil {
			writeJSON(w, http.StatusConflict, dto.ConsistencyFromUseCase(report))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to check consistency", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, dto.ConsistencyFromUseCase(report))
}

// Reconciliation reconciles every pool and the book.
func (h *LedgerHandler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciliationUC.GenerateReconciliationReport(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reconcile", err.Error())
		return
	}

	status := http.StatusOK
	if len(report.Discrepancies) > 0 || !report.LedgerConsistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, dto.ReconciliationReportFromUseCase(report))
}

// ReconcilePool reconciles one pool against its custody account.
func (h *LedgerHandler) ReconcilePool(w http.ResponseWriter, r *http.Request) {
	id, err := loanIDParam(r)
	if err != nil {
		writeDomainError(w, "failed to reconcile pool", err)
		return
	}
	decimals, err := parseDecimals(r)
	if err != nil {
		writeDomainError(w, "invalid query", err)
		return
	}

	rec, err := h.reconciliationUC.ReconcilePool(r.Context(), id)
	if err != nil {
		writeDomainError(w, "failed to reconcile pool", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PoolReconciliationFromUseCase(rec, decimals))
}
