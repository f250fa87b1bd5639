package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
)

// ReconciliationUseCase compares pool bookkeeping with custody balances.
type ReconciliationUseCase struct {
	loanRepo    LoanRepository
	poolRepo    PoolRepository
	accountRepo AccountRepository
	ledger      *LedgerUseCase
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	loanRepo LoanRepository,
	poolRepo PoolRepository,
	accountRepo AccountRepository,
	ledgerRepo LedgerRepository,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		loanRepo:    loanRepo,
		poolRepo:    poolRepo,
		accountRepo: accountRepo,
		ledger:      NewLedgerUseCase(ledgerRepo),
	}
}

// PoolReconciliation is the result of reconciling one pool. Expected is
// what custody should hold per the pool's own bookkeeping, Actual is the
// custody balance in the asset book and Dust the rounding residue between
// them.
type PoolReconciliation struct {
	LoanID       uint64
	PoolAddress  common.Address
	Status       domain.PoolStatus
	Expected     *uint256.Int
	Actual       *uint256.Int
	Dust         *uint256.Int
	Uncredited   *uint256.Int // excess received beyond the amount owed
	IsReconciled bool
	LastChecked  time.Time
}

// ReconcilePool checks that the custody account of loan id holds at least
// what the pool ledger accounts for. A shortfall means value left custody
// outside the pool's own operations.
func (uc *ReconciliationUseCase) ReconcilePool(ctx context.Context, id uint64) (*PoolReconciliation, error) {
	snapshot, err := uc.poolRepo.GetByLoanID(ctx, id)
	if err != nil {
		return nil, err
	}

	pool, err := domain.RestorePool(snapshot)
	if err != nil {
		return nil, err
	}

	actual := domain.Zero()
	account, err := uc.accountRepo.GetByOwnerAsset(ctx, pool.Address(), pool.LoanTerms().Asset)
	switch {
	case err == nil:
		actual = domain.CloneAmount(account.Balance)
	case !errors.Is(err, domain.ErrAccountNotFound):
		return nil, err
	}

	expected := pool.ExpectedCustody()
	result := &PoolReconciliation{
		LoanID:       id,
		PoolAddress:  pool.Address(),
		Status:       pool.Status(),
		Expected:     expected,
		Actual:       actual,
		Dust:         domain.Zero(),
		Uncredited:   pool.Uncredited(),
		IsReconciled: !actual.Lt(expected),
		LastChecked:  time.Now().UTC(),
	}
	if result.IsReconciled {
		result.Dust = new(uint256.Int).Sub(actual, expected)
	}

	return result, nil
}

// ReconcileAllPools reconciles every registered pool.
func (uc *ReconciliationUseCase) ReconcileAllPools(ctx context.Context) ([]*PoolReconciliation, error) {
	limit, offset := domain.ValidatePagination(1000, 0)

	var results []*PoolReconciliation
	for {
		loans, err := uc.loanRepo.List(ctx, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, loan := range loans {
			result, err := uc.ReconcilePool(ctx, loan.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile pool %d: %w", loan.ID, err)
			}
			results = append(results, result)
		}

		if len(loans) < limit {
			break
		}
		offset += limit
	}

	return results, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalPools       int
	ReconciledPools  int
	Discrepancies    []*PoolReconciliation
	LedgerConsistent bool
	CheckedAt        time.Time
}

// GenerateReconciliationReport reconciles all pools and checks book consistency.
func (uc *ReconciliationUseCase) GenerateReconciliationReport(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllPools(ctx)
	if err != nil {
		return nil, err
	}

	_, ledgerErr := uc.ledger.CheckConsistency(ctx)
	if ledgerErr != nil && !errors.Is(ledgerErr, ErrInconsistentLedger) {
		return nil, ledgerErr
	}

	report := &ReconciliationReport{
		TotalPools:       len(results),
		Discrepancies:    make([]*PoolReconciliation, 0),
		LedgerConsistent: ledgerErr == nil,
		CheckedAt:        time.Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledPools++
		} else {
			report.Discrepancies = append(report.Discrepancies, result)
		}
	}

	return report, nil
}
