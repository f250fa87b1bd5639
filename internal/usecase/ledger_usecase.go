package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/golend/internal/domain"
)

var (
	// ErrInconsistentLedger is returned when the asset book is not balanced.
	ErrInconsistentLedger = errors.New("ledger is inconsistent: debits do not equal credits")
)

// LedgerUseCase runs book-wide checks over the asset ledger.
type LedgerUseCase struct {
	ledgerRepo LedgerRepository
}

func NewLedgerUseCase(ledgerRepo LedgerRepository) *LedgerUseCase {
	return &LedgerUseCase{
		ledgerRepo: ledgerRepo,
	}
}

// ConsistencyReport lists per-asset totals. Unbalanced names the assets
// whose totals disagree.
type ConsistencyReport struct {
	Assets     []domain.AssetTotals
	Unbalanced []common.Address
	Consistent bool
	CheckedAt  time.Time
}

// CheckConsistency verifies that, for every asset, the issuer's outstanding
// supply equals what holders hold and debits equal credits. An unbalanced
// book returns the report together with ErrInconsistentLedger.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (*ConsistencyReport, error) {
	totals, err := uc.ledgerRepo.AssetTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("load asset totals: %w", err)
	}

	report := &ConsistencyReport{Assets: totals, CheckedAt: time.Now().UTC()}
	for _, t := range totals {
		if !t.Balanced() {
			report.Unbalanced = append(report.Unbalanced, t.Asset)
		}
	}
	report.Consistent = len(report.Unbalanced) == 0

	if !report.Consistent {
		return report, fmt.Errorf("%w: %d of %d assets", ErrInconsistentLedger, len(report.Unbalanced), len(totals))
	}
	return report, nil
}
