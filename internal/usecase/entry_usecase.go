package usecase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/golend/internal/domain"
)

// Entry history pages are smaller than loan listings; every transfer adds
// two rows.
const (
	defaultEntryPage = 20
	maxEntryPage     = 100
)

// EntryUseCase reads the double-entry history behind asset balances.
type EntryUseCase struct {
	accountRepo AccountRepository
	entryRepo   EntryRepository
}

func NewEntryUseCase(accountRepo AccountRepository, entryRepo EntryRepository) *EntryUseCase {
	return &EntryUseCase{accountRepo: accountRepo, entryRepo: entryRepo}
}

// GetEntriesByAccountInput selects one page of an owner's entries in one asset.
type GetEntriesByAccountInput struct {
	Owner  common.Address
	Asset  common.Address
	Limit  int
	Offset int
}

// GetEntriesByAccount returns the newest entries first. An owner that never
// held the asset has no account and gets ErrAccountNotFound.
func (uc *EntryUseCase) GetEntriesByAccount(ctx context.Context, input GetEntriesByAccountInput) ([]*domain.Entry, error) {
	limit, offset := domain.ClampPage(input.Limit, input.Offset, defaultEntryPage, maxEntryPage)

	account, err := uc.accountRepo.GetByOwnerAsset(ctx, input.Owner, input.Asset)
	if err != nil {
		return nil, err
	}
	return uc.entryRepo.GetByAccount(ctx, account.ID, limit, offset)
}

// GetEntriesByTransfer returns the debit and credit written by one transfer.
func (uc *EntryUseCase) GetEntriesByTransfer(ctx context.Context, transferID string) ([]*domain.Entry, error) {
	entries, err := uc.entryRepo.GetByTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, transferID)
	}
	return entries, nil
}
