package usecase

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
)

// AccountUseCase handles asset book account lookups.
type AccountUseCase struct {
	accountRepo AccountRepository
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(accountRepo AccountRepository) *AccountUseCase {
	return &AccountUseCase{
		accountRepo: accountRepo,
	}
}

// GetAccount retrieves the account of owner for asset.
func (uc *AccountUseCase) GetAccount(ctx context.Context, owner, asset common.Address) (*domain.Account, error) {
	return uc.accountRepo.GetByOwnerAsset(ctx, owner, asset)
}

// BalanceOf returns owner's balance of asset. Owners without an account
// hold nothing.
func (uc *AccountUseCase) BalanceOf(ctx context.Context, owner, asset common.Address) (*uint256.Int, error) {
	account, err := uc.accountRepo.GetByOwnerAsset(ctx, owner, asset)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.Zero(), nil
	}
	if err != nil {
		return nil, err
	}
	return domain.CloneAmount(account.Balance), nil
}

// ListAccounts lists every asset account of owner.
func (uc *AccountUseCase) ListAccounts(ctx context.Context, owner common.Address) ([]*domain.Account, error) {
	return uc.accountRepo.ListByOwner(ctx, owner)
}
