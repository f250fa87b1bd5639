package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
)

// assetBook posts double-entry transfers inside a transaction owned by the
// caller. Both the asset use case and pool custody go through it.
type assetBook struct {
	accountRepo  AccountRepository
	transferRepo TransferRepository
	entryRepo    EntryRepository
	idGen        IDGenerator
}

func newAssetBook(
	accountRepo AccountRepository,
	transferRepo TransferRepository,
	entryRepo EntryRepository,
	idGen IDGenerator,
) *assetBook {
	return &assetBook{
		accountRepo:  accountRepo,
		transferRepo: transferRepo,
		entryRepo:    entryRepo,
		idGen:        idGen,
	}
}

// post moves transfer.Amount of transfer.Asset from transfer.From to
// transfer.To, writing one transfer row, a debit and a credit entry.
func (b *assetBook) post(ctx context.Context, tx Transaction, transfer *domain.Transfer) error {
	if err := transfer.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()

	// Lock accounts in address order (DEADLOCK PREVENTION)
	owners := []common.Address{transfer.From, transfer.To}
	if owners[0].Cmp(owners[1]) > 0 {
		owners[0], owners[1] = owners[1], owners[0]
	}

	locked := make(map[common.Address]*domain.Account, 2)
	for _, owner := range owners {
		account, err := b.accountRepo.EnsureForUpdate(ctx, tx, domain.NewAccount(b.idGen.Generate(), owner, transfer.Asset, now))
		if err != nil {
			return err
		}
		locked[owner] = account
	}

	from := locked[transfer.From]
	to := locked[transfer.To]

	if err := from.ValidateDebit(transfer.Amount); err != nil {
		return err
	}
	if err := to.ValidateCredit(transfer.Amount); err != nil {
		return err
	}

	transfer.ID = b.idGen.Generate()
	transfer.CreatedAt = now

	if err := b.transferRepo.Create(ctx, tx, transfer); err != nil {
		return err
	}

	if err := b.apply(ctx, tx, from, transfer, domain.EntryDebit, from.ApplyDebit(transfer.Amount), now); err != nil {
		return err
	}

	return b.apply(ctx, tx, to, transfer, domain.EntryCredit, to.ApplyCredit(transfer.Amount), now)
}

func (b *assetBook) apply(
	ctx context.Context,
	tx Transaction,
	account *domain.Account,
	transfer *domain.Transfer,
	direction domain.EntryDirection,
	newBalance *uint256.Int,
	now time.Time,
) error {
	entry := &domain.Entry{
		ID:                     b.idGen.Generate(),
		AccountID:              account.ID,
		TransferID:             transfer.ID,
		Direction:              direction,
		Amount:                 domain.CloneAmount(transfer.Amount),
		AccountPreviousBalance: domain.CloneAmount(account.Balance),
		AccountCurrentBalance:  newBalance,
		AccountVersion:         account.Version + 1,
		CreatedAt:              now,
	}

	if err := b.entryRepo.Create(ctx, tx, entry); err != nil {
		return err
	}

	if err := b.accountRepo.UpdateBalance(ctx, tx, account.ID, newBalance, now); err != nil {
		return err
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = now
	return nil
}

// balance reads owner's balance of asset inside tx, opening the account if
// it does not exist yet.
func (b *assetBook) balance(ctx context.Context, tx Transaction, owner, asset common.Address) (*uint256.Int, error) {
	account, err := b.accountRepo.EnsureForUpdate(ctx, tx, domain.NewAccount(b.idGen.Generate(), owner, asset, time.Now().UTC()))
	if err != nil {
		return nil, err
	}
	return domain.CloneAmount(account.Balance), nil
}
