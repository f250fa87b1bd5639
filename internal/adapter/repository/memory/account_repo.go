package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

// GetByOwnerAsset retrieves the account of owner for asset.
func (r *AccountRepository) GetByOwnerAsset(_ context.Context, owner, asset common.Address) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.accountIndex[accountKey{owner: owner, asset: asset}]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(r.store.accounts[id]), nil
}

// EnsureForUpdate returns the existing owner/asset account or stores account.
func (r *AccountRepository) EnsureForUpdate(_ context.Context, tx usecase.Transaction, account *domain.Account) (*domain.Account, error) {
	t, err := r.store.tx(tx)
	if err != nil {
		return nil, err
	}

	key := accountKey{owner: account.Owner, asset: account.Asset}
	if id, ok := r.store.accountIndex[key]; ok {
		return cloneAccount(r.store.accounts[id]), nil
	}

	stored := cloneAccount(account)
	r.store.accounts[stored.ID] = stored
	r.store.accountIndex[key] = stored.ID
	t.record(func() {
		delete(r.store.accounts, stored.ID)
		delete(r.store.accountIndex, key)
	})
	return cloneAccount(stored), nil
}

// UpdateBalance sets the balance and bumps the account version.
func (r *AccountRepository) UpdateBalance(_ context.Context, tx usecase.Transaction, id string, balance *uint256.Int, updatedAt time.Time) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	account, ok := r.store.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}

	previous := *account
	account.Balance = domain.CloneAmount(balance)
	account.Version++
	account.UpdatedAt = updatedAt
	t.record(func() { *account = previous })
	return nil
}

// ListByOwner lists owner's accounts ordered by asset.
func (r *AccountRepository) ListByOwner(_ context.Context, owner common.Address) ([]*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Account
	for key, id := range r.store.accountIndex {
		if key.owner == owner {
			out = append(out, cloneAccount(r.store.accounts[id]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset.Cmp(out[j].Asset) < 0 })
	return out, nil
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Balance = domain.CloneAmount(a.Balance)
	return &c
}
