package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Account holds one owner's balance of one asset in the asset book.
//
// Issuer accounts represent the asset's outstanding supply: debiting an
// issuer mints (its balance grows by what it hands out) and crediting it
// burns. Every other account holds a plain non-negative balance.
type Account struct {
	ID        string
	Owner     common.Address
	Asset     common.Address
	Balance   *uint256.Int
	Version   int64
	Issuer    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount returns an empty account for owner/asset.
func NewAccount(id string, owner, asset common.Address, now time.Time) *Account {
	return &Account{
		ID:        id,
		Owner:     owner,
		Asset:     asset,
		Balance:   Zero(),
		Issuer:    owner == asset,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateDebit checks if account can be debited by amount.
func (a *Account) ValidateDebit(amount *uint256.Int) error {
	if a.Issuer {
		if _, overflow := new(uint256.Int).AddOverflow(a.Balance, amount); overflow {
			return ErrInvalidAmount
		}
		return nil
	}
	if a.Balance.Lt(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// ValidateCredit checks if account can be credited by amount.
func (a *Account) ValidateCredit(amount *uint256.Int) error {
	if a.Issuer {
		if a.Balance.Lt(amount) {
			return ErrInsufficientFunds
		}
		return nil
	}
	if _, overflow := new(uint256.Int).AddOverflow(a.Balance, amount); overflow {
		return ErrInvalidAmount
	}
	return nil
}

// ApplyDebit returns new balance after debit.
func (a *Account) ApplyDebit(amount *uint256.Int) *uint256.Int {
	if a.Issuer {
		return new(uint256.Int).Add(a.Balance, amount)
	}
	return new(uint256.Int).Sub(a.Balance, amount)
}

// ApplyCredit returns new balance after credit.
func (a *Account) ApplyCredit(amount *uint256.Int) *uint256.Int {
	if a.Issuer {
		return new(uint256.Int).Sub(a.Balance, amount)
	}
	return new(uint256.Int).Add(a.Balance, amount)
}
