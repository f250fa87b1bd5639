package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Transfer represents a movement of one asset between two owners.
type Transfer struct {
	CreatedAt time.Time
	Metadata  map[string]any
	ID        string
	Asset     common.Address
	From      common.Address
	To        common.Address
	Amount    *uint256.Int
}

// Validate validates transfer request.
func (t *Transfer) Validate() error {
	if t.Asset == (common.Address{}) {
		return fmt.Errorf("%w: asset is required", ErrInvalidAddress)
	}

	if t.From == t.To {
		return ErrSameAccount
	}

	if t.Amount == nil || t.Amount.IsZero() {
		return ErrInvalidAmount
	}

	return nil
}
