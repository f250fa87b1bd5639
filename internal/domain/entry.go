package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// EntryDirection tells whether an entry takes value out of or puts value
// into its account.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "debit"
	EntryCredit EntryDirection = "credit"
)

// Entry represents a single ledger entry (debit or credit).
type Entry struct {
	CreatedAt              time.Time
	ID                     string
	AccountID              string
	TransferID             string
	Direction              EntryDirection
	Amount                 *uint256.Int
	AccountPreviousBalance *uint256.Int
	AccountCurrentBalance  *uint256.Int
	AccountVersion         int64
}
