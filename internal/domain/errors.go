package domain

import "errors"

var (
	// Pool ledger errors
	ErrInsufficientCapacity = errors.New("amount exceeds remaining funding capacity")
	ErrInsufficientPledge   = errors.New("amount exceeds pledged contribution")
	ErrInvalidState         = errors.New("operation not allowed in current pool status")
	ErrAlreadyFinalized     = errors.New("loan terms already finalized")
	ErrNoFundsPledged       = errors.New("no funds pledged")
	ErrNothingToClaim       = errors.New("nothing to claim")
	ErrUnauthorized         = errors.New("caller is not authorized for this operation")
	ErrTransferFailed       = errors.New("asset transfer failed")

	// Registry errors
	ErrLoanNotFound    = errors.New("loan not found")
	ErrPoolNotFound    = errors.New("pool not found")
	ErrInvalidTerms    = errors.New("invalid loan terms")
	ErrVersionConflict = errors.New("pool was modified concurrently")

	// Asset book errors
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSameAccount       = errors.New("cannot transfer to same account")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrTransferNotFound  = errors.New("transfer not found")
)
