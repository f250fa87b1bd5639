package usecase

import "time"

// DefaultTransactionTimeout bounds every ledger transaction; pool rows stay
// locked until it commits or rolls back.
const DefaultTransactionTimeout = 10 * time.Second

// DefaultLoanCacheTTL applies when the registry is given a cache but no TTL.
const DefaultLoanCacheTTL = 10 * time.Minute

// Pool operation names, shared by logs, metrics and outbox events.
const (
	OpFund          = "fund"
	OpWithdraw      = "withdraw"
	OpFinalize      = "finalize"
	OpRelease       = "release"
	OpAcceptPayment = "accept_payment"
	OpClaim         = "claim"
)
