package usecase

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
)

// LoanRepository stores the registry: immutable loan metadata keyed by
// sequential id.
type LoanRepository interface {
	// NextID reserves the next sequential loan identifier inside tx.
	NextID(ctx context.Context, tx Transaction) (uint64, error)
	Create(ctx context.Context, tx Transaction, loan *domain.LoanMetadata) error
	GetByID(ctx context.Context, id uint64) (*domain.LoanMetadata, error)
	List(ctx context.Context, limit, offset int) ([]*domain.LoanMetadata, error)
	ListByRequester(ctx context.Context, requester common.Address, limit, offset int) ([]*domain.LoanMetadata, error)
}

// PoolRepository stores the mutable state of each loan's pool.
type PoolRepository interface {
	Create(ctx context.Context, tx Transaction, loanID uint64, pool domain.PoolSnapshot) error
	GetByLoanID(ctx context.Context, loanID uint64) (domain.PoolSnapshot, error)
	GetByLoanIDForUpdate(ctx context.Context, tx Transaction, loanID uint64) (domain.PoolSnapshot, error)
	// Save persists pool and bumps its version. It fails if the stored
	// version no longer matches pool.Version.
	Save(ctx context.Context, tx Transaction, loanID uint64, pool domain.PoolSnapshot) error
}

// AccountRepository stores one balance per owner and asset.
type AccountRepository interface {
	GetByOwnerAsset(ctx context.Context, owner, asset common.Address) (*domain.Account, error)
	// EnsureForUpdate stores account if no account exists for its
	// owner/asset, then locks and returns the stored account.
	EnsureForUpdate(ctx context.Context, tx Transaction, account *domain.Account) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance *uint256.Int, updatedAt time.Time) error
	ListByOwner(ctx context.Context, owner common.Address) ([]*domain.Account, error)
}

type TransferRepository interface {
	Create(ctx context.Context, tx Transaction, transfer *domain.Transfer) error
	GetByID(ctx context.Context, id string) (*domain.Transfer, error)
}

// EntryRepository stores the debit and credit rows behind each transfer.
type EntryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.Entry) error
	GetByTransfer(ctx context.Context, transferID string) ([]*domain.Entry, error)
	GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error)
}

// LedgerRepository aggregates the asset book per asset.
type LedgerRepository interface {
	AssetTotals(ctx context.Context) ([]domain.AssetTotals, error)
}

// OutboxRepository stores events written in the same transaction as the
// state change they describe.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// Transaction is opaque to use cases; repositories accept only the
// transactions of their own TransactionManager.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier re-runs an operation that failed on a transient storage conflict.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator issues ids for accounts, transfers, entries and events.
type IDGenerator interface {
	Generate() string
}

// Cache is a byte cache for loan metadata. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore backs Idempotency-Key handling on write endpoints.
type IdempotencyStore interface {
	// CheckAndSet claims key with response unless it is already claimed,
	// in which case it returns true and the stored value.
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update replaces a claim with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Release drops a key whose request did not complete.
	Release(ctx context.Context, key string) error
}
