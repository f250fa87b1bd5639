// Package memory keeps every repository in process memory. It backs the
// development server and tests; nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// ErrForeignTransaction is returned when a repository receives a
// transaction that was not started by its store.
var ErrForeignTransaction = errors.New("transaction does not belong to this store")

type accountKey struct {
	owner common.Address
	asset common.Address
}

type poolRecord struct {
	loanID   uint64
	snapshot domain.PoolSnapshot
}

// Store holds all tables. A transaction holds the write lock from Begin
// until Commit or Rollback, so transactions run one at a time and see their
// own writes; plain reads take the read lock.
type Store struct {
	mu sync.RWMutex

	nextLoanID uint64
	loans      []*domain.LoanMetadata
	pools      map[uint64]*poolRecord

	accounts     map[string]*domain.Account
	accountIndex map[accountKey]string

	transfers         map[string]*domain.Transfer
	entries           []*domain.Entry
	entriesByAccount  map[string][]int
	entriesByTransfer map[string][]int

	outbox      []*domain.OutboxEvent
	outboxIndex map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		pools:             make(map[uint64]*poolRecord),
		accounts:          make(map[string]*domain.Account),
		accountIndex:      make(map[accountKey]string),
		transfers:         make(map[string]*domain.Transfer),
		entriesByAccount:  make(map[string][]int),
		entriesByTransfer: make(map[string][]int),
		outboxIndex:       make(map[string]int),
	}
}

// Tx is an in-memory transaction. Writes apply immediately and are undone
// in reverse order on rollback.
type Tx struct {
	store *Store
	undo  []func()
	done  bool
}

func (t *Tx) record(undo func()) {
	t.undo = append(t.undo, undo)
}

// Commit keeps all writes and releases the store.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return errors.New("transaction already closed")
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// Rollback reverts all writes and releases the store. It is a no-op after
// Commit.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// TxManager starts transactions on a store.
type TxManager struct {
	store *Store
}

// NewTxManager creates a new TxManager.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Begin locks the store for a new transaction.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.store.mu.Lock()
	return &Tx{store: m.store}, nil
}

func (s *Store) tx(tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, ErrForeignTransaction
	}
	if t.done {
		return nil, errors.New("transaction already closed")
	}
	return t, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
