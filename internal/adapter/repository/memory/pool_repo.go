package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// PoolRepository implements usecase.PoolRepository.
type PoolRepository struct {
	store *Store
}

// NewPoolRepository creates a new PoolRepository.
func NewPoolRepository(store *Store) *PoolRepository {
	return &PoolRepository{store: store}
}

// Create stores the initial pool state for loanID.
func (r *PoolRepository) Create(_ context.Context, tx usecase.Transaction, loanID uint64, pool domain.PoolSnapshot) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.pools[loanID]; exists {
		return fmt.Errorf("pool for loan %d already exists", loanID)
	}

	snapshot := pool.Clone()
	snapshot.Version = 1
	snapshot.UpdatedAt = time.Now().UTC()
	r.store.pools[loanID] = &poolRecord{loanID: loanID, snapshot: snapshot}
	t.record(func() { delete(r.store.pools, loanID) })
	return nil
}

// GetByLoanID reads the pool state of loanID.
func (r *PoolRepository) GetByLoanID(_ context.Context, loanID uint64) (domain.PoolSnapshot, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rec, ok := r.store.pools[loanID]
	if !ok {
		return domain.PoolSnapshot{}, domain.ErrPoolNotFound
	}
	return rec.snapshot.Clone(), nil
}

// GetByLoanIDForUpdate reads the pool state inside tx. The transaction
// already holds the store exclusively.
func (r *PoolRepository) GetByLoanIDForUpdate(_ context.Context, tx usecase.Transaction, loanID uint64) (domain.PoolSnapshot, error) {
	if _, err := r.store.tx(tx); err != nil {
		return domain.PoolSnapshot{}, err
	}

	rec, ok := r.store.pools[loanID]
	if !ok {
		return domain.PoolSnapshot{}, domain.ErrPoolNotFound
	}
	return rec.snapshot.Clone(), nil
}

// Save replaces the pool state if pool.Version is still current.
func (r *PoolRepository) Save(_ context.Context, tx usecase.Transaction, loanID uint64, pool domain.PoolSnapshot) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	rec, ok := r.store.pools[loanID]
	if !ok {
		return domain.ErrPoolNotFound
	}
	if rec.snapshot.Version != pool.Version {
		return domain.ErrVersionConflict
	}

	previous := rec.snapshot
	next := pool.Clone()
	next.Version = previous.Version + 1
	next.UpdatedAt = time.Now().UTC()
	rec.snapshot = next
	t.record(func() { rec.snapshot = previous })
	return nil
}
