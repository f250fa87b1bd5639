package memory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// LoanRepository implements usecase.LoanRepository.
type LoanRepository struct {
	store *Store
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(store *Store) *LoanRepository {
	return &LoanRepository{store: store}
}

// NextID reserves the next loan id.
func (r *LoanRepository) NextID(_ context.Context, tx usecase.Transaction) (uint64, error) {
	t, err := r.store.tx(tx)
	if err != nil {
		return 0, err
	}

	id := r.store.nextLoanID
	r.store.nextLoanID++
	t.record(func() { r.store.nextLoanID = id })
	return id, nil
}

// Create appends loan. Loan ids must arrive in NextID order.
func (r *LoanRepository) Create(_ context.Context, tx usecase.Transaction, loan *domain.LoanMetadata) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	if loan.ID != uint64(len(r.store.loans)) {
		return fmt.Errorf("loan id %d out of sequence, expected %d", loan.ID, len(r.store.loans))
	}

	r.store.loans = append(r.store.loans, cloneLoan(loan))
	t.record(func() { r.store.loans = r.store.loans[:len(r.store.loans)-1] })
	return nil
}

// GetByID retrieves loan metadata by id.
func (r *LoanRepository) GetByID(_ context.Context, id uint64) (*domain.LoanMetadata, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if id >= uint64(len(r.store.loans)) {
		return nil, domain.ErrLoanNotFound
	}
	return cloneLoan(r.store.loans[id]), nil
}

// List returns loans in creation order.
func (r *LoanRepository) List(_ context.Context, limit, offset int) ([]*domain.LoanMetadata, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return cloneLoans(page(r.store.loans, limit, offset)), nil
}

// ListByRequester returns requester's loans in creation order.
func (r *LoanRepository) ListByRequester(_ context.Context, requester common.Address, limit, offset int) ([]*domain.LoanMetadata, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var matched []*domain.LoanMetadata
	for _, l := range r.store.loans {
		if l.Requester == requester {
			matched = append(matched, l)
		}
	}
	return cloneLoans(page(matched, limit, offset)), nil
}

func cloneLoan(l *domain.LoanMetadata) *domain.LoanMetadata {
	c := *l
	c.LoanAmount = domain.CloneAmount(l.LoanAmount)
	c.InterestRateMin = domain.CloneAmount(l.InterestRateMin)
	c.InterestRateMax = domain.CloneAmount(l.InterestRateMax)
	return &c
}

func cloneLoans(in []*domain.LoanMetadata) []*domain.LoanMetadata {
	out := make([]*domain.LoanMetadata, len(in))
	for i, l := range in {
		out[i] = cloneLoan(l)
	}
	return out
}
