package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// TransferRepository implements usecase.TransferRepository.
type TransferRepository struct {
	store *Store
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(store *Store) *TransferRepository {
	return &TransferRepository{store: store}
}

// Create stores a transfer.
func (r *TransferRepository) Create(_ context.Context, tx usecase.Transaction, transfer *domain.Transfer) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	if _, exists := r.store.transfers[transfer.ID]; exists {
		return fmt.Errorf("transfer %s already exists", transfer.ID)
	}

	r.store.transfers[transfer.ID] = cloneTransfer(transfer)
	t.record(func() { delete(r.store.transfers, transfer.ID) })
	return nil
}

// GetByID retrieves a transfer by ID.
func (r *TransferRepository) GetByID(_ context.Context, id string) (*domain.Transfer, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	transfer, ok := r.store.transfers[id]
	if !ok {
		return nil, domain.ErrTransferNotFound
	}
	return cloneTransfer(transfer), nil
}

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	store *Store
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(store *Store) *EntryRepository {
	return &EntryRepository{store: store}
}

// Create appends an entry.
func (r *EntryRepository) Create(_ context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	t, err := r.store.tx(tx)
	if err != nil {
		return err
	}

	s := r.store
	idx := len(s.entries)
	s.entries = append(s.entries, cloneEntry(entry))
	s.entriesByAccount[entry.AccountID] = append(s.entriesByAccount[entry.AccountID], idx)
	s.entriesByTransfer[entry.TransferID] = append(s.entriesByTransfer[entry.TransferID], idx)

	t.record(func() {
		s.entries = s.entries[:idx]
		s.entriesByAccount[entry.AccountID] = trimLast(s.entriesByAccount[entry.AccountID])
		s.entriesByTransfer[entry.TransferID] = trimLast(s.entriesByTransfer[entry.TransferID])
	})
	return nil
}

// GetByTransfer lists a transfer's entries in posting order.
func (r *EntryRepository) GetByTransfer(_ context.Context, transferID string) ([]*domain.Entry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	idxs := r.store.entriesByTransfer[transferID]
	out := make([]*domain.Entry, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, cloneEntry(r.store.entries[i]))
	}
	return out, nil
}

// GetByAccount lists an account's entries, newest first.
func (r *EntryRepository) GetByAccount(_ context.Context, accountID string, limit, offset int) ([]*domain.Entry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	idxs := r.store.entriesByAccount[accountID]
	newest := make([]int, len(idxs))
	for i, idx := range idxs {
		newest[len(idxs)-1-i] = idx
	}

	selected := page(newest, limit, offset)
	out := make([]*domain.Entry, 0, len(selected))
	for _, i := range selected {
		out = append(out, cloneEntry(r.store.entries[i]))
	}
	return out, nil
}

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	store *Store
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(store *Store) *LedgerRepository {
	return &LedgerRepository{store: store}
}

// AssetTotals aggregates balances and entries per asset, ordered by asset.
func (r *LedgerRepository) AssetTotals(_ context.Context) ([]domain.AssetTotals, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	totals := make(map[common.Address]*domain.AssetTotals)
	get := func(asset common.Address) *domain.AssetTotals {
		t, ok := totals[asset]
		if !ok {
			t = &domain.AssetTotals{
				Asset:        asset,
				IssuerSupply: domain.Zero(),
				HolderTotal:  domain.Zero(),
				DebitTotal:   domain.Zero(),
				CreditTotal:  domain.Zero(),
			}
			totals[asset] = t
		}
		return t
	}

	for _, a := range r.store.accounts {
		t := get(a.Asset)
		if a.Issuer {
			t.IssuerSupply.Add(t.IssuerSupply, a.Balance)
		} else {
			t.HolderTotal.Add(t.HolderTotal, a.Balance)
		}
	}

	for _, e := range r.store.entries {
		account, ok := r.store.accounts[e.AccountID]
		if !ok {
			return nil, fmt.Errorf("entry %s references unknown account %s", e.ID, e.AccountID)
		}
		t := get(account.Asset)
		if e.Direction == domain.EntryDebit {
			t.DebitTotal.Add(t.DebitTotal, e.Amount)
		} else {
			t.CreditTotal.Add(t.CreditTotal, e.Amount)
		}
	}

	assets := make([]common.Address, 0, len(totals))
	for asset := range totals {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Cmp(assets[j]) < 0 })

	out := make([]domain.AssetTotals, 0, len(assets))
	for _, asset := range assets {
		out = append(out, *totals[asset])
	}
	return out, nil
}

func trimLast(s []int) []int {
	if len(s) == 0 {
		return s
	}
	return s[:len(s)-1]
}

func cloneTransfer(t *domain.Transfer) *domain.Transfer {
	c := *t
	c.Amount = domain.CloneAmount(t.Amount)
	if t.Metadata != nil {
		c.Metadata = maps.Clone(t.Metadata)
	}
	return &c
}

func cloneEntry(e *domain.Entry) *domain.Entry {
	c := *e
	c.Amount = domain.CloneAmount(e.Amount)
	c.AccountPreviousBalance = domain.CloneAmount(e.AccountPreviousBalance)
	c.AccountCurrentBalance = domain.CloneAmount(e.AccountCurrentBalance)
	return &c
}
