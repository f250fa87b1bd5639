package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolSnapshot is the persisted form of a Pool.
type PoolSnapshot struct {
	UpdatedAt           time.Time
	Lenders             []LenderPosition
	Terms               LoanTerms
	Finalized           FinalizedTerms
	AmountRemaining     *uint256.Int
	LastObservedBalance *uint256.Int
	Uncredited          *uint256.Int
	Version             int64
	Address             common.Address
	Status              PoolStatus
}

// Snapshot captures the full pool state. The snapshot shares no memory with
// the pool.
func (p *Pool) Snapshot() PoolSnapshot {
	return PoolSnapshot{
		Address:             p.address,
		Terms:               p.terms.Clone(),
		Status:              p.status,
		AmountRemaining:     CloneAmount(p.amountRemaining),
		Lenders:             p.Lenders(),
		Finalized:           p.finalized.clone(),
		LastObservedBalance: CloneAmount(p.lastObservedBalance),
		Uncredited:          CloneAmount(p.uncredited),
		Version:             p.version,
	}
}

// RestorePool rebuilds a pool from a snapshot and checks that the snapshot
// is consistent.
func RestorePool(s PoolSnapshot) (*Pool, error) {
	p, err := NewPool(s.Address, s.Terms)
	if err != nil {
		return nil, err
	}

	p.status = s.Status
	p.amountRemaining = CloneAmount(s.AmountRemaining)
	p.finalized = s.Finalized.clone()
	p.lastObservedBalance = CloneAmount(s.LastObservedBalance)
	p.uncredited = CloneAmount(s.Uncredited)
	p.version = s.Version

	pledged := Zero()
	for _, l := range s.Lenders {
		if l.Contributed == nil || l.Contributed.IsZero() {
			continue
		}
		p.lenders[l.Lender] = &LenderPosition{
			Lender:      l.Lender,
			Contributed: CloneAmount(l.Contributed),
			Claimed:     CloneAmount(l.Claimed),
		}
		pledged.Add(pledged, l.Contributed)
	}

	if p.amountRemaining.Gt(p.terms.RequestedAmount) {
		return nil, fmt.Errorf("corrupt pool snapshot %s: remaining exceeds requested", s.Address.Hex())
	}
	if !pledged.Eq(p.TotalPledged()) {
		return nil, fmt.Errorf("corrupt pool snapshot %s: pledges %s do not match funded %s",
			s.Address.Hex(), pledged.Dec(), p.TotalPledged().Dec())
	}
	if p.finalized.AmountRepaid.Gt(p.finalized.AmountOwed) {
		return nil, fmt.Errorf("corrupt pool snapshot %s: repaid exceeds owed", s.Address.Hex())
	}
	return p, nil
}

// Clone returns a deep copy of the snapshot.
func (s PoolSnapshot) Clone() PoolSnapshot {
	out := s
	out.Terms = s.Terms.Clone()
	out.Finalized = s.Finalized.clone()
	out.AmountRemaining = CloneAmount(s.AmountRemaining)
	out.LastObservedBalance = CloneAmount(s.LastObservedBalance)
	out.Uncredited = CloneAmount(s.Uncredited)
	out.Lenders = make([]LenderPosition, len(s.Lenders))
	for i, l := range s.Lenders {
		out.Lenders[i] = LenderPosition{
			Lender:      l.Lender,
			Contributed: CloneAmount(l.Contributed),
			Claimed:     CloneAmount(l.Claimed),
		}
	}
	return out
}
