package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolStatus is the lifecycle stage of a pool ledger. It only moves forward.
type PoolStatus uint8

const (
	PoolStatusFunding PoolStatus = iota
	PoolStatusFinalized
	PoolStatusReleased
	PoolStatusRepaid
)

var poolStatusNames = map[PoolStatus]string{
	PoolStatusFunding:   "funding",
	PoolStatusFinalized: "finalized",
	PoolStatusReleased:  "released",
	PoolStatusRepaid:    "repaid",
}

func (s PoolStatus) String() string {
	if name, ok := poolStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParsePoolStatus is the inverse of PoolStatus.String.
func ParsePoolStatus(s string) (PoolStatus, error) {
	for status, name := range poolStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown pool status %q", s)
}

// Custody moves the pool's designated asset in and out of the pool's custody
// account and reports what that account currently holds.
type Custody interface {
	TransferIn(ctx context.Context, from common.Address, amount *uint256.Int) error
	TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error
	Balance(ctx context.Context) (*uint256.Int, error)
}

// LoanState is the pool's state() read model.
type LoanState struct {
	Status          PoolStatus
	AmountRemaining *uint256.Int
}

// FinalizedTerms is the pool's terms() read model. All amounts are zero
// until the pool is finalized.
type FinalizedTerms struct {
	PrincipalAmount *uint256.Int
	InterestRate    *uint256.Int
	InterestAmount  *uint256.Int
	AmountOwed      *uint256.Int
	AmountRepaid    *uint256.Int
}

func (t FinalizedTerms) clone() FinalizedTerms {
	return FinalizedTerms{
		PrincipalAmount: CloneAmount(t.PrincipalAmount),
		InterestRate:    CloneAmount(t.InterestRate),
		InterestAmount:  CloneAmount(t.InterestAmount),
		AmountOwed:      CloneAmount(t.AmountOwed),
		AmountRepaid:    CloneAmount(t.AmountRepaid),
	}
}

// LenderInfo is the pool's lenderInfo() read model.
type LenderInfo struct {
	LendingAmount *uint256.Int
	ClaimedAmount *uint256.Int
}

// LenderPosition is one lender's pledge and claim record.
type LenderPosition struct {
	Lender      common.Address
	Contributed *uint256.Int
	Claimed     *uint256.Int
}

// PaymentReceipt describes what one AcceptPayment call observed.
type PaymentReceipt struct {
	Observed *uint256.Int // balance growth since the previous observation
	Credited *uint256.Int // part of Observed counted as repayment
	Excess   *uint256.Int // part of Observed beyond the amount owed
	Repaid   bool         // the call completed repayment
}

// Pool is the accounting engine of a single loan. It owns the funding,
// finalization, release, repayment and claim bookkeeping.
//
// A Pool is not safe for concurrent use; the host serializes calls. Every
// mutating method validates its preconditions and performs its custody
// transfer before it touches any field, so a failed call leaves the pool
// exactly as it was.
type Pool struct {
	address common.Address
	terms   LoanTerms

	status          PoolStatus
	amountRemaining *uint256.Int
	lenders         map[common.Address]*LenderPosition
	finalized       FinalizedTerms

	lastObservedBalance *uint256.Int
	uncredited          *uint256.Int

	version int64
}

// NewPool creates a pool in Funding status for the given terms.
func NewPool(address common.Address, terms LoanTerms) (*Pool, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: pool address is required", ErrInvalidTerms)
	}

	return &Pool{
		address:             address,
		terms:               terms.Clone(),
		status:              PoolStatusFunding,
		amountRemaining:     CloneAmount(terms.RequestedAmount),
		lenders:             make(map[common.Address]*LenderPosition),
		finalized:           FinalizedTerms{}.clone(),
		lastObservedBalance: Zero(),
		uncredited:          Zero(),
	}, nil
}

// Address is the pool's custody account.
func (p *Pool) Address() common.Address { return p.address }

// LoanTerms returns the immutable terms the pool was created with.
func (p *Pool) LoanTerms() LoanTerms { return p.terms.Clone() }

// Version is the persisted revision the pool was restored from.
func (p *Pool) Version() int64 { return p.version }

// Status returns the current lifecycle stage.
func (p *Pool) Status() PoolStatus { return p.status }

// Fund pledges amount from lender. The amount is pulled into custody.
func (p *Pool) Fund(ctx context.Context, custody Custody, lender common.Address, amount *uint256.Int) error {
	if p.status != PoolStatusFunding {
		return fmt.Errorf("%w: fund requires funding status, pool is %s", ErrInvalidState, p.status)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: %w", ErrInsufficientCapacity, ErrInvalidAmount)
	}
	if amount.Gt(p.amountRemaining) {
		return fmt.Errorf("%w: requested %s, remaining %s", ErrInsufficientCapacity, amount.Dec(), p.amountRemaining.Dec())
	}

	if err := custody.TransferIn(ctx, lender, amount); err != nil {
		return transferError(err)
	}

	pos := p.position(lender)
	pos.Contributed = new(uint256.Int).Add(pos.Contributed, amount)
	p.amountRemaining = new(uint256.Int).Sub(p.amountRemaining, amount)
	return nil
}

// Withdraw returns part or all of a lender's pledge while still funding.
func (p *Pool) Withdraw(ctx context.Context, custody Custody, lender common.Address, amount *uint256.Int) error {
	if p.status != PoolStatusFunding {
		return fmt.Errorf("%w: withdraw requires funding status, pool is %s", ErrInvalidState, p.status)
	}
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: %w", ErrInsufficientPledge, ErrInvalidAmount)
	}
	contributed := p.contributed(lender)
	if amount.Gt(contributed) {
		return fmt.Errorf("%w: requested %s, pledged %s", ErrInsufficientPledge, amount.Dec(), contributed.Dec())
	}

	if err := custody.TransferOut(ctx, lender, amount); err != nil {
		return transferError(err)
	}

	remaining := new(uint256.Int).Sub(contributed, amount)
	if remaining.IsZero() {
		delete(p.lenders, lender)
	} else {
		p.lenders[lender].Contributed = remaining
	}
	p.amountRemaining = new(uint256.Int).Add(p.amountRemaining, amount)
	return nil
}

// FinalizeLoanTerms locks the principal at the amount pledged so far and
// fixes the interest rate from the fill ratio.
func (p *Pool) FinalizeLoanTerms(caller common.Address) error {
	if caller != p.terms.Requester {
		return ErrUnauthorized
	}
	if p.status != PoolStatusFunding {
		return ErrAlreadyFinalized
	}

	principal := new(uint256.Int).Sub(p.terms.RequestedAmount, p.amountRemaining)
	if principal.IsZero() {
		return ErrNoFundsPledged
	}

	rate := InterestRate(FillRatio(principal, p.terms.RequestedAmount), p.terms.RateMin, p.terms.RateMax)
	interest, ok := InterestAmount(principal, rate, p.terms.PeriodDays)
	if !ok {
		return fmt.Errorf("%w: interest overflows", ErrInvalidTerms)
	}
	owed, overflow := new(uint256.Int).AddOverflow(principal, interest)
	if overflow {
		return fmt.Errorf("%w: amount owed overflows", ErrInvalidTerms)
	}

	p.finalized = FinalizedTerms{
		PrincipalAmount: principal,
		InterestRate:    rate,
		InterestAmount:  interest,
		AmountOwed:      owed,
		AmountRepaid:    Zero(),
	}
	p.status = PoolStatusFinalized
	return nil
}

// ReleaseFunds sends the principal to the requester and starts watching the
// custody balance for repayments.
func (p *Pool) ReleaseFunds(ctx context.Context, custody Custody, caller common.Address) error {
	if caller != p.terms.Requester {
		return ErrUnauthorized
	}
	if p.status != PoolStatusFinalized {
		return fmt.Errorf("%w: release requires finalized status, pool is %s", ErrInvalidState, p.status)
	}

	if err := custody.TransferOut(ctx, p.terms.Requester, p.finalized.PrincipalAmount); err != nil {
		return transferError(err)
	}

	balance, err := custody.Balance(ctx)
	if err != nil {
		// The principal has left custody; put it back so the call has no effect.
		if rbErr := custody.TransferIn(ctx, p.terms.Requester, p.finalized.PrincipalAmount); rbErr != nil {
			return transferError(errors.Join(err, rbErr))
		}
		return transferError(err)
	}

	p.lastObservedBalance = balance
	p.status = PoolStatusReleased
	return nil
}

// AcceptPayment credits whatever reached custody since the last observation
// as repayment, up to the amount owed. Anything beyond the amount owed stays
// in custody and is tracked as uncredited.
//
// The balance delta is only meaningful if nothing else moves the custody
// balance between calls; the host serializes calls to guarantee that.
func (p *Pool) AcceptPayment(ctx context.Context, custody Custody) (PaymentReceipt, error) {
	if p.status != PoolStatusReleased {
		return PaymentReceipt{}, fmt.Errorf("%w: accept payment requires released status, pool is %s", ErrInvalidState, p.status)
	}

	balance, err := custody.Balance(ctx)
	if err != nil {
		return PaymentReceipt{}, transferError(err)
	}

	receipt := PaymentReceipt{Observed: Zero(), Credited: Zero(), Excess: Zero()}
	if !balance.Gt(p.lastObservedBalance) {
		return receipt, nil
	}

	receipt.Observed = new(uint256.Int).Sub(balance, p.lastObservedBalance)
	outstanding := new(uint256.Int).Sub(p.finalized.AmountOwed, p.finalized.AmountRepaid)
	if receipt.Observed.Gt(outstanding) {
		receipt.Credited.Set(outstanding)
		receipt.Excess = new(uint256.Int).Sub(receipt.Observed, outstanding)
	} else {
		receipt.Credited.Set(receipt.Observed)
	}

	p.lastObservedBalance = balance
	p.uncredited = new(uint256.Int).Add(p.uncredited, receipt.Excess)
	p.finalized.AmountRepaid = new(uint256.Int).Add(p.finalized.AmountRepaid, receipt.Credited)
	if p.finalized.AmountRepaid.Eq(p.finalized.AmountOwed) {
		p.status = PoolStatusRepaid
		receipt.Repaid = true
	}
	return receipt, nil
}

// GetClaimableAmount returns what lender may claim right now:
// floor(contributed * repaid / principal) - claimed.
func (p *Pool) GetClaimableAmount(lender common.Address) *uint256.Int {
	pos, ok := p.lenders[lender]
	if !ok {
		return Zero()
	}
	entitled := ProRataShare(pos.Contributed, p.finalized.AmountRepaid, p.finalized.PrincipalAmount)
	if !entitled.Gt(pos.Claimed) {
		return Zero()
	}
	return new(uint256.Int).Sub(entitled, pos.Claimed)
}

// Claim pays lender its claimable share of repayments.
func (p *Pool) Claim(ctx context.Context, custody Custody, lender common.Address) (*uint256.Int, error) {
	amount := p.GetClaimableAmount(lender)
	if amount.IsZero() {
		return nil, ErrNothingToClaim
	}

	if err := custody.TransferOut(ctx, lender, amount); err != nil {
		return nil, transferError(err)
	}

	pos := p.lenders[lender]
	pos.Claimed = new(uint256.Int).Add(pos.Claimed, amount)
	if p.lastObservedBalance.Lt(amount) {
		p.lastObservedBalance = Zero()
	} else {
		p.lastObservedBalance = new(uint256.Int).Sub(p.lastObservedBalance, amount)
	}
	return CloneAmount(amount), nil
}

// Terms returns the finalized terms read model.
func (p *Pool) Terms() FinalizedTerms { return p.finalized.clone() }

// State returns the status and remaining funding capacity.
func (p *Pool) State() LoanState {
	return LoanState{Status: p.status, AmountRemaining: CloneAmount(p.amountRemaining)}
}

// LenderInfo returns lender's pledge and claimed totals.
func (p *Pool) LenderInfo(lender common.Address) LenderInfo {
	pos, ok := p.lenders[lender]
	if !ok {
		return LenderInfo{LendingAmount: Zero(), ClaimedAmount: Zero()}
	}
	return LenderInfo{LendingAmount: CloneAmount(pos.Contributed), ClaimedAmount: CloneAmount(pos.Claimed)}
}

// Lenders returns every lender position ordered by address.
func (p *Pool) Lenders() []LenderPosition {
	out := make([]LenderPosition, 0, len(p.lenders))
	for _, pos := range p.lenders {
		out = append(out, LenderPosition{
			Lender:      pos.Lender,
			Contributed: CloneAmount(pos.Contributed),
			Claimed:     CloneAmount(pos.Claimed),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Lender.Cmp(out[j].Lender) < 0
	})
	return out
}

// TotalPledged is the sum of all contributions.
func (p *Pool) TotalPledged() *uint256.Int {
	return new(uint256.Int).Sub(p.terms.RequestedAmount, p.amountRemaining)
}

// TotalClaimed is the sum of all claims paid out.
func (p *Pool) TotalClaimed() *uint256.Int {
	total := Zero()
	for _, pos := range p.lenders {
		total.Add(total, pos.Claimed)
	}
	return total
}

// Uncredited is the deposit total received beyond the amount owed.
func (p *Pool) Uncredited() *uint256.Int { return CloneAmount(p.uncredited) }

// ExpectedCustody is what the custody account should hold according to the
// pool's own bookkeeping. Rounding dust makes the real balance larger.
func (p *Pool) ExpectedCustody() *uint256.Int {
	switch p.status {
	case PoolStatusFunding, PoolStatusFinalized:
		return p.TotalPledged()
	default:
		held := new(uint256.Int).Sub(p.finalized.AmountRepaid, p.TotalClaimed())
		return held.Add(held, p.uncredited)
	}
}

func (p *Pool) position(lender common.Address) *LenderPosition {
	pos, ok := p.lenders[lender]
	if !ok {
		pos = &LenderPosition{Lender: lender, Contributed: Zero(), Claimed: Zero()}
		p.lenders[lender] = pos
	}
	return pos
}

func (p *Pool) contributed(lender common.Address) *uint256.Int {
	if pos, ok := p.lenders[lender]; ok {
		return pos.Contributed
	}
	return Zero()
}

func transferError(err error) error {
	if errors.Is(err, ErrTransferFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}
