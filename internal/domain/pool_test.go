package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdc = 1_000_000 // 6 decimals

var (
	poolAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	requester = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	lenderA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	lenderB   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	repayer   = common.HexToAddress("0x00000000000000000000000000000000000000c1")

	rateMin = uint256.NewInt(12_500_000_000_000_000)     // 1.25%
	rateMax = uint256.NewInt(10_250_000_000_000_000_000) // 1025%
)

// fakeCustody is an in-memory asset holder for a single pool.
type fakeCustody struct {
	pool     common.Address
	balances map[common.Address]*uint256.Int

	failIn      bool
	failOut     bool
	failBalance bool
}

func newFakeCustody() *fakeCustody {
	return &fakeCustody{pool: poolAddr, balances: make(map[common.Address]*uint256.Int)}
}

func (c *fakeCustody) balanceOf(owner common.Address) *uint256.Int {
	if b, ok := c.balances[owner]; ok {
		return b
	}
	return Zero()
}

func (c *fakeCustody) mint(owner common.Address, amount uint64) {
	c.balances[owner] = new(uint256.Int).Add(c.balanceOf(owner), uint256.NewInt(amount))
}

func (c *fakeCustody) move(from, to common.Address, amount *uint256.Int) error {
	if c.balanceOf(from).Lt(amount) {
		return ErrInsufficientFunds
	}
	c.balances[from] = new(uint256.Int).Sub(c.balanceOf(from), amount)
	c.balances[to] = new(uint256.Int).Add(c.balanceOf(to), amount)
	return nil
}

// deposit simulates a repayer sending funds straight to custody.
func (c *fakeCustody) deposit(from common.Address, amount uint64) {
	c.mint(from, amount)
	if err := c.move(from, c.pool, uint256.NewInt(amount)); err != nil {
		panic(err)
	}
}

func (c *fakeCustody) TransferIn(_ context.Context, from common.Address, amount *uint256.Int) error {
	if c.failIn {
		return errors.New("transfer in rejected")
	}
	return c.move(from, c.pool, amount)
}

func (c *fakeCustody) TransferOut(_ context.Context, to common.Address, amount *uint256.Int) error {
	if c.failOut {
		return errors.New("transfer out rejected")
	}
	return c.move(c.pool, to, amount)
}

func (c *fakeCustody) Balance(context.Context) (*uint256.Int, error) {
	if c.failBalance {
		return nil, errors.New("balance unavailable")
	}
	return CloneAmount(c.balanceOf(c.pool)), nil
}

func newTestPool(t *testing.T, requested uint64) *Pool {
	t.Helper()

	p, err := NewPool(poolAddr, LoanTerms{
		LoanID:          0,
		Requester:       requester,
		Asset:           testAsset,
		RequestedAmount: uint256.NewInt(requested),
		PeriodDays:      30,
		RateMin:         rateMin,
		RateMax:         rateMax,
	})
	require.NoError(t, err)
	return p
}

func fund(t *testing.T, p *Pool, c *fakeCustody, lender common.Address, amount uint64) {
	t.Helper()
	c.mint(lender, amount)
	require.NoError(t, p.Fund(context.Background(), c, lender, uint256.NewInt(amount)))
}

func assertFundingInvariant(t *testing.T, p *Pool) {
	t.Helper()
	sum := Zero()
	for _, l := range p.Lenders() {
		sum.Add(sum, l.Contributed)
	}
	sum.Add(sum, p.State().AmountRemaining)
	assert.True(t, sum.Eq(p.LoanTerms().RequestedAmount), "pledged + remaining must equal requested")
}

func TestPool_FundReducesRemaining(t *testing.T) {
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()

	assert.Equal(t, uint64(0), p.LenderInfo(lenderA).LendingAmount.Uint64())
	assert.Equal(t, uint64(100*usdc), p.State().AmountRemaining.Uint64())

	fund(t, p, c, lenderA, 10*usdc)

	info := p.LenderInfo(lenderA)
	assert.Equal(t, uint64(10*usdc), info.LendingAmount.Uint64())
	assert.True(t, info.ClaimedAmount.IsZero())
	assert.Equal(t, uint64(90*usdc), p.State().AmountRemaining.Uint64())
	assert.Equal(t, uint64(10*usdc), c.balanceOf(poolAddr).Uint64())
	assertFundingInvariant(t, p)
}

func TestPool_FinalizeFixesTerms(t *testing.T) {
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)

	before := p.Terms()
	assert.True(t, before.PrincipalAmount.IsZero())

	require.NoError(t, p.FinalizeLoanTerms(requester))

	terms := p.Terms()
	assert.Equal(t, PoolStatusFinalized, p.State().Status)
	assert.Equal(t, uint64(10*usdc), terms.PrincipalAmount.Uint64())
	assert.Equal(t, "9226250000000000000", terms.InterestRate.Dec())
	assert.Equal(t, uint64(7_583_219), terms.InterestAmount.Uint64())
	assert.Equal(t, uint64(10*usdc+7_583_219), terms.AmountOwed.Uint64())
	assert.True(t, terms.AmountRepaid.IsZero())
}

func TestPool_FinalizeFullyFundedUsesMinimumRate(t *testing.T) {
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 100*usdc)

	require.NoError(t, p.FinalizeLoanTerms(requester))

	terms := p.Terms()
	assert.True(t, terms.InterestRate.Eq(rateMin))
	assert.Equal(t, uint64(102_739), terms.InterestAmount.Uint64())
}

func TestPool_FinalizeErrors(t *testing.T) {
	t.Run("no funds pledged", func(t *testing.T) {
		p := newTestPool(t, 100*usdc)
		assert.ErrorIs(t, p.FinalizeLoanTerms(requester), ErrNoFundsPledged)
		assert.Equal(t, PoolStatusFunding, p.Status())
	})

	t.Run("wrong caller", func(t *testing.T) {
		p := newTestPool(t, 100*usdc)
		fund(t, p, newFakeCustody(), lenderA, usdc)
		assert.ErrorIs(t, p.FinalizeLoanTerms(lenderA), ErrUnauthorized)
		assert.Equal(t, PoolStatusFunding, p.Status())
	})

	t.Run("twice", func(t *testing.T) {
		p := newTestPool(t, 100*usdc)
		fund(t, p, newFakeCustody(), lenderA, usdc)
		require.NoError(t, p.FinalizeLoanTerms(requester))
		before := p.Snapshot()
		assert.ErrorIs(t, p.FinalizeLoanTerms(requester), ErrAlreadyFinalized)
		assert.Equal(t, before, p.Snapshot())
	})
}

func TestPool_PartialRepaymentKeepsPoolOpen(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)
	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))

	assert.Equal(t, uint64(10*usdc), c.balanceOf(requester).Uint64())
	assert.True(t, c.balanceOf(poolAddr).IsZero())

	c.deposit(repayer, usdc)
	receipt, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, uint64(usdc), receipt.Credited.Uint64())
	assert.True(t, receipt.Excess.IsZero())
	assert.False(t, receipt.Repaid)
	assert.Equal(t, uint64(usdc), p.Terms().AmountRepaid.Uint64())
	assert.Equal(t, PoolStatusReleased, p.Status())
}

func TestPool_ClaimsAreProportionalToPledges(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)
	fund(t, p, c, lenderB, 20*usdc)
	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))

	c.deposit(repayer, usdc)
	_, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)

	// floor(10/30 * 1e6) and floor(20/30 * 1e6)
	assert.Equal(t, uint64(333_333), p.GetClaimableAmount(lenderA).Uint64())
	assert.Equal(t, uint64(666_666), p.GetClaimableAmount(lenderB).Uint64())

	claimed, err := p.Claim(ctx, c, lenderA)
	require.NoError(t, err)
	assert.Equal(t, uint64(333_333), claimed.Uint64())
	assert.Equal(t, uint64(333_333), c.balanceOf(lenderA).Uint64())
	assert.True(t, p.GetClaimableAmount(lenderA).IsZero())

	_, err = p.Claim(ctx, c, lenderA)
	assert.ErrorIs(t, err, ErrNothingToClaim)

	// A claim must not look like a new repayment to the next observation.
	receipt, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)
	assert.True(t, receipt.Observed.IsZero())
	assert.Equal(t, uint64(usdc), p.Terms().AmountRepaid.Uint64())

	_, err = p.Claim(ctx, c, lenderB)
	require.NoError(t, err)
	// one unit of dust stays behind
	assert.Equal(t, uint64(1), c.balanceOf(poolAddr).Uint64())
	assert.Equal(t, uint64(1), p.ExpectedCustody().Uint64())
}

func TestPool_FullRepaymentClosesPool(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)
	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))

	owed := p.Terms().AmountOwed
	c.deposit(repayer, owed.Uint64())

	receipt, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)
	assert.True(t, receipt.Repaid)

	assert.Equal(t, PoolStatusRepaid, p.Status())
	assert.True(t, p.Terms().AmountRepaid.Eq(p.Terms().AmountOwed))

	_, err = p.AcceptPayment(ctx, c)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Claims stay open after repayment; the single lender takes everything.
	claimed, err := p.Claim(ctx, c, lenderA)
	require.NoError(t, err)
	assert.True(t, claimed.Eq(owed))
	assert.True(t, c.balanceOf(poolAddr).IsZero())
}

func TestPool_ExcessDepositIsNotCredited(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)
	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))

	owed := p.Terms().AmountOwed.Uint64()
	c.deposit(repayer, owed+500)

	receipt, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, owed, receipt.Credited.Uint64())
	assert.Equal(t, uint64(500), receipt.Excess.Uint64())
	assert.Equal(t, uint64(500), p.Uncredited().Uint64())
	assert.True(t, p.Terms().AmountRepaid.Eq(p.Terms().AmountOwed))

	_, err = p.Claim(ctx, c, lenderA)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), c.balanceOf(poolAddr).Uint64())
	assert.Equal(t, uint64(500), p.ExpectedCustody().Uint64())
}

func TestPool_MultipleRepaymentsAccumulate(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 30*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)
	fund(t, p, c, lenderB, 20*usdc)
	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))

	owed := p.Terms().AmountOwed.Uint64()
	prevRepaid := uint64(0)
	for _, part := range []uint64{7, usdc, 3 * usdc, owed} {
		c.deposit(repayer, part)
		_, err := p.AcceptPayment(ctx, c)
		require.NoError(t, err)

		repaid := p.Terms().AmountRepaid.Uint64()
		assert.GreaterOrEqual(t, repaid, prevRepaid)
		assert.LessOrEqual(t, repaid, owed)
		prevRepaid = repaid

		for _, l := range []common.Address{lenderA, lenderB} {
			if !p.GetClaimableAmount(l).IsZero() {
				_, err := p.Claim(ctx, c, l)
				require.NoError(t, err)
			}
			info := p.LenderInfo(l)
			entitled := ProRataShare(info.LendingAmount, p.Terms().AmountRepaid, p.Terms().PrincipalAmount)
			assert.False(t, info.ClaimedAmount.Gt(entitled), "claimed must not exceed entitlement")
		}
	}

	assert.Equal(t, PoolStatusRepaid, p.Status())
	dust := c.balanceOf(poolAddr)
	assert.True(t, dust.Eq(p.ExpectedCustody()) || dust.Gt(p.ExpectedCustody()))
	// at most one unit per lender per repayment event
	assert.LessOrEqual(t, new(uint256.Int).Sub(dust, p.Uncredited()).Uint64(), uint64(2*4))
}

func TestPool_Withdraw(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)

	require.NoError(t, p.Withdraw(ctx, c, lenderA, uint256.NewInt(4*usdc)))
	assert.Equal(t, uint64(6*usdc), p.LenderInfo(lenderA).LendingAmount.Uint64())
	assert.Equal(t, uint64(94*usdc), p.State().AmountRemaining.Uint64())
	assertFundingInvariant(t, p)

	require.NoError(t, p.Withdraw(ctx, c, lenderA, uint256.NewInt(6*usdc)))
	assert.Equal(t, uint64(100*usdc), p.State().AmountRemaining.Uint64())
	assert.Empty(t, p.Lenders())
	assert.Equal(t, uint64(10*usdc), c.balanceOf(lenderA).Uint64())

	err := p.Withdraw(ctx, c, lenderA, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrInsufficientPledge)
}

func TestPool_FundErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("over capacity", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		c.mint(lenderA, 200)
		assert.ErrorIs(t, p.Fund(ctx, c, lenderA, uint256.NewInt(101)), ErrInsufficientCapacity)
		assert.True(t, c.balanceOf(poolAddr).IsZero())
	})

	t.Run("zero amount", func(t *testing.T) {
		p := newTestPool(t, 100)
		err := p.Fund(ctx, newFakeCustody(), lenderA, Zero())
		assert.ErrorIs(t, err, ErrInsufficientCapacity)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("after finalization", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		fund(t, p, c, lenderA, 10)
		require.NoError(t, p.FinalizeLoanTerms(requester))
		c.mint(lenderB, 10)
		assert.ErrorIs(t, p.Fund(ctx, c, lenderB, uint256.NewInt(10)), ErrInvalidState)
		assert.ErrorIs(t, p.Withdraw(ctx, c, lenderA, uint256.NewInt(10)), ErrInvalidState)
	})

	t.Run("fill exactly", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		fund(t, p, c, lenderA, 60)
		fund(t, p, c, lenderB, 40)
		assert.True(t, p.State().AmountRemaining.IsZero())
		c.mint(lenderA, 1)
		assert.ErrorIs(t, p.Fund(ctx, c, lenderA, uint256.NewInt(1)), ErrInsufficientCapacity)
	})
}

func TestPool_ReleaseErrors(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10)

	assert.ErrorIs(t, p.ReleaseFunds(ctx, c, requester), ErrInvalidState)

	require.NoError(t, p.FinalizeLoanTerms(requester))
	assert.ErrorIs(t, p.ReleaseFunds(ctx, c, lenderA), ErrUnauthorized)

	_, err := p.AcceptPayment(ctx, c)
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, p.ReleaseFunds(ctx, c, requester))
	assert.ErrorIs(t, p.ReleaseFunds(ctx, c, requester), ErrInvalidState)
}

func TestPool_FailedTransfersLeaveStateUnchanged(t *testing.T) {
	ctx := context.Background()

	t.Run("fund", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		c.mint(lenderA, 10)
		c.failIn = true
		before := p.Snapshot()

		err := p.Fund(ctx, c, lenderA, uint256.NewInt(10))
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, before, p.Snapshot())
	})

	t.Run("fund without balance", func(t *testing.T) {
		p := newTestPool(t, 100)
		before := p.Snapshot()

		err := p.Fund(ctx, newFakeCustody(), lenderA, uint256.NewInt(10))
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, before, p.Snapshot())
	})

	t.Run("withdraw", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		fund(t, p, c, lenderA, 10)
		c.failOut = true
		before := p.Snapshot()

		assert.ErrorIs(t, p.Withdraw(ctx, c, lenderA, uint256.NewInt(10)), ErrTransferFailed)
		assert.Equal(t, before, p.Snapshot())
	})

	t.Run("release", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		fund(t, p, c, lenderA, 10)
		require.NoError(t, p.FinalizeLoanTerms(requester))
		c.failOut = true
		before := p.Snapshot()

		assert.ErrorIs(t, p.ReleaseFunds(ctx, c, requester), ErrTransferFailed)
		assert.Equal(t, before, p.Snapshot())
		assert.Equal(t, uint64(10), c.balanceOf(poolAddr).Uint64())
	})

	t.Run("release balance read fails", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		fund(t, p, c, lenderA, 10)
		require.NoError(t, p.FinalizeLoanTerms(requester))
		c.failBalance = true
		before := p.Snapshot()

		assert.ErrorIs(t, p.ReleaseFunds(ctx, c, requester), ErrTransferFailed)
		assert.Equal(t, before, p.Snapshot())
		assert.Equal(t, uint64(10), c.balanceOf(poolAddr).Uint64())
		assert.True(t, c.balanceOf(requester).IsZero())
	})

	t.Run("claim", func(t *testing.T) {
		p := newTestPool(t, 100)
		c := newFakeCustody()
		fund(t, p, c, lenderA, 10)
		require.NoError(t, p.FinalizeLoanTerms(requester))
		require.NoError(t, p.ReleaseFunds(ctx, c, requester))
		c.deposit(repayer, 5)
		_, err := p.AcceptPayment(ctx, c)
		require.NoError(t, err)
		c.failOut = true
		before := p.Snapshot()

		_, err = p.Claim(ctx, c, lenderA)
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, before, p.Snapshot())
		assert.Equal(t, uint64(5), p.GetClaimableAmount(lenderA).Uint64())
	})
}

func TestPool_GetClaimableAmountIsPure(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 30)

	assert.True(t, p.GetClaimableAmount(lenderA).IsZero(), "nothing is claimable before finalization")
	assert.True(t, p.GetClaimableAmount(lenderB).IsZero(), "unknown lender has nothing to claim")

	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))
	c.deposit(repayer, 17)
	_, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)

	before := p.Snapshot()
	first := p.GetClaimableAmount(lenderA)
	second := p.GetClaimableAmount(lenderA)
	assert.True(t, first.Eq(second))
	assert.Equal(t, before, p.Snapshot())
}

func TestPool_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t, 100*usdc)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10*usdc)
	fund(t, p, c, lenderB, 20*usdc)
	require.NoError(t, p.FinalizeLoanTerms(requester))
	require.NoError(t, p.ReleaseFunds(ctx, c, requester))
	c.deposit(repayer, usdc)
	_, err := p.AcceptPayment(ctx, c)
	require.NoError(t, err)
	_, err = p.Claim(ctx, c, lenderB)
	require.NoError(t, err)

	restored, err := RestorePool(p.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, p.Snapshot(), restored.Snapshot())
	assert.True(t, restored.GetClaimableAmount(lenderA).Eq(p.GetClaimableAmount(lenderA)))
}

func TestRestorePool_RejectsCorruptSnapshot(t *testing.T) {
	p := newTestPool(t, 100)
	c := newFakeCustody()
	fund(t, p, c, lenderA, 10)

	s := p.Snapshot()
	s.AmountRemaining = uint256.NewInt(50)
	_, err := RestorePool(s)
	assert.Error(t, err)
}

func TestPoolStatus_String(t *testing.T) {
	for _, s := range []PoolStatus{PoolStatusFunding, PoolStatusFinalized, PoolStatusReleased, PoolStatusRepaid} {
		parsed, err := ParsePoolStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParsePoolStatus("closed")
	assert.Error(t, err)
}
