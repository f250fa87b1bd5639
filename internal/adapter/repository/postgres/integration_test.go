package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/golend/internal/adapter/repository/postgres"
	"github.com/iho/golend/internal/domain"
	infra "github.com/iho/golend/internal/infrastructure/postgres"
	"github.com/iho/golend/internal/usecase"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	usdcAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	requester    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
)

type stack struct {
	pool      *pgxpool.Pool
	registry  *usecase.RegistryUseCase
	pools     *usecase.PoolUseCase
	transfers *usecase.TransferUseCase
	accounts  *usecase.AccountUseCase
	ledger    *usecase.LedgerUseCase
	outbox    *postgres.OutboxRepository
}

// newStack connects to GOLEND_TEST_DATABASE_URL, migrates it and empties
// every table. The test is skipped when the variable is unset.
func newStack(t *testing.T) *stack {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	dbURL := os.Getenv("GOLEND_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("GOLEND_TEST_DATABASE_URL not set")
	}

	log := zerolog.Nop()
	require.NoError(t, infra.RunMigrations(dbURL, "../../../../migrations", log))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := infra.NewPool(ctx, dbURL, 20, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE entries, transfers, accounts, pool_lenders, pools, loans, outbox_events CASCADE;
		UPDATE registry SET next_loan_id = 0;
	`)
	require.NoError(t, err)

	txm := postgres.NewTxManager(pool)
	loanRepo := postgres.NewLoanRepository(pool)
	poolRepo := postgres.NewPoolRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	transferRepo := postgres.NewTransferRepository(pool)
	entryRepo := postgres.NewEntryRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool)
	ids := postgres.NewULIDGenerator()
	retrier := postgres.NewRetrier(log)

	return &stack{
		pool:      pool,
		registry:  usecase.NewRegistryUseCase(txm, loanRepo, poolRepo, outboxRepo, ids, nil, 0, nil, registryAddr, log),
		pools:     usecase.NewPoolUseCase(txm, poolRepo, accountRepo, transferRepo, entryRepo, outboxRepo, ids, retrier, nil, log),
		transfers: usecase.NewTransferUseCase(txm, accountRepo, transferRepo, entryRepo, outboxRepo, ids, retrier, nil, log),
		accounts:  usecase.NewAccountUseCase(accountRepo),
		ledger:    usecase.NewLedgerUseCase(postgres.NewLedgerRepository(pool)),
		outbox:    outboxRepo,
	}
}

func (s *stack) createLoan(t *testing.T, amount uint64) *domain.LoanMetadata {
	t.Helper()
	loan, err := s.registry.CreateLoan(context.Background(), usecase.CreateLoanInput{
		Requester:       requester,
		Headline:        "Delivery van",
		Asset:           usdcAddr,
		Amount:          uint256.NewInt(amount),
		PeriodDays:      90,
		InterestRateMin: uint256.NewInt(0),
		InterestRateMax: uint256.MustFromDecimal("100000000000000000"),
	})
	require.NoError(t, err)
	return loan
}

func (s *stack) deposit(t *testing.T, owner common.Address, amount uint64) {
	t.Helper()
	_, err := s.transfers.Deposit(context.Background(), usecase.DepositInput{Owner: owner, Asset: usdcAddr, Amount: uint256.NewInt(amount)})
	require.NoError(t, err)
}

func (s *stack) balance(t *testing.T, owner common.Address) uint64 {
	t.Helper()
	b, err := s.accounts.BalanceOf(context.Background(), owner, usdcAddr)
	require.NoError(t, err)
	return b.Uint64()
}

func lenderAddr(i int) common.Address {
	return common.BigToAddress(uint256.NewInt(uint64(0xa000 + i)).ToBig())
}

func TestRegistryAssignsSequentialIDs(t *testing.T) {
	s := newStack(t)

	var wg sync.WaitGroup
	ids := make(chan uint64, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loan, err := s.registry.CreateLoan(context.Background(), usecase.CreateLoanInput{
				Requester:       requester,
				Headline:        "Concurrent",
				Asset:           usdcAddr,
				Amount:          uint256.NewInt(100),
				PeriodDays:      1,
				InterestRateMin: uint256.NewInt(0),
				InterestRateMax: uint256.NewInt(0),
			})
			if err == nil {
				ids <- loan.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[uint64]bool{}
	for id := range ids {
		seen[id] = true
	}
	require.Len(t, seen, 10)
	for id := uint64(0); id < 10; id++ {
		assert.True(t, seen[id], "missing loan id %d", id)
	}
}

func TestConcurrentFundingNeverOverfills(t *testing.T) {
	s := newStack(t)
	loan := s.createLoan(t, 1000)

	const lenders = 30
	for i := range lenders {
		s.deposit(t, lenderAddr(i), 100)
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		capacity  atomic.Int32
	)
	for i := range lenders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.pools.Fund(context.Background(), loan.ID, lenderAddr(i), uint256.NewInt(100))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientCapacity), errors.Is(err, domain.ErrInvalidState):
				capacity.Add(1)
			default:
				t.Errorf("unexpected fund error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(lenders-10), capacity.Load())
	assert.Equal(t, uint64(1000), s.balance(t, loan.PoolAddress))

	pool, err := s.pools.GetPool(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.True(t, pool.State().AmountRemaining.IsZero())

	report, err := s.ledger.CheckConsistency(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestLoanLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	a, b := lenderAddr(1), lenderAddr(2)

	loan := s.createLoan(t, 1000)
	s.deposit(t, a, 750)
	s.deposit(t, b, 250)

	_, err := s.pools.Fund(ctx, loan.ID, a, uint256.NewInt(750))
	require.NoError(t, err)
	_, err = s.pools.Fund(ctx, loan.ID, b, uint256.NewInt(250))
	require.NoError(t, err)

	_, err = s.pools.Finalize(ctx, loan.ID, requester)
	require.NoError(t, err)
	_, err = s.pools.Release(ctx, loan.ID, requester)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), s.balance(t, requester))

	pool, err := s.pools.GetPool(ctx, loan.ID)
	require.NoError(t, err)
	owed := pool.Terms().AmountOwed.Uint64()
	require.GreaterOrEqual(t, owed, uint64(1000))

	if owed > 1000 {
		s.deposit(t, requester, owed-1000)
	}
	_, err = s.transfers.CreateTransfer(ctx, usecase.CreateTransferInput{
		Asset: usdcAddr, From: requester, To: loan.PoolAddress, Amount: uint256.NewInt(owed),
	})
	require.NoError(t, err)

	res, err := s.pools.AcceptPayment(ctx, loan.ID)
	require.NoError(t, err)
	require.True(t, res.Receipt.Repaid)

	_, err = s.pools.Claim(ctx, loan.ID, a)
	require.NoError(t, err)
	_, err = s.pools.Claim(ctx, loan.ID, b)
	require.NoError(t, err)

	// Integer division may leave dust in custody; never more than one unit
	// per lender.
	assert.LessOrEqual(t, s.balance(t, loan.PoolAddress), uint64(2))
	assert.Equal(t, owed, s.balance(t, a)+s.balance(t, b)+s.balance(t, loan.PoolAddress))

	_, err = s.pools.Claim(ctx, loan.ID, a)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)

	report, err := s.ledger.CheckConsistency(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent)

	events, err := s.outbox.GetUnpublished(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
