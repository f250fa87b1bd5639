package usecase_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/iho/golend/internal/adapter/repository/memory"
	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

var (
	registryAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	usdcAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	requester    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	lenderA      = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	lenderB      = common.HexToAddress("0x0000000000000000000000000000000000000a02")

	rateMin = uint256.MustFromDecimal("12500000000000000")
	rateMax = uint256.MustFromDecimal("10250000000000000000")
)

// usdc returns v whole units of a 6-decimal asset.
func usdc(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1_000_000))
}

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%06d", g.n)
}

type poolCall struct {
	op     string
	err    error
	amount *uint256.Int
}

type spyRecorder struct {
	mu        sync.Mutex
	loans     int
	poolCalls []poolCall
	transfers int
	hits      int
	misses    int
}

func (r *spyRecorder) LoanCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loans++
}

func (r *spyRecorder) PoolOperation(op string, err error, _ time.Duration, amount *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poolCalls = append(r.poolCalls, poolCall{op: op, err: err, amount: amount})
}

func (r *spyRecorder) AssetTransfer(error, *uint256.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfers++
}

func (r *spyRecorder) CacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

type fixture struct {
	registry       *usecase.RegistryUseCase
	pools          *usecase.PoolUseCase
	transfers      *usecase.TransferUseCase
	accounts       *usecase.AccountUseCase
	entries        *usecase.EntryUseCase
	ledger         *usecase.LedgerUseCase
	reconciliation *usecase.ReconciliationUseCase
	outbox         *memory.OutboxRepository
	recorder       *spyRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	txm := memory.NewTxManager(store)
	loanRepo := memory.NewLoanRepository(store)
	poolRepo := memory.NewPoolRepository(store)
	accountRepo := memory.NewAccountRepository(store)
	transferRepo := memory.NewTransferRepository(store)
	entryRepo := memory.NewEntryRepository(store)
	outboxRepo := memory.NewOutboxRepository(store)
	ledgerRepo := memory.NewLedgerRepository(store)
	ids := &sequenceIDs{}
	rec := &spyRecorder{}
	logger := zerolog.Nop()

	return &fixture{
		registry:       usecase.NewRegistryUseCase(txm, loanRepo, poolRepo, outboxRepo, ids, nil, 0, rec, registryAddr, logger),
		pools:          usecase.NewPoolUseCase(txm, poolRepo, accountRepo, transferRepo, entryRepo, outboxRepo, ids, nil, rec, logger),
		transfers:      usecase.NewTransferUseCase(txm, accountRepo, transferRepo, entryRepo, outboxRepo, ids, nil, rec, logger),
		accounts:       usecase.NewAccountUseCase(accountRepo),
		entries:        usecase.NewEntryUseCase(accountRepo, entryRepo),
		ledger:         usecase.NewLedgerUseCase(ledgerRepo),
		reconciliation: usecase.NewReconciliationUseCase(loanRepo, poolRepo, accountRepo, ledgerRepo),
		outbox:         outboxRepo,
		recorder:       rec,
	}
}

func (f *fixture) createLoan(t *testing.T, amount *uint256.Int) *domain.LoanMetadata {
	t.Helper()
	loan, err := f.registry.CreateLoan(context.Background(), usecase.CreateLoanInput{
		Requester:       requester,
		Headline:        "Inventory financing",
		Description:     "Stock for the holiday season",
		Asset:           usdcAddr,
		Amount:          amount,
		PeriodDays:      30,
		InterestRateMin: rateMin,
		InterestRateMax: rateMax,
	})
	require.NoError(t, err)
	return loan
}

func (f *fixture) deposit(t *testing.T, owner common.Address, amount *uint256.Int) {
	t.Helper()
	_, err := f.transfers.Deposit(context.Background(), usecase.DepositInput{Owner: owner, Asset: usdcAddr, Amount: amount})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, owner common.Address) *uint256.Int {
	t.Helper()
	b, err := f.accounts.BalanceOf(context.Background(), owner, usdcAddr)
	require.NoError(t, err)
	return b
}

func (f *fixture) pay(t *testing.T, from, to common.Address, amount *uint256.Int) {
	t.Helper()
	_, err := f.transfers.CreateTransfer(context.Background(), usecase.CreateTransferInput{
		Asset: usdcAddr, From: from, To: to, Amount: amount,
	})
	require.NoError(t, err)
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := f.ledger.CheckConsistency(context.Background())
	require.NoError(t, err)
	require.True(t, report.Consistent)
}
