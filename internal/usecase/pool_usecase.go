package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/iho/golend/internal/domain"
)

// PoolUseCase runs pool ledger operations. Operations on one pool are
// serialized in-process by a keyed lock and in storage by a row lock, and
// each runs in a single transaction together with the asset book transfers
// it causes.
type PoolUseCase struct {
	txManager  TransactionManager
	poolRepo   PoolRepository
	outboxRepo OutboxRepository
	book       *assetBook
	idGen      IDGenerator
	retrier    Retrier
	locker     *KeyedLocker
	recorder   Recorder
	logger     zerolog.Logger
}

// NewPoolUseCase creates a new PoolUseCase. retrier and recorder may be nil.
func NewPoolUseCase(
	txManager TransactionManager,
	poolRepo PoolRepository,
	accountRepo AccountRepository,
	transferRepo TransferRepository,
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	retrier Retrier,
	recorder Recorder,
	logger zerolog.Logger,
) *PoolUseCase {
	return &PoolUseCase{
		txManager:  txManager,
		poolRepo:   poolRepo,
		outboxRepo: outboxRepo,
		book:       newAssetBook(accountRepo, transferRepo, entryRepo, idGen),
		idGen:      idGen,
		retrier:    retrier,
		locker:     NewKeyedLocker(),
		recorder:   recorderOrNop(recorder),
		logger:     logger.With().Str("component", "pool").Logger(),
	}
}

// PoolResult is the outcome of a pool operation.
type PoolResult struct {
	LoanID    uint64
	Pool      *domain.Pool
	Amount    *uint256.Int // amount moved or credited by the operation
	Receipt   *domain.PaymentReceipt
	Transfers []*domain.Transfer

	events []*domain.OutboxEvent
}

type poolOp func(ctx context.Context, pool *domain.Pool, custody *bookCustody, res *PoolResult) error

// Fund pledges amount from lender into the pool.
func (uc *PoolUseCase) Fund(ctx context.Context, loanID uint64, lender common.Address, amount *uint256.Int) (*PoolResult, error) {
	return uc.execute(ctx, loanID, OpFund, func(ctx context.Context, pool *domain.Pool, custody *bookCustody, res *PoolResult) error {
		if err := pool.Fund(ctx, custody, lender, amount); err != nil {
			return err
		}
		res.Amount = domain.CloneAmount(amount)
		res.events = append(res.events, uc.event(loanID, domain.EventTypePoolFunded, domain.PoolLenderEvent{
			PoolAddress: pool.Address().Hex(),
			Lender:      lender.Hex(),
			Amount:      amount.Dec(),
		}))
		return nil
	})
}

// Withdraw returns part of lender's pledge while the pool is funding.
func (uc *PoolUseCase) Withdraw(ctx context.Context, loanID uint64, lender common.Address, amount *uint256.Int) (*PoolResult, error) {
	return uc.execute(ctx, loanID, OpWithdraw, func(ctx context.Context, pool *domain.Pool, custody *bookCustody, res *PoolResult) error {
		if err := pool.Withdraw(ctx, custody, lender, amount); err != nil {
			return err
		}
		res.Amount = domain.CloneAmount(amount)
		res.events = append(res.events, uc.event(loanID, domain.EventTypePoolWithdrawn, domain.PoolLenderEvent{
			PoolAddress: pool.Address().Hex(),
			Lender:      lender.Hex(),
			Amount:      amount.Dec(),
		}))
		return nil
	})
}

// Finalize locks in principal and interest. Only the requester may call it.
func (uc *PoolUseCase) Finalize(ctx context.Context, loanID uint64, caller common.Address) (*PoolResult, error) {
	return uc.execute(ctx, loanID, OpFinalize, func(_ context.Context, pool *domain.Pool, _ *bookCustody, res *PoolResult) error {
		if err := pool.FinalizeLoanTerms(caller); err != nil {
			return err
		}
		terms := pool.Terms()
		res.Amount = terms.PrincipalAmount
		res.events = append(res.events, uc.event(loanID, domain.EventTypePoolFinalized, domain.PoolFinalizedEvent{
			PoolAddress:    pool.Address().Hex(),
			Principal:      terms.PrincipalAmount.Dec(),
			InterestRate:   terms.InterestRate.Dec(),
			InterestAmount: terms.InterestAmount.Dec(),
			AmountOwed:     terms.AmountOwed.Dec(),
		}))
		return nil
	})
}

// Release sends the principal to the requester.
func (uc *PoolUseCase) Release(ctx context.Context, loanID uint64, caller common.Address) (*PoolResult, error) {
	return uc.execute(ctx, loanID, OpRelease, func(ctx context.Context, pool *domain.Pool, custody *bookCustody, res *PoolResult) error {
		if err := pool.ReleaseFunds(ctx, custody, caller); err != nil {
			return err
		}
		res.Amount = pool.Terms().PrincipalAmount
		res.events = append(res.events, uc.event(loanID, domain.EventTypePoolReleased, domain.PoolReleasedEvent{
			PoolAddress: pool.Address().Hex(),
			Requester:   pool.LoanTerms().Requester.Hex(),
			Amount:      res.Amount.Dec(),
		}))
		return nil
	})
}

// AcceptPayment credits deposits made to the pool's custody account since
// the last call.
func (uc *PoolUseCase) AcceptPayment(ctx context.Context, loanID uint64) (*PoolResult, error) {
	return uc.execute(ctx, loanID, OpAcceptPayment, func(ctx context.Context, pool *domain.Pool, custody *bookCustody, res *PoolResult) error {
		receipt, err := pool.AcceptPayment(ctx, custody)
		if err != nil {
			return err
		}
		res.Receipt = &receipt
		res.Amount = domain.CloneAmount(receipt.Credited)

		if receipt.Observed.IsZero() {
			return nil
		}

		terms := pool.Terms()
		payload := domain.PoolPaymentEvent{
			PoolAddress:  pool.Address().Hex(),
			Credited:     receipt.Credited.Dec(),
			Excess:       receipt.Excess.Dec(),
			AmountRepaid: terms.AmountRepaid.Dec(),
			AmountOwed:   terms.AmountOwed.Dec(),
		}
		res.events = append(res.events, uc.event(loanID, domain.EventTypePoolPaymentAccepted, payload))
		if receipt.Repaid {
			res.events = append(res.events, uc.event(loanID, domain.EventTypePoolRepaid, payload))
		}
		return nil
	})
}

// Claim pays lender its share of repayments received so far.
func (uc *PoolUseCase) Claim(ctx context.Context, loanID uint64, lender common.Address) (*PoolResult, error) {
	return uc.execute(ctx, loanID, OpClaim, func(ctx context.Context, pool *domain.Pool, custody *bookCustody, res *PoolResult) error {
		amount, err := pool.Claim(ctx, custody, lender)
		if err != nil {
			return err
		}
		res.Amount = amount
		res.events = append(res.events, uc.event(loanID, domain.EventTypePoolClaimed, domain.PoolLenderEvent{
			PoolAddress: pool.Address().Hex(),
			Lender:      lender.Hex(),
			Amount:      amount.Dec(),
		}))
		return nil
	})
}

// GetPool loads the current pool state.
func (uc *PoolUseCase) GetPool(ctx context.Context, loanID uint64) (*domain.Pool, error) {
	snapshot, err := uc.poolRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return domain.RestorePool(snapshot)
}

// LenderInfo returns lender's pledge and claimed totals.
func (uc *PoolUseCase) LenderInfo(ctx context.Context, loanID uint64, lender common.Address) (domain.LenderInfo, error) {
	pool, err := uc.GetPool(ctx, loanID)
	if err != nil {
		return domain.LenderInfo{}, err
	}
	return pool.LenderInfo(lender), nil
}

// ClaimableAmount returns what lender could claim right now.
func (uc *PoolUseCase) ClaimableAmount(ctx context.Context, loanID uint64, lender common.Address) (*uint256.Int, error) {
	pool, err := uc.GetPool(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return pool.GetClaimableAmount(lender), nil
}

func (uc *PoolUseCase) execute(ctx context.Context, loanID uint64, op string, fn poolOp) (*PoolResult, error) {
	unlock := uc.locker.Lock(loanID)
	defer unlock()

	start := time.Now()

	var result *PoolResult
	run := func() error {
		var err error
		result, err = uc.executeOnce(ctx, loanID, fn)
		return err
	}

	var err error
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, run)
	} else {
		err = run()
	}

	var amount *uint256.Int
	if result != nil {
		amount = result.Amount
	}
	uc.recorder.PoolOperation(op, err, time.Since(start), amount)

	if err != nil {
		event := uc.logger.Debug()
		if !isBusinessError(err) {
			event = uc.logger.Error()
		}
		event.Err(err).Uint64("loan_id", loanID).Str("operation", op).Msg("pool operation rejected")
		return nil, err
	}

	uc.logger.Info().
		Uint64("loan_id", loanID).
		Str("operation", op).
		Str("status", result.Pool.Status().String()).
		Str("amount", domain.CloneAmount(result.Amount).Dec()).
		Dur("elapsed", time.Since(start)).
		Msg("pool operation committed")

	return result, nil
}

func (uc *PoolUseCase) executeOnce(ctx context.Context, loanID uint64, fn poolOp) (*PoolResult, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx)

	snapshot, err := uc.poolRepo.GetByLoanIDForUpdate(txCtx, tx, loanID)
	if err != nil {
		return nil, err
	}

	pool, err := domain.RestorePool(snapshot)
	if err != nil {
		return nil, err
	}

	custody := &bookCustody{
		book:   uc.book,
		tx:     tx,
		loanID: loanID,
		pool:   pool.Address(),
		asset:  pool.LoanTerms().Asset,
	}

	res := &PoolResult{LoanID: loanID, Pool: pool}
	if err := fn(txCtx, pool, custody, res); err != nil {
		return nil, err
	}

	if err := uc.poolRepo.Save(txCtx, tx, loanID, pool.Snapshot()); err != nil {
		return nil, err
	}

	for _, event := range res.events {
		if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	res.Transfers = custody.transfers
	return res, nil
}

func (uc *PoolUseCase) event(loanID uint64, eventType string, payload any) *domain.OutboxEvent {
	return domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.AggregateTypePool,
		strconv.FormatUint(loanID, 10),
		eventType,
		payload,
		time.Now().UTC(),
	)
}

// isBusinessError reports whether err is an expected rejection rather than
// an infrastructure failure.
func isBusinessError(err error) bool {
	for _, target := range []error{
		domain.ErrInsufficientCapacity,
		domain.ErrInsufficientPledge,
		domain.ErrInvalidState,
		domain.ErrAlreadyFinalized,
		domain.ErrNoFundsPledged,
		domain.ErrNothingToClaim,
		domain.ErrUnauthorized,
		domain.ErrTransferFailed,
		domain.ErrInvalidAmount,
		domain.ErrInsufficientFunds,
		domain.ErrSameAccount,
		domain.ErrLoanNotFound,
		domain.ErrPoolNotFound,
		domain.ErrInvalidTerms,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
