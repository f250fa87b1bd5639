package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/iho/golend/internal/domain"
)

// RegistryUseCase creates loans with their pool ledgers and indexes them.
// The registry never touches pool state after creation.
type RegistryUseCase struct {
	txManager  TransactionManager
	loanRepo   LoanRepository
	poolRepo   PoolRepository
	outboxRepo OutboxRepository
	idGen      IDGenerator
	cache      Cache
	cacheTTL   time.Duration
	recorder   Recorder
	address    common.Address
	logger     zerolog.Logger
}

// NewRegistryUseCase creates a new RegistryUseCase. registryAddress seeds
// pool address derivation; cache and recorder may be nil.
func NewRegistryUseCase(
	txManager TransactionManager,
	loanRepo LoanRepository,
	poolRepo PoolRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	cache Cache,
	cacheTTL time.Duration,
	recorder Recorder,
	registryAddress common.Address,
	logger zerolog.Logger,
) *RegistryUseCase {
	if cacheTTL <= 0 {
		cacheTTL = DefaultLoanCacheTTL
	}
	return &RegistryUseCase{
		txManager:  txManager,
		loanRepo:   loanRepo,
		poolRepo:   poolRepo,
		outboxRepo: outboxRepo,
		idGen:      idGen,
		cache:      cache,
		cacheTTL:   cacheTTL,
		recorder:   recorderOrNop(recorder),
		address:    registryAddress,
		logger:     logger.With().Str("component", "registry").Logger(),
	}
}

// CreateLoanInput represents input for creating a loan.
type CreateLoanInput struct {
	Requester       common.Address
	Headline        string
	Description     string
	Asset           common.Address
	Amount          *uint256.Int
	PeriodDays      uint64
	InterestRateMin *uint256.Int
	InterestRateMax *uint256.Int
}

// PoolAddress derives the custody address of the pool for loan id.
func (uc *RegistryUseCase) PoolAddress(id uint64) common.Address {
	return crypto.CreateAddress(uc.address, id)
}

// CreateLoan registers a loan and opens its pool in Funding status.
func (uc *RegistryUseCase) CreateLoan(ctx context.Context, input CreateLoanInput) (*domain.LoanMetadata, error) {
	if err := domain.ValidateHeadline(input.Headline); err != nil {
		return nil, err
	}
	if err := domain.ValidateDescription(input.Description); err != nil {
		return nil, err
	}

	terms := domain.LoanTerms{
		Requester:       input.Requester,
		Asset:           input.Asset,
		RequestedAmount: input.Amount,
		PeriodDays:      input.PeriodDays,
		RateMin:         input.InterestRateMin,
		RateMax:         input.InterestRateMax,
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx)

	id, err := uc.loanRepo.NextID(txCtx, tx)
	if err != nil {
		return nil, err
	}

	terms.LoanID = id
	poolAddress := uc.PoolAddress(id)

	pool, err := domain.NewPool(poolAddress, terms)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loan := &domain.LoanMetadata{
		ID:              id,
		Requester:       input.Requester,
		PoolAddress:     poolAddress,
		Headline:        strings.TrimSpace(input.Headline),
		Description:     input.Description,
		Asset:           input.Asset,
		LoanAmount:      domain.CloneAmount(input.Amount),
		LoanPeriod:      input.PeriodDays,
		InterestRateMin: domain.CloneAmount(input.InterestRateMin),
		InterestRateMax: domain.CloneAmount(input.InterestRateMax),
		Timestamp:       now,
	}

	if err := uc.loanRepo.Create(txCtx, tx, loan); err != nil {
		return nil, err
	}

	if err := uc.poolRepo.Create(txCtx, tx, id, pool.Snapshot()); err != nil {
		return nil, err
	}

	event := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.AggregateTypeLoan,
		strconv.FormatUint(id, 10),
		domain.EventTypeLoanCreated,
		domain.LoanCreatedEvent{
			LoanID:      id,
			Requester:   loan.Requester.Hex(),
			PoolAddress: poolAddress.Hex(),
			Asset:       loan.Asset.Hex(),
			Amount:      loan.LoanAmount.Dec(),
			PeriodDays:  loan.LoanPeriod,
		},
		now,
	)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	uc.recorder.LoanCreated()
	uc.logger.Info().
		Uint64("loan_id", id).
		Str("requester", loan.Requester.Hex()).
		Str("pool", poolAddress.Hex()).
		Str("amount", loan.LoanAmount.Dec()).
		Msg("loan created")

	return loan, nil
}

// GetLoan returns loan metadata by id, served from cache when possible.
func (uc *RegistryUseCase) GetLoan(ctx context.Context, id uint64) (*domain.LoanMetadata, error) {
	key := loanCacheKey(id)

	if uc.cache != nil {
		if raw, err := uc.cache.Get(ctx, key); err == nil && raw != nil {
			var cached cachedLoan
			if err := json.Unmarshal(raw, &cached); err == nil {
				if loan, err := cached.toDomain(); err == nil {
					uc.recorder.CacheLookup(true)
					return loan, nil
				}
			}
		}
		uc.recorder.CacheLookup(false)
	}

	loan, err := uc.loanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if raw, err := json.Marshal(newCachedLoan(loan)); err == nil {
			if err := uc.cache.Set(ctx, key, raw, uc.cacheTTL); err != nil {
				uc.logger.Warn().Err(err).Uint64("loan_id", id).Msg("failed to cache loan metadata")
			}
		}
	}

	return loan, nil
}

// ListLoans returns loans in creation order.
func (uc *RegistryUseCase) ListLoans(ctx context.Context, limit, offset int) ([]*domain.LoanMetadata, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.loanRepo.List(ctx, limit, offset)
}

// ListLoansByRequester returns requester's loans in creation order.
func (uc *RegistryUseCase) ListLoansByRequester(ctx context.Context, requester common.Address, limit, offset int) ([]*domain.LoanMetadata, error) {
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.loanRepo.ListByRequester(ctx, requester, limit, offset)
}

func loanCacheKey(id uint64) string {
	return "loan:" + strconv.FormatUint(id, 10)
}

// cachedLoan is the cache encoding of loan metadata; amounts travel as
// decimal strings.
type cachedLoan struct {
	ID              uint64    `json:"id"`
	Requester       string    `json:"requester"`
	PoolAddress     string    `json:"pool_address"`
	Headline        string    `json:"headline"`
	Description     string    `json:"description"`
	Asset           string    `json:"asset"`
	LoanAmount      string    `json:"loan_amount"`
	LoanPeriod      uint64    `json:"loan_period"`
	InterestRateMin string    `json:"interest_rate_min"`
	InterestRateMax string    `json:"interest_rate_max"`
	Timestamp       time.Time `json:"timestamp"`
}

func newCachedLoan(l *domain.LoanMetadata) cachedLoan {
	return cachedLoan{
		ID:              l.ID,
		Requester:       l.Requester.Hex(),
		PoolAddress:     l.PoolAddress.Hex(),
		Headline:        l.Headline,
		Description:     l.Description,
		Asset:           l.Asset.Hex(),
		LoanAmount:      l.LoanAmount.Dec(),
		LoanPeriod:      l.LoanPeriod,
		InterestRateMin: l.InterestRateMin.Dec(),
		InterestRateMax: l.InterestRateMax.Dec(),
		Timestamp:       l.Timestamp,
	}
}

func (c cachedLoan) toDomain() (*domain.LoanMetadata, error) {
	amounts := make([]*uint256.Int, 3)
	for i, s := range []string{c.LoanAmount, c.InterestRateMin, c.InterestRateMax} {
		v, err := domain.ParseAmount(s)
		if err != nil {
			return nil, fmt.Errorf("decode cached loan %d: %w", c.ID, err)
		}
		amounts[i] = v
	}
	return &domain.LoanMetadata{
		ID:              c.ID,
		Requester:       common.HexToAddress(c.Requester),
		PoolAddress:     common.HexToAddress(c.PoolAddress),
		Headline:        c.Headline,
		Description:     c.Description,
		Asset:           common.HexToAddress(c.Asset),
		LoanAmount:      amounts[0],
		LoanPeriod:      c.LoanPeriod,
		InterestRateMin: amounts[1],
		InterestRateMax: amounts[2],
		Timestamp:       c.Timestamp,
	}, nil
}
