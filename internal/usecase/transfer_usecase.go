package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/iho/golend/internal/domain"
)

// TransferUseCase moves assets between owners in the asset book.
type TransferUseCase struct {
	txManager  TransactionManager
	outboxRepo OutboxRepository
	transfers  TransferRepository
	book       *assetBook
	idGen      IDGenerator
	retrier    Retrier
	recorder   Recorder
	logger     zerolog.Logger
}

// NewTransferUseCase creates a new TransferUseCase. retrier and recorder may
// be nil.
func NewTransferUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	transferRepo TransferRepository,
	entryRepo EntryRepository,
	outboxRepo OutboxRepository,
	idGen IDGenerator,
	retrier Retrier,
	recorder Recorder,
	logger zerolog.Logger,
) *TransferUseCase {
	return &TransferUseCase{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		transfers:  transferRepo,
		book:       newAssetBook(accountRepo, transferRepo, entryRepo, idGen),
		idGen:      idGen,
		retrier:    retrier,
		recorder:   recorderOrNop(recorder),
		logger:     logger.With().Str("component", "asset_book").Logger(),
	}
}

// CreateTransferInput represents input for creating a transfer.
type CreateTransferInput struct {
	Metadata map[string]any
	Asset    common.Address
	From     common.Address
	To       common.Address
	Amount   *uint256.Int
}

// DepositInput represents input for minting an asset to an owner.
type DepositInput struct {
	Owner  common.Address
	Asset  common.Address
	Amount *uint256.Int
}

// Deposit mints amount of asset to owner, drawing on the asset's issuer
// account.
func (uc *TransferUseCase) Deposit(ctx context.Context, input DepositInput) (*domain.Transfer, error) {
	return uc.post(ctx, CreateTransferInput{
		Asset:    input.Asset,
		From:     input.Asset,
		To:       input.Owner,
		Amount:   input.Amount,
		Metadata: map[string]any{"kind": "deposit"},
	})
}

// CreateTransfer moves amount of asset from one owner to another. Sending
// to a pool address is how repayments reach a pool's custody. Minting goes
// through Deposit only.
func (uc *TransferUseCase) CreateTransfer(ctx context.Context, input CreateTransferInput) (*domain.Transfer, error) {
	if input.From == input.Asset {
		return nil, fmt.Errorf("%w: transfers from the issuer account must be deposits", domain.ErrUnauthorized)
	}
	return uc.post(ctx, input)
}

func (uc *TransferUseCase) post(ctx context.Context, input CreateTransferInput) (*domain.Transfer, error) {
	if err := domain.ValidateMetadata(input.Metadata); err != nil {
		return nil, err
	}

	candidate := &domain.Transfer{
		Asset:    input.Asset,
		From:     input.From,
		To:       input.To,
		Amount:   input.Amount,
		Metadata: input.Metadata,
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	var transfer *domain.Transfer
	run := func() error {
		var err error
		transfer, err = uc.createOnce(ctx, input)
		return err
	}

	var err error
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, run)
	} else {
		err = run()
	}

	uc.recorder.AssetTransfer(err, input.Amount)
	if err != nil {
		return nil, err
	}

	uc.logger.Info().
		Str("transfer_id", transfer.ID).
		Str("asset", transfer.Asset.Hex()).
		Str("from", transfer.From.Hex()).
		Str("to", transfer.To.Hex()).
		Str("amount", transfer.Amount.Dec()).
		Msg("asset transfer posted")

	return transfer, nil
}

func (uc *TransferUseCase) createOnce(ctx context.Context, input CreateTransferInput) (*domain.Transfer, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(txCtx)

	transfer := &domain.Transfer{
		Asset:    input.Asset,
		From:     input.From,
		To:       input.To,
		Amount:   domain.CloneAmount(input.Amount),
		Metadata: input.Metadata,
	}

	if err := uc.book.post(txCtx, tx, transfer); err != nil {
		return nil, err
	}

	event := domain.NewOutboxEvent(
		uc.idGen.Generate(),
		domain.AggregateTypeTransfer,
		transfer.ID,
		domain.EventTypeAssetTransferCreated,
		domain.AssetTransferCreatedEvent{
			TransferID: transfer.ID,
			Asset:      transfer.Asset.Hex(),
			From:       transfer.From.Hex(),
			To:         transfer.To.Hex(),
			Amount:     transfer.Amount.Dec(),
		},
		time.Now().UTC(),
	)
	if err := uc.outboxRepo.Create(txCtx, tx, event); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return transfer, nil
}

// GetTransfer retrieves a transfer by ID.
func (uc *TransferUseCase) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return uc.transfers.GetByID(ctx, id)
}
