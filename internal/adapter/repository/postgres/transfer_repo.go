package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

// TransferRepository implements usecase.TransferRepository.
type TransferRepository struct {
	pool *pgxpool.Pool
}

// NewTransferRepository creates a new TransferRepository.
func NewTransferRepository(pool *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{pool: pool}
}

// Create creates a new transfer within a transaction.
func (r *TransferRepository) Create(ctx context.Context, tx usecase.Transaction, transfer *domain.Transfer) error {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	var metadata []byte
	if transfer.Metadata != nil {
		metadata, err = json.Marshal(transfer.Metadata)
		if err != nil {
			return err
		}
	}

	_, err = pgxTx.Exec(ctx, `
		INSERT INTO transfers (id, asset, from_owner, to_owner, amount, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		transfer.ID,
		transfer.Asset.Bytes(),
		transfer.From.Bytes(),
		transfer.To.Bytes(),
		amountToNumeric(transfer.Amount),
		metadata,
		timeToPgTimestamptz(transfer.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("transfer %s already exists", transfer.ID)
	}
	return err
}

// GetByID retrieves a transfer by ID.
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*domain.Transfer, error) {
	var (
		asset, from, to []byte
		amount          pgtype.Numeric
		metadata        []byte
		createdAt       pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx,
		`SELECT asset, from_owner, to_owner, amount, metadata, created_at FROM transfers WHERE id = $1`,
		id,
	).Scan(&asset, &from, &to, &amount, &metadata, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, err
	}

	var d decoder
	transfer := &domain.Transfer{
		ID:        id,
		Asset:     d.address(asset),
		From:      d.address(from),
		To:        d.address(to),
		Amount:    d.amount(amount),
		CreatedAt: createdAt.Time.UTC(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode transfer %s: %w", id, d.err)
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &transfer.Metadata); err != nil {
			return nil, fmt.Errorf("decode transfer %s metadata: %w", id, err)
		}
	}
	return transfer, nil
}
