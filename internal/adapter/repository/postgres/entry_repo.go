package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

const entryColumns = `id, account_id, transfer_id, direction, amount,
	account_previous_balance, account_current_balance, account_version, created_at`

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

// Create creates a new entry within a transaction.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	_, err = pgxTx.Exec(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.AccountID,
		entry.TransferID,
		string(entry.Direction),
		amountToNumeric(entry.Amount),
		amountToNumeric(entry.AccountPreviousBalance),
		amountToNumeric(entry.AccountCurrentBalance),
		entry.AccountVersion,
		timeToPgTimestamptz(entry.CreatedAt),
	)
	return err
}

// GetByTransfer retrieves the entries of a transfer in posting order.
func (r *EntryRepository) GetByTransfer(ctx context.Context, transferID string) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE transfer_id = $1 ORDER BY seq`,
		transferID,
	)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// GetByAccount retrieves the entries of an account, newest first.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE account_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*domain.Entry, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Entry, error) {
		var (
			id, accountID, transferID string
			direction                 string
			amount, previous, current pgtype.Numeric
			version                   int64
			createdAt                 pgtype.Timestamptz
		)
		if err := row.Scan(&id, &accountID, &transferID, &direction, &amount,
			&previous, &current, &version, &createdAt); err != nil {
			return nil, err
		}

		var d decoder
		entry := &domain.Entry{
			ID:                     id,
			AccountID:              accountID,
			TransferID:             transferID,
			Direction:              domain.EntryDirection(direction),
			Amount:                 d.amount(amount),
			AccountPreviousBalance: d.amount(previous),
			AccountCurrentBalance:  d.amount(current),
			AccountVersion:         version,
			CreatedAt:              createdAt.Time.UTC(),
		}
		if d.err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, d.err)
		}
		return entry, nil
	})
}
