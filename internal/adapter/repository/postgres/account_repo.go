package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

const accountColumns = `id, owner, asset, balance, version, issuer, created_at, updated_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// GetByOwnerAsset retrieves the account of owner for asset.
func (r *AccountRepository) GetByOwnerAsset(ctx context.Context, owner, asset common.Address) (*domain.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner = $1 AND asset = $2`,
		owner.Bytes(), asset.Bytes(),
	)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// EnsureForUpdate inserts account unless owner/asset already has one, then
// locks and returns the stored row.
func (r *AccountRepository) EnsureForUpdate(ctx context.Context, tx usecase.Transaction, account *domain.Account) (*domain.Account, error) {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return nil, err
	}

	_, err = pgxTx.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner, asset) DO NOTHING`,
		account.ID,
		account.Owner.Bytes(),
		account.Asset.Bytes(),
		amountToNumeric(account.Balance),
		account.Version,
		account.Issuer,
		timeToPgTimestamptz(account.CreatedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if err != nil {
		return nil, err
	}

	row := pgxTx.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner = $1 AND asset = $2 FOR UPDATE`,
		account.Owner.Bytes(), account.Asset.Bytes(),
	)
	return scanAccount(row)
}

// UpdateBalance sets the balance and bumps the account version.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance *uint256.Int, updatedAt time.Time) error {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	tag, err := pgxTx.Exec(ctx,
		`UPDATE accounts SET balance = $2, version = version + 1, updated_at = $3 WHERE id = $1`,
		id, amountToNumeric(balance), timeToPgTimestamptz(updatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ListByOwner lists owner's accounts ordered by asset.
func (r *AccountRepository) ListByOwner(ctx context.Context, owner common.Address) ([]*domain.Account, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE owner = $1 ORDER BY asset`,
		owner.Bytes(),
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Account, error) {
		return scanAccount(row)
	})
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		id                   string
		owner, asset         []byte
		balance              pgtype.Numeric
		version              int64
		issuer               bool
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &owner, &asset, &balance, &version, &issuer, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var d decoder
	account := &domain.Account{
		ID:        id,
		Owner:     d.address(owner),
		Asset:     d.address(asset),
		Balance:   d.amount(balance),
		Version:   version,
		Issuer:    issuer,
		CreatedAt: createdAt.Time.UTC(),
		UpdatedAt: updatedAt.Time.UTC(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode account %s: %w", id, d.err)
	}
	return account, nil
}
