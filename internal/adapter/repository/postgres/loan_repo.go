package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

const loanColumns = `id, requester, pool_address, headline, description, asset,
	loan_amount, loan_period_days, interest_rate_min, interest_rate_max, created_at`

// LoanRepository implements usecase.LoanRepository.
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository.
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

// NextID bumps the registry counter. The counter row stays locked until tx
// ends, so concurrent creations queue and a rollback gives the id back.
func (r *LoanRepository) NextID(ctx context.Context, tx usecase.Transaction) (uint64, error) {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return 0, err
	}

	var id int64
	err = pgxTx.QueryRow(ctx,
		`UPDATE registry SET next_loan_id = next_loan_id + 1 WHERE id = 1 RETURNING next_loan_id - 1`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reserve loan id: %w", err)
	}
	return uint64(id), nil
}

// Create inserts loan metadata.
func (r *LoanRepository) Create(ctx context.Context, tx usecase.Transaction, loan *domain.LoanMetadata) error {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	_, err = pgxTx.Exec(ctx, `
		INSERT INTO loans (`+loanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		int64(loan.ID),
		loan.Requester.Bytes(),
		loan.PoolAddress.Bytes(),
		loan.Headline,
		loan.Description,
		loan.Asset.Bytes(),
		amountToNumeric(loan.LoanAmount),
		int64(loan.LoanPeriod),
		amountToNumeric(loan.InterestRateMin),
		amountToNumeric(loan.InterestRateMax),
		timeToPgTimestamptz(loan.Timestamp),
	)
	return err
}

// GetByID retrieves loan metadata by id.
func (r *LoanRepository) GetByID(ctx context.Context, id uint64) (*domain.LoanMetadata, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, int64(id))

	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// List returns loans in creation order.
func (r *LoanRepository) List(ctx context.Context, limit, offset int) ([]*domain.LoanMetadata, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans ORDER BY id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

// ListByRequester returns requester's loans in creation order.
func (r *LoanRepository) ListByRequester(ctx context.Context, requester common.Address, limit, offset int) ([]*domain.LoanMetadata, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE requester = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		requester.Bytes(), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectLoans(rows)
}

func collectLoans(rows pgx.Rows) ([]*domain.LoanMetadata, error) {
	loans, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.LoanMetadata, error) {
		return scanLoan(row)
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func scanLoan(row pgx.Row) (*domain.LoanMetadata, error) {
	var (
		id, period                 int64
		requester, poolAddr, asset []byte
		headline, description      string
		amount, rateMin, rateMax   pgtype.Numeric
		createdAt                  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &requester, &poolAddr, &headline, &description, &asset,
		&amount, &period, &rateMin, &rateMax, &createdAt); err != nil {
		return nil, err
	}

	var d decoder
	loan := &domain.LoanMetadata{
		ID:              uint64(id),
		Requester:       d.address(requester),
		PoolAddress:     d.address(poolAddr),
		Headline:        headline,
		Description:     description,
		Asset:           d.address(asset),
		LoanAmount:      d.amount(amount),
		LoanPeriod:      uint64(period),
		InterestRateMin: d.amount(rateMin),
		InterestRateMax: d.amount(rateMax),
		Timestamp:       createdAt.Time.UTC(),
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode loan %d: %w", id, d.err)
	}
	return loan, nil
}
