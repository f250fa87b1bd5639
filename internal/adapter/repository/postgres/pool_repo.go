package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/golend/internal/domain"
	"github.com/iho/golend/internal/usecase"
)

const selectPool = `
	SELECT p.loan_id, p.address, l.requester, l.asset, l.loan_amount,
		l.loan_period_days, l.interest_rate_min, l.interest_rate_max,
		p.status, p.amount_remaining, p.principal_amount, p.interest_rate,
		p.interest_amount, p.amount_owed, p.amount_repaid,
		p.last_observed_balance, p.uncredited, p.version, p.updated_at
	FROM pools p
	JOIN loans l ON l.id = p.loan_id
	WHERE p.loan_id = $1`

// PoolRepository implements usecase.PoolRepository. The pool row holds the
// scalar ledger state and pool_lenders holds one row per lender with a
// positive contribution.
type PoolRepository struct {
	pool *pgxpool.Pool
}

// NewPoolRepository creates a new PoolRepository.
func NewPoolRepository(pool *pgxpool.Pool) *PoolRepository {
	return &PoolRepository{pool: pool}
}

// Create stores the initial pool state for loanID at version 1.
func (r *PoolRepository) Create(ctx context.Context, tx usecase.Transaction, loanID uint64, pool domain.PoolSnapshot) error {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	_, err = pgxTx.Exec(ctx, `
		INSERT INTO pools (
			loan_id, address, status, amount_remaining, principal_amount,
			interest_rate, interest_amount, amount_owed, amount_repaid,
			last_observed_balance, uncredited, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12)`,
		int64(loanID),
		pool.Address.Bytes(),
		pool.Status.String(),
		amountToNumeric(pool.AmountRemaining),
		amountToNumeric(pool.Finalized.PrincipalAmount),
		amountToNumeric(pool.Finalized.InterestRate),
		amountToNumeric(pool.Finalized.InterestAmount),
		amountToNumeric(pool.Finalized.AmountOwed),
		amountToNumeric(pool.Finalized.AmountRepaid),
		amountToNumeric(pool.LastObservedBalance),
		amountToNumeric(pool.Uncredited),
		timeToPgTimestamptz(time.Now().UTC()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pool for loan %d already exists", loanID)
		}
		return err
	}

	return writeLenders(ctx, pgxTx, loanID, pool.Lenders, false)
}

// GetByLoanID reads the pool state of loanID from one consistent snapshot.
func (r *PoolRepository) GetByLoanID(ctx context.Context, loanID uint64) (domain.PoolSnapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	defer tx.Rollback(ctx)

	return loadPool(ctx, tx, loanID, false)
}

// GetByLoanIDForUpdate reads the pool state and locks the pool row until
// tx ends.
func (r *PoolRepository) GetByLoanIDForUpdate(ctx context.Context, tx usecase.Transaction, loanID uint64) (domain.PoolSnapshot, error) {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	return loadPool(ctx, pgxTx, loanID, true)
}

// Save replaces the pool state if pool.Version is still current and bumps
// the stored version.
func (r *PoolRepository) Save(ctx context.Context, tx usecase.Transaction, loanID uint64, pool domain.PoolSnapshot) error {
	pgxTx, err := unwrapTx(tx)
	if err != nil {
		return err
	}

	tag, err := pgxTx.Exec(ctx, `
		UPDATE pools SET
			status = $3,
			amount_remaining = $4,
			principal_amount = $5,
			interest_rate = $6,
			interest_amount = $7,
			amount_owed = $8,
			amount_repaid = $9,
			last_observed_balance = $10,
			uncredited = $11,
			version = version + 1,
			updated_at = $12
		WHERE loan_id = $1 AND version = $2`,
		int64(loanID),
		pool.Version,
		pool.Status.String(),
		amountToNumeric(pool.AmountRemaining),
		amountToNumeric(pool.Finalized.PrincipalAmount),
		amountToNumeric(pool.Finalized.InterestRate),
		amountToNumeric(pool.Finalized.InterestAmount),
		amountToNumeric(pool.Finalized.AmountOwed),
		amountToNumeric(pool.Finalized.AmountRepaid),
		amountToNumeric(pool.LastObservedBalance),
		amountToNumeric(pool.Uncredited),
		timeToPgTimestamptz(time.Now().UTC()),
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := pgxTx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pools WHERE loan_id = $1)`, int64(loanID),
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrPoolNotFound
		}
		return domain.ErrVersionConflict
	}

	return writeLenders(ctx, pgxTx, loanID, pool.Lenders, true)
}

// writeLenders stores the lender positions of loanID in one round trip,
// replacing the stored set when replace is true.
func writeLenders(ctx context.Context, q querier, loanID uint64, lenders []domain.LenderPosition, replace bool) error {
	batch := &pgx.Batch{}
	if replace {
		batch.Queue(`DELETE FROM pool_lenders WHERE loan_id = $1`, int64(loanID))
	}
	for _, l := range lenders {
		if l.Contributed == nil || l.Contributed.IsZero() {
			continue
		}
		batch.Queue(
			`INSERT INTO pool_lenders (loan_id, lender, contributed, claimed) VALUES ($1, $2, $3, $4)`,
			int64(loanID), l.Lender.Bytes(), amountToNumeric(l.Contributed), amountToNumeric(l.Claimed),
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	return q.SendBatch(ctx, batch).Close()
}

func loadPool(ctx context.Context, q querier, loanID uint64, forUpdate bool) (domain.PoolSnapshot, error) {
	query := selectPool
	if forUpdate {
		query += ` FOR UPDATE OF p`
	}

	var (
		id, period, version         int64
		address, requester, asset   []byte
		status                      string
		requested, rateMin, rateMax pgtype.Numeric
		remaining, principal, rate  pgtype.Numeric
		interest, owed, repaid      pgtype.Numeric
		observed, uncredited        pgtype.Numeric
		updatedAt                   pgtype.Timestamptz
	)
	err := q.QueryRow(ctx, query, int64(loanID)).Scan(
		&id, &address, &requester, &asset, &requested,
		&period, &rateMin, &rateMax,
		&status, &remaining, &principal, &rate,
		&interest, &owed, &repaid,
		&observed, &uncredited, &version, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PoolSnapshot{}, domain.ErrPoolNotFound
		}
		return domain.PoolSnapshot{}, err
	}

	poolStatus, err := domain.ParsePoolStatus(status)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}

	var d decoder
	snapshot := domain.PoolSnapshot{
		Address: d.address(address),
		Terms: domain.LoanTerms{
			LoanID:          uint64(id),
			Requester:       d.address(requester),
			Asset:           d.address(asset),
			RequestedAmount: d.amount(requested),
			PeriodDays:      uint64(period),
			RateMin:         d.amount(rateMin),
			RateMax:         d.amount(rateMax),
		},
		Status:          poolStatus,
		AmountRemaining: d.amount(remaining),
		Finalized: domain.FinalizedTerms{
			PrincipalAmount: d.amount(principal),
			InterestRate:    d.amount(rate),
			InterestAmount:  d.amount(interest),
			AmountOwed:      d.amount(owed),
			AmountRepaid:    d.amount(repaid),
		},
		LastObservedBalance: d.amount(observed),
		Uncredited:          d.amount(uncredited),
		Version:             version,
		UpdatedAt:           updatedAt.Time.UTC(),
	}
	if d.err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("decode pool %d: %w", loanID, d.err)
	}

	rows, err := q.Query(ctx,
		`SELECT lender, contributed, claimed FROM pool_lenders WHERE loan_id = $1 ORDER BY lender`,
		int64(loanID),
	)
	if err != nil {
		return domain.PoolSnapshot{}, err
	}
	snapshot.Lenders, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LenderPosition, error) {
		var (
			lender               []byte
			contributed, claimed pgtype.Numeric
		)
		if err := row.Scan(&lender, &contributed, &claimed); err != nil {
			return domain.LenderPosition{}, err
		}
		var d decoder
		pos := domain.LenderPosition{
			Lender:      d.address(lender),
			Contributed: d.amount(contributed),
			Claimed:     d.amount(claimed),
		}
		return pos, d.err
	})
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("decode lenders of pool %d: %w", loanID, err)
	}

	return snapshot, nil
}
