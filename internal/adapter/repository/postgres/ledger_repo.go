package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iho/golend/internal/domain"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// AssetTotals sums balances and entries per asset, ordered by asset. Both
// sums are taken from one snapshot.
func (r *LedgerRepository) AssetTotals(ctx context.Context) ([]domain.AssetTotals, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		WITH balances AS (
			SELECT asset,
				SUM(balance) FILTER (WHERE issuer) AS issuer_supply,
				SUM(balance) FILTER (WHERE NOT issuer) AS holder_total
			FROM accounts
			GROUP BY asset
		), postings AS (
			SELECT a.asset,
				SUM(e.amount) FILTER (WHERE e.direction = 'debit') AS debit_total,
				SUM(e.amount) FILTER (WHERE e.direction = 'credit') AS credit_total
			FROM entries e
			JOIN accounts a ON a.id = e.account_id
			GROUP BY a.asset
		)
		SELECT COALESCE(b.asset, p.asset), b.issuer_supply, b.holder_total,
			p.debit_total, p.credit_total
		FROM balances b
		FULL JOIN postings p ON p.asset = b.asset
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AssetTotals, error) {
		var (
			asset           []byte
			supply, holders pgtype.Numeric
			debits, credits pgtype.Numeric
		)
		if err := row.Scan(&asset, &supply, &holders, &debits, &credits); err != nil {
			return domain.AssetTotals{}, err
		}

		var d decoder
		totals := domain.AssetTotals{
			Asset:        d.address(asset),
			IssuerSupply: d.amount(supply),
			HolderTotal:  d.amount(holders),
			DebitTotal:   d.amount(debits),
			CreditTotal:  d.amount(credits),
		}
		if d.err != nil {
			return domain.AssetTotals{}, fmt.Errorf("decode asset totals: %w", d.err)
		}
		return totals, nil
	})
}
