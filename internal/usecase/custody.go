package usecase

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/iho/golend/internal/domain"
)

// bookCustody is a pool's custody account in the asset book, bound to the
// transaction the pool operation runs in.
type bookCustody struct {
	book   *assetBook
	tx     Transaction
	loanID uint64
	pool   common.Address
	asset  common.Address

	transfers []*domain.Transfer
}

func (c *bookCustody) TransferIn(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return c.post(ctx, from, c.pool, amount)
}

func (c *bookCustody) TransferOut(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return c.post(ctx, c.pool, to, amount)
}

func (c *bookCustody) Balance(ctx context.Context) (*uint256.Int, error) {
	return c.book.balance(ctx, c.tx, c.pool, c.asset)
}

func (c *bookCustody) post(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	transfer := &domain.Transfer{
		Asset:    c.asset,
		From:     from,
		To:       to,
		Amount:   domain.CloneAmount(amount),
		Metadata: map[string]any{"loan_id": c.loanID},
	}
	if err := c.book.post(ctx, c.tx, transfer); err != nil {
		return err
	}
	c.transfers = append(c.transfers, transfer)
	return nil
}
