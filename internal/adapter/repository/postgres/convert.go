package postgres

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/golend/internal/domain"
)

var bigTen = big.NewInt(10)

func amountToNumeric(a *uint256.Int) pgtype.Numeric {
	if a == nil {
		return pgtype.Numeric{Int: new(big.Int), Valid: true}
	}
	return pgtype.Numeric{Int: a.ToBig(), Valid: true}
}

// numericToAmount converts a NUMERIC(78,0) value. NULL reads as zero so
// aggregates over empty sets need no COALESCE.
func numericToAmount(n pgtype.Numeric) (*uint256.Int, error) {
	if !n.Valid {
		return domain.Zero(), nil
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, fmt.Errorf("numeric is not a finite amount")
	}
	if n.Int == nil {
		return domain.Zero(), nil
	}

	v := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(bigTen, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		rem := new(big.Int)
		v.QuoRem(v, new(big.Int).Exp(bigTen, big.NewInt(int64(-n.Exp)), nil), rem)
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("numeric %se%d has a fractional part", n.Int, n.Exp)
		}
	}

	if v.Sign() < 0 {
		return nil, fmt.Errorf("numeric %s is negative", v)
	}
	a, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("numeric %s overflows 256 bits", v)
	}
	return a, nil
}

func bytesToAddress(b []byte) (common.Address, error) {
	if len(b) != common.AddressLength {
		return common.Address{}, fmt.Errorf("address column holds %d bytes", len(b))
	}
	return common.BytesToAddress(b), nil
}

func timeToPgTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// decoder converts scanned columns into domain values and keeps the first
// conversion error.
type decoder struct {
	err error
}

func (c *decoder) amount(n pgtype.Numeric) *uint256.Int {
	if c.err != nil {
		return nil
	}
	a, err := numericToAmount(n)
	if err != nil {
		c.err = err
		return nil
	}
	return a
}

func (c *decoder) address(b []byte) common.Address {
	if c.err != nil {
		return common.Address{}
	}
	a, err := bytesToAddress(b)
	if err != nil {
		c.err = err
	}
	return a
}
