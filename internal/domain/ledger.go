package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssetTotals aggregates the asset book for one asset.
type AssetTotals struct {
	Asset        common.Address
	IssuerSupply *uint256.Int // balance of the issuer account
	HolderTotal  *uint256.Int // sum of every non-issuer balance
	DebitTotal   *uint256.Int
	CreditTotal  *uint256.Int
}

// Balanced reports whether the book for this asset is internally consistent:
// every unit handed out by the issuer is held by someone and every debit has
// a matching credit.
func (t AssetTotals) Balanced() bool {
	return t.IssuerSupply.Eq(t.HolderTotal) && t.DebitTotal.Eq(t.CreditTotal)
}
