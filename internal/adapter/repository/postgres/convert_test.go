package postgres

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericToAmount(t *testing.T) {
	maxUint256 := new(uint256.Int).SetAllOne()
	tooBig := new(big.Int).Add(maxUint256.ToBig(), big.NewInt(1))

	tests := []struct {
		name    string
		in      pgtype.Numeric
		want    *uint256.Int
		wantErr bool
	}{
		{name: "null reads as zero", in: pgtype.Numeric{}, want: uint256.NewInt(0)},
		{name: "plain integer", in: pgtype.Numeric{Int: big.NewInt(17_701_027), Valid: true}, want: uint256.NewInt(17_701_027)},
		{name: "positive exponent", in: pgtype.Numeric{Int: big.NewInt(15), Exp: 6, Valid: true}, want: uint256.NewInt(15_000_000)},
		{name: "negative exponent without fraction", in: pgtype.Numeric{Int: big.NewInt(1500), Exp: -2, Valid: true}, want: uint256.NewInt(15)},
		{name: "fractional value", in: pgtype.Numeric{Int: big.NewInt(1501), Exp: -2, Valid: true}, wantErr: true},
		{name: "negative value", in: pgtype.Numeric{Int: big.NewInt(-1), Valid: true}, wantErr: true},
		{name: "nan", in: pgtype.Numeric{NaN: true, Valid: true}, wantErr: true},
		{name: "max uint256", in: pgtype.Numeric{Int: maxUint256.ToBig(), Valid: true}, want: maxUint256},
		{name: "overflow", in: pgtype.Numeric{Int: tooBig, Valid: true}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := numericToAmount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountToNumericRoundTrip(t *testing.T) {
	for _, v := range []*uint256.Int{
		nil,
		uint256.NewInt(0),
		uint256.NewInt(102_739),
		uint256.MustFromDecimal("10250000000000000000"),
		new(uint256.Int).SetAllOne(),
	} {
		n := amountToNumeric(v)
		require.True(t, n.Valid)

		got, err := numericToAmount(n)
		require.NoError(t, err)
		if v == nil {
			assert.True(t, got.IsZero())
			continue
		}
		assert.Equal(t, v, got)
	}
}

func TestBytesToAddress(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000c0")

	got, err := bytesToAddress(addr.Bytes())
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	_, err = bytesToAddress([]byte{0xc0})
	assert.Error(t, err)
}

func TestDecoderKeepsFirstError(t *testing.T) {
	var d decoder
	_ = d.address([]byte{1, 2})
	first := d.err
	require.Error(t, first)

	assert.Nil(t, d.amount(pgtype.Numeric{Int: big.NewInt(-5), Valid: true}))
	assert.Equal(t, first, d.err)
}
