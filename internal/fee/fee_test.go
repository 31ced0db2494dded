package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOfIsExact(t *testing.T) {
	amount := decimal.RequireFromString("0.12345678")
	got := Of(amount)
	assert.True(t, got.Equal(decimal.RequireFromString("0.00012345678")),
		"fee on 0.12345678 at 0.001 must be exactly 0.00012345678, got %s", got)
}

func TestEscrowAmount(t *testing.T) {
	cases := []struct {
		quantity string
		want     string
	}{
		{"1", "1.001"},
		{"2", "2.002"},
		{"0.5", "0.5005"},
		{"0.12345678", "0.12358023678"},
	}
	for _, tc := range cases {
		got := EscrowAmount(decimal.RequireFromString(tc.quantity))
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)),
			"escrow for %s: want %s, got %s", tc.quantity, tc.want, got)
	}
}

func TestEscrowEqualsPrincipalPlusFee(t *testing.T) {
	q := decimal.RequireFromString("0.33333333")
	assert.True(t, EscrowAmount(q).Equal(q.Add(Of(q))))
}
