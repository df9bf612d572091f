package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSizeTradeRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		trade  int64
		factor float64
		want   int64
	}{
		{37, 0.1, 4},   // 3.7 rounds up
		{-37, 0.1, -4}, // symmetric for sells
		{25, 0.1, 3},   // 2.5 rounds away from zero
		{-25, 0.1, -3},
		{4, 0.1, 0}, // 0.4 rounds to nothing
		{12, 0.5, 6},
	}
	for _, tc := range cases {
		got := SizeTrade(decimal.NewFromInt(tc.trade), tc.factor)
		assert.True(t, got.Equal(decimal.NewFromInt(tc.want)),
			"SizeTrade(%d, %v) = %s, want %d", tc.trade, tc.factor, got, tc.want)
	}
}

func TestSizeTradePassthrough(t *testing.T) {
	trade := decimal.NewFromInt(37)
	assert.True(t, SizeTrade(trade, 1).Equal(trade))
	assert.True(t, SizeTrade(trade, 0).Equal(trade))
	assert.True(t, SizeTrade(trade, -0.5).Equal(trade))
}
