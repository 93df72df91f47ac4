package matching_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/matching"
	"github.com/PxPatel/currency-exchange/internal/types"
)

var (
	btcUSD = types.NewPair(types.BTC, types.USD)
	ethUSD = types.NewPair(types.ETH, types.USD)
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func limit(id uint64, side types.SideType, p string, amount int64) *types.Order {
	return types.NewOrder(id, "user", types.LimitOrder, side, btcUSD, amount, price(p))
}

func TestOrderBookPriceTimePriority(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)

	require.NoError(t, ob.Insert(limit(1, types.Buy, "100", 10)))
	require.NoError(t, ob.Insert(limit(2, types.Buy, "101", 10)))
	require.NoError(t, ob.Insert(limit(3, types.Buy, "101", 10)))
	require.NoError(t, ob.Insert(limit(4, types.Sell, "103", 10)))
	require.NoError(t, ob.Insert(limit(5, types.Sell, "102", 10)))
	require.NoError(t, ob.Insert(limit(6, types.Sell, "102", 10)))

	assert.Equal(t, uint64(2), ob.BestBid().ID)
	assert.Equal(t, uint64(5), ob.BestAsk().ID)
	assert.Equal(t, 6, ob.Len())

	var bidIDs []uint64
	for _, o := range ob.Orders(types.Buy) {
		bidIDs = append(bidIDs, o.ID)
	}
	assert.Equal(t, []uint64{2, 3, 1}, bidIDs)

	popped, ok := ob.PopBest(types.Sell)
	require.True(t, ok)
	assert.Equal(t, uint64(5), popped.ID)
	assert.Equal(t, uint64(6), ob.BestAsk().ID)
	_, found := ob.Get(5)
	assert.False(t, found)
}

func TestOrderBookRemove(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	require.NoError(t, ob.Insert(limit(1, types.Sell, "5", 10)))
	require.NoError(t, ob.Insert(limit(2, types.Sell, "5", 10)))

	removed, ok := ob.Remove(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), removed.ID)
	assert.Equal(t, uint64(2), ob.BestAsk().ID)

	_, ok = ob.Remove(1)
	assert.False(t, ok)

	_, ok = ob.PopBest(types.Sell)
	require.True(t, ok)
	_, ok = ob.PopBest(types.Sell)
	assert.False(t, ok)
	assert.Nil(t, ob.BestAsk())
	assert.Zero(t, ob.Len())
}

func TestOrderBookInsertRejects(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	require.NoError(t, ob.Insert(limit(1, types.Buy, "1", 10)))

	tests := []struct {
		name  string
		order *types.Order
	}{
		{"Duplicate", limit(1, types.Buy, "1", 10)},
		{"Market", types.NewOrder(2, "user", types.MarketOrder, types.Buy, btcUSD, 10, decimal.Zero)},
		{"OtherPair", types.NewOrder(3, "user", types.LimitOrder, types.Buy, ethUSD, 10, price("1"))},
		{"NoPrice", limit(4, types.Sell, "0", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ob.Insert(tt.order), types.ErrInvalidOrder)
		})
	}
	assert.Equal(t, 1, ob.Len())
}

func TestOrderBookDepth(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	require.NoError(t, ob.Insert(limit(1, types.Sell, "2.0", 10)))
	require.NoError(t, ob.Insert(limit(2, types.Sell, "2.00", 5)))
	require.NoError(t, ob.Insert(limit(3, types.Sell, "2.5", 7)))
	require.NoError(t, ob.Insert(limit(4, types.Sell, "3", 1)))

	depth := ob.Depth(types.Sell, 2)
	require.Len(t, depth, 2)
	assert.True(t, depth[0].Price.Equal(price("2")))
	assert.Equal(t, int64(15), depth[0].Amount)
	assert.Equal(t, 2, depth[0].Orders)
	assert.Equal(t, int64(7), depth[1].Amount)

	assert.Len(t, ob.Depth(types.Sell, 0), 3)
	assert.Empty(t, ob.Depth(types.Buy, 5))
}

func TestOrderBookFillable(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	require.NoError(t, ob.Insert(limit(1, types.Sell, "2", 10)))
	require.NoError(t, ob.Insert(limit(2, types.Sell, "2.5", 10)))

	base, quote, err := ob.Fillable(types.Sell, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(15), base)
	assert.Equal(t, int64(20+12), quote) // 10*2 + floor(5*2.5)

	base, quote, err = ob.Fillable(types.Sell, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(20), base)
	assert.Equal(t, int64(45), quote)

	base, _, err = ob.Fillable(types.Buy, 5)
	require.NoError(t, err)
	assert.Zero(t, base)
}

func TestOrderBookFillableStopsBelowOneQuoteUnit(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	require.NoError(t, ob.Insert(limit(1, types.Sell, "0.3", 10)))

	// 3 units cost floor(0.9) = 0, so nothing is executable
	base, quote, err := ob.Fillable(types.Sell, 3)
	require.NoError(t, err)
	assert.Zero(t, base)
	assert.Zero(t, quote)

	// 14 units: the first 10 take the whole order, the last 4 are worth 1
	require.NoError(t, ob.Insert(limit(2, types.Sell, "0.3", 10)))
	base, quote, err = ob.Fillable(types.Sell, 14)
	require.NoError(t, err)
	assert.Equal(t, int64(14), base)
	assert.Equal(t, int64(3+1), quote)
}

func TestOrderBookFillableRejectsOverflowingCost(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	require.NoError(t, ob.Insert(limit(1, types.Sell, "1", math.MaxInt64/2+1)))
	require.NoError(t, ob.Insert(limit(2, types.Sell, "2", math.MaxInt64/2+1)))

	_, _, err := ob.Fillable(types.Sell, math.MaxInt64)
	assert.ErrorIs(t, err, types.ErrInvalidOrder)
}

func TestOrderBookCrossed(t *testing.T) {
	ob := matching.NewOrderBook(btcUSD)
	assert.False(t, ob.Crossed())

	require.NoError(t, ob.Insert(limit(1, types.Buy, "10", 1)))
	require.NoError(t, ob.Insert(limit(2, types.Sell, "12", 1)))
	assert.False(t, ob.Crossed())

	require.NoError(t, ob.Insert(limit(3, types.Buy, "12", 1)))
	assert.True(t, ob.Crossed())
}
