package matching_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/journal"
	"github.com/PxPatel/currency-exchange/internal/ledger"
	"github.com/PxPatel/currency-exchange/internal/market"
	"github.com/PxPatel/currency-exchange/internal/matching"
	"github.com/PxPatel/currency-exchange/internal/types"
)

func TestRecoverRebuildsBooks(t *testing.T) {
	x := newTestExchange(t, matching.RejectUnfilled)
	ctx := context.Background()
	x.fund(t, "seller", types.BTC, 100)
	x.fund(t, "buyer", types.USD, 1000)

	partial := x.limit(t, "seller", types.Sell, 60, "2")
	resting := x.limit(t, "seller", types.Sell, 40, "3")
	_, err := x.market("buyer", types.Buy, 20)
	require.NoError(t, err)
	bid := x.limit(t, "buyer", types.Buy, 10, "1")
	cancelled := x.limit(t, "buyer", types.Buy, 5, "1")
	_, err = x.engine.CancelOrder(ctx, cancelled.Order.ID)
	require.NoError(t, err)

	// Restart: a fresh engine over the same stores and a restored ledger
	registry, err := market.NewSingleExchange("http://exchange.test", types.USD, types.BTC, types.ETH)
	require.NoError(t, err)
	restored := ledger.New()
	require.NoError(t, restored.Restore(x.ledger.Snapshot()))
	j := journal.New(x.trades)
	require.NoError(t, j.Resume(ctx))

	engine := matching.NewEngine(registry, restored, j, x.orders, matching.RejectUnfilled)
	require.NoError(t, engine.Recover(ctx))

	bids, asks, err := engine.OrderBookDepth(btcUSD, 0)
	require.NoError(t, err)
	require.Len(t, asks, 2)
	assert.Equal(t, int64(40), asks[0].Amount)
	assert.Equal(t, int64(40), asks[1].Amount)
	require.Len(t, bids, 1)
	assert.Equal(t, int64(10), bids[0].Amount)

	got, err := engine.GetOrderStatus(partial.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartiallyFilled, got.Status)

	// Matching continues where it stopped
	res, err := engine.SubmitOrder(ctx, matching.OrderRequest{
		UserID: "buyer", Pair: btcUSD, Side: types.Buy, OrderType: types.MarketOrder, Amount: 50,
	})
	require.NoError(t, err)
	assert.Greater(t, res.Order.ID, cancelled.Order.ID)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, uint64(2), res.Trades[0].TradeID)
	assert.Equal(t, partial.Order.ID, res.Trades[0].SellOrderID)
	assert.Equal(t, resting.Order.ID, res.Trades[1].SellOrderID)

	_, err = engine.CancelOrder(ctx, bid.Order.ID)
	require.NoError(t, err)
	assert.Zero(t, restored.Account("buyer", types.USD).Held)
}

func TestRecoverReplaysFillsMissingFromStore(t *testing.T) {
	x := newTestExchange(t, matching.RejectUnfilled)
	ctx := context.Background()
	x.fund(t, "seller", types.BTC, 100)
	x.fund(t, "buyer", types.USD, 1000)

	sell := x.limit(t, "seller", types.Sell, 30, "2")
	_, err := x.market("buyer", types.Buy, 30)
	require.NoError(t, err)

	// Simulate a crash between the journal write and the order store update
	stale, err := x.orders.Get(sell.Order.ID)
	require.NoError(t, err)
	stale.Status = types.StatusOpen
	stale.Remaining = 30
	require.NoError(t, x.orders.Update(stale))

	registry, err := market.NewSingleExchange("http://exchange.test", types.USD, types.BTC)
	require.NoError(t, err)
	engine := matching.NewEngine(registry, x.ledger, journal.New(x.trades), x.orders, matching.RejectUnfilled)
	require.NoError(t, engine.Recover(ctx))

	_, asks, err := engine.OrderBookDepth(btcUSD, 0)
	require.NoError(t, err)
	assert.Empty(t, asks)

	got, err := engine.GetOrderStatus(sell.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, got.Status)
}
