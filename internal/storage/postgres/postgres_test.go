package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// testPool connects to TEST_POSTGRES_URL and empties every table. Tests are
// skipped when no database is configured.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "TRUNCATE TABLE trades, orders, accounts, exchange_securities, exchanges RESTART IDENTITY")
	require.NoError(t, err)
	return pool
}

var btcUSD = types.NewPair(types.BTC, types.USD)

func TestPostgresOrderStore(t *testing.T) {
	pool := testPool(t)
	s := NewPostgresOrderStore(pool)

	limit := types.NewOrder(1, "alice", types.LimitOrder, types.Sell, btcUSD, 500, decimal.RequireFromString("2.25"))
	market := types.NewOrder(2, "bob", types.MarketOrder, types.Buy, btcUSD, 100, decimal.Zero)
	require.NoError(t, s.Save(limit))
	require.NoError(t, s.Save(market))

	got, err := s.Get(1)
	require.NoError(t, err)
	assert.Equal(t, types.LimitOrder, got.OrderType)
	assert.Equal(t, types.Sell, got.Side)
	assert.Equal(t, btcUSD, got.Pair())
	assert.True(t, got.LimitPrice.Equal(decimal.RequireFromString("2.25")))

	got, err = s.Get(2)
	require.NoError(t, err)
	assert.True(t, got.LimitPrice.IsZero())

	market.Status = types.StatusFilled
	market.Remaining = 0
	market.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.Update(market))

	open := s.GetOpen()
	require.Len(t, open, 1)
	assert.Equal(t, uint64(1), open[0].ID)

	assert.Len(t, s.GetByUser("bob"), 1)
	assert.Len(t, s.GetAll(), 2)

	_, err = s.Get(99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPostgresTradeStore(t *testing.T) {
	pool := testPool(t)
	s := NewPostgresTradeStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.SaveBatch([]*types.Trade{
		{TradeID: 1, Pair: btcUSD, Rate: decimal.RequireFromString("2.00"), BuyOrderID: 2, SellOrderID: 1, Amount: 10, Filled: true, Timestamp: now},
		{TradeID: 2, Pair: btcUSD, Rate: decimal.RequireFromString("2.10"), BuyOrderID: 3, SellOrderID: 1, Amount: 5, Filled: true, Timestamp: now},
	}))
	// Re-saving an existing trade is a no-op
	require.NoError(t, s.Save(&types.Trade{TradeID: 2, Pair: btcUSD, Rate: decimal.NewFromInt(9), Amount: 1, Timestamp: now}))

	var trades []*types.Trade
	require.NoError(t, s.Scan(btcUSD, 0, func(tr *types.Trade) error {
		trades = append(trades, tr)
		return nil
	}))
	require.Len(t, trades, 2)
	assert.True(t, trades[1].Rate.Equal(decimal.RequireFromString("2.1")))
	assert.Equal(t, now, trades[0].Timestamp.UTC())

	last, err := s.LastID()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}

func TestPostgresAccountAndExchangeStores(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	accounts := NewAccountStore(pool)
	snapshot := []types.Account{
		{UserID: "alice", Currency: types.BTC, Balance: 100, Held: 40},
		{UserID: "bob", Currency: types.USD, Balance: 900},
	}
	require.NoError(t, accounts.SaveAccounts(ctx, snapshot))
	snapshot[0].Held = 0
	require.NoError(t, accounts.SaveAccounts(ctx, snapshot))

	loaded, err := accounts.LoadAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot, loaded)

	exchanges := NewExchangeStore(pool)
	ex, err := exchanges.CreateExchange(ctx, types.Exchange{APIURL: "https://ex.example", BaseCurrency: types.USD}, types.BTC, types.ETH)
	require.NoError(t, err)
	assert.NotZero(t, ex.ID)

	exs, secs, err := exchanges.LoadExchanges(ctx)
	require.NoError(t, err)
	require.Len(t, exs, 1)
	assert.Equal(t, types.USD, exs[0].BaseCurrency)
	assert.Len(t, secs, 2)
}
