package pebble

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/types"
)

func TestPebbleTradeStore(t *testing.T) {
	dir := t.TempDir()
	btcUSD := types.NewPair(types.BTC, types.USD)
	ethUSD := types.NewPair(types.ETH, types.USD)

	s, err := Open(dir)
	require.NoError(t, err)

	last, err := s.LastID()
	require.NoError(t, err)
	assert.Zero(t, last)

	require.NoError(t, s.SaveBatch([]*types.Trade{
		{TradeID: 1, Pair: btcUSD, Rate: decimal.RequireFromString("2.00"), Amount: 10, Filled: true},
		{TradeID: 2, Pair: ethUSD, Rate: decimal.NewFromInt(3), Amount: 20, Filled: true},
	}))
	// IDs above 9 check that keys sort numerically
	require.NoError(t, s.Save(&types.Trade{TradeID: 10, Pair: btcUSD, Rate: decimal.NewFromInt(1), Amount: 30, Filled: true}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	var ids []uint64
	require.NoError(t, s.Scan(btcUSD, 0, func(tr *types.Trade) error {
		ids = append(ids, tr.TradeID)
		return nil
	}))
	assert.Equal(t, []uint64{1, 10}, ids)

	ids = nil
	require.NoError(t, s.Scan(btcUSD, 1, func(tr *types.Trade) error {
		ids = append(ids, tr.TradeID)
		return nil
	}))
	assert.Equal(t, []uint64{10}, ids)

	last, err = s.LastID()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), last)
}
