package types

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{"BTC/USD", NewPair(BTC, USD), false},
		{"eth/eur", NewPair(ETH, EUR), false},
		{"BTCUSD", Pair{}, true},
		{"BTC/XYZ", Pair{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePair(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnumLabels(t *testing.T) {
	assert.Equal(t, "Bitcoin", BTC.Label())
	assert.Equal(t, "BTC", BTC.String())
	assert.Equal(t, "Limit", LimitOrder.Label())
	assert.Equal(t, "sell", Sell.String())
	assert.Equal(t, "Partially filled", StatusPartiallyFilled.Label())
	assert.Equal(t, "unknown", OrderType(99).String())
	assert.Equal(t, Sell, Buy.Opposite())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPartiallyFilled.Terminal())
}

func TestOrderJSONUsesCodes(t *testing.T) {
	order := NewOrder(7, "alice", LimitOrder, Sell, NewPair(BTC, USD), 500, decimal.RequireFromString("2.5"))

	data, err := json.Marshal(order)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"order_type":"limit"`)
	assert.Contains(t, string(data), `"from_currency":"BTC"`)
	assert.Contains(t, string(data), `"status":"open"`)

	var decoded Order
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, LimitOrder, decoded.OrderType)
	assert.Equal(t, NewPair(BTC, USD), decoded.Pair())
	assert.True(t, decoded.LimitPrice.Equal(order.LimitPrice))
}

func TestQuoteValue(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		rate    string
		want    int64
		wantErr bool
	}{
		{"whole", 50000000, "2.00", 100000000, false},
		{"rounds down", 7, "0.5", 3, false},
		{"below one unit", 1, "0.99", 0, false},
		{"max int64", math.MaxInt64, "1", math.MaxInt64, false},
		{"overflow", 1 << 62, "4.000000000000000434", 0, true},
		{"just over max", math.MaxInt64, "1.0000000000000000001", 0, true},
		{"negative amount", -1, "1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteValue(tt.amount, decimal.RequireFromString(tt.rate))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrder)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("%w: from and to currency must differ", ErrInvalidOrder)
	assert.Equal(t, CodeInvalidOrder, CodeOf(wrapped))
	assert.True(t, UserFacing(wrapped))
	assert.Equal(t, CodeCrossedBook, CodeOf(ErrCrossedBook))
	assert.False(t, UserFacing(ErrCrossedBook))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("disk on fire")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}
