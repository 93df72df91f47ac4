package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/types"
)

func TestRegistryTradable(t *testing.T) {
	reg, err := NewRegistry(
		[]types.Exchange{
			{ID: 1, APIURL: "https://usd.example", BaseCurrency: types.USD},
			{ID: 2, APIURL: "https://eur.example", BaseCurrency: types.EUR},
		},
		[]types.ExchangeSecurity{
			{ExchangeID: 1, Currency: types.BTC},
			{ExchangeID: 1, Currency: types.ETH},
			{ExchangeID: 1, Currency: types.USD},
			{ExchangeID: 2, Currency: types.BTC},
		},
	)
	require.NoError(t, err)

	tests := []struct {
		pair types.Pair
		want bool
	}{
		{types.NewPair(types.BTC, types.USD), true},
		{types.NewPair(types.ETH, types.USD), true},
		{types.NewPair(types.BTC, types.EUR), true},
		{types.NewPair(types.ETH, types.EUR), false},
		{types.NewPair(types.USD, types.BTC), false},
		{types.NewPair(types.USD, types.USD), false},
	}
	for _, tt := range tests {
		t.Run(tt.pair.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, reg.Tradable(tt.pair))
		})
	}

	assert.Equal(t, []types.Pair{
		types.NewPair(types.BTC, types.EUR),
		types.NewPair(types.BTC, types.USD),
		types.NewPair(types.ETH, types.USD),
	}, reg.Pairs())

	ex, ok := reg.Exchange(2)
	require.True(t, ok)
	assert.Equal(t, types.EUR, ex.BaseCurrency)
}

func TestRegistryRejectsBadConfiguration(t *testing.T) {
	_, err := NewRegistry(nil, []types.ExchangeSecurity{{ExchangeID: 9, Currency: types.BTC}})
	assert.Error(t, err)

	_, err = NewRegistry([]types.Exchange{{ID: 1}}, nil)
	assert.Error(t, err)

	_, err = NewRegistry([]types.Exchange{
		{ID: 1, BaseCurrency: types.USD},
		{ID: 1, BaseCurrency: types.EUR},
	}, nil)
	assert.Error(t, err)
}

func TestNewSingleExchange(t *testing.T) {
	reg, err := NewSingleExchange("http://localhost", types.USD, types.BTC)
	require.NoError(t, err)
	assert.True(t, reg.Tradable(types.NewPair(types.BTC, types.USD)))
	assert.Len(t, reg.Pairs(), 1)
}
