package market

import (
	"fmt"
	"sort"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// Registry answers which currency pairs can be traded. It is built once at
// startup and only read afterwards, so it needs no locking.
type Registry struct {
	exchanges map[int64]types.Exchange
	pairs     map[types.Pair]struct{}
}

// NewRegistry builds the set of tradable pairs: every security listed on an
// exchange trades against that exchange's base currency.
func NewRegistry(exchanges []types.Exchange, securities []types.ExchangeSecurity) (*Registry, error) {
	r := &Registry{
		exchanges: make(map[int64]types.Exchange, len(exchanges)),
		pairs:     make(map[types.Pair]struct{}),
	}

	for _, ex := range exchanges {
		if !ex.BaseCurrency.Valid() {
			return nil, fmt.Errorf("exchange %d has invalid base currency", ex.ID)
		}
		if _, dup := r.exchanges[ex.ID]; dup {
			return nil, fmt.Errorf("duplicate exchange id %d", ex.ID)
		}
		r.exchanges[ex.ID] = ex
	}

	for _, sec := range securities {
		ex, ok := r.exchanges[sec.ExchangeID]
		if !ok {
			return nil, fmt.Errorf("security %s references unknown exchange %d", sec.Currency, sec.ExchangeID)
		}
		if !sec.Currency.Valid() {
			return nil, fmt.Errorf("exchange %d lists an invalid currency", ex.ID)
		}
		if sec.Currency == ex.BaseCurrency {
			continue
		}
		r.pairs[types.NewPair(sec.Currency, ex.BaseCurrency)] = struct{}{}
	}

	return r, nil
}

// NewSingleExchange is the common case of one venue configured from the
// environment
func NewSingleExchange(apiURL string, base types.Currency, securities ...types.Currency) (*Registry, error) {
	ex := types.Exchange{ID: 1, APIURL: apiURL, BaseCurrency: base}
	secs := make([]types.ExchangeSecurity, 0, len(securities))
	for _, c := range securities {
		secs = append(secs, types.ExchangeSecurity{ExchangeID: ex.ID, Currency: c})
	}
	return NewRegistry([]types.Exchange{ex}, secs)
}

func (r *Registry) Tradable(pair types.Pair) bool {
	_, ok := r.pairs[pair]
	return ok
}

// Pairs returns every tradable pair ordered by its code
func (r *Registry) Pairs() []types.Pair {
	pairs := make([]types.Pair, 0, len(r.pairs))
	for p := range r.pairs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
	return pairs
}

func (r *Registry) Exchange(id int64) (types.Exchange, bool) {
	ex, ok := r.exchanges[id]
	return ex, ok
}
