package matching

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/PxPatel/currency-exchange/internal/market"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// OrderRequest is what a client submits. Amount is in minor units of the
// pair's base currency; LimitPrice is quote per base and only set on limit
// orders.
type OrderRequest struct {
	UserID     string          `json:"user_id"`
	Pair       types.Pair      `json:"pair"`
	Side       types.SideType  `json:"side"`
	OrderType  types.OrderType `json:"order_type"`
	Amount     int64           `json:"amount"`
	LimitPrice decimal.Decimal `json:"limit_price"`
}

// SubmitResult is the accepted order after matching with the trades it took
// part in, already journaled
type SubmitResult struct {
	Order  *types.Order   `json:"order"`
	Trades []*types.Trade `json:"trades"`
}

func (r OrderRequest) validate(registry *market.Registry) error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: user id is required", types.ErrInvalidOrder)
	case !r.Pair.Base.Valid() || !r.Pair.Quote.Valid():
		return fmt.Errorf("%w: unknown currency in pair %s", types.ErrInvalidOrder, r.Pair)
	case r.Pair.Base == r.Pair.Quote:
		return fmt.Errorf("%w: from and to currency are both %s", types.ErrInvalidOrder, r.Pair.Base)
	case !registry.Tradable(r.Pair):
		return fmt.Errorf("%w: pair %s is not tradable", types.ErrInvalidOrder, r.Pair)
	case r.Side != types.Buy && r.Side != types.Sell:
		return fmt.Errorf("%w: side must be buy or sell", types.ErrInvalidOrder)
	case r.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", types.ErrInvalidOrder)
	}

	switch r.OrderType {
	case types.LimitOrder:
		if !r.LimitPrice.IsPositive() {
			return fmt.Errorf("%w: limit orders need a positive limit price", types.ErrInvalidOrder)
		}
		// Every fill of a resting order is priced within its own value, so
		// bounding it here keeps every later quote computation in range
		value, err := types.QuoteValue(r.Amount, r.LimitPrice)
		if err != nil {
			return err
		}
		if value == 0 {
			return fmt.Errorf("%w: order is worth less than one %s unit", types.ErrInvalidOrder, r.Pair.Quote)
		}
	case types.MarketOrder:
		if !r.LimitPrice.IsZero() {
			return fmt.Errorf("%w: market orders take no limit price", types.ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: order type must be market or limit", types.ErrInvalidOrder)
	}
	return nil
}

// buyReservation is the quote a limit buy must hold to cover its remaining
// amount at its own limit price. Fills at maker prices never cost more.
func buyReservation(order *types.Order) (int64, error) {
	return types.QuoteValue(order.Remaining, order.LimitPrice)
}

// dust reports whether a limit order's remainder is worth less than one quote
// unit at its own price. Such a remainder could only ever trade for nothing.
func dust(order *types.Order) bool {
	if order.OrderType != types.LimitOrder || order.Remaining == 0 {
		return false
	}
	value, err := types.QuoteValue(order.Remaining, order.LimitPrice)
	return err == nil && value == 0
}
