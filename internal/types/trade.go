package types

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an executed match between a buy and a sell order. Trades are
// immutable once appended to the journal.
type Trade struct {
	TradeID     uint64          `json:"trade_id"`
	Pair        Pair            `json:"pair"`
	Rate        decimal.Decimal `json:"rate"`
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Amount      int64           `json:"amount"`
	Filled      bool            `json:"filled"`
	Timestamp   time.Time       `json:"timestamp"`
}

var maxQuoteValue = decimal.NewFromInt(math.MaxInt64)

// QuoteValue converts a base amount to quote minor units at rate, rounding
// down. Rounding down keeps the sum of partial fills within the reservation
// made for the whole amount. A value that does not fit in an int64 is an
// ErrInvalidOrder.
func QuoteValue(amount int64, rate decimal.Decimal) (int64, error) {
	if amount < 0 || rate.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %d or rate %s", ErrInvalidOrder, amount, rate)
	}
	value := decimal.NewFromInt(amount).Mul(rate).Floor()
	if value.GreaterThan(maxQuoteValue) {
		return 0, fmt.Errorf("%w: %d at %s is worth more than %d quote units", ErrInvalidOrder, amount, rate, int64(math.MaxInt64))
	}
	return value.IntPart(), nil
}
