package matching

import (
	"fmt"
	"math"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/PxPatel/currency-exchange/internal/types"
)

/*
Each side of the book is a B-tree ordered by priority, so the best order is
always the tree minimum:
  bids: highest price first, then lowest Seq
  asks: lowest price first, then lowest Seq
An id index gives O(1) lookup and lets Remove find the tree item to delete.
Orders are stored by pointer; LimitPrice and Seq never change while an order
rests, so fills can update Remaining in place without re-keying.
*/

const btreeDegree = 32

// PriceLevel aggregates the resting orders at one price
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount int64           `json:"amount"`
	Orders int             `json:"orders"`
}

type OrderBook struct {
	pair   types.Pair
	bids   *btree.BTreeG[*types.Order]
	asks   *btree.BTreeG[*types.Order]
	orders map[uint64]*types.Order
}

func bidLess(a, b *types.Order) bool {
	if c := a.LimitPrice.Cmp(b.LimitPrice); c != 0 {
		return c > 0
	}
	return a.Seq < b.Seq
}

func askLess(a, b *types.Order) bool {
	if c := a.LimitPrice.Cmp(b.LimitPrice); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}

func NewOrderBook(pair types.Pair) *OrderBook {
	return &OrderBook{
		pair:   pair,
		bids:   btree.NewG(btreeDegree, bidLess),
		asks:   btree.NewG(btreeDegree, askLess),
		orders: make(map[uint64]*types.Order),
	}
}

func (ob *OrderBook) Pair() types.Pair {
	return ob.pair
}

func (ob *OrderBook) side(side types.SideType) *btree.BTreeG[*types.Order] {
	if side == types.Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert places a resting limit order
func (ob *OrderBook) Insert(order *types.Order) error {
	switch {
	case order.OrderType != types.LimitOrder:
		return fmt.Errorf("%w: only limit orders rest in the book", types.ErrInvalidOrder)
	case order.Pair() != ob.pair:
		return fmt.Errorf("%w: order %d is for %s, book is %s", types.ErrInvalidOrder, order.ID, order.Pair(), ob.pair)
	case order.Side != types.Buy && order.Side != types.Sell:
		return fmt.Errorf("%w: order %d has no side", types.ErrInvalidOrder, order.ID)
	case !order.LimitPrice.IsPositive():
		return fmt.Errorf("%w: order %d has no limit price", types.ErrInvalidOrder, order.ID)
	}
	if _, exists := ob.orders[order.ID]; exists {
		return fmt.Errorf("%w: order %d already rests in the book", types.ErrInvalidOrder, order.ID)
	}

	ob.side(order.Side).ReplaceOrInsert(order)
	ob.orders[order.ID] = order
	return nil
}

// BestBid peeks at the highest priority buy order, nil when the side is empty
func (ob *OrderBook) BestBid() *types.Order {
	return ob.Best(types.Buy)
}

// BestAsk peeks at the highest priority sell order, nil when the side is empty
func (ob *OrderBook) BestAsk() *types.Order {
	return ob.Best(types.Sell)
}

func (ob *OrderBook) Best(side types.SideType) *types.Order {
	order, ok := ob.side(side).Min()
	if !ok {
		return nil
	}
	return order
}

// PopBest removes and returns the best order of side
func (ob *OrderBook) PopBest(side types.SideType) (*types.Order, bool) {
	order, ok := ob.side(side).DeleteMin()
	if ok {
		delete(ob.orders, order.ID)
	}
	return order, ok
}

// Remove takes a resting order out of the book
func (ob *OrderBook) Remove(orderID uint64) (*types.Order, bool) {
	order, ok := ob.orders[orderID]
	if !ok {
		return nil, false
	}
	ob.side(order.Side).Delete(order)
	delete(ob.orders, orderID)
	return order, true
}

func (ob *OrderBook) Get(orderID uint64) (*types.Order, bool) {
	order, ok := ob.orders[orderID]
	return order, ok
}

// Len is the number of resting orders on both sides
func (ob *OrderBook) Len() int {
	return len(ob.orders)
}

// Orders returns the resting orders of side in priority order
func (ob *OrderBook) Orders(side types.SideType) []*types.Order {
	orders := make([]*types.Order, 0, ob.side(side).Len())
	ob.side(side).Ascend(func(o *types.Order) bool {
		orders = append(orders, o)
		return true
	})
	return orders
}

// Depth aggregates up to levels price levels of side, best first. levels <= 0
// returns every level.
func (ob *OrderBook) Depth(side types.SideType, levels int) []PriceLevel {
	var depth []PriceLevel
	ob.side(side).Ascend(func(o *types.Order) bool {
		if n := len(depth); n > 0 && depth[n-1].Price.Equal(o.LimitPrice) {
			depth[n-1].Amount += o.Remaining
			depth[n-1].Orders++
			return true
		}
		if levels > 0 && len(depth) == levels {
			return false
		}
		depth = append(depth, PriceLevel{Price: o.LimitPrice, Amount: o.Remaining, Orders: 1})
		return true
	})
	return depth
}

// Fillable walks side from the best order and reports how much of amount the
// book could fill right now and what that would cost in quote units at the
// makers' prices. Like the match loop it stops at a fill worth less than one
// quote unit. The book is not modified.
func (ob *OrderBook) Fillable(side types.SideType, amount int64) (base, quote int64, err error) {
	ob.side(side).Ascend(func(o *types.Order) bool {
		qty := min(amount-base, o.Remaining)
		var value int64
		if value, err = types.QuoteValue(qty, o.LimitPrice); err != nil || value == 0 {
			return false
		}
		if quote > math.MaxInt64-value {
			err = fmt.Errorf("%w: filling %d costs more than %d quote units", types.ErrInvalidOrder, amount, int64(math.MaxInt64))
			return false
		}
		base += qty
		quote += value
		return base < amount
	})
	if err != nil {
		return 0, 0, err
	}
	return base, quote, nil
}

// Crossed reports whether the best bid price is at or above the best ask
func (ob *OrderBook) Crossed() bool {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == nil || ask == nil {
		return false
	}
	return bid.LimitPrice.GreaterThanOrEqual(ask.LimitPrice)
}
