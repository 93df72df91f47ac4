package matching

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PxPatel/currency-exchange/internal/journal"
	"github.com/PxPatel/currency-exchange/internal/ledger"
	"github.com/PxPatel/currency-exchange/internal/logger"
	"github.com/PxPatel/currency-exchange/internal/market"
	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// MarketPolicy decides what happens to the part of a market order the book
// cannot fill
type MarketPolicy int

const (
	// RejectUnfilled refuses the whole order unless the book can fill all of it
	RejectUnfilled MarketPolicy = iota
	// CancelRemainder fills what the book offers and cancels the rest
	CancelRemainder
)

func (p MarketPolicy) String() string {
	if p == CancelRemainder {
		return "cancel"
	}
	return "reject"
}

func ParseMarketPolicy(s string) (MarketPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return RejectUnfilled, nil
	case "cancel":
		return CancelRemainder, nil
	}
	return RejectUnfilled, fmt.Errorf("unknown market order policy %q", s)
}

// pairState is the critical section of one pair. Everything that touches the
// book, including cancels, runs under mu.
type pairState struct {
	mu     sync.Mutex
	book   *OrderBook
	halted error
}

// Engine matches orders per pair with price-time priority; the resting order
// sets the trade price. Pairs are independent and match in parallel.
type Engine struct {
	registry    *market.Registry
	ledger      *ledger.Ledger
	journal     *journal.Journal
	orders      storage.OrderStore
	accounts    storage.AccountStore
	policy      MarketPolicy
	pairs       map[types.Pair]*pairState
	lastOrderID atomic.Uint64

	// persistMu orders account writes; see persistAccounts
	persistMu sync.Mutex

	lifecycle sync.RWMutex
	stopped   bool
}

// Option configures optional collaborators of an Engine
type Option func(*Engine)

// WithAccountStore persists every account an operation touches before the
// operation returns
func WithAccountStore(store storage.AccountStore) Option {
	return func(e *Engine) { e.accounts = store }
}

func NewEngine(registry *market.Registry, l *ledger.Ledger, j *journal.Journal, orders storage.OrderStore, policy MarketPolicy, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		ledger:   l,
		journal:  j,
		orders:   orders,
		policy:   policy,
		pairs:    make(map[types.Pair]*pairState),
	}
	for _, pair := range registry.Pairs() {
		e.pairs[pair] = &pairState{book: NewOrderBook(pair)}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// enter admits an operation unless the engine is stopping. The returned func
// must be called when the operation is done.
func (e *Engine) enter() (func(), error) {
	e.lifecycle.RLock()
	if e.stopped {
		e.lifecycle.RUnlock()
		return nil, types.ErrEngineStopped
	}
	return e.lifecycle.RUnlock, nil
}

// Stop waits for running operations to finish and refuses new ones with
// ErrEngineStopped. Once it returns the ledger and the stores are quiescent.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	e.stopped = true
	e.lifecycle.Unlock()
	logger.Info("Matching engine stopped", nil)
}

// SubmitOrder validates, reserves funds for and matches one order. When it
// returns without error every trade is in the journal and the order store
// reflects the new order state.
func (e *Engine) SubmitOrder(ctx context.Context, req OrderRequest) (*SubmitResult, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if err := req.validate(e.registry); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ps := e.pairs[req.Pair]
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.halted != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrPairHalted, req.Pair)
	}
	book := ps.book

	reserve, currency, err := e.reservationFor(book, req)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Reserve(req.UserID, currency, reserve); err != nil {
		return nil, err
	}

	order := types.NewOrder(e.lastOrderID.Add(1), req.UserID, req.OrderType, req.Side, req.Pair, req.Amount, req.LimitPrice)
	order.Reserved = reserve
	if err := e.orders.Save(order); err != nil {
		if relErr := e.ledger.Release(req.UserID, currency, reserve); relErr != nil {
			err = errors.Join(err, relErr)
		}
		e.discard(order)
		return nil, fmt.Errorf("failed to store order: %w", err)
	}

	trades, makers, err := e.match(book, order)
	if err != nil {
		e.halt(ps, err)
		return nil, err
	}

	switch {
	case order.Remaining == 0:
		order.Status = types.StatusFilled
	case order.OrderType == types.MarketOrder:
		order.Status = types.StatusCancelled
	case dust(order) || crosses(order, book.Best(order.Side.Opposite())):
		// What is left could only trade for less than one quote unit
		order.Status = types.StatusCancelled
	default:
		if order.Remaining < order.Amount {
			order.Status = types.StatusPartiallyFilled
		}
		if err := book.Insert(order); err != nil {
			e.halt(ps, err)
			return nil, err
		}
	}
	if err := e.releaseSurplus(order); err != nil {
		e.halt(ps, err)
		return nil, err
	}

	if err := e.journal.Append(ctx, trades...); err != nil {
		e.halt(ps, err)
		return nil, err
	}

	involved := append(makers, order)
	for _, o := range involved {
		if err := e.orders.Update(o); err != nil {
			logger.Error("Failed to update order in store", logger.Fields{"order_id": o.ID, "error": err.Error()})
		}
	}
	if err := e.persistAccounts(ctx, accountsOf(involved)...); err != nil {
		e.halt(ps, err)
		return nil, err
	}

	if book.Crossed() {
		err := fmt.Errorf("%w: %s best bid %s, best ask %s", types.ErrCrossedBook,
			req.Pair, book.BestBid().LimitPrice, book.BestAsk().LimitPrice)
		e.halt(ps, err)
		return nil, err
	}

	logger.Info("Order processed", logger.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"pair":     req.Pair.String(),
		"side":     order.Side.String(),
		"type":     order.OrderType.String(),
		"amount":   order.Amount,
		"filled":   order.FilledAmount(),
		"status":   order.Status.String(),
		"trades":   len(trades),
	})

	return &SubmitResult{Order: order.Clone(), Trades: trades}, nil
}

// discard takes an order that could not be saved back out of the store
// layers that did accept it, so a restart never rests it
func (e *Engine) discard(order *types.Order) {
	err := e.orders.Remove(order.ID)
	if err == nil {
		return
	}
	order.Status = types.StatusCancelled
	order.Reserved = 0
	if updErr := e.orders.Update(order); updErr != nil {
		err = errors.Join(err, updErr)
	}
	logger.Warn("Failed to discard unsaved order", logger.Fields{"order_id": order.ID, "error": err.Error()})
}

// reservationFor works out which currency and how much of it the order must
// hold before matching. Market orders are checked against the book here so a
// rejected one changes nothing.
func (e *Engine) reservationFor(book *OrderBook, req OrderRequest) (int64, types.Currency, error) {
	if req.OrderType == types.MarketOrder {
		base, quote, err := book.Fillable(req.Side.Opposite(), req.Amount)
		if err != nil {
			return 0, types.NoCurrency, err
		}
		if base == 0 {
			return 0, types.NoCurrency, fmt.Errorf("%w: no resting %s orders on %s",
				types.ErrUnfilledMarketOrder, req.Side.Opposite(), req.Pair)
		}
		if base < req.Amount && e.policy == RejectUnfilled {
			return 0, types.NoCurrency, fmt.Errorf("%w: book can fill %d of %d",
				types.ErrUnfilledMarketOrder, base, req.Amount)
		}
		if req.Side == types.Buy {
			return quote, req.Pair.Quote, nil
		}
		return req.Amount, req.Pair.Base, nil
	}

	if req.Side == types.Buy {
		value, err := types.QuoteValue(req.Amount, req.LimitPrice)
		return value, req.Pair.Quote, err
	}
	return req.Amount, req.Pair.Base, nil
}

// match runs the match loop of an incoming order against the book. It returns
// the executed trades, without IDs yet, and the resting orders it touched.
func (e *Engine) match(book *OrderBook, order *types.Order) ([]*types.Trade, []*types.Order, error) {
	var trades []*types.Trade
	var makers []*types.Order
	contra := order.Side.Opposite()

	for order.Remaining > 0 {
		maker := book.Best(contra)
		if maker == nil || !crosses(order, maker) {
			break
		}

		fillSize := min(order.Remaining, maker.Remaining)
		rate := maker.LimitPrice
		quote, err := types.QuoteValue(fillSize, rate)
		if err != nil {
			return nil, nil, fmt.Errorf("pricing fill of order %d: %w", maker.ID, err)
		}
		if quote == 0 {
			// A fill worth nothing would give away base units
			break
		}

		buy, sell := order, maker
		if order.Side == types.Sell {
			buy, sell = maker, order
		}

		if err := e.ledger.SettleTrade(sell.UserID, buy.UserID, book.Pair(), fillSize, quote); err != nil {
			return nil, nil, fmt.Errorf("settling orders %d and %d: %w", sell.ID, buy.ID, err)
		}
		sell.Reserved -= fillSize
		buy.Reserved -= quote

		now := time.Now().UTC()
		order.Remaining -= fillSize
		maker.Remaining -= fillSize
		order.UpdatedAt = now
		maker.UpdatedAt = now

		trades = append(trades, &types.Trade{
			Pair:        book.Pair(),
			Rate:        rate,
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
			Amount:      fillSize,
			Filled:      true,
			Timestamp:   now,
		})
		makers = append(makers, maker)

		switch {
		case maker.Remaining == 0:
			book.PopBest(contra)
			maker.Status = types.StatusFilled
		case dust(maker):
			book.PopBest(contra)
			maker.Status = types.StatusCancelled
			logger.Info("Cancelled remainder below one quote unit", logger.Fields{"order_id": maker.ID, "remaining": maker.Remaining})
		default:
			maker.Status = types.StatusPartiallyFilled
		}
		if err := e.releaseSurplus(maker); err != nil {
			return nil, nil, err
		}

		logger.Debug("Trade executed", logger.Fields{
			"pair":          book.Pair().String(),
			"rate":          rate.String(),
			"amount":        fillSize,
			"buy_order_id":  buy.ID,
			"sell_order_id": sell.ID,
		})
	}

	return trades, makers, nil
}

// crosses reports whether the incoming order accepts the maker's price
func crosses(order, maker *types.Order) bool {
	if maker == nil {
		return false
	}
	if order.OrderType == types.MarketOrder {
		return true
	}
	if order.Side == types.Buy {
		return order.LimitPrice.GreaterThanOrEqual(maker.LimitPrice)
	}
	return order.LimitPrice.LessThanOrEqual(maker.LimitPrice)
}

// releaseSurplus returns held funds the order can no longer spend: all of it
// once the order is terminal, and price improvement on a resting buy
func (e *Engine) releaseSurplus(o *types.Order) error {
	var keep int64
	if !o.Status.Terminal() {
		keep = o.Remaining
		if o.Side == types.Buy {
			var err error
			if keep, err = buyReservation(o); err != nil {
				return fmt.Errorf("pricing reservation of order %d: %w", o.ID, err)
			}
		}
	}

	surplus := o.Reserved - keep
	if surplus <= 0 {
		return nil
	}
	currency := o.From
	if o.Side == types.Buy {
		currency = o.To
	}
	if err := e.ledger.Release(o.UserID, currency, surplus); err != nil {
		return fmt.Errorf("releasing reservation of order %d: %w", o.ID, err)
	}
	o.Reserved = keep
	return nil
}

// halt stops matching on a pair after a defect or a lost journal write
func (e *Engine) halt(ps *pairState, err error) {
	ps.halted = err
	logger.Error("Matching halted for pair", logger.Fields{
		"pair":  ps.book.Pair().String(),
		"code":  string(types.CodeOf(err)),
		"error": err.Error(),
	})
}

// CancelOrder removes a resting order and releases what it still holds. It
// runs under the pair lock, so it either sees the order before a match or
// finds it already filled.
func (e *Engine) CancelOrder(ctx context.Context, orderID uint64) (*types.Order, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored, err := e.lookup(orderID)
	if err != nil {
		return nil, err
	}
	ps, ok := e.pairs[stored.Pair()]
	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrOrderNotFound, orderID)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.halted != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrPairHalted, stored.Pair())
	}

	order, ok := ps.book.Remove(orderID)
	if !ok {
		if current, err := e.lookup(orderID); err == nil && current.Status.Terminal() {
			return nil, fmt.Errorf("%w: order %d is %s", types.ErrOrderAlreadyFilled, orderID, current.Status)
		}
		return nil, fmt.Errorf("%w: order %d is not resting", types.ErrOrderNotFound, orderID)
	}

	order.Status = types.StatusCancelled
	order.UpdatedAt = time.Now().UTC()
	if err := e.releaseSurplus(order); err != nil {
		e.halt(ps, err)
		return nil, err
	}
	if err := e.orders.Update(order); err != nil {
		logger.Error("Failed to update order in store", logger.Fields{"order_id": order.ID, "error": err.Error()})
	}
	if err := e.persistAccounts(ctx, accountsOf([]*types.Order{order})...); err != nil {
		e.halt(ps, err)
		return nil, err
	}

	logger.Info("Order cancelled", logger.Fields{
		"order_id":  order.ID,
		"user_id":   order.UserID,
		"remaining": order.Remaining,
	})
	return order.Clone(), nil
}

func (e *Engine) lookup(orderID uint64) (*types.Order, error) {
	order, err := e.orders.Get(orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", types.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderStatus returns the order as of the end of the last operation that
// touched it
func (e *Engine) GetOrderStatus(orderID uint64) (*types.Order, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	return e.lookup(orderID)
}

// UserOrders returns every stored order of a user in submission order
func (e *Engine) UserOrders(userID string) ([]*types.Order, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", types.ErrInvalidOrder)
	}
	orders := e.orders.GetByUser(userID)
	slices.SortFunc(orders, func(a, b *types.Order) int { return cmp.Compare(a.Seq, b.Seq) })
	return orders, nil
}

func (e *Engine) GetAccountBalance(userID string, currency types.Currency) int64 {
	return e.ledger.GetBalance(userID, currency)
}

// Deposit credits funds from outside the exchange. The credit is undone when
// the account cannot be persisted.
func (e *Engine) Deposit(ctx context.Context, userID string, currency types.Currency, amount int64) error {
	return e.fund(ctx, userID, currency, amount, e.ledger.Deposit, e.ledger.Withdraw)
}

// Withdraw debits available funds to outside the exchange. The debit is
// undone when the account cannot be persisted.
func (e *Engine) Withdraw(ctx context.Context, userID string, currency types.Currency, amount int64) error {
	return e.fund(ctx, userID, currency, amount, e.ledger.Withdraw, e.ledger.Deposit)
}

func (e *Engine) fund(ctx context.Context, userID string, currency types.Currency, amount int64,
	apply, undo func(string, types.Currency, int64) error) error {
	leave, err := e.enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := apply(userID, currency, amount); err != nil {
		return err
	}
	if err := e.persistAccounts(ctx, accountRef{userID, currency}); err != nil {
		if undoErr := undo(userID, currency, amount); undoErr != nil {
			err = errors.Join(err, undoErr)
		}
		return err
	}
	return nil
}

type accountRef struct {
	user     string
	currency types.Currency
}

// accountsOf lists the base and quote accounts of every order owner, once each
func accountsOf(orders []*types.Order) []accountRef {
	seen := make(map[accountRef]bool, 2*len(orders))
	refs := make([]accountRef, 0, 2*len(orders))
	for _, o := range orders {
		for _, c := range []types.Currency{o.From, o.To} {
			ref := accountRef{o.UserID, c}
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// persistAccounts writes the current state of the given accounts. Writes are
// serialized and read the ledger while holding persistMu, so a later write
// never stores older balances than an earlier one. The write outlives ctx
// cancellation: the ledger has already changed.
func (e *Engine) persistAccounts(ctx context.Context, refs ...accountRef) error {
	if e.accounts == nil || len(refs) == 0 {
		return nil
	}
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	accounts := make([]types.Account, 0, len(refs))
	for _, ref := range refs {
		accounts = append(accounts, e.ledger.Account(ref.user, ref.currency))
	}
	if err := e.accounts.SaveAccounts(context.WithoutCancel(ctx), accounts); err != nil {
		return fmt.Errorf("%w: %w", types.ErrAccountWrite, err)
	}
	return nil
}

// ListTrades returns the trades of pair with an ID greater than since
func (e *Engine) ListTrades(pair types.Pair, since uint64) ([]*types.Trade, error) {
	leave, err := e.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if !e.registry.Tradable(pair) {
		return nil, fmt.Errorf("%w: pair %s is not tradable", types.ErrInvalidOrder, pair)
	}
	return e.journal.Collect(pair, since)
}

// OrderBookDepth aggregates the top levels of both sides of pair
func (e *Engine) OrderBookDepth(pair types.Pair, levels int) (bids, asks []PriceLevel, err error) {
	ps, ok := e.pairs[pair]
	if !ok {
		return nil, nil, fmt.Errorf("%w: pair %s is not tradable", types.ErrInvalidOrder, pair)
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.book.Depth(types.Buy, levels), ps.book.Depth(types.Sell, levels), nil
}

// Halted reports whether matching stopped on pair
func (e *Engine) Halted(pair types.Pair) bool {
	ps, ok := e.pairs[pair]
	if !ok {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.halted != nil
}
