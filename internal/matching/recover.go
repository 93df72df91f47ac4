package matching

import (
	"context"
	"fmt"
	"slices"

	"github.com/PxPatel/currency-exchange/internal/logger"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// Recover rebuilds the books from the order store after a restart and must
// run before the first submission. The journal is authoritative for fills:
// Remaining and Status of every non-terminal order are recomputed from the
// trades that reference it. The restored ledger is authoritative for funds:
// resting orders claim its held balances in submission order, an order whose
// reservation is not backed is cancelled, and held funds no resting order
// claims are released.
func (e *Engine) Recover(ctx context.Context) error {
	filled := make(map[uint64]int64)
	for _, pair := range e.registry.Pairs() {
		for trade, err := range e.journal.ReadAll(pair) {
			if err != nil {
				return fmt.Errorf("failed to replay journal for %s: %w", pair, err)
			}
			filled[trade.BuyOrderID] += trade.Amount
			filled[trade.SellOrderID] += trade.Amount
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	orders := e.orders.GetAll()
	slices.SortFunc(orders, func(a, b *types.Order) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	held := make(map[accountRef]int64)
	heldOf := func(ref accountRef) int64 {
		if _, ok := held[ref]; !ok {
			held[ref] = e.ledger.Account(ref.user, ref.currency).Held
		}
		return held[ref]
	}

	var lastID uint64
	var restored, closed, unbacked int
	for _, stored := range orders {
		lastID = max(lastID, stored.ID)
		if stored.Status.Terminal() {
			continue
		}

		ps, ok := e.pairs[stored.Pair()]
		if !ok {
			logger.Warn("Skipping order for untradable pair", logger.Fields{"order_id": stored.ID, "pair": stored.Pair().String()})
			continue
		}

		order := stored.Clone()
		order.Remaining = max(order.Amount-filled[order.ID], 0)
		switch {
		case order.Remaining == 0:
			order.Status = types.StatusFilled
		case order.OrderType == types.MarketOrder, dust(order):
			order.Status = types.StatusCancelled
		case order.Remaining < order.Amount:
			order.Status = types.StatusPartiallyFilled
		default:
			order.Status = types.StatusOpen
		}

		order.Reserved = 0
		if !order.Status.Terminal() {
			ref := accountRef{order.UserID, order.From}
			need := order.Remaining
			if order.Side == types.Buy {
				ref.currency = order.To
				var err error
				if need, err = buyReservation(order); err != nil {
					return fmt.Errorf("failed to restore order %d: %w", order.ID, err)
				}
			}
			if heldOf(ref) < need {
				logger.Warn("Cancelling order without backing funds", logger.Fields{
					"order_id": order.ID, "user_id": order.UserID, "needs": need, "held": held[ref],
				})
				order.Status = types.StatusCancelled
				unbacked++
			} else {
				held[ref] -= need
				order.Reserved = need
			}
		}

		if order.Status.Terminal() {
			closed++
		} else {
			ps.mu.Lock()
			err := ps.book.Insert(order)
			ps.mu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to restore order %d: %w", order.ID, err)
			}
			restored++
		}

		if err := e.orders.Update(order); err != nil {
			logger.Warn("Failed to update recovered order", logger.Fields{"order_id": order.ID, "error": err.Error()})
		}
	}

	// Everything still held belongs to orders that are gone
	for _, acc := range e.ledger.Snapshot() {
		ref := accountRef{acc.UserID, acc.Currency}
		surplus := acc.Held
		if left, ok := held[ref]; ok {
			surplus = left
		}
		if surplus == 0 {
			continue
		}
		if err := e.ledger.Release(ref.user, ref.currency, surplus); err != nil {
			return fmt.Errorf("failed to release stale reservation of %s: %w", ref.user, err)
		}
	}
	if err := e.persistAccounts(ctx, refsOf(e.ledger.Snapshot())...); err != nil {
		return err
	}

	if lastID > e.lastOrderID.Load() {
		e.lastOrderID.Store(lastID)
	}

	for pair, ps := range e.pairs {
		ps.mu.Lock()
		if ps.book.Crossed() {
			e.halt(ps, fmt.Errorf("%w: %s after recovery", types.ErrCrossedBook, pair))
		}
		ps.mu.Unlock()
	}

	logger.Info("Order books recovered", logger.Fields{
		"resting":       restored,
		"closed":        closed,
		"unbacked":      unbacked,
		"last_order_id": lastID,
	})
	return nil
}

func refsOf(accounts []types.Account) []accountRef {
	refs := make([]accountRef, 0, len(accounts))
	for _, acc := range accounts {
		refs = append(refs, accountRef{acc.UserID, acc.Currency})
	}
	return refs
}
