package ledger

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/types"
)

func TestGetBalanceUnknownAccount(t *testing.T) {
	l := New()
	assert.Equal(t, int64(0), l.GetBalance("nobody", types.BTC))
	assert.Equal(t, int64(0), l.Available("nobody", types.BTC))
}

func TestDepositAndWithdraw(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", types.USD, 1000))
	assert.Error(t, l.Deposit("alice", types.USD, 0))

	require.NoError(t, l.Withdraw("alice", types.USD, 400))
	assert.Equal(t, int64(600), l.GetBalance("alice", types.USD))

	err := l.Withdraw("alice", types.USD, 601)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Equal(t, int64(600), l.GetBalance("alice", types.USD))
}

func TestReserveAndRelease(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", types.BTC, 100))

	require.NoError(t, l.Reserve("alice", types.BTC, 60))
	assert.Equal(t, int64(100), l.GetBalance("alice", types.BTC))
	assert.Equal(t, int64(40), l.Available("alice", types.BTC))

	err := l.Reserve("alice", types.BTC, 41)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Equal(t, int64(40), l.Available("alice", types.BTC))

	require.NoError(t, l.Release("alice", types.BTC, 60))
	assert.Equal(t, int64(100), l.Available("alice", types.BTC))

	assert.ErrorIs(t, l.Release("alice", types.BTC, 1), ErrHeldUnderflow)
	assert.ErrorIs(t, l.Release("bob", types.BTC, 1), ErrHeldUnderflow)
}

func TestTransferIsAllOrNothing(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", types.USD, 500))
	require.NoError(t, l.Reserve("alice", types.USD, 300))

	err := l.Transfer("alice", "bob", types.USD, 201)
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)
	assert.Equal(t, int64(500), l.GetBalance("alice", types.USD))
	assert.Equal(t, int64(0), l.GetBalance("bob", types.USD))

	require.NoError(t, l.Transfer("alice", "bob", types.USD, 200))
	assert.Equal(t, int64(300), l.GetBalance("alice", types.USD))
	assert.Equal(t, int64(200), l.GetBalance("bob", types.USD))
}

func TestSettleUsesHeldFunds(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", types.BTC, 100))
	require.NoError(t, l.Reserve("alice", types.BTC, 70))

	require.NoError(t, l.Settle("alice", "bob", types.BTC, 50))
	alice := l.Account("alice", types.BTC)
	assert.Equal(t, int64(50), alice.Balance)
	assert.Equal(t, int64(20), alice.Held)
	assert.Equal(t, int64(50), l.Available("bob", types.BTC))

	err := l.Settle("alice", "bob", types.BTC, 21)
	assert.ErrorIs(t, err, ErrHeldUnderflow)
	assert.Equal(t, int64(50), l.GetBalance("alice", types.BTC))
}

func TestSettleToSelf(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", types.BTC, 100))
	require.NoError(t, l.Reserve("alice", types.BTC, 40))

	require.NoError(t, l.Settle("alice", "alice", types.BTC, 40))
	acc := l.Account("alice", types.BTC)
	assert.Equal(t, int64(100), acc.Balance)
	assert.Equal(t, int64(0), acc.Held)
}

func TestSettleTradeMovesBothLegs(t *testing.T) {
	l := New()
	btcUSD := types.NewPair(types.BTC, types.USD)
	require.NoError(t, l.Deposit("seller", types.BTC, 100))
	require.NoError(t, l.Deposit("buyer", types.USD, 500))
	require.NoError(t, l.Reserve("seller", types.BTC, 100))
	require.NoError(t, l.Reserve("buyer", types.USD, 500))

	require.NoError(t, l.SettleTrade("seller", "buyer", btcUSD, 40, 200))
	assert.Equal(t, types.Account{UserID: "seller", Currency: types.BTC, Balance: 60, Held: 60}, l.Account("seller", types.BTC))
	assert.Equal(t, int64(40), l.Available("buyer", types.BTC))
	assert.Equal(t, types.Account{UserID: "buyer", Currency: types.USD, Balance: 300, Held: 300}, l.Account("buyer", types.USD))
	assert.Equal(t, int64(200), l.Available("seller", types.USD))
}

func TestSettleTradeFailureChangesNothing(t *testing.T) {
	l := New()
	btcUSD := types.NewPair(types.BTC, types.USD)
	require.NoError(t, l.Deposit("seller", types.BTC, 100))
	require.NoError(t, l.Deposit("buyer", types.USD, 30))
	require.NoError(t, l.Reserve("seller", types.BTC, 100))
	require.NoError(t, l.Reserve("buyer", types.USD, 30))
	before := l.Snapshot()

	// The quote leg is short; the base leg must not move either
	err := l.SettleTrade("seller", "buyer", btcUSD, 100, 400)
	assert.ErrorIs(t, err, ErrHeldUnderflow)
	assert.Equal(t, before, l.Snapshot())

	err = l.SettleTrade("seller", "buyer", btcUSD, 101, 10)
	assert.ErrorIs(t, err, ErrHeldUnderflow)
	assert.Equal(t, before, l.Snapshot())
}

func TestSettleTradeWithSelf(t *testing.T) {
	l := New()
	btcUSD := types.NewPair(types.BTC, types.USD)
	require.NoError(t, l.Deposit("alice", types.BTC, 10))
	require.NoError(t, l.Deposit("alice", types.USD, 50))
	require.NoError(t, l.Reserve("alice", types.BTC, 10))
	require.NoError(t, l.Reserve("alice", types.USD, 50))

	require.NoError(t, l.SettleTrade("alice", "alice", btcUSD, 10, 50))
	assert.Equal(t, types.Account{UserID: "alice", Currency: types.BTC, Balance: 10}, l.Account("alice", types.BTC))
	assert.Equal(t, types.Account{UserID: "alice", Currency: types.USD, Balance: 50}, l.Account("alice", types.USD))
}

func TestCreditsNeverOverflow(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("alice", types.USD, math.MaxInt64))
	assert.ErrorIs(t, l.Deposit("alice", types.USD, 1), ErrBalanceOverflow)
	assert.Equal(t, int64(math.MaxInt64), l.GetBalance("alice", types.USD))

	require.NoError(t, l.Deposit("bob", types.USD, 1))
	assert.ErrorIs(t, l.Transfer("bob", "alice", types.USD, 1), ErrBalanceOverflow)
	assert.Equal(t, int64(1), l.GetBalance("bob", types.USD))

	// alice sells BTC to bob; her USD proceeds would overflow
	require.NoError(t, l.Deposit("alice", types.BTC, 5))
	require.NoError(t, l.Reserve("alice", types.BTC, 5))
	require.NoError(t, l.Reserve("bob", types.USD, 1))
	before := l.Snapshot()
	assert.ErrorIs(t, l.SettleTrade("alice", "bob", types.NewPair(types.BTC, types.USD), 5, 1), ErrBalanceOverflow)
	assert.Equal(t, before, l.Snapshot())
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	l := New()
	users := []string{"a", "b", "c", "d"}
	for _, u := range users {
		require.NoError(t, l.Deposit(u, types.USD, 10000))
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from := users[i%len(users)]
			to := users[(i+1)%len(users)]
			// Opposite directions on the same pair of accounts exercise lock ordering
			if i%2 == 0 {
				from, to = to, from
			}
			_ = l.Transfer(from, to, types.USD, int64(i%50))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(40000), l.Total(types.USD))
	for _, u := range users {
		assert.GreaterOrEqual(t, l.GetBalance(u, types.USD), int64(0))
	}
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit("bob", types.USD, 10))
	require.NoError(t, l.Deposit("alice", types.BTC, 5))
	require.NoError(t, l.Reserve("alice", types.BTC, 2))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, types.Account{UserID: "alice", Currency: types.BTC, Balance: 5, Held: 2}, snap[0])
	assert.Equal(t, "bob", snap[1].UserID)

	restored := New()
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())

	tests := []types.Account{
		{UserID: "x", Currency: types.USD, Balance: -1},
		{UserID: "x", Currency: types.USD, Balance: 1, Held: 2},
	}
	for i, bad := range tests {
		t.Run(fmt.Sprintf("invalid_%d", i), func(t *testing.T) {
			assert.Error(t, New().Restore([]types.Account{bad}))
		})
	}
}
