package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// ErrHeldUnderflow means a caller tried to release or settle more than it had
// reserved. It points at a bookkeeping bug in the caller.
var ErrHeldUnderflow = errors.New("held funds underflow")

// ErrBalanceOverflow means a credit would take a balance past math.MaxInt64
var ErrBalanceOverflow = errors.New("balance overflow")

type accountKey struct {
	user     string
	currency types.Currency
}

func (k accountKey) less(o accountKey) bool {
	if k.user != o.user {
		return k.user < o.user
	}
	return k.currency < o.currency
}

type account struct {
	mu      sync.Mutex
	balance int64
	held    int64
}

// Ledger owns every account balance. Each (user, currency) account has its own
// lock, so operations on unrelated accounts never contend; operations touching
// two accounts lock them in key order.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[accountKey]*account
}

func New() *Ledger {
	return &Ledger{accounts: make(map[accountKey]*account)}
}

func (l *Ledger) lookup(user string, currency types.Currency) *account {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.accounts[accountKey{user, currency}]
}

func (l *Ledger) getOrCreate(user string, currency types.Currency) *account {
	key := accountKey{user, currency}

	l.mu.RLock()
	acc, ok := l.accounts[key]
	l.mu.RUnlock()
	if ok {
		return acc
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acc, ok = l.accounts[key]; !ok {
		acc = &account{}
		l.accounts[key] = acc
	}
	return acc
}

// GetBalance returns the total balance, held funds included. Unknown accounts
// have a zero balance.
func (l *Ledger) GetBalance(user string, currency types.Currency) int64 {
	acc := l.lookup(user, currency)
	if acc == nil {
		return 0
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance
}

// Available returns the balance not reserved by open orders
func (l *Ledger) Available(user string, currency types.Currency) int64 {
	acc := l.lookup(user, currency)
	if acc == nil {
		return 0
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance - acc.held
}

// Account returns a copy of the account state
func (l *Ledger) Account(user string, currency types.Currency) types.Account {
	out := types.Account{UserID: user, Currency: currency}
	if acc := l.lookup(user, currency); acc != nil {
		acc.mu.Lock()
		out.Balance, out.Held = acc.balance, acc.held
		acc.mu.Unlock()
	}
	return out
}

// Deposit credits funds from outside the exchange
func (l *Ledger) Deposit(user string, currency types.Currency, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	acc := l.getOrCreate(user, currency)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := canCredit(user, currency, acc, amount); err != nil {
		return err
	}
	acc.balance += amount
	return nil
}

func canCredit(user string, currency types.Currency, acc *account, amount int64) error {
	if acc.balance > math.MaxInt64-amount {
		return fmt.Errorf("%w: crediting %d %s to %s", ErrBalanceOverflow, amount, currency, user)
	}
	return nil
}

// Withdraw debits available funds to outside the exchange
func (l *Ledger) Withdraw(user string, currency types.Currency, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount must be positive, got %d", amount)
	}
	acc := l.getOrCreate(user, currency)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.balance-acc.held < amount {
		return fmt.Errorf("%w: %s has %d %s available, needs %d",
			types.ErrInsufficientFunds, user, acc.balance-acc.held, currency, amount)
	}
	acc.balance -= amount
	return nil
}

// Reserve moves amount from available to held
func (l *Ledger) Reserve(user string, currency types.Currency, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("reserve amount must not be negative, got %d", amount)
	}
	acc := l.getOrCreate(user, currency)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.balance-acc.held < amount {
		return fmt.Errorf("%w: %s has %d %s available, needs %d",
			types.ErrInsufficientFunds, user, acc.balance-acc.held, currency, amount)
	}
	acc.held += amount
	return nil
}

// Release returns held funds to available
func (l *Ledger) Release(user string, currency types.Currency, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("release amount must not be negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}
	acc := l.lookup(user, currency)
	if acc == nil {
		return fmt.Errorf("%w: %s holds no %s", ErrHeldUnderflow, user, currency)
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.held < amount {
		return fmt.Errorf("%w: %s holds %d %s, release of %d", ErrHeldUnderflow, user, acc.held, currency, amount)
	}
	acc.held -= amount
	return nil
}

// Transfer debits from's available balance and credits to. Either both sides
// change or neither does.
func (l *Ledger) Transfer(from, to string, currency types.Currency, amount int64) error {
	return l.move(from, to, currency, amount, false)
}

// Settle is Transfer paid out of from's held funds, used when a reserved
// order fills
func (l *Ledger) Settle(from, to string, currency types.Currency, amount int64) error {
	return l.move(from, to, currency, amount, true)
}

func (l *Ledger) move(from, to string, currency types.Currency, amount int64, fromHeld bool) error {
	if amount < 0 {
		return fmt.Errorf("transfer amount must not be negative, got %d", amount)
	}
	if amount == 0 {
		return nil
	}

	src := l.getOrCreate(from, currency)
	dst := l.getOrCreate(to, currency)

	unlock := lockPair(accountKey{from, currency}, src, accountKey{to, currency}, dst)
	defer unlock()

	if src != dst {
		if err := canCredit(to, currency, dst, amount); err != nil {
			return err
		}
	}
	if fromHeld {
		if src.held < amount {
			return fmt.Errorf("%w: %s holds %d %s, settlement of %d", ErrHeldUnderflow, from, src.held, currency, amount)
		}
		src.held -= amount
	} else if src.balance-src.held < amount {
		return fmt.Errorf("%w: %s has %d %s available, needs %d",
			types.ErrInsufficientFunds, from, src.balance-src.held, currency, amount)
	}

	src.balance -= amount
	dst.balance += amount
	return nil
}

// SettleTrade pays out one fill: base moves from the seller's held funds to
// the buyer, quote from the buyer's held funds to the seller. Both legs are
// checked before either is applied, so a failure changes nothing.
func (l *Ledger) SettleTrade(seller, buyer string, pair types.Pair, base, quote int64) error {
	if base < 0 || quote < 0 {
		return fmt.Errorf("settlement amounts must not be negative, got %d and %d", base, quote)
	}

	keys := []accountKey{
		{seller, pair.Base}, {buyer, pair.Base},
		{buyer, pair.Quote}, {seller, pair.Quote},
	}
	accs := make(map[accountKey]*account, len(keys))
	for _, k := range keys {
		accs[k] = l.getOrCreate(k.user, k.currency)
	}
	unlock := lockAll(accs)
	defer unlock()

	sellerBase, buyerBase := accs[keys[0]], accs[keys[1]]
	buyerQuote, sellerQuote := accs[keys[2]], accs[keys[3]]

	if sellerBase.held < base {
		return fmt.Errorf("%w: %s holds %d %s, settlement of %d", ErrHeldUnderflow, seller, sellerBase.held, pair.Base, base)
	}
	if buyerQuote.held < quote {
		return fmt.Errorf("%w: %s holds %d %s, settlement of %d", ErrHeldUnderflow, buyer, buyerQuote.held, pair.Quote, quote)
	}
	if seller != buyer {
		if err := canCredit(buyer, pair.Base, buyerBase, base); err != nil {
			return err
		}
		if err := canCredit(seller, pair.Quote, sellerQuote, quote); err != nil {
			return err
		}
	}

	sellerBase.held -= base
	sellerBase.balance -= base
	buyerBase.balance += base
	buyerQuote.held -= quote
	buyerQuote.balance -= quote
	sellerQuote.balance += quote
	return nil
}

// lockPair locks two accounts in key order and returns the matching unlock
func lockPair(ka accountKey, a *account, kb accountKey, b *account) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	if kb.less(ka) {
		a, b = b, a
	}
	a.mu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		a.mu.Unlock()
	}
}

// lockAll locks every distinct account in key order
func lockAll(accs map[accountKey]*account) func() {
	keys := make([]accountKey, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	for _, k := range keys {
		accs[k].mu.Lock()
	}
	return func() {
		for i := len(keys) - 1; i >= 0; i-- {
			accs[keys[i]].mu.Unlock()
		}
	}
}

// Total sums the balances of every account in a currency
func (l *Ledger) Total(currency types.Currency) int64 {
	var total int64
	for _, acc := range l.Snapshot() {
		if acc.Currency == currency {
			total += acc.Balance
		}
	}
	return total
}

// Snapshot copies all accounts ordered by user then currency. Accounts are
// copied one at a time, so the result is only a consistent point in time
// when no matching is running.
func (l *Ledger) Snapshot() []types.Account {
	l.mu.RLock()
	keys := make([]accountKey, 0, len(l.accounts))
	accs := make(map[accountKey]*account, len(l.accounts))
	for k, acc := range l.accounts {
		keys = append(keys, k)
		accs[k] = acc
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make([]types.Account, 0, len(keys))
	for _, k := range keys {
		acc := accs[k]
		acc.mu.Lock()
		out = append(out, types.Account{UserID: k.user, Currency: k.currency, Balance: acc.balance, Held: acc.held})
		acc.mu.Unlock()
	}
	return out
}

// Restore replaces every account with the given state
func (l *Ledger) Restore(accounts []types.Account) error {
	restored := make(map[accountKey]*account, len(accounts))
	for _, a := range accounts {
		if a.Balance < 0 || a.Held < 0 || a.Held > a.Balance {
			return fmt.Errorf("account %s/%s: invalid balance %d held %d", a.UserID, a.Currency, a.Balance, a.Held)
		}
		key := accountKey{a.UserID, a.Currency}
		if _, dup := restored[key]; dup {
			return fmt.Errorf("account %s/%s listed twice", a.UserID, a.Currency)
		}
		restored[key] = &account{balance: a.Balance, held: a.Held}
	}

	l.mu.Lock()
	l.accounts = restored
	l.mu.Unlock()
	return nil
}
