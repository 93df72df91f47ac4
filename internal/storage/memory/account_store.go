package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/PxPatel/currency-exchange/internal/types"
)

type accountKey struct {
	user     string
	currency types.Currency
}

// InMemoryAccountStore keeps the last saved state of every account
type InMemoryAccountStore struct {
	accounts map[accountKey]types.Account
	mutex    sync.RWMutex
}

func NewInMemoryAccountStore() *InMemoryAccountStore {
	return &InMemoryAccountStore{
		accounts: make(map[accountKey]types.Account),
	}
}

func (s *InMemoryAccountStore) SaveAccounts(_ context.Context, accounts []types.Account) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, acc := range accounts {
		s.accounts[accountKey{acc.UserID, acc.Currency}] = acc
	}
	return nil
}

func (s *InMemoryAccountStore) LoadAccounts(context.Context) ([]types.Account, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]types.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Currency < out[j].Currency
	})
	return out, nil
}
