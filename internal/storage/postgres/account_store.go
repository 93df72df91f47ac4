package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// AccountStore persists ledger snapshots
type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// SaveAccounts upserts every account in one transaction
func (s *AccountStore) SaveAccounts(ctx context.Context, accounts []types.Account) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, acc := range accounts {
			batch.Queue(`
				INSERT INTO accounts (user_id, currency_type, balance, held)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (user_id, currency_type) DO UPDATE SET
					balance = EXCLUDED.balance,
					held = EXCLUDED.held,
					modified_at = now()
			`, acc.UserID, acc.Currency.String(), acc.Balance, acc.Held)
		}

		results := tx.SendBatch(ctx, batch)
		for _, acc := range accounts {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to save account %s/%s: %w", acc.UserID, acc.Currency, err)
			}
		}
		return results.Close()
	})
}

// LoadAccounts reads every account, ordered like Ledger.Snapshot
func (s *AccountStore) LoadAccounts(ctx context.Context) ([]types.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, currency_type, balance, held
		FROM accounts
		ORDER BY user_id, currency_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	defer rows.Close()

	var accounts []types.Account
	for rows.Next() {
		var (
			acc      types.Account
			currency string
		)
		if err := rows.Scan(&acc.UserID, &currency, &acc.Balance, &acc.Held); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if acc.Currency, err = types.ParseCurrency(currency); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}
