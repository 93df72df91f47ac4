package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// ExchangeStore reads and seeds the static exchange configuration
type ExchangeStore struct {
	pool *pgxpool.Pool
}

func NewExchangeStore(pool *pgxpool.Pool) *ExchangeStore {
	return &ExchangeStore{pool: pool}
}

// CreateExchange inserts an exchange with its securities and returns it with
// its assigned ID
func (s *ExchangeStore) CreateExchange(ctx context.Context, ex types.Exchange, securities ...types.Currency) (types.Exchange, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"INSERT INTO exchanges (api_url, base_currency) VALUES ($1, $2) RETURNING id",
			ex.APIURL, ex.BaseCurrency.String()).Scan(&ex.ID)
		if err != nil {
			return fmt.Errorf("failed to create exchange: %w", err)
		}

		for _, c := range securities {
			_, err := tx.Exec(ctx,
				"INSERT INTO exchange_securities (exchange_id, currency_type) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				ex.ID, c.String())
			if err != nil {
				return fmt.Errorf("failed to add security %s: %w", c, err)
			}
		}
		return nil
	})
	return ex, err
}

// LoadExchanges returns all exchanges and their listed securities
func (s *ExchangeStore) LoadExchanges(ctx context.Context) ([]types.Exchange, []types.ExchangeSecurity, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, api_url, base_currency FROM exchanges ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load exchanges: %w", err)
	}

	var exchanges []types.Exchange
	for rows.Next() {
		var (
			ex   types.Exchange
			base string
		)
		if err := rows.Scan(&ex.ID, &ex.APIURL, &base); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if ex.BaseCurrency, err = types.ParseCurrency(base); err != nil {
			rows.Close()
			return nil, nil, err
		}
		exchanges = append(exchanges, ex)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = s.pool.Query(ctx, "SELECT exchange_id, currency_type FROM exchange_securities ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load exchange securities: %w", err)
	}
	defer rows.Close()

	var securities []types.ExchangeSecurity
	for rows.Next() {
		var (
			sec      types.ExchangeSecurity
			currency string
		)
		if err := rows.Scan(&sec.ExchangeID, &currency); err != nil {
			return nil, nil, fmt.Errorf("failed to scan exchange security: %w", err)
		}
		if sec.Currency, err = types.ParseCurrency(currency); err != nil {
			return nil, nil, err
		}
		securities = append(securities, sec)
	}
	return exchanges, securities, rows.Err()
}
