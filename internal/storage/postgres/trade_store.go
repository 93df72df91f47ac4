package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/PxPatel/currency-exchange/internal/types"
)

const insertTrade = `
	INSERT INTO trades (trade_id, pair, rate, buy_order_id, sell_order_id, amount, filled, timestamp)
	VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7, $8)
	ON CONFLICT (trade_id) DO NOTHING
`

// PostgresTradeStore implements TradeStore using PostgreSQL
type PostgresTradeStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTradeStore creates a PostgreSQL-backed trade store on a pool
// whose schema has been migrated
func NewPostgresTradeStore(pool *pgxpool.Pool) *PostgresTradeStore {
	return &PostgresTradeStore{pool: pool}
}

func tradeArgs(trade *types.Trade) []any {
	return []any{
		int64(trade.TradeID), trade.Pair.String(), trade.Rate.String(),
		int64(trade.BuyOrderID), int64(trade.SellOrderID), trade.Amount, trade.Filled, trade.Timestamp,
	}
}

func (s *PostgresTradeStore) Save(trade *types.Trade) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.pool.Exec(ctx, insertTrade, tradeArgs(trade)...); err != nil {
		return fmt.Errorf("failed to insert trade %d: %w", trade.TradeID, err)
	}
	return nil
}

// SaveBatch inserts the trades of one match in a single transaction
func (s *PostgresTradeStore) SaveBatch(trades []*types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, trade := range trades {
			batch.Queue(insertTrade, tradeArgs(trade)...)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < len(trades); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("batch insert failed at index %d: %w", i, err)
			}
		}
		return results.Close()
	})
}

func (s *PostgresTradeStore) Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	query := `
		SELECT trade_id, rate::text, buy_order_id, sell_order_id, amount, filled, timestamp
		FROM trades
		WHERE pair = $1 AND trade_id > $2
		ORDER BY trade_id
	`

	rows, err := s.pool.Query(ctx, query, pair.String(), int64(afterID))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			trade             types.Trade
			id, buyID, sellID int64
			rate              string
		)
		if err := rows.Scan(&id, &rate, &buyID, &sellID, &trade.Amount, &trade.Filled, &trade.Timestamp); err != nil {
			return err
		}
		if trade.Rate, err = decimal.NewFromString(rate); err != nil {
			return fmt.Errorf("trade %d has invalid rate %q: %w", id, rate, err)
		}
		trade.TradeID, trade.BuyOrderID, trade.SellOrderID = uint64(id), uint64(buyID), uint64(sellID)
		trade.Pair = pair

		if err := fn(&trade); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresTradeStore) LastID() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(trade_id), 0) FROM trades`).Scan(&last); err != nil {
		return 0, err
	}
	return uint64(last), nil
}

func (s *PostgresTradeStore) Close() error {
	s.pool.Close()
	return nil
}
