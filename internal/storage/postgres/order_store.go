package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

const orderColumns = `order_id, user_id, order_type, side, amount, COALESCE(limit_price::text, '0'),
	from_currency, to_currency, status, remaining_amount, reserved, seq, created_at, updated_at`

// PostgresOrderStore implements OrderStore using PostgreSQL
type PostgresOrderStore struct {
	pool *pgxpool.Pool
}

// NewPostgresOrderStore creates a PostgreSQL-backed order store on a pool
// whose schema has been migrated
func NewPostgresOrderStore(pool *pgxpool.Pool) *PostgresOrderStore {
	return &PostgresOrderStore{pool: pool}
}

func (s *PostgresOrderStore) Save(order *types.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO orders (order_id, user_id, order_type, side, amount, limit_price,
			from_currency, to_currency, status, remaining_amount, reserved, seq, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			remaining_amount = EXCLUDED.remaining_amount,
			reserved = EXCLUDED.reserved,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		int64(order.ID), order.UserID, order.OrderType.String(), order.Side.String(), order.Amount,
		limitPriceParam(order), order.From.String(), order.To.String(), order.Status.String(),
		order.Remaining, order.Reserved, int64(order.Seq), order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order %d: %w", order.ID, err)
	}
	return nil
}

// limitPriceParam stores market orders with a NULL price
func limitPriceParam(order *types.Order) *string {
	if order.OrderType != types.LimitOrder {
		return nil
	}
	price := order.LimitPrice.String()
	return &price
}

func (s *PostgresOrderStore) Get(orderID uint64) (*types.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	order, err := scanOrder(s.pool.QueryRow(ctx, query, int64(orderID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", orderID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PostgresOrderStore) Update(order *types.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		UPDATE orders
		SET status = $2, remaining_amount = $3, reserved = $4, updated_at = $5
		WHERE order_id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		int64(order.ID), order.Status.String(), order.Remaining, order.Reserved, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", order.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *PostgresOrderStore) Remove(orderID uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, int64(orderID))
	return err
}

func (s *PostgresOrderStore) GetAll() []*types.Order {
	return s.query(`SELECT ` + orderColumns + ` FROM orders ORDER BY seq`)
}

func (s *PostgresOrderStore) GetByUser(userID string) []*types.Order {
	return s.query(`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY seq`, userID)
}

func (s *PostgresOrderStore) GetOpen() []*types.Order {
	return s.query(`SELECT `+orderColumns+` FROM orders WHERE status IN ($1, $2) ORDER BY seq`,
		types.StatusOpen.String(), types.StatusPartiallyFilled.String())
}

func (s *PostgresOrderStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresOrderStore) query(sql string, args ...any) []*types.Order {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return []*types.Order{}
	}
	defer rows.Close()

	orders := []*types.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			continue
		}
		orders = append(orders, order)
	}
	return orders
}

// scanOrder decodes a row selected with orderColumns
func scanOrder(row pgx.Row) (*types.Order, error) {
	var (
		order                     types.Order
		id, seq                   int64
		orderType, side, from, to string
		status, price             string
	)

	err := row.Scan(&id, &order.UserID, &orderType, &side, &order.Amount, &price,
		&from, &to, &status, &order.Remaining, &order.Reserved, &seq, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	order.ID, order.Seq = uint64(id), uint64(seq)
	if order.OrderType, err = types.ParseOrderType(orderType); err != nil {
		return nil, err
	}
	if order.Side, err = types.ParseSide(side); err != nil {
		return nil, err
	}
	if order.From, err = types.ParseCurrency(from); err != nil {
		return nil, err
	}
	if order.To, err = types.ParseCurrency(to); err != nil {
		return nil, err
	}
	if order.Status, err = types.ParseStatus(status); err != nil {
		return nil, err
	}
	if order.LimitPrice, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	return &order, nil
}
