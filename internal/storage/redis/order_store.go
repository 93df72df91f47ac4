package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

const (
	orderKeyPrefix   = "order:"
	userOrdersPrefix = "user_orders:"
	allOrdersKey     = "orders:all"
	openOrdersKey    = "orders:open"
)

// RedisOrderStore implements OrderStore with one JSON value per order plus
// set indexes for users, all orders and open orders
type RedisOrderStore struct {
	client   *redis.Client
	orderTTL time.Duration
}

// NewRedisOrderStore creates a new Redis-backed order store
func NewRedisOrderStore(cfg RedisConfig) (*RedisOrderStore, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisOrderStoreWithClient(client, cfg.OrderTTL), nil
}

// NewRedisOrderStoreWithClient shares an existing client
func NewRedisOrderStoreWithClient(client *redis.Client, orderTTL time.Duration) *RedisOrderStore {
	return &RedisOrderStore{client: client, orderTTL: orderTTL}
}

func orderKey(id uint64) string {
	return orderKeyPrefix + strconv.FormatUint(id, 10)
}

func (s *RedisOrderStore) Save(order *types.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()

	// Resting orders must survive until they are filled or cancelled
	var ttl time.Duration
	if order.Status.Terminal() {
		ttl = s.orderTTL
	}
	pipe.Set(ctx, orderKey(order.ID), data, ttl)

	pipe.SAdd(ctx, userOrdersPrefix+order.UserID, order.ID)
	pipe.SAdd(ctx, allOrdersKey, order.ID)
	if order.Status.Terminal() {
		pipe.SRem(ctx, openOrdersKey, order.ID)
	} else {
		pipe.SAdd(ctx, openOrdersKey, order.ID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisOrderStore) Get(orderID uint64) (*types.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, orderKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("order %d: %w", orderID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var order types.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// Update is an upsert, like Save
func (s *RedisOrderStore) Update(order *types.Order) error {
	return s.Save(order)
}

func (s *RedisOrderStore) Remove(orderID uint64) error {
	order, err := s.Get(orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, orderKey(orderID))
	pipe.SRem(ctx, userOrdersPrefix+order.UserID, orderID)
	pipe.SRem(ctx, allOrdersKey, orderID)
	pipe.SRem(ctx, openOrdersKey, orderID)

	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisOrderStore) GetAll() []*types.Order {
	return s.ordersInSet(allOrdersKey)
}

func (s *RedisOrderStore) GetByUser(userID string) []*types.Order {
	return s.ordersInSet(userOrdersPrefix + userID)
}

func (s *RedisOrderStore) GetOpen() []*types.Order {
	return s.ordersInSet(openOrdersKey)
}

func (s *RedisOrderStore) Close() error {
	return s.client.Close()
}

// ordersInSet loads the orders whose IDs are members of an index set.
// Expired orders still listed in an index are skipped.
func (s *RedisOrderStore) ordersInSet(setKey string) []*types.Order {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil || len(ids) == 0 {
		return []*types.Order{}
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderKeyPrefix + id
	}

	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return []*types.Order{}
	}

	orders := make([]*types.Order, 0, len(results))
	for _, result := range results {
		data, ok := result.(string)
		if !ok {
			continue
		}
		var order types.Order
		if err := json.Unmarshal([]byte(data), &order); err != nil {
			continue
		}
		orders = append(orders, &order)
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })
	return orders
}
