package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PxPatel/currency-exchange/internal/types"
)

const (
	tradesKeyPrefix = "trades:"
	lastTradeIDKey  = "trades:last_id"
	scanPageSize    = 500
)

// RedisTradeStore implements TradeStore with one sorted set per pair, scored
// by TradeID so range reads come back in journal order
type RedisTradeStore struct {
	client *redis.Client
}

// NewRedisTradeStore creates a new Redis-backed trade store
func NewRedisTradeStore(cfg RedisConfig) (*RedisTradeStore, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisTradeStoreWithClient(client), nil
}

// NewRedisTradeStoreWithClient shares an existing client
func NewRedisTradeStoreWithClient(client *redis.Client) *RedisTradeStore {
	return &RedisTradeStore{client: client}
}

func tradesKey(pair types.Pair) string {
	return tradesKeyPrefix + pair.String()
}

func (s *RedisTradeStore) Save(trade *types.Trade) error {
	return s.SaveBatch([]*types.Trade{trade})
}

func (s *RedisTradeStore) SaveBatch(trades []*types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := s.client.TxPipeline()
	var last uint64
	for _, trade := range trades {
		data, err := json.Marshal(trade)
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, tradesKey(trade.Pair), redis.Z{
			Score:  float64(trade.TradeID),
			Member: data,
		})
		if trade.TradeID > last {
			last = trade.TradeID
		}
	}
	pipe.Set(ctx, lastTradeIDKey, last, 0)

	_, err := pipe.Exec(ctx)
	return err
}

// Scan pages through the pair's sorted set so large journals are never
// loaded at once
func (s *RedisTradeStore) Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error {
	min := "(" + strconv.FormatUint(afterID, 10)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		results, err := s.client.ZRangeByScore(ctx, tradesKey(pair), &redis.ZRangeBy{
			Min:   min,
			Max:   "+inf",
			Count: scanPageSize,
		}).Result()
		cancel()
		if err != nil {
			return err
		}

		for _, data := range results {
			var trade types.Trade
			if err := json.Unmarshal([]byte(data), &trade); err != nil {
				return err
			}
			if err := fn(&trade); err != nil {
				return err
			}
			min = "(" + strconv.FormatUint(trade.TradeID, 10)
		}

		if len(results) < scanPageSize {
			return nil
		}
	}
}

func (s *RedisTradeStore) LastID() (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	last, err := s.client.Get(ctx, lastTradeIDKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return last, err
}

func (s *RedisTradeStore) Close() error {
	return s.client.Close()
}
