package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PxPatel/currency-exchange/config"
	"github.com/PxPatel/currency-exchange/internal/logger"
	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/storage/file"
	"github.com/PxPatel/currency-exchange/internal/storage/kafka"
	"github.com/PxPatel/currency-exchange/internal/storage/memory"
	"github.com/PxPatel/currency-exchange/internal/storage/pebble"
	"github.com/PxPatel/currency-exchange/internal/storage/postgres"
	"github.com/PxPatel/currency-exchange/internal/storage/redis"
)

// buildStorageLayers constructs the storage layers based on configuration.
// Order layers: memory, Redis, Postgres. Trade layers are ordered so the most
// complete durable journal is read first: pebble, Postgres, file, Redis,
// memory, then the write-only Kafka feed.
func buildStorageLayers(cfg *config.Config, pool *pgxpool.Pool) (storage.OrderStore, storage.TradeStore, error) {
	var orderStores []storage.OrderStore
	var tradeStores []storage.TradeStore

	// L1: In-memory (fastest)
	orderStores = append(orderStores, memory.NewInMemoryOrderStore(cfg.Memory.MaxOrders))
	logger.Info("In-memory storage layer enabled", map[string]interface{}{
		"max_orders": cfg.Memory.MaxOrders,
	})

	// Embedded journal
	if cfg.Pebble.Enabled {
		pebbleStore, err := pebble.Open(cfg.Pebble.Dir)
		if err != nil {
			return nil, nil, err
		}
		tradeStores = append(tradeStores, pebbleStore)
		logger.Info("Pebble trade journal enabled", map[string]interface{}{"dir": cfg.Pebble.Dir})
	}

	// L2: Redis (distributed cache) - if enabled
	var redisTradeStore *redis.RedisTradeStore
	if cfg.Redis.Enabled {
		redisCfg := redis.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			OrderTTL:     cfg.Redis.OrderTTL,
		}

		orderStore, err := redis.NewRedisOrderStore(redisCfg)
		if err != nil {
			logger.Warn("Failed to connect to Redis, continuing without distributed cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			logger.Info("Redis cache connected successfully", map[string]interface{}{
				"host": cfg.Redis.Host,
				"port": cfg.Redis.Port,
			})
			orderStores = append(orderStores, orderStore)

			if tradeStore, err := redis.NewRedisTradeStore(redisCfg); err == nil {
				redisTradeStore = tradeStore
			}
		}
	}

	// L3: PostgreSQL (persistent storage) - if connected
	if pool != nil {
		orderStores = append(orderStores, postgres.NewPostgresOrderStore(pool))
		tradeStores = append(tradeStores, postgres.NewPostgresTradeStore(pool))
	}

	// L4: File storage (audit log)
	if cfg.Journal.FileEnabled {
		fileTradeStore, err := file.NewFileTradeStore(cfg.Journal.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trade log: %w", err)
		}
		tradeStores = append(tradeStores, fileTradeStore)
		logger.Info("Trade file log enabled", map[string]interface{}{
			"path": cfg.Journal.FilePath,
		})
	}

	if redisTradeStore != nil {
		tradeStores = append(tradeStores, redisTradeStore)
	}
	tradeStores = append(tradeStores, memory.NewInMemoryTradeStore())

	// Trade feed
	if cfg.Kafka.Enabled {
		tradeStores = append(tradeStores, kafka.NewTradeFeed(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		logger.Info("Kafka trade feed enabled", map[string]interface{}{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		})
	}

	// Build composite stores
	var orderStore storage.OrderStore
	var tradeStore storage.TradeStore

	if len(orderStores) == 1 {
		orderStore = orderStores[0]
	} else {
		orderStore = storage.NewCompositeOrderStore(orderStores...)
	}

	if len(tradeStores) == 1 {
		tradeStore = tradeStores[0]
	} else {
		tradeStore = storage.NewCompositeTradeStore(tradeStores...)
	}

	logger.Info("Storage layers initialized", map[string]interface{}{
		"order_layers": len(orderStores),
		"trade_layers": len(tradeStores),
	})

	return orderStore, tradeStore, nil
}
