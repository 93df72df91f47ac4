package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PxPatel/currency-exchange/config"
	"github.com/PxPatel/currency-exchange/internal/journal"
	"github.com/PxPatel/currency-exchange/internal/ledger"
	"github.com/PxPatel/currency-exchange/internal/logger"
	"github.com/PxPatel/currency-exchange/internal/market"
	"github.com/PxPatel/currency-exchange/internal/matching"
	"github.com/PxPatel/currency-exchange/internal/session"
	"github.com/PxPatel/currency-exchange/internal/storage/postgres"
	"github.com/PxPatel/currency-exchange/internal/types"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.SetMinLevel(level)
	// stdout carries the command responses
	logger.SetOutput(os.Stderr)

	logger.Info("Starting currency exchange", map[string]interface{}{
		"version":       "1.0.0",
		"market_policy": cfg.Engine.MarketPolicy,
	})

	if err := run(cfg); err != nil {
		logger.Error("Exchange stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	logger.Info("Exchange exited successfully", nil)
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy, err := matching.ParseMarketPolicy(cfg.Engine.MarketPolicy)
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if cfg.Database.Enabled {
		pool, err = connectPostgres(ctx, cfg)
		if err != nil {
			if cfg.Exchange.LoadFromDB {
				return err
			}
			logger.Warn("Failed to connect to PostgreSQL, continuing without persistent storage", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer pool.Close()
		}
	}

	registry, err := buildRegistry(ctx, cfg, pool)
	if err != nil {
		return err
	}

	orderStore, tradeStore, err := buildStorageLayers(cfg, pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := orderStore.Close(); err != nil {
			logger.Error("Failed to close order store", map[string]interface{}{"error": err.Error()})
		}
	}()

	trades := journal.New(tradeStore)
	defer func() {
		if err := trades.Close(); err != nil {
			logger.Error("Failed to close trade journal", map[string]interface{}{"error": err.Error()})
		}
	}()
	if err := trades.Resume(ctx); err != nil {
		return err
	}

	accounts := ledger.New()
	var accountStore *postgres.AccountStore
	if pool != nil {
		accountStore = postgres.NewAccountStore(pool)
		snapshot, err := accountStore.LoadAccounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to load accounts: %w", err)
		}
		if err := accounts.Restore(snapshot); err != nil {
			return fmt.Errorf("failed to restore ledger: %w", err)
		}
		logger.Info("Ledger restored", map[string]interface{}{"accounts": len(snapshot)})
	}

	var opts []matching.Option
	if accountStore != nil {
		opts = append(opts, matching.WithAccountStore(accountStore))
	}
	engine := matching.NewEngine(registry, accounts, trades, orderStore, policy, opts...)
	if err := engine.Recover(ctx); err != nil {
		return fmt.Errorf("recovery failed: %w", err)
	}

	pairs := make([]string, 0)
	for _, p := range registry.Pairs() {
		pairs = append(pairs, p.String())
	}
	logger.Info("Exchange ready, reading commands from stdin", map[string]interface{}{
		"pairs": pairs,
	})

	// Serve blocks on stdin, so a signal has to end the wait separately
	done := make(chan error, 1)
	go func() {
		done <- session.New(engine, accounts).Serve(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case <-ctx.Done():
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Command session failed", map[string]interface{}{"error": err.Error()})
		}
	}

	logger.Info("Exchange shutting down...", nil)
	// Let running commands finish and refuse new ones before the stores close
	engine.Stop()

	if accountStore != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
		defer cancel()
		if err := accountStore.SaveAccounts(shutdownCtx, accounts.Snapshot()); err != nil {
			return fmt.Errorf("failed to persist ledger: %w", err)
		}
		logger.Info("Ledger persisted", nil)
	}
	return nil
}

func connectPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPostgresPool(ctx, postgres.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Name,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		MaxConns:        cfg.Database.MaxConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		SSLMode:         cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("PostgreSQL connected successfully", map[string]interface{}{
		"host":     cfg.Database.Host,
		"database": cfg.Database.Name,
	})
	return pool, nil
}

// buildRegistry loads the tradable pairs from the database or from the
// EXCHANGE_* settings
func buildRegistry(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (*market.Registry, error) {
	if cfg.Exchange.LoadFromDB {
		exchanges, securities, err := postgres.NewExchangeStore(pool).LoadExchanges(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load exchanges: %w", err)
		}
		return market.NewRegistry(exchanges, securities)
	}

	base, err := types.ParseCurrency(cfg.Exchange.BaseCurrency)
	if err != nil {
		return nil, fmt.Errorf("EXCHANGE_BASE_CURRENCY: %w", err)
	}
	securities := make([]types.Currency, 0, len(cfg.Exchange.Securities))
	for _, code := range cfg.Exchange.Securities {
		c, err := types.ParseCurrency(code)
		if err != nil {
			return nil, fmt.Errorf("EXCHANGE_SECURITIES: %w", err)
		}
		securities = append(securities, c)
	}
	return market.NewSingleExchange(cfg.Exchange.APIURL, base, securities...)
}
