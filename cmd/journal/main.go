package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/PxPatel/currency-exchange/config"
	"github.com/PxPatel/currency-exchange/internal/journal"
	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/storage/file"
	"github.com/PxPatel/currency-exchange/internal/storage/pebble"
	"github.com/PxPatel/currency-exchange/internal/storage/postgres"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// journal prints the trades of one pair as JSON lines, oldest first.
//
//	journal -pair BTC/USD [-since 120] [-source file|pebble|postgres]
func main() {
	pairFlag := flag.String("pair", "", "currency pair, BASE/QUOTE")
	since := flag.Uint64("since", 0, "only trades with a greater trade id")
	source := flag.String("source", "file", "journal backend: file, pebble or postgres")
	dsn := flag.String("dsn", "", "postgres connection URL (source=postgres)")
	flag.Parse()

	pair, err := types.ParsePair(*pairFlag)
	if err != nil {
		fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	store, err := openStore(context.Background(), cfg, *source, *dsn)
	if err != nil {
		fatal(err)
	}
	j := journal.New(store)
	defer j.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	enc := json.NewEncoder(out)

	count := 0
	for trade, err := range j.Since(pair, *since) {
		if err != nil {
			out.Flush()
			fatal(err)
		}
		if err := enc.Encode(trade); err != nil {
			fatal(err)
		}
		count++
	}
	fmt.Fprintf(os.Stderr, "%d trades\n", count)
}

func openStore(ctx context.Context, cfg *config.Config, source, dsn string) (storage.TradeStore, error) {
	switch source {
	case "file":
		return file.NewFileTradeStore(cfg.Journal.FilePath)
	case "pebble":
		return pebble.Open(cfg.Pebble.Dir)
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("-dsn is required for source=postgres")
		}
		pool, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return postgres.NewPostgresTradeStore(pool), nil
	}
	return nil, fmt.Errorf("unknown source %q", source)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "journal: %v\n", err)
	os.Exit(1)
}
