package pebble

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/PxPatel/currency-exchange/internal/types"
)

var lastIDKey = []byte("meta/last_trade_id")

// TradeStore keeps the journal in an embedded pebble database.
// Keys are trade/<PAIR>/<zero padded id> so a prefix iteration returns one
// pair's trades in TradeID order. Every write is synced.
type TradeStore struct {
	db *pebble.DB
}

// Open opens or creates the journal database in dir
func Open(dir string) (*TradeStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble journal: %w", err)
	}
	return &TradeStore{db: db}, nil
}

func pairPrefix(pair types.Pair) string {
	return "trade/" + pair.String() + "/"
}

func keyFor(pair types.Pair, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", pairPrefix(pair), id))
}

func (s *TradeStore) Save(trade *types.Trade) error {
	return s.SaveBatch([]*types.Trade{trade})
}

// SaveBatch commits the trades and the new last ID atomically
func (s *TradeStore) SaveBatch(trades []*types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	var last uint64
	for _, trade := range trades {
		data, err := json.Marshal(trade)
		if err != nil {
			return err
		}
		if err := batch.Set(keyFor(trade.Pair, trade.TradeID), data, nil); err != nil {
			return err
		}
		if trade.TradeID > last {
			last = trade.TradeID
		}
	}

	prev, err := s.LastID()
	if err != nil {
		return err
	}
	if last > prev {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, last)
		if err := batch.Set(lastIDKey, buf, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

func (s *TradeStore) Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFor(pair, afterID+1),
		UpperBound: []byte(pairPrefix(pair) + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var trade types.Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			return fmt.Errorf("corrupt journal entry %s: %w", iter.Key(), err)
		}
		if err := fn(&trade); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *TradeStore) LastID() (uint64, error) {
	val, closer, err := s.db.Get(lastIDKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	if len(val) != 8 {
		return 0, errors.New("invalid last trade id record")
	}
	return binary.BigEndian.Uint64(val), nil
}

func (s *TradeStore) Close() error {
	return s.db.Close()
}
