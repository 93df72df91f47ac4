package file

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/PxPatel/currency-exchange/internal/types"
)

// maxLineSize bounds a single JSON-encoded trade when reading the log back
const maxLineSize = 64 * 1024

// FileTradeStore implements TradeStore as an append-only JSON lines file.
// Writes are synchronous and fsynced so a trade reported to a caller is on
// disk; reads reopen the file and stream it.
type FileTradeStore struct {
	path    string
	file    *os.File
	encoder *json.Encoder
	lastID  uint64
	mutex   sync.Mutex
}

// NewFileTradeStore opens (or creates) the trade log at filePath
func NewFileTradeStore(filePath string) (*FileTradeStore, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trade log: %w", err)
	}

	s := &FileTradeStore{
		path:    filePath,
		file:    file,
		encoder: json.NewEncoder(file),
	}

	// Seed lastID from what is already on disk
	valid, err := s.readAll(func(trade *types.Trade) error {
		if trade.TradeID > s.lastID {
			s.lastID = trade.TradeID
		}
		return nil
	})
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read trade log: %w", err)
	}

	// Cut a torn tail so the next append starts on a fresh line
	if err := file.Truncate(valid); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to truncate trade log: %w", err)
	}

	return s, nil
}

func (s *FileTradeStore) Save(trade *types.Trade) error {
	return s.SaveBatch([]*types.Trade{trade})
}

func (s *FileTradeStore) SaveBatch(trades []*types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, trade := range trades {
		if err := s.encoder.Encode(trade); err != nil {
			return fmt.Errorf("failed to write trade %d: %w", trade.TradeID, err)
		}
		if trade.TradeID > s.lastID {
			s.lastID = trade.TradeID
		}
	}

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trade log: %w", err)
	}
	return nil
}

func (s *FileTradeStore) Scan(pair types.Pair, afterID uint64, fn func(*types.Trade) error) error {
	_, err := s.readAll(func(trade *types.Trade) error {
		if trade.Pair != pair || trade.TradeID <= afterID {
			return nil
		}
		return fn(trade)
	})
	return err
}

// readAll decodes every complete line of the log and returns the byte length
// of those lines. A torn final line from a crash mid-write is skipped;
// corruption anywhere else is an error.
func (s *FileTradeStore) readAll(fn func(*types.Trade) error) (int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var valid int64
	reader := bufio.NewReaderSize(f, maxLineSize)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return valid, nil
		}
		if err != nil {
			return valid, err
		}

		var trade types.Trade
		if err := json.Unmarshal(line, &trade); err != nil {
			return valid, fmt.Errorf("corrupt trade log entry at byte %d: %w", valid, err)
		}
		if err := fn(&trade); err != nil {
			return valid, err
		}
		valid += int64(len(line))
	}
}

func (s *FileTradeStore) LastID() (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.lastID, nil
}

func (s *FileTradeStore) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
