package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

// TradeFeed publishes executed trades to a topic, keyed by pair so a pair's
// trades stay ordered within one partition. It is a write-only TradeStore.
type TradeFeed struct {
	writer *kafka.Writer
}

func NewTradeFeed(brokers []string, topic string) *TradeFeed {
	return &TradeFeed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (f *TradeFeed) Save(trade *types.Trade) error {
	return f.SaveBatch([]*types.Trade{trade})
}

func (f *TradeFeed) SaveBatch(trades []*types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(trades))
	for _, trade := range trades {
		value, err := json.Marshal(trade)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(trade.Pair.String()),
			Value: value,
			Time:  trade.Timestamp,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.writer.WriteMessages(ctx, msgs...)
}

func (f *TradeFeed) Scan(types.Pair, uint64, func(*types.Trade) error) error {
	return storage.ErrScanUnsupported
}

func (f *TradeFeed) LastID() (uint64, error) {
	return 0, storage.ErrScanUnsupported
}

func (f *TradeFeed) Close() error {
	return f.writer.Close()
}
