package kafka

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PxPatel/currency-exchange/internal/storage"
	"github.com/PxPatel/currency-exchange/internal/types"
)

func TestTradeFeedIsWriteOnly(t *testing.T) {
	f := NewTradeFeed([]string{"localhost:9092"}, "unused")
	defer f.Close()

	err := f.Scan(types.NewPair(types.BTC, types.USD), 0, func(*types.Trade) error { return nil })
	assert.ErrorIs(t, err, storage.ErrScanUnsupported)

	_, err = f.LastID()
	assert.ErrorIs(t, err, storage.ErrScanUnsupported)

	assert.NoError(t, f.SaveBatch(nil))
}

// TestTradeFeedPublishes needs a broker with topic auto-creation enabled
func TestTradeFeedPublishes(t *testing.T) {
	brokers := os.Getenv("TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("TEST_KAFKA_BROKERS not set")
	}
	topic := "exchange-trades-test-" + time.Now().Format("20060102150405")

	f := NewTradeFeed(strings.Split(brokers, ","), topic)
	defer f.Close()

	trade := &types.Trade{TradeID: 1, Pair: types.NewPair(types.BTC, types.USD), Rate: decimal.NewFromInt(2), Amount: 10, Filled: true, Timestamp: time.Now().UTC()}
	require.Eventually(t, func() bool { return f.Save(trade) == nil }, 30*time.Second, time.Second)

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: strings.Split(brokers, ","), Topic: topic})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", string(msg.Key))

	var got types.Trade
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, uint64(1), got.TradeID)
}
