package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WARN, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerFiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(INFO)
	l.SetOutput(&buf)

	l.Debug("hidden")
	l.Info("order placed", Fields{"pair": "BTC/USD", "order_id": 7})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO: order placed")
	assert.Contains(t, out, "| order_id=7 pair=BTC/USD")
	assert.Contains(t, out, "[TestLoggerFiltersAndFormats]")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestErrorGoesToErrorStream(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewLogger(DEBUG)
	l.out = &out
	l.errOut = &errOut

	l.Error("crossed book")
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "ERROR: crossed book")
}
