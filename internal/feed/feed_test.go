package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBookMessageTopOfBook(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok-yes",
		"market": "0xmarket",
		"bids": [
			{"price": "0.45", "size": "120"},
			{"price": "0.48", "size": "300"},
			{"price": "0.40", "size": "900"}
		],
		"asks": [
			{"price": "0.55", "size": "150"},
			{"price": "0.52", "size": "250"}
		],
		"timestamp": "1767225600000"
	}`)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	q, ok := parseBookMessage(raw, now)
	require.True(t, ok)
	assert.Equal(t, "tok-yes", q.InstrumentID)
	assert.Equal(t, "0xmarket", q.VenueID)
	assert.Equal(t, 0.48, q.BestBid)
	assert.Equal(t, 300.0, q.BestBidSize)
	assert.Equal(t, 0.52, q.BestAsk)
	assert.Equal(t, 250.0, q.BestAskSize)
	assert.Equal(t, time.UnixMilli(1767225600000), q.ObservedAt)
}

func TestParseBookMessageFallbackTimestamp(t *testing.T) {
	raw := []byte(`{
		"event_type": "book",
		"asset_id": "tok-yes",
		"bids": [{"price": "0.48", "size": "300"}],
		"asks": []
	}`)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	q, ok := parseBookMessage(raw, now)
	require.True(t, ok)
	assert.Equal(t, now, q.ObservedAt)
	assert.Zero(t, q.BestAsk)
}

func TestParseBookMessageRejectsOtherEvents(t *testing.T) {
	_, ok := parseBookMessage([]byte(`{"event_type":"price_change","asset_id":"tok-yes"}`), time.Now())
	assert.False(t, ok)

	_, ok = parseBookMessage([]byte(`not json`), time.Now())
	assert.False(t, ok)

	// A book with no priced levels is unusable.
	_, ok = parseBookMessage([]byte(`{"event_type":"book","asset_id":"tok-yes","bids":[],"asks":[]}`), time.Now())
	assert.False(t, ok)
}

func TestParseTradeMessage(t *testing.T) {
	raw := []byte(`{"e":"trade","s":"BTCUSDT","p":"100250.50","T":1767225600123}`)

	obs, ok := parseTradeMessage(raw, "binance:", time.Now())
	require.True(t, ok)
	assert.Equal(t, "binance:BTCUSDT", obs.SourceID)
	assert.Equal(t, 100250.50, obs.Value)
	assert.Equal(t, time.UnixMilli(1767225600123), obs.ObservedAt)

	// Subscription acks and non-trade events are skipped.
	_, ok = parseTradeMessage([]byte(`{"result":null,"id":1}`), "binance:", time.Now())
	assert.False(t, ok)

	_, ok = parseTradeMessage([]byte(`{"e":"trade","s":"BTCUSDT","p":"-1","T":1}`), "binance:", time.Now())
	assert.False(t, ok)
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "btcusdt@trade", streamName("binance:BTCUSDT"))
	assert.Equal(t, "ethusdt@trade", streamName("ETHUSDT"))
	assert.Equal(t, "binance:", sourcePrefix([]string{"binance:BTCUSDT", "binance:ETHUSDT"}))
	assert.Equal(t, "", sourcePrefix([]string{"BTCUSDT"}))
}
