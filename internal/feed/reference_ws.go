package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// ReferenceFeed subscribes to an external spot price stream and writes each
// trade into the quote cache as a reference observation. Source IDs take the
// form "exchange:SYMBOL", e.g. "binance:BTCUSDT".
type ReferenceFeed struct {
	wsURL   string
	sources []string
	cache   domain.QuoteCache
	logger  *slog.Logger
}

// NewReferenceFeed creates a feed for the given reference sources.
func NewReferenceFeed(wsURL string, sources []string, cache domain.QuoteCache, logger *slog.Logger) *ReferenceFeed {
	return &ReferenceFeed{
		wsURL:   wsURL,
		sources: sources,
		cache:   cache,
		logger:  logger.With("component", "feed.reference"),
	}
}

// Run connects and pumps reference trades into the cache until ctx is
// cancelled. Reconnects with exponential backoff on disconnect.
func (f *ReferenceFeed) Run(ctx context.Context) error {
	if len(f.sources) == 0 {
		f.logger.Info("no reference sources configured, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("reference ws disconnected, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *ReferenceFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect reference ws: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	streams := make([]string, 0, len(f.sources))
	for _, src := range f.sources {
		streams = append(streams, streamName(src))
	}
	sub := map[string]any{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     1,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe reference streams: %w", err)
	}
	f.logger.Info("reference ws subscribed", "streams", streams)

	go keepAlive(ctx, conn)

	prefix := sourcePrefix(f.sources)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read reference ws: %w", err)
		}

		obs, ok := parseTradeMessage(raw, prefix, time.Now())
		if !ok {
			continue
		}
		if err := f.cache.SetReference(ctx, obs); err != nil {
			f.logger.Warn("reference cache write failed", "source", obs.SourceID, "error", err)
		}
	}
}

// streamName maps "binance:BTCUSDT" to the exchange stream "btcusdt@trade".
func streamName(source string) string {
	symbol := source
	if i := strings.IndexByte(source, ':'); i >= 0 {
		symbol = source[i+1:]
	}
	return strings.ToLower(symbol) + "@trade"
}

// sourcePrefix returns the exchange prefix shared by the configured sources,
// used to rebuild the source ID from a wire symbol.
func sourcePrefix(sources []string) string {
	for _, src := range sources {
		if i := strings.IndexByte(src, ':'); i >= 0 {
			return src[:i+1]
		}
	}
	return ""
}

// tradeMessage is the exchange's trade event shape.
type tradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"` // Unix milliseconds
}

// parseTradeMessage extracts a reference observation from a raw trade event.
func parseTradeMessage(raw []byte, prefix string, now time.Time) (domain.ReferenceObservation, bool) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.ReferenceObservation{}, false
	}
	if msg.EventType != "trade" || msg.Symbol == "" {
		return domain.ReferenceObservation{}, false
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price <= 0 {
		return domain.ReferenceObservation{}, false
	}

	obs := domain.ReferenceObservation{
		SourceID:   prefix + msg.Symbol,
		Value:      price,
		ObservedAt: now,
	}
	if msg.TradeTime > 0 {
		obs.ObservedAt = time.UnixMilli(msg.TradeTime)
	}
	return obs, true
}
