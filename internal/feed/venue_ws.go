// Package feed connects to the venue and reference WebSocket streams and
// keeps the quote cache current. Strategy loops never touch a socket; they
// read the cache.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rrijal1/poly-trader/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// VenueFeed subscribes to the venue's book channel for a set of instruments
// and writes every top-of-book update into the quote cache. It reconnects
// with exponential backoff on disconnect.
type VenueFeed struct {
	wsURL       string
	instruments []string
	cache       domain.QuoteCache
	logger      *slog.Logger
}

// NewVenueFeed creates a feed that subscribes to the given instrument IDs.
func NewVenueFeed(wsURL string, instruments []string, cache domain.QuoteCache, logger *slog.Logger) *VenueFeed {
	return &VenueFeed{
		wsURL:       wsURL,
		instruments: instruments,
		cache:       cache,
		logger:      logger.With("component", "feed.venue"),
	}
}

// Run connects and pumps book updates into the cache until ctx is cancelled.
func (f *VenueFeed) Run(ctx context.Context) error {
	if len(f.instruments) == 0 {
		f.logger.Info("no instruments to subscribe, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("venue ws disconnected, reconnecting", "error", err, "delay", delay)

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

func (f *VenueFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect venue ws: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	sub := map[string]any{
		"type":    "subscribe",
		"channel": "book",
		"assets":  f.instruments,
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("feed: subscribe book: %w", err)
	}
	f.logger.Info("venue ws subscribed", "instruments", len(f.instruments))

	go keepAlive(ctx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read venue ws: %w", err)
		}

		quote, ok := parseBookMessage(raw, time.Now())
		if !ok {
			continue
		}
		if err := f.cache.SetQuote(ctx, quote); err != nil {
			f.logger.Warn("quote cache write failed", "instrument", quote.InstrumentID, "error", err)
		}
	}
}

// keepAlive sends periodic pings until ctx is cancelled or a write fails.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// bookMessage is the venue's full book snapshot envelope.
type bookMessage struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Timestamp string      `json:"timestamp"` // Unix milliseconds
}

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// parseBookMessage extracts the top of book from a raw venue message. It
// reports ok=false for non-book messages and snapshots it cannot price.
func parseBookMessage(raw []byte, now time.Time) (domain.MarketQuote, bool) {
	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.MarketQuote{}, false
	}
	if msg.EventType != "book" || msg.AssetID == "" {
		return domain.MarketQuote{}, false
	}

	q := domain.MarketQuote{
		VenueID:      msg.Market,
		InstrumentID: msg.AssetID,
		ObservedAt:   now,
	}
	if ms, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && ms > 0 {
		q.ObservedAt = time.UnixMilli(ms)
	}

	// Best bid is the highest bid, best ask the lowest ask. Levels are not
	// guaranteed sorted on the wire.
	for _, lvl := range msg.Bids {
		price, perr := strconv.ParseFloat(lvl.Price, 64)
		size, serr := strconv.ParseFloat(lvl.Size, 64)
		if perr != nil || serr != nil {
			continue
		}
		if price > q.BestBid {
			q.BestBid, q.BestBidSize = price, size
		}
	}
	for _, lvl := range msg.Asks {
		price, perr := strconv.ParseFloat(lvl.Price, 64)
		size, serr := strconv.ParseFloat(lvl.Size, 64)
		if perr != nil || serr != nil {
			continue
		}
		if q.BestAsk == 0 || price < q.BestAsk {
			q.BestAsk, q.BestAskSize = price, size
		}
	}

	if q.BestBid == 0 && q.BestAsk == 0 {
		return domain.MarketQuote{}, false
	}
	return q, true
}
