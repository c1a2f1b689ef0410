// Package discovery implements the candidate-counterparty port against the
// venue's public data API.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// Client is the REST client for leaderboard and trade-history queries. It is
// consumed by the rebalancer and the copy/counter loops; strategy loops never
// call it directly.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a discovery client.
//
// baseURL is the data API root, e.g. "https://data-api.polymarket.com".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiCandidate is the wire shape of one leaderboard row.
type apiCandidate struct {
	Address          string  `json:"address"`
	PnL7d            float64 `json:"pnl_7d"`
	PnL30d           float64 `json:"pnl_30d"`
	PnLAllTime       float64 `json:"pnl_all_time"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	AvgTradeSize     float64 `json:"avg_trade_size"`
	Bankroll         float64 `json:"bankroll"`
	ConsistencyScore float64 `json:"consistency_score"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
}

// ListCandidates fetches the current leaderboard for a mirror strategy and
// returns it as a versioned snapshot. The version is the server's snapshot
// sequence when provided, otherwise the fetch time in Unix seconds.
func (c *Client) ListCandidates(ctx context.Context, kind domain.StrategyKind) (domain.CandidateSnapshot, error) {
	params := url.Values{}
	params.Set("strategy", string(kind))

	body, err := c.doGet(ctx, "/leaderboard?"+params.Encode())
	if err != nil {
		return domain.CandidateSnapshot{}, fmt.Errorf("discovery: list candidates: %w", err)
	}

	var resp struct {
		Version    int64          `json:"version"`
		Candidates []apiCandidate `json:"candidates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.CandidateSnapshot{}, fmt.Errorf("discovery: decode leaderboard: %w", err)
	}

	now := time.Now()
	snap := domain.CandidateSnapshot{
		Strategy: kind,
		Version:  resp.Version,
		TakenAt:  now,
	}
	if snap.Version == 0 {
		snap.Version = now.Unix()
	}
	for _, ac := range resp.Candidates {
		snap.Candidates = append(snap.Candidates, domain.Candidate{
			EntityID: ac.Address,
			Metrics: domain.EntityMetrics{
				PnL7d:              ac.PnL7d,
				PnL30d:             ac.PnL30d,
				PnLAllTime:         ac.PnLAllTime,
				WinRate:            ac.WinRate,
				TotalTrades:        ac.TotalTrades,
				AvgTradeSize:       ac.AvgTradeSize,
				Bankroll:           ac.Bankroll,
				ConsistencyScore:   ac.ConsistencyScore,
				RiskAdjustedReturn: ac.SharpeRatio,
			},
		})
	}
	return snap, nil
}

// apiTrade is the wire shape of one observed trade.
type apiTrade struct {
	User      string  `json:"user"`
	AssetID   string  `json:"asset_id"`
	Side      string  `json:"side"`    // "BUY" or "SELL"
	Outcome   string  `json:"outcome"` // "Yes" or "No"
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // Unix seconds
}

// RecentTrades returns the entity's trades observed since the given instant,
// oldest first.
func (c *Client) RecentTrades(ctx context.Context, entityID string, since time.Time) ([]domain.ObservedTrade, error) {
	params := url.Values{}
	params.Set("user", entityID)
	params.Set("after", strconv.FormatInt(since.Unix(), 10))

	body, err := c.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("discovery: recent trades for %s: %w", entityID, err)
	}

	var apiTrades []apiTrade
	if err := json.Unmarshal(body, &apiTrades); err != nil {
		return nil, fmt.Errorf("discovery: decode trades: %w", err)
	}

	trades := make([]domain.ObservedTrade, 0, len(apiTrades))
	for _, at := range apiTrades {
		trade := domain.ObservedTrade{
			EntityID:     at.User,
			InstrumentID: at.AssetID,
			Direction:    wireDirection(at.Side, at.Outcome),
			Size:         at.Size,
			Price:        at.Price,
			ObservedAt:   time.Unix(at.Timestamp, 0),
		}
		if trade.ObservedAt.Before(since) {
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// wireDirection maps the venue's side/outcome pair onto a trade direction.
func wireDirection(side, outcome string) domain.Direction {
	if side == "SELL" {
		return domain.DirectionSell
	}
	if outcome == "No" {
		return domain.DirectionBuyNo
	}
	return domain.DirectionBuyYes
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, string(body))
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

var _ domain.Discovery = (*Client)(nil)
