package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rrijal1/poly-trader/internal/domain"
)

// VenueClient is the REST client for the venue's order API. It submits
// fill-or-kill limit orders and resolves cancels, implementing the same port
// as the dry-run Simulator.
type VenueClient struct {
	baseURL    string
	httpClient *http.Client
	auth       *hmacAuth
}

// NewVenueClient creates a live execution port.
//
// baseURL is the order API root, e.g. "https://clob.polymarket.com".
func NewVenueClient(baseURL, apiKey, apiSecret, apiPassphrase string) *VenueClient {
	return &VenueClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		auth: &hmacAuth{
			Key:        apiKey,
			Secret:     apiSecret,
			Passphrase: apiPassphrase,
		},
	}
}

// apiOrderResult is the venue's response to an order submission.
type apiOrderResult struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"orderID"`
	Status    string `json:"status"` // "matched", "live", "unmatched"
	ErrorMsg  string `json:"errorMsg"`
	FillPrice string `json:"avgPrice"`
	FillSize  string `json:"sizeMatched"`
}

// SubmitOrder posts a fill-or-kill order at req.PriceLimit. A zero limit is
// sent as a market order. The venue either matches the full size or rejects.
func (c *VenueClient) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	orderType := "FOK"
	if req.PriceLimit <= 0 {
		orderType = "FAK"
	}

	side := "BUY"
	if req.Direction == domain.DirectionSell {
		side = "SELL"
	}

	body := map[string]any{
		"order": map[string]any{
			"clientOrderID": req.ClientOrderID,
			"tokenID":       req.InstrumentID,
			"side":          side,
			"size":          strconv.FormatFloat(req.Size, 'f', 2, 64),
			"price":         strconv.FormatFloat(req.PriceLimit, 'f', 4, 64),
		},
		"orderType": orderType,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("venue: post order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.Fill{}, fmt.Errorf("venue: decode order result: %w", err)
	}
	if !result.Success || result.Status != "matched" {
		return domain.Fill{}, fmt.Errorf("%w: %s (status %s)", domain.ErrExecutionRejected, result.ErrorMsg, result.Status)
	}

	fill, err := result.toFill(req)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("venue: order result: %w", err)
	}
	return fill, nil
}

// CancelOrder cancels a pending order by its client reference. When the
// cancel races a fill the venue reports the match, which is surfaced as
// CancelAlreadyFilled with the fill attached.
func (c *VenueClient) CancelOrder(ctx context.Context, orderRef string) (domain.CancelOutcome, *domain.Fill, error) {
	body := map[string]any{
		"clientOrderID": orderRef,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return "", nil, fmt.Errorf("venue: cancel order %s: %w", orderRef, err)
	}

	var result struct {
		Success       bool   `json:"success"`
		AlreadyFilled bool   `json:"alreadyFilled"`
		ErrorMsg      string `json:"errorMsg"`
		FillPrice     string `json:"avgPrice"`
		FillSize      string `json:"sizeMatched"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", nil, fmt.Errorf("venue: decode cancel response: %w", err)
	}
	if !result.Success {
		return "", nil, fmt.Errorf("venue: cancel failed: %s", result.ErrorMsg)
	}

	if result.AlreadyFilled {
		price, perr := strconv.ParseFloat(result.FillPrice, 64)
		size, serr := strconv.ParseFloat(result.FillSize, 64)
		if perr != nil || serr != nil {
			return "", nil, fmt.Errorf("venue: cancel reported fill with unparseable terms %q/%q", result.FillPrice, result.FillSize)
		}
		return domain.CancelAlreadyFilled, &domain.Fill{
			OrderRef:  orderRef,
			FillPrice: price,
			FillSize:  size,
			FilledAt:  time.Now(),
		}, nil
	}
	return domain.CancelOK, nil, nil
}

func (r apiOrderResult) toFill(req domain.OrderRequest) (domain.Fill, error) {
	price, err := strconv.ParseFloat(r.FillPrice, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("parse avgPrice %q: %w", r.FillPrice, err)
	}
	size, err := strconv.ParseFloat(r.FillSize, 64)
	if err != nil {
		return domain.Fill{}, fmt.Errorf("parse sizeMatched %q: %w", r.FillSize, err)
	}
	ref := req.ClientOrderID
	if r.OrderID != "" {
		ref = r.OrderID
	}
	return domain.Fill{
		OrderRef:  ref,
		FillPrice: price,
		FillSize:  size,
		FilledAt:  time.Now(),
	}, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the order API. It returns the raw response body.
func (c *VenueClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.auth.headers(method, path, bodyStr) {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.Execution = (*VenueClient)(nil)
