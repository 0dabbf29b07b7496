package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the splitpay platform.
type Config struct {
	APIURL        string // Base URL, e.g. "http://localhost:8080"
	CallerAddress string // Address presented as the caller identity, e.g. "0x..."
}

// SplitpayClient is a pure HTTP client for the splitpay platform API.
type SplitpayClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewSplitpayClient creates a new client for the splitpay platform.
func NewSplitpayClient(cfg Config) *SplitpayClient {
	return &SplitpayClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *SplitpayClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.CallerAddress != "" {
		req.Header.Set("X-Caller-Address", c.cfg.CallerAddress)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// PreviewSplit computes a split configuration without settling anything.
func (c *SplitpayClient) PreviewSplit(ctx context.Context, amount, merchant, productType string, isX402 bool, executor, referrer string) (json.RawMessage, error) {
	body := map[string]any{
		"amount":         amount,
		"merchantWallet": merchant,
		"productType":    productType,
		"isX402":         isX402,
		"intent": map[string]string{
			"requester": c.cfg.CallerAddress,
			"executor":  executor,
			"referrer":  referrer,
		},
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/split/preview", nil, body)
}

// PreviewMultiHop computes a multi-hop split for a registered chain.
func (c *SplitpayClient) PreviewMultiHop(ctx context.Context, amount, merchant, rootAgentID, productType string) (json.RawMessage, error) {
	body := map[string]any{
		"amount":         amount,
		"merchantWallet": merchant,
		"rootAgentId":    rootAgentID,
		"productType":    productType,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/split/multihop/preview", nil, body)
}

// GetPendingBalance returns the pending settlement balance for an address.
func (c *SplitpayClient) GetPendingBalance(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/balances/"+address, nil, nil)
}

// GetSplitPlan fetches one split plan by ID.
func (c *SplitpayClient) GetSplitPlan(ctx context.Context, planID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/plans/"+planID, nil, nil)
}

// ListSplitPlans lists all split plans.
func (c *SplitpayClient) ListSplitPlans(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/plans", nil, nil)
}

// ListExecutions lists recent executions for a plan.
func (c *SplitpayClient) ListExecutions(ctx context.Context, planID string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/plans/"+planID+"/executions", q, nil)
}

// ListAgreements lists agreements touching an agent address.
func (c *SplitpayClient) ListAgreements(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/agents/"+address+"/agreements", nil, nil)
}

// ClaimAll claims the caller's entire pending balance.
func (c *SplitpayClient) ClaimAll(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/claim", nil, nil)
}
