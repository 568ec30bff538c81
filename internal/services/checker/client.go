// Package checker talks to the external verification engine that
// evaluates queries against model documents.
package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/modelhub-io/modelhub/internal/config"
)

// Request carries one query evaluation to the engine. The callback
// token authenticates the engine's asynchronous result report.
type Request struct {
	Query          string          `json:"query"`
	Document       json.RawMessage `json:"document"`
	ProjectVersion int64           `json:"projectVersion"`
	CallbackURL    string          `json:"callbackUrl"`
	CallbackToken  string          `json:"callbackToken"`
}

// Response is the engine's synchronous answer. Accepted means the
// engine chose to work asynchronously and will use the callback.
type Response struct {
	Accepted bool            `json:"accepted"`
	Result   json.RawMessage `json:"result"`
}

// Client is an HTTP client for the verification engine.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a checker client from configuration. Returns
// nil when no checker endpoint is configured; callers treat a nil
// client as "query runs disabled".
func NewClient(cfg config.CheckerConfig) *Client {
	if !cfg.Enabled() {
		return nil
	}
	return &Client{
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Check submits a query evaluation. A nil result with no error means
// the engine accepted the work and will report through the callback.
func (c *Client) Check(ctx context.Context, req *Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal checker request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build checker request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call checker: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed Response
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decode checker response: %w", err)
		}
		if parsed.Accepted {
			return nil, nil
		}
		if len(parsed.Result) == 0 {
			return nil, fmt.Errorf("checker returned neither a result nor accepted")
		}
		return parsed.Result, nil
	case http.StatusAccepted:
		return nil, nil
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("checker returned status %d: %s", resp.StatusCode, detail)
	}
}
