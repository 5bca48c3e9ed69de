package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sungwon/mpmail/internal/provider"
	"github.com/sungwon/mpmail/internal/queue"
)

// DrainClient calls POST /queue/drain on a mailer API.
type DrainClient struct {
	url   string
	token string
	http  provider.HTTPClient
}

// NewDrainClient creates a client for the drain endpoint at url. An empty
// token sends no Authorization header.
func NewDrainClient(url, token string, client provider.HTTPClient) *DrainClient {
	return &DrainClient{url: url, token: token, http: client}
}

// StatusError is a non-200 reply from the drain endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("drain endpoint returned %d: %s", e.StatusCode, e.Body)
}

// Drain claims up to limit jobs. Once this returns successfully the jobs
// are gone from the queue store and owned by the caller.
func (c *DrainClient) Drain(ctx context.Context, limit int) (*queue.Batch, error) {
	body, err := json.Marshal(map[string]int{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("marshal drain request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	resp, err := c.http.Do(ctx, &provider.HTTPRequest{
		Method:  http.MethodPost,
		URL:     c.url,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("drain request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(resp.Body), 256)}
	}

	var batch queue.Batch
	if err := json.Unmarshal(resp.Body, &batch); err != nil {
		return nil, fmt.Errorf("decode drain response: %w", err)
	}
	return &batch, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
