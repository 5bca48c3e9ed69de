package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	userAgent = "mpmail/1.0"
	// maxResponseBody caps how much of an ESP response is buffered.
	maxResponseBody = 1 << 20
)

// StdHTTPClient executes HTTPRequests with a net/http client.
type StdHTTPClient struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPClient creates a StdHTTPClient with the given timeout.
func NewHTTPClient(timeout time.Duration) *StdHTTPClient {
	return NewHTTPClientWithLimit(timeout, maxResponseBody)
}

// NewHTTPClientWithLimit is NewHTTPClient with a custom response size cap.
// A response longer than maxBody is an error, never silently truncated.
func NewHTTPClientWithLimit(timeout time.Duration, maxBody int64) *StdHTTPClient {
	return &StdHTTPClient{client: &http.Client{Timeout: timeout}, maxBody: maxBody}
}

// Do sends req under ctx and buffers the response body.
func (c *StdHTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", req.URL, c.maxBody)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &HTTPResponse{StatusCode: resp.StatusCode, Headers: headers, Body: body}, nil
}

// transportFunc adapts a function to http.RoundTripper.
type transportFunc func(*http.Request) (*http.Response, error)

func (f transportFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
