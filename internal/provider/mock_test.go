package provider

import (
	"context"
	"sync"
)

// mockHTTPClient records requests and replies with a fixed response.
type mockHTTPClient struct {
	mu       sync.Mutex
	requests []*HTTPRequest
	resp     *HTTPResponse
	err      error
}

func (m *mockHTTPClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return &HTTPResponse{StatusCode: 200}, nil
	}
	return m.resp, nil
}

func (m *mockHTTPClient) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockHTTPClient) last() *HTTPRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func testMessage() *Message {
	return &Message{
		ID:       "3f2b6c1e-8d4a-4f7e-9b1a-2c3d4e5f6a7b",
		To:       Recipients{"mp@example.org"},
		Cc:       Recipients{"constituent@example.com"},
		Subject:  "Act now",
		Text:     "Please act.",
		HTML:     "<p>Please act.</p>",
		From:     "campaign@example.net",
		FromName: "Campaign",
	}
}
