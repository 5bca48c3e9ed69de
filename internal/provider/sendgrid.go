package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	sendgridDefaultEndpoint = "https://api.sendgrid.com"
	sendgridSendPath        = "/v3/mail/send"
	sendgridScopesPath      = "/v3/scopes"
)

// SendGrid implements the Provider interface for the SendGrid v3 API.
type SendGrid struct {
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewSendGrid creates a SendGrid provider from the given configuration.
func NewSendGrid(cfg ProviderConfig, client HTTPClient) *SendGrid {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = sendgridDefaultEndpoint
	}
	return &SendGrid{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   client,
	}
}

func (s *SendGrid) GetName() string { return "sendgrid" }

// Send delivers a message via the SendGrid v3 Mail Send API.
func (s *SendGrid) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return nil, fmt.Errorf("sendgrid: marshal request: %w", err)
	}

	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method: http.MethodPost,
		URL:    s.endpoint + sendgridSendPath,
		Headers: map[string]string{
			"Authorization": "Bearer " + s.apiKey,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("sendgrid: send request: %w", err)
	}

	if pe := ClassifyHTTPError("sendgrid", resp.StatusCode, string(resp.Body)); pe != nil {
		return nil, pe
	}
	return &DeliveryResult{
		ProviderMessageID: resp.Headers["X-Message-Id"],
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"status_code": strconv.Itoa(resp.StatusCode)},
	}, nil
}

// HealthCheck verifies SendGrid API connectivity by calling the scopes endpoint.
func (s *SendGrid) HealthCheck(ctx context.Context) error {
	resp, err := s.client.Do(ctx, &HTTPRequest{
		Method:  http.MethodGet,
		URL:     s.endpoint + sendgridScopesPath,
		Headers: map[string]string{"Authorization": "Bearer " + s.apiKey},
	})
	if err != nil {
		return fmt.Errorf("sendgrid: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendgrid: health check returned status %d", resp.StatusCode)
	}
	return nil
}

// sendgridPayload matches the SendGrid v3 mail/send JSON schema.
type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridEmail             `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
}

type sendgridPersonalization struct {
	To  []sendgridEmail `json:"to"`
	Cc  []sendgridEmail `json:"cc,omitempty"`
	Bcc []sendgridEmail `json:"bcc,omitempty"`
}

type sendgridEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func sendgridEmails(addrs []string) []sendgridEmail {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]sendgridEmail, len(addrs))
	for i, a := range addrs {
		out[i] = sendgridEmail{Email: a}
	}
	return out
}

func (s *SendGrid) buildPayload(msg *Message) sendgridPayload {
	// SendGrid requires text/plain to precede text/html.
	content := []sendgridContent{{Type: "text/plain", Value: msg.Text}}
	if msg.HTML != "" {
		content = append(content, sendgridContent{Type: "text/html", Value: msg.HTML})
	}

	return sendgridPayload{
		Personalizations: []sendgridPersonalization{{
			To:  sendgridEmails(msg.To),
			Cc:  sendgridEmails(msg.Cc),
			Bcc: sendgridEmails(msg.Bcc),
		}},
		From:    sendgridEmail{Email: msg.From, Name: msg.FromName},
		Subject: msg.Subject,
		Content: content,
	}
}
