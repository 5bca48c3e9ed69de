package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

const mailgunDefaultEndpoint = "https://api.mailgun.net"

// Mailgun implements the Provider interface with the official Mailgun SDK.
type Mailgun struct {
	mg       *mailgun.MailgunImpl
	apiKey   string
	domain   string
	endpoint string
	client   HTTPClient
}

// NewMailgun creates a Mailgun provider from the given configuration.
// The shared HTTPClient is used only for health checks.
func NewMailgun(cfg ProviderConfig, client HTTPClient) *Mailgun {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = mailgunDefaultEndpoint
	}

	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	mg.SetAPIBase(endpoint + "/v3")
	mg.SetClient(&http.Client{Timeout: cfg.Timeout})

	return &Mailgun{
		mg:       mg,
		apiKey:   cfg.APIKey,
		domain:   cfg.Domain,
		endpoint: endpoint,
		client:   client,
	}
}

func (m *Mailgun) GetName() string { return "mailgun" }

// Send delivers a message via the Mailgun messages API.
func (m *Mailgun) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	mm := m.mg.NewMessage(msg.FromHeader(), msg.Subject, msg.Text, msg.To...)
	if msg.HTML != "" {
		mm.SetHtml(msg.HTML)
	}
	for _, cc := range msg.Cc {
		mm.AddCC(cc)
	}
	for _, bcc := range msg.Bcc {
		mm.AddBCC(bcc)
	}

	status, id, err := m.mg.Send(ctx, mm)
	if err != nil {
		if code := mailgun.GetStatusFromErr(err); code > 0 {
			return nil, ClassifyHTTPError("mailgun", code, err.Error())
		}
		return nil, fmt.Errorf("mailgun: send request: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: id,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"message": status},
	}, nil
}

// HealthCheck verifies Mailgun API connectivity by requesting domain info.
func (m *Mailgun) HealthCheck(ctx context.Context) error {
	resp, err := m.client.Do(ctx, &HTTPRequest{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v3/domains/%s", m.endpoint, m.domain),
		Headers: map[string]string{
			"Authorization": "Basic " + basicAuth("api", m.apiKey),
		},
	})
	if err != nil {
		return fmt.Errorf("mailgun: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailgun: health check returned status %d", resp.StatusCode)
	}
	return nil
}

// basicAuth encodes credentials as base64 for HTTP Basic Authentication.
func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}
