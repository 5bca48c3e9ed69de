package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

const resendDefaultEndpoint = "https://api.resend.com"

type statusKey struct{}

// Resend implements the Provider interface with the official Resend SDK.
//
// The SDK folds the HTTP status into its error text, so the provider's
// transport records the status into a per-call slot carried on the context.
type Resend struct {
	sdk      *resend.Client
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewResend creates a Resend provider. The shared HTTPClient is used only for
// health checks.
func NewResend(cfg ProviderConfig, client HTTPClient) (*Resend, error) {
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = resendDefaultEndpoint
	}
	base, err := url.Parse(endpoint + "/")
	if err != nil {
		return nil, fmt.Errorf("resend: parse endpoint: %w", err)
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: recordStatus(http.DefaultTransport),
	}
	sdk := resend.NewCustomClient(httpClient, cfg.APIKey)
	sdk.BaseURL = base

	return &Resend{sdk: sdk, apiKey: cfg.APIKey, endpoint: endpoint, client: client}, nil
}

// recordStatus stores each response status into the *int found on the
// request context, if any.
func recordStatus(next http.RoundTripper) http.RoundTripper {
	return transportFunc(func(r *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(r)
		if resp != nil {
			if slot, ok := r.Context().Value(statusKey{}).(*int); ok {
				*slot = resp.StatusCode
			}
		}
		return resp, err
	})
}

func (r *Resend) GetName() string { return "resend" }

// Send delivers a message via the Resend emails API.
func (r *Resend) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	var status int
	ctx = context.WithValue(ctx, statusKey{}, &status)

	sent, err := r.sdk.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    msg.FromHeader(),
		To:      msg.To,
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	})
	if err != nil {
		if status >= 300 {
			return nil, ClassifyHTTPError("resend", status, err.Error())
		}
		return nil, fmt.Errorf("resend: send request: %w", err)
	}

	return &DeliveryResult{
		ProviderMessageID: sent.Id,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck verifies the API key by listing domains.
func (r *Resend) HealthCheck(ctx context.Context) error {
	resp, err := r.client.Do(ctx, &HTTPRequest{
		Method:  http.MethodGet,
		URL:     r.endpoint + "/domains",
		Headers: map[string]string{"Authorization": "Bearer " + r.apiKey},
	})
	if err != nil {
		return fmt.Errorf("resend: health check request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resend: health check returned status %d", resp.StatusCode)
	}
	return nil
}
