// Package provider implements the interchangeable email delivery backends.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Provider defines the interface for sending email through a delivery backend.
type Provider interface {
	// Send delivers (or enqueues) a message and returns a delivery result.
	Send(ctx context.Context, msg *Message) (*DeliveryResult, error)
	// GetName returns the provider's identifier (e.g., "sendgrid", "queue").
	GetName() string
	// HealthCheck verifies the provider is reachable and functional.
	HealthCheck(ctx context.Context) error
}

// HTTPClient abstracts HTTP operations for testability.
type HTTPClient interface {
	Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error)
}

// HTTPRequest represents an outgoing HTTP request.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// HTTPResponse represents an HTTP response from a provider API.
type HTTPResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Message is a send request. From and FromName are optional; the delivery
// service fills them from the default sender identity.
type Message struct {
	ID       string     `json:"id,omitempty"`
	To       Recipients `json:"to"`
	Cc       Recipients `json:"cc,omitempty"`
	Bcc      Recipients `json:"bcc,omitempty"`
	Subject  string     `json:"subject"`
	Text     string     `json:"text"`
	HTML     string     `json:"html,omitempty"`
	From     string     `json:"from,omitempty"`
	FromName string     `json:"fromName,omitempty"`
}

// FromHeader renders the sender as an RFC 5322 address, with the display
// name when one is set.
func (m *Message) FromHeader() string {
	if m.FromName == "" {
		return m.From
	}
	return (&mail.Address{Name: m.FromName, Address: m.From}).String()
}

// AllRecipients returns To, Cc and Bcc in that order.
func (m *Message) AllRecipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// Normalize trims whitespace from addresses and drops blank entries.
func (m *Message) Normalize() {
	m.To = m.To.normalized()
	m.Cc = m.Cc.normalized()
	m.Bcc = m.Bcc.normalized()
	m.From = strings.TrimSpace(m.From)
	m.FromName = strings.TrimSpace(m.FromName)
}

// Recipients is an ordered address list. In JSON it accepts either a single
// string or an array of strings.
type Recipients []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = Recipients{one}.normalized()
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients must be a string or an array of strings")
	}
	*r = Recipients(many).normalized()
	return nil
}

func (r Recipients) normalized() Recipients {
	if len(r) == 0 {
		return nil
	}
	out := make(Recipients, 0, len(r))
	for _, addr := range r {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DeliveryResult contains the outcome of a delivery attempt.
type DeliveryResult struct {
	ProviderMessageID string
	Status            DeliveryStatus
	Timestamp         time.Time
	Metadata          map[string]string
}

// DeliveryStatus represents the outcome of a delivery.
type DeliveryStatus string

const (
	StatusSent   DeliveryStatus = "sent"
	StatusQueued DeliveryStatus = "queued"
)
