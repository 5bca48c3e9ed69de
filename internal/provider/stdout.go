package provider

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stdout is the console/debug sink. It logs a summary of each message and
// delivers nothing. It is also the fallback when no provider is configured.
type Stdout struct {
	logger zerolog.Logger
}

// NewStdout creates a Stdout provider that logs through logger.
func NewStdout(logger zerolog.Logger) *Stdout {
	return &Stdout{logger: logger.With().Str("provider", "stdout").Logger()}
}

func (s *Stdout) GetName() string { return "stdout" }

// Send logs the message envelope and body sizes and returns a successful result.
func (s *Stdout) Send(_ context.Context, msg *Message) (*DeliveryResult, error) {
	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}

	s.logger.Info().
		Str("message_id", id).
		Str("from", msg.FromHeader()).
		Str("to", strings.Join(msg.To, ", ")).
		Strs("cc", msg.Cc).
		Strs("bcc", msg.Bcc).
		Str("subject", msg.Subject).
		Int("text_bytes", len(msg.Text)).
		Int("html_bytes", len(msg.HTML)).
		Msg("email not delivered (stdout provider)")

	return &DeliveryResult{
		ProviderMessageID: "stdout-" + id,
		Status:            StatusSent,
		Timestamp:         time.Now(),
	}, nil
}

// HealthCheck always returns nil since the log stream is always available.
func (s *Stdout) HealthCheck(_ context.Context) error {
	return nil
}
