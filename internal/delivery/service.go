// Package delivery is the single send entry point used by callers. It
// normalizes and validates a message, dispatches it to the configured
// provider and folds every outcome into a Result.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog"

	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/provider"
)

// Result is the outcome of one Send call.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`

	rejected bool
}

// Rejected reports whether the message failed validation and was never
// handed to the provider.
func (r Result) Rejected() bool { return r.rejected }

// Sender is the process-wide default sender identity.
type Sender struct {
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// ErrValidation marks a Result produced by input validation.
var ErrValidation = errors.New("validation")

// Service sends messages through one provider chosen at startup.
type Service struct {
	provider provider.Provider
	sender   Sender
	log      zerolog.Logger
}

// NewService creates a Service dispatching to p.
func NewService(p provider.Provider, sender Sender, log zerolog.Logger) *Service {
	return &Service{
		provider: p,
		sender:   sender,
		log:      log.With().Str("provider", p.GetName()).Logger(),
	}
}

// Send validates msg and hands it to the provider. It never returns an
// error or panics: every failure becomes Result{Success: false}.
// msg is normalized in place.
func (s *Service) Send(ctx context.Context, msg *provider.Message) (res Result) {
	name := s.provider.GetName()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("provider panicked")
			metrics.DeliverySendTotal.WithLabelValues(name, "panic").Inc()
			res = Result{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if msg == nil {
		metrics.DeliverySendTotal.WithLabelValues(name, "validation").Inc()
		return Result{Error: "validation: message is required", rejected: true}
	}
	s.prepare(msg)
	if err := Validate(msg); err != nil {
		s.log.Warn().Err(err).Msg("send request rejected")
		metrics.DeliverySendTotal.WithLabelValues(name, "validation").Inc()
		return Result{Error: err.Error(), rejected: true}
	}

	start := time.Now()
	dr, err := s.provider.Send(ctx, msg)
	metrics.DeliverySendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Error().Err(err).
			Strs("to", msg.To).
			Str("subject", msg.Subject).
			Msg("provider send failed")
		metrics.DeliverySendTotal.WithLabelValues(name, "failure").Inc()
		return Result{Error: err.Error()}
	}
	if dr == nil {
		metrics.DeliverySendTotal.WithLabelValues(name, "failure").Inc()
		return Result{Error: "provider returned no result"}
	}

	s.log.Info().
		Str("message_id", dr.ProviderMessageID).
		Str("status", string(dr.Status)).
		Int("recipients", len(msg.AllRecipients())).
		Msg("message accepted")
	metrics.DeliverySendTotal.WithLabelValues(name, "success").Inc()
	return Result{Success: true, MessageID: dr.ProviderMessageID}
}

func (s *Service) prepare(msg *provider.Message) {
	msg.Normalize()
	if msg.From == "" {
		msg.From = s.sender.From
	}
	if msg.FromName == "" {
		msg.FromName = s.sender.FromName
	}
}

// Validate checks a normalized message before any I/O happens.
func Validate(msg *provider.Message) error {
	err := validation.ValidateStruct(msg,
		validation.Field(&msg.To, validation.Required, validation.Each(is.EmailFormat)),
		validation.Field(&msg.Cc, validation.Each(is.EmailFormat)),
		validation.Field(&msg.Bcc, validation.Each(is.EmailFormat)),
		validation.Field(&msg.Subject, validation.Required),
		validation.Field(&msg.Text, validation.Required),
		validation.Field(&msg.From, validation.Required.Error("no sender configured"), is.EmailFormat),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
