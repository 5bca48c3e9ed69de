package smtp

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/provider"
)

var (
	errAuthRequired = &gosmtp.SMTPError{
		Code:         530,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errAuthFailed = &gosmtp.SMTPError{
		Code:         535,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication failed",
	}
)

// Session handles a single SMTP connection and implements the go-smtp Session
// and AuthSession interfaces.
type Session struct {
	ctx           context.Context
	log           zerolog.Logger
	backend       *Backend
	authenticated bool
	sender        string
	recipients    []string
}

// AuthMechanisms returns the supported SASL mechanisms. Only PLAIN is
// offered, and nothing when authentication is disabled.
func (s *Session) AuthMechanisms() []string {
	if !s.backend.AuthRequired() {
		return nil
	}
	return []string{sasl.Plain}
}

// Auth starts a SASL exchange for mech.
func (s *Session) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, gosmtp.ErrAuthUnknownMechanism
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		return s.authPlain(username, password)
	}), nil
}

func (s *Session) authPlain(username, password string) error {
	if username != s.backend.username || s.backend.gate.Verify(password) != nil {
		metrics.SMTPAuthFailuresTotal.Inc()
		s.log.Warn().Str("username", username).Msg("auth failed")
		return errAuthFailed
	}
	s.authenticated = true
	s.log.Info().Str("username", username).Msg("auth successful")
	return nil
}

// Mail handles MAIL FROM. The sender domain must be in the allowed list
// when one is configured.
func (s *Session) Mail(from string, _ *gosmtp.MailOptions) error {
	if !s.authenticated {
		return errAuthRequired
	}

	addr, err := ParseAddress(from)
	if err != nil {
		s.log.Warn().Str("from", from).Msg("invalid sender address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 7},
			Message:      "Invalid sender address",
		}
	}

	domain := ExtractDomain(addr)
	if !s.isDomainAllowed(domain) {
		s.log.Warn().
			Str("from", addr).
			Str("domain", domain).
			Strs("allowed", s.backend.allowedDomains).
			Msg("sender domain not allowed")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "Sender domain not allowed",
		}
	}

	s.sender = addr
	return nil
}

// Rcpt handles RCPT TO.
func (s *Session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if !s.authenticated {
		return errAuthRequired
	}

	addr, err := ParseAddress(to)
	if err != nil {
		s.log.Warn().Str("to", to).Msg("invalid recipient address format")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data reads the message, converts it to a send request and hands it to the
// delivery service. A rejected request is a permanent 550; a provider
// failure is a 451 so the client retries. Message bodies are never logged.
func (s *Session) Data(r io.Reader) error {
	if !s.authenticated {
		return errAuthRequired
	}
	if s.sender == "" || len(s.recipients) == 0 {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, gosmtp.ErrDataTooLarge) {
			return err
		}
		s.log.Error().Err(err).Msg("failed to read message data")
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Error reading message",
		}
	}

	parsed, err := Parse(raw)
	if err != nil {
		metrics.SMTPMessagesTotal.WithLabelValues("rejected").Inc()
		s.log.Warn().Err(err).Msg("unparsable message")
		code := gosmtp.EnhancedCode{5, 6, 0}
		if errors.Is(err, ErrAttachments) {
			code = gosmtp.EnhancedCode{5, 6, 1}
		}
		return &gosmtp.SMTPError{Code: 554, EnhancedCode: code, Message: err.Error()}
	}

	msg := s.toMessage(parsed)
	res := s.backend.sender.Send(s.ctx, msg)
	switch {
	case res.Success:
		metrics.SMTPMessagesTotal.WithLabelValues("accepted").Inc()
		s.log.Info().
			Str("message_id", res.MessageID).
			Int("recipient_count", len(s.recipients)).
			Msg("message accepted")
		return nil
	case res.Rejected():
		metrics.SMTPMessagesTotal.WithLabelValues("rejected").Inc()
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      res.Error,
		}
	default:
		metrics.SMTPMessagesTotal.WithLabelValues("failed").Inc()
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "Delivery temporarily unavailable",
		}
	}
}

// toMessage maps the envelope and headers to a send request. The envelope
// decides who receives the message: header To and Cc addresses are kept only
// when they are envelope recipients, and the remaining envelope recipients
// become Bcc.
func (s *Session) toMessage(p *Parsed) *provider.Message {
	pending := make(map[string]bool, len(s.recipients))
	for _, r := range s.recipients {
		pending[strings.ToLower(r)] = true
	}
	take := func(addrs []string) []string {
		var out []string
		for _, a := range addrs {
			k := strings.ToLower(a)
			if pending[k] {
				out = append(out, a)
				delete(pending, k)
			}
		}
		return out
	}

	to := take(p.To)
	cc := take(p.Cc)
	var rest []string
	for _, r := range s.recipients {
		if pending[strings.ToLower(r)] {
			rest = append(rest, r)
			delete(pending, strings.ToLower(r))
		}
	}

	msg := &provider.Message{
		To:      to,
		Cc:      cc,
		Bcc:     rest,
		Subject: p.Subject,
		Text:    p.TextBody,
		HTML:    p.HTMLBody,
		From:    s.sender,
	}
	if len(msg.To) == 0 {
		msg.To, msg.Bcc = msg.Bcc, nil
	}
	if p.From != nil && strings.EqualFold(p.From.Address, s.sender) {
		msg.FromName = p.From.Name
	}
	return msg
}

// Reset is called between messages in the same session. It clears the sender
// and recipients but preserves the authentication state.
func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Logout is called when the client disconnects.
func (s *Session) Logout() error {
	s.backend.release()
	s.log.Debug().Msg("session closed")
	return nil
}

// isDomainAllowed reports whether domain may send. An empty list allows
// every domain.
func (s *Session) isDomainAllowed(domain string) bool {
	if len(s.backend.allowedDomains) == 0 {
		return true
	}
	for _, d := range s.backend.allowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}
