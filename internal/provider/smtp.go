package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// SMTP relays messages to an upstream SMTP server (a smarthost).
type SMTP struct {
	addr     string
	host     string
	username string
	password string
	tlsMode  string
	timeout  time.Duration
	dkim     *dkimSigner
}

// NewSMTP creates an SMTP provider. With the default TLS mode STARTTLS is
// used when the relay offers it; "starttls" requires it, "implicit"
// connects over TLS from the start and "none" never upgrades.
func NewSMTP(cfg ProviderConfig) (*SMTP, error) {
	host, _, err := net.SplitHostPort(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("smtp: endpoint %q: %w", cfg.Endpoint, err)
	}
	s := &SMTP{
		addr:     cfg.Endpoint,
		host:     host,
		username: cfg.Username,
		password: cfg.Password,
		tlsMode:  cfg.TLSMode,
		timeout:  cfg.Timeout,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if cfg.DKIMSelector != "" {
		signer, err := newDKIMSigner(cfg.DKIMDomain, cfg.DKIMSelector, []byte(cfg.DKIMPrivateKey))
		if err != nil {
			return nil, fmt.Errorf("smtp: %w", err)
		}
		s.dkim = signer
	}
	return s, nil
}

func (s *SMTP) GetName() string { return "smtp" }

// Send renders the message, optionally DKIM-signs it, and submits it with
// every To, Cc and Bcc address as an envelope recipient.
func (s *SMTP) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	raw, err := buildMIME(msg, id, time.Now())
	if err != nil {
		return nil, fmt.Errorf("smtp: build message: %w", err)
	}
	if s.dkim != nil {
		if raw, err = s.dkim.sign(raw, msg.From); err != nil {
			return nil, fmt.Errorf("smtp: %w", err)
		}
	}

	c, stop, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer stop()
	defer c.Close()

	if s.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return nil, s.classify("auth", err)
		}
	}
	if err := c.SendMail(msg.From, msg.AllRecipients(), bytes.NewReader(raw)); err != nil {
		return nil, s.classify("send", err)
	}
	_ = c.Quit()

	return &DeliveryResult{
		ProviderMessageID: id,
		Status:            StatusSent,
		Timestamp:         time.Now(),
		Metadata:          map[string]string{"relay": s.addr},
	}, nil
}

// HealthCheck opens a session with the relay the same way Send does and
// issues NOOP.
func (s *SMTP) HealthCheck(ctx context.Context) error {
	c, stop, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer stop()
	defer c.Close()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp: noop: %w", err)
	}
	return c.Quit()
}

// connect dials the relay and negotiates TLS. Every command waits at most
// until the earlier of the ctx deadline and the provider timeout, and the
// connection is closed as soon as ctx is done. The returned stop func must
// be called once the session is over.
func (s *SMTP) connect(ctx context.Context) (*smtp.Client, func() bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("smtp: %w", err)
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Deadline: deadline}
	tlsConfig := &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if s.tlsMode == "implicit" {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", s.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.addr)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("smtp: dial %s: %w", s.addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

	c := smtp.NewClient(conn)
	wait := time.Until(deadline)
	c.CommandTimeout = wait
	c.SubmissionTimeout = wait

	if err := s.startTLS(c, tlsConfig); err != nil {
		stop()
		c.Close()
		return nil, nil, err
	}
	return c, stop, nil
}

func (s *SMTP) startTLS(c *smtp.Client, cfg *tls.Config) error {
	switch s.tlsMode {
	case "implicit", "none":
		return nil
	}
	if err := c.Hello("localhost"); err != nil {
		return s.classify("ehlo", err)
	}
	if ok, _ := c.Extension("STARTTLS"); !ok {
		if s.tlsMode == "starttls" {
			return fmt.Errorf("smtp: %s does not offer STARTTLS", s.addr)
		}
		return nil
	}
	if err := c.StartTLS(cfg); err != nil {
		return s.classify("starttls", err)
	}
	return nil
}

// classify turns SMTP replies into ProviderErrors; network failures and
// timeouts stay plain errors, which count as transient.
func (s *SMTP) classify(step string, err error) error {
	var se *smtp.SMTPError
	if errors.As(err, &se) {
		return ClassifySMTPError(se.Code, se.Message)
	}
	return fmt.Errorf("smtp: %s: %w", step, err)
}
