package smtp

import (
	"context"
	"sync/atomic"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog"

	"github.com/sungwon/mpmail/internal/auth"
	"github.com/sungwon/mpmail/internal/delivery"
	"github.com/sungwon/mpmail/internal/logger"
	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/provider"
)

const defaultMaxConnections = 100

// Sender accepts send requests.
type Sender interface {
	Send(ctx context.Context, msg *provider.Message) delivery.Result
}

// Backend implements the go-smtp Backend interface.
// It manages session creation and enforces connection limits.
type Backend struct {
	sender         Sender
	username       string
	gate           *auth.TokenGate
	allowedDomains []string
	log            zerolog.Logger
	maxConns       int
	active         atomic.Int64
}

// NewBackend creates a backend handing messages to sender.
func NewBackend(sender Sender, cfg Config, log zerolog.Logger) *Backend {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = defaultMaxConnections
	}
	return &Backend{
		sender:         sender,
		username:       cfg.Username,
		gate:           auth.NewTokenGate(cfg.Password),
		allowedDomains: cfg.AllowedDomains,
		log:            log.With().Str("component", "smtp").Logger(),
		maxConns:       maxConns,
	}
}

// NewServer creates a go-smtp server for b from cfg. TLS is configured by
// the caller.
func NewServer(b *Backend, cfg Config) *gosmtp.Server {
	s := gosmtp.NewServer(b)
	s.Addr = cfg.Addr()
	s.Domain = cfg.Domain
	if s.Domain == "" {
		s.Domain = "mpmail"
	}
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout
	s.MaxMessageBytes = cfg.MaxMessageBytes
	s.MaxRecipients = cfg.MaxRecipients
	s.AllowInsecureAuth = cfg.AllowInsecureAuth
	return s
}

// AuthRequired reports whether clients must AUTH before MAIL FROM.
func (b *Backend) AuthRequired() bool {
	return !b.gate.Open()
}

// NewSession is called after a client sends EHLO/HELO. It enforces connection
// limits and creates a new Session for the connection.
func (b *Backend) NewSession(conn *gosmtp.Conn) (gosmtp.Session, error) {
	current := b.active.Add(1)
	if int(current) > b.maxConns {
		b.active.Add(-1)
		b.log.Warn().
			Int64("active", current-1).
			Int("max", b.maxConns).
			Msg("connection limit reached")
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "Too many connections",
		}
	}
	metrics.SMTPSessionsActive.Inc()

	correlationID := logger.NewCorrelationID()
	ctx := logger.WithCorrelationID(context.Background(), correlationID)

	remote := ""
	if conn != nil && conn.Conn() != nil {
		remote = conn.Conn().RemoteAddr().String()
	}
	sessionLog := b.log.With().
		Str("correlation_id", correlationID).
		Str("remote_addr", remote).
		Logger()
	sessionLog.Debug().Msg("new SMTP session")

	return &Session{
		ctx:           ctx,
		log:           sessionLog,
		backend:       b,
		authenticated: !b.AuthRequired(),
	}, nil
}

// ActiveSessions returns the current number of active SMTP sessions.
func (b *Backend) ActiveSessions() int64 {
	return b.active.Load()
}

func (b *Backend) release() {
	b.active.Add(-1)
	metrics.SMTPSessionsActive.Dec()
}
