package provider

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/mpmail/internal/msgstore"
)

// Deps carries the collaborators some strategies need.
type Deps struct {
	// HTTPClient is used by the HTTP API providers. When nil, a client with
	// ProviderConfig.Timeout is created.
	HTTPClient HTTPClient
	// Store backs the queue provider.
	Store msgstore.Store
	// Logger receives the stdout provider's output and factory warnings.
	Logger zerolog.Logger
}

// NewProvider creates the provider selected by cfg.Type.
//
// An empty or unknown type falls back to stdout with a warning, so missing
// configuration never results in a network call. A known type with missing
// credentials is an error.
func NewProvider(cfg ProviderConfig, deps Deps) (Provider, error) {
	if !isKnownType(cfg.Type) {
		deps.Logger.Warn().
			Str("provider", cfg.Type).
			Msg("unknown or empty provider type, falling back to stdout")
		return NewStdout(deps.Logger), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	client := deps.HTTPClient
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}

	switch cfg.Type {
	case "stdout":
		return NewStdout(deps.Logger), nil
	case "file":
		return NewFile(cfg), nil
	case "sendgrid":
		return NewSendGrid(cfg, client), nil
	case "ses":
		return NewSES(cfg, client), nil
	case "mailgun":
		return NewMailgun(cfg, client), nil
	case "resend":
		return NewResend(cfg, client)
	case "smtp":
		return NewSMTP(cfg)
	case "queue":
		if deps.Store == nil {
			return nil, errors.New("queue provider requires a store")
		}
		return NewQueue(deps.Store), nil
	}
	return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
}
