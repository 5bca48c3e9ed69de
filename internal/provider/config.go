package provider

import (
	"errors"
	"time"
)

// ProviderConfig holds configuration for a delivery backend. Each strategy
// reads only the fields that belong to it.
type ProviderConfig struct {
	// Type identifies the provider: "stdout", "file", "sendgrid", "ses",
	// "mailgun", "resend", "smtp" or "queue".
	Type string `mapstructure:"provider"`

	// APIKey is the authentication credential for the provider. For SES it is
	// the access key ID.
	APIKey string `mapstructure:"api_key"`

	// SecretKey is the SES secret access key.
	SecretKey string `mapstructure:"secret_key"`

	// Endpoint overrides the default API URL (useful for testing). For the
	// file provider it is the output directory; for smtp it is host:port.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout is the maximum duration for API calls.
	Timeout time.Duration `mapstructure:"timeout"`

	// Region is used for AWS SES to determine the API endpoint.
	Region string `mapstructure:"region"`

	// Domain is the Mailgun sending domain.
	Domain string `mapstructure:"domain"`

	// SMTP relay settings.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// TLSMode is "" (STARTTLS when offered), "starttls" (required),
	// "implicit" (TLS from the first byte) or "none".
	TLSMode  string `mapstructure:"tls_mode"`

	// DKIM signing for the smtp provider; enabled when Selector and a key are set.
	DKIMDomain     string `mapstructure:"dkim_domain"`
	DKIMSelector   string `mapstructure:"dkim_selector"`
	DKIMPrivateKey string `mapstructure:"dkim_private_key"` // PEM
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on provider type.
// An empty or unknown type is not an error here; NewProvider falls back to stdout.
func (c *ProviderConfig) Validate() error {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}

	switch c.Type {
	case "sendgrid":
		if c.APIKey == "" {
			return errors.New("sendgrid: api_key is required")
		}
	case "ses":
		if c.Region == "" {
			return errors.New("ses: region is required")
		}
		if c.APIKey == "" {
			return errors.New("ses: api_key (access key ID) is required")
		}
		if c.SecretKey == "" {
			return errors.New("ses: secret_key is required")
		}
	case "mailgun":
		if c.APIKey == "" {
			return errors.New("mailgun: api_key is required")
		}
		if c.Domain == "" {
			return errors.New("mailgun: domain is required")
		}
	case "resend":
		if c.APIKey == "" {
			return errors.New("resend: api_key is required")
		}
	case "smtp":
		if c.Endpoint == "" {
			return errors.New("smtp: endpoint (host:port) is required")
		}
		if (c.Username == "") != (c.Password == "") {
			return errors.New("smtp: username and password must be set together")
		}
		switch c.TLSMode {
		case "", "starttls", "implicit", "none":
		default:
			return errors.New("smtp: tls_mode must be starttls, implicit or none")
		}
		if (c.DKIMSelector == "") != (c.DKIMPrivateKey == "") {
			return errors.New("smtp: dkim_selector and dkim_private_key must be set together")
		}
	}
	return nil
}

// isKnownType reports whether t names one of the implemented strategies.
func isKnownType(t string) bool {
	switch t {
	case "stdout", "file", "sendgrid", "ses", "mailgun", "resend", "smtp", "queue":
		return true
	}
	return false
}
