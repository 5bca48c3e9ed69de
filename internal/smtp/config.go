// Package smtp is an SMTP submission listener. Authenticated clients hand
// in RFC 5322 messages which are converted to send requests and passed to
// the delivery service, exactly like POST /api/v1/messages.
package smtp

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds SMTP listener configuration.
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Domain          string        `mapstructure:"domain"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	MaxRecipients   int           `mapstructure:"max_recipients"`
	MaxConnections  int           `mapstructure:"max_connections"`
	// Username and Password are the AUTH PLAIN credentials. Password may be
	// a bcrypt hash. An empty password disables authentication.
	Username       string   `mapstructure:"username"`
	Password       string   `mapstructure:"password"`
	AllowedDomains []string `mapstructure:"allowed_domains"`
	TLSCertFile    string   `mapstructure:"tls_cert_file"`
	TLSKeyFile     string   `mapstructure:"tls_key_file"`
	// AllowInsecureAuth permits AUTH without TLS. Only for local use.
	AllowInsecureAuth bool `mapstructure:"allow_insecure_auth"`
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks an enabled listener's settings.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.MaxMessageBytes, validation.Min(int64(0))),
		validation.Field(&c.MaxConnections, validation.Min(0)),
		validation.Field(&c.Username, validation.When(c.Password != "", validation.Required)),
		validation.Field(&c.TLSKeyFile, validation.When(c.TLSCertFile != "", validation.Required)),
		validation.Field(&c.TLSCertFile, validation.When(c.TLSKeyFile != "", validation.Required)),
		validation.Field(&c.AllowedDomains, validation.Each(validation.By(checkDomain))),
	)
}

func checkDomain(v any) error {
	d, _ := v.(string)
	if !IsValidDomain(d) {
		return fmt.Errorf("invalid domain %q", d)
	}
	return nil
}
