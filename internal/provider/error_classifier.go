package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderError wraps an ESP failure status with classification metadata.
type ProviderError struct {
	// Provider is the name of the ESP that returned the error.
	Provider string
	// StatusCode is the HTTP (or SMTP reply) status code.
	StatusCode int
	// Detail is the raw error description from the ESP; it is never shown to
	// the enqueue caller.
	Detail string
	// Permanent indicates the error will not succeed on retry.
	Permanent bool
}

var displayNames = map[string]string{
	"sendgrid": "SendGrid",
	"ses":      "SES",
	"mailgun":  "Mailgun",
	"resend":   "Resend",
	"smtp":     "SMTP",
}

func displayName(provider string) string {
	if n, ok := displayNames[provider]; ok {
		return n
	}
	return provider
}

// Error returns the short, caller-facing form "<Provider> API error: <status>".
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %d", displayName(e.Provider), e.StatusCode)
}

// IsPermanent returns true if the error is a permanent failure that should
// not be retried.
func IsPermanent(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Permanent
	}
	return false
}

// IsTransient returns true if the error is a temporary failure that may
// succeed on retry.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return !pe.Permanent
	}
	// Unknown errors (network, timeouts) are treated as transient.
	return true
}

// ClassifyHTTPError creates a ProviderError from an HTTP status code and
// response body, classifying it as permanent or transient.
// It returns nil for 2xx codes.
func ClassifyHTTPError(providerName string, statusCode int, body string) *ProviderError {
	pe := &ProviderError{
		Provider:   providerName,
		StatusCode: statusCode,
		Detail:     body,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 400:
		pe.Permanent = containsAny(body, permanentClientPatterns)
	case statusCode == 401, statusCode == 403, statusCode == 404:
		pe.Permanent = true
	case statusCode == 408, statusCode == 429:
		pe.Permanent = false
	case statusCode >= 500:
		pe.Permanent = containsAny(body, permanentServerPatterns)
	default:
		pe.Permanent = statusCode >= 400 && statusCode < 500
	}
	return pe
}

// ClassifySMTPError creates a ProviderError from an SMTP reply code.
// 5xx replies are permanent, 4xx are transient.
func ClassifySMTPError(code int, message string) *ProviderError {
	return &ProviderError{
		Provider:   "smtp",
		StatusCode: code,
		Detail:     message,
		Permanent:  code >= 500,
	}
}

// permanentClientPatterns mark a 400 response that will not change on retry.
var permanentClientPatterns = []string{
	"invalid recipient",
	"invalid email",
	"does not exist",
	"mailbox not found",
	"recipient rejected",
	"bad request",
	"validation error",
	"invalid address",
}

// permanentServerPatterns mark a 5xx response caused by account configuration.
var permanentServerPatterns = []string{
	"invalid api key",
	"authentication failed",
	"account suspended",
	"account disabled",
	"unauthorized",
}

func containsAny(body string, patterns []string) bool {
	lower := strings.ToLower(body)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
