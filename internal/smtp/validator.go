package smtp

import (
	"net/mail"
	"strings"
)

// ParseAddress accepts both "Name <a@b>" and a bare "a@b" and returns the
// bare address.
func ParseAddress(s string) (string, error) {
	addr, err := mail.ParseAddress(s)
	if err == nil {
		return addr.Address, nil
	}
	addr, err2 := mail.ParseAddress("<" + s + ">")
	if err2 != nil {
		return "", err
	}
	return addr.Address, nil
}

// ExtractDomain extracts the domain part from an email address.
// Returns an empty string if the address does not contain an @ symbol.
func ExtractDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return domain
}

// IsValidDomain performs basic domain format validation. It checks that the
// domain is non-empty, does not start or end with a dot, and contains at
// least one dot separator.
func IsValidDomain(domain string) bool {
	if domain == "" {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	return strings.Contains(domain, ".")
}
