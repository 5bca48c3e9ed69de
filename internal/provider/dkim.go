package provider

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/emersion/go-msgauth/dkim"
)

var dkimHeaderKeys = []string{
	"from",
	"to",
	"cc",
	"subject",
	"date",
	"mime-version",
	"content-type",
	"message-id",
}

// dkimSigner adds a DKIM-Signature header to outgoing messages.
type dkimSigner struct {
	domain   string
	selector string
	key      crypto.Signer
}

// newDKIMSigner parses a PEM private key (PKCS#1 or PKCS#8). An empty domain
// means the sender's domain is used for each message.
func newDKIMSigner(domain, selector string, pemData []byte) (*dkimSigner, error) {
	key, err := parseSigningKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: parse private key: %w", err)
	}
	return &dkimSigner{domain: domain, selector: selector, key: key}, nil
}

func (d *dkimSigner) sign(raw []byte, from string) ([]byte, error) {
	domain := d.domain
	if domain == "" {
		domain = senderDomain(from)
	}

	var signed bytes.Buffer
	err := dkim.Sign(&signed, bytes.NewReader(raw), &dkim.SignOptions{
		Domain:                 domain,
		Selector:               d.selector,
		Signer:                 d.key,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
		HeaderKeys:             dkimHeaderKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("dkim: sign: %w", err)
	}
	return signed.Bytes(), nil
}

func parseSigningKey(pemData []byte) (crypto.Signer, error) {
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			return nil, errors.New("no private key found in PEM data")
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			return key, nil
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			if signer, ok := key.(crypto.Signer); ok {
				return signer, nil
			}
			return nil, errors.New("unsupported key type in PKCS#8 container")
		}
		pemData = rest
	}
}
