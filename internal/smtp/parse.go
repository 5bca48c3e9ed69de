package smtp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ErrAttachments is returned for messages carrying non-text parts. Send
// requests have no attachment field, so such a message cannot be relayed
// without losing content.
var ErrAttachments = errors.New("attachments are not supported")

// Parsed holds the parts of a submitted message that map to a send request.
type Parsed struct {
	Subject  string
	From     *mail.Address
	To       []string
	Cc       []string
	TextBody string
	HTMLBody string
}

var wordDecoder = mime.WordDecoder{}

// Parse reads a raw RFC 5322 message. The first text/plain and text/html
// parts become the bodies; any other leaf part is ErrAttachments.
func Parse(raw []byte) (*Parsed, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	p := &Parsed{Subject: decodeHeader(msg.Header.Get("Subject"))}
	if from, err := msg.Header.AddressList("From"); err == nil && len(from) > 0 {
		p.From = from[0]
	}
	p.To = addressList(msg.Header, "To")
	p.Cc = addressList(msg.Header, "Cc")

	contentType := msg.Header.Get("Content-Type")
	encoding := msg.Header.Get("Content-Transfer-Encoding")
	if contentType == "" {
		// RFC 2045 default.
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse Content-Type: %w", err)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, errors.New("multipart message missing boundary")
		}
		if err := p.walk(msg.Body, boundary); err != nil {
			return nil, err
		}
		return p, nil
	}

	if err := p.leaf(msg.Body, mediaType, encoding, ""); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parsed) walk(r io.Reader, boundary string) error {
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read part: %w", err)
		}

		mediaType := "text/plain"
		var params map[string]string
		if ct := part.Header.Get("Content-Type"); ct != "" {
			mediaType, params, err = mime.ParseMediaType(ct)
			if err != nil {
				return ErrAttachments
			}
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			if params["boundary"] == "" {
				continue
			}
			if err := p.walk(part, params["boundary"]); err != nil {
				return err
			}
			continue
		}

		err = p.leaf(part, mediaType, part.Header.Get("Content-Transfer-Encoding"), part.Header.Get("Content-Disposition"))
		if err != nil {
			return err
		}
	}
}

func (p *Parsed) leaf(r io.Reader, mediaType, encoding, disposition string) error {
	if disposition != "" {
		if dt, _, err := mime.ParseMediaType(disposition); err == nil && strings.EqualFold(dt, "attachment") {
			return ErrAttachments
		}
	}

	switch {
	case mediaType == "text/plain" && p.TextBody == "":
		body, err := readBody(r, encoding)
		if err != nil {
			return err
		}
		p.TextBody = string(body)
	case mediaType == "text/html" && p.HTMLBody == "":
		body, err := readBody(r, encoding)
		if err != nil {
			return err
		}
		p.HTMLBody = string(body)
	default:
		return ErrAttachments
	}
	return nil
}

// readBody decodes base64 and quoted-printable transfer encodings.
func readBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func decodeHeader(s string) string {
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

func addressList(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}
