package provider

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"
	"time"
)

func TestBuildMIME_Alternative(t *testing.T) {
	raw, err := buildMIME(testMessage(), "id-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}

	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got := m.Header.Get("Message-Id"); got != "<id-1@example.net>" {
		t.Errorf("Message-ID = %q", got)
	}
	if got := m.Header.Get("Cc"); got != "constituent@example.com" {
		t.Errorf("Cc = %q", got)
	}

	mediaType, params, err := mime.ParseMediaType(m.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/alternative" {
		t.Fatalf("Content-Type = %q (%v)", m.Header.Get("Content-Type"), err)
	}

	mr := multipart.NewReader(m.Body, params["boundary"])
	var types []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		types = append(types, strings.Split(p.Header.Get("Content-Type"), ";")[0])
	}
	if strings.Join(types, ",") != "text/plain,text/html" {
		t.Errorf("part types = %v", types)
	}
}

func TestBuildMIME_PlainAndEncodedSubject(t *testing.T) {
	msg := testMessage()
	msg.HTML = ""
	msg.Subject = "Café closure"

	raw, err := buildMIME(msg, "id-2", time.Now())
	if err != nil {
		t.Fatalf("buildMIME: %v", err)
	}
	m, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(m.Header.Get("Subject"))
	if err != nil || subject != "Café closure" {
		t.Errorf("Subject = %q (%v)", subject, err)
	}
	if !strings.HasPrefix(m.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", m.Header.Get("Content-Type"))
	}
}
