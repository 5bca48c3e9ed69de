package provider

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestStdout_Send(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(zerolog.New(&buf))

	res, err := s.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderMessageID != "stdout-"+testMessage().ID {
		t.Errorf("ProviderMessageID = %q", res.ProviderMessageID)
	}
	if res.Status != StatusSent {
		t.Errorf("Status = %q", res.Status)
	}

	out := buf.String()
	for _, want := range []string{`"provider":"stdout"`, `"subject":"Act now"`, `"to":"mp@example.org"`, `"text_bytes":11`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
	if strings.Contains(out, "Please act.") {
		t.Error("message body should not be logged")
	}
}

func TestStdout_GeneratesIDWhenMissing(t *testing.T) {
	s := NewStdout(zerolog.Nop())
	msg := testMessage()
	msg.ID = ""

	res, err := s.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(res.ProviderMessageID) <= len("stdout-") {
		t.Errorf("ProviderMessageID = %q", res.ProviderMessageID)
	}
}
