package provider

import (
	"context"
	"encoding/json"
	"testing"
)

func TestSendGrid_buildPayload(t *testing.T) {
	sg := &SendGrid{}
	payload := sg.buildPayload(testMessage())

	if len(payload.Content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(payload.Content))
	}
	if payload.Content[0].Type != "text/plain" || payload.Content[0].Value != "Please act." {
		t.Errorf("unexpected first content part: %+v", payload.Content[0])
	}
	if payload.Content[1].Type != "text/html" {
		t.Errorf("expected second content text/html, got %s", payload.Content[1].Type)
	}
	p := payload.Personalizations[0]
	if len(p.To) != 1 || p.To[0].Email != "mp@example.org" {
		t.Errorf("unexpected to: %+v", p.To)
	}
	if len(p.Cc) != 1 || p.Cc[0].Email != "constituent@example.com" {
		t.Errorf("unexpected cc: %+v", p.Cc)
	}
	if p.Bcc != nil {
		t.Errorf("expected no bcc, got %+v", p.Bcc)
	}
	if payload.From.Name != "Campaign" {
		t.Errorf("expected from name Campaign, got %q", payload.From.Name)
	}
}

func TestSendGrid_buildPayload_TextOnly(t *testing.T) {
	msg := testMessage()
	msg.HTML = ""
	payload := (&SendGrid{}).buildPayload(msg)
	if len(payload.Content) != 1 {
		t.Fatalf("expected 1 content part, got %d", len(payload.Content))
	}
}

func TestSendGrid_Send_Success(t *testing.T) {
	client := &mockHTTPClient{resp: &HTTPResponse{
		StatusCode: 202,
		Headers:    map[string]string{"X-Message-Id": "sg-abc"},
	}}
	sg := NewSendGrid(ProviderConfig{APIKey: "SG.key"}, client)

	res, err := sg.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderMessageID != "sg-abc" {
		t.Errorf("ProviderMessageID = %q, want sg-abc", res.ProviderMessageID)
	}

	req := client.last()
	if req.URL != "https://api.sendgrid.com/v3/mail/send" {
		t.Errorf("URL = %s", req.URL)
	}
	if req.Headers["Authorization"] != "Bearer SG.key" {
		t.Errorf("Authorization = %q", req.Headers["Authorization"])
	}
	var decoded map[string]any
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
}

func TestSendGrid_Send_ErrorStatus(t *testing.T) {
	client := &mockHTTPClient{resp: &HTTPResponse{StatusCode: 401, Body: []byte(`{"errors":[]}`)}}
	sg := NewSendGrid(ProviderConfig{APIKey: "bad"}, client)

	_, err := sg.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "SendGrid API error: 401" {
		t.Errorf("error = %q, want %q", err.Error(), "SendGrid API error: 401")
	}
	if !IsPermanent(err) {
		t.Error("401 should be permanent")
	}
}

func TestSendGrid_HealthCheck(t *testing.T) {
	client := &mockHTTPClient{resp: &HTTPResponse{StatusCode: 200}}
	sg := NewSendGrid(ProviderConfig{APIKey: "k", Endpoint: "http://sg.test"}, client)
	if err := sg.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if client.last().URL != "http://sg.test/v3/scopes" {
		t.Errorf("URL = %s", client.last().URL)
	}

	client.resp = &HTTPResponse{StatusCode: 403}
	if err := sg.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check error on 403")
	}
}
