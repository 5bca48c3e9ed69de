package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResend_Send_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`))
	}))
	defer srv.Close()

	rs, err := NewResend(ProviderConfig{APIKey: "re_test", Endpoint: srv.URL, Timeout: 5 * time.Second}, &mockHTTPClient{})
	if err != nil {
		t.Fatalf("NewResend: %v", err)
	}

	res, err := rs.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderMessageID != "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794" {
		t.Errorf("ProviderMessageID = %q", res.ProviderMessageID)
	}
	if got["subject"] != "Act now" {
		t.Errorf("subject = %v", got["subject"])
	}
	if got["from"] != `"Campaign" <campaign@example.net>` {
		t.Errorf("from = %v", got["from"])
	}
}

func TestResend_Send_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid from field."}`))
	}))
	defer srv.Close()

	rs, err := NewResend(ProviderConfig{APIKey: "re_test", Endpoint: srv.URL, Timeout: 5 * time.Second}, &mockHTTPClient{})
	if err != nil {
		t.Fatalf("NewResend: %v", err)
	}

	_, err = rs.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Resend API error: 422" {
		t.Errorf("error = %q, want Resend API error: 422", err.Error())
	}
	if !IsPermanent(err) {
		t.Error("422 should be permanent")
	}
}

func TestResend_HealthCheck(t *testing.T) {
	client := &mockHTTPClient{resp: &HTTPResponse{StatusCode: 401}}
	rs, err := NewResend(ProviderConfig{APIKey: "re_test"}, client)
	if err != nil {
		t.Fatalf("NewResend: %v", err)
	}
	if err := rs.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check error on 401")
	}
	if client.last().URL != "https://api.resend.com/domains" {
		t.Errorf("URL = %s", client.last().URL)
	}
}
