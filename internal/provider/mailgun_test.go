package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedForm struct {
	mu     sync.Mutex
	path   string
	fields map[string][]string
}

func newMailgunServer(t *testing.T, status int, body string) (*httptest.Server, *recordedForm) {
	t.Helper()
	rec := &recordedForm{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			rec.fields = r.MultipartForm.Value
		} else if err := r.ParseForm(); err == nil {
			rec.fields = r.PostForm
		}
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestMailgun_Send_Success(t *testing.T) {
	srv, rec := newMailgunServer(t, http.StatusOK, `{"id":"<20260101.1@mg.example.net>","message":"Queued. Thank you."}`)
	mg := NewMailgun(ProviderConfig{
		APIKey:   "key-test",
		Domain:   "mg.example.net",
		Endpoint: srv.URL,
		Timeout:  5 * time.Second,
	}, &mockHTTPClient{})

	res, err := mg.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderMessageID != "<20260101.1@mg.example.net>" {
		t.Errorf("ProviderMessageID = %q", res.ProviderMessageID)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.path != "/v3/mg.example.net/messages" {
		t.Errorf("path = %s", rec.path)
	}
	if got := strings.Join(rec.fields["to"], ","); got != "mp@example.org" {
		t.Errorf("to = %q", got)
	}
	if got := strings.Join(rec.fields["cc"], ","); got != "constituent@example.com" {
		t.Errorf("cc = %q", got)
	}
	if got := strings.Join(rec.fields["html"], ""); got != "<p>Please act.</p>" {
		t.Errorf("html = %q", got)
	}
}

func TestMailgun_Send_ErrorStatus(t *testing.T) {
	srv, _ := newMailgunServer(t, http.StatusUnauthorized, `Forbidden`)
	mg := NewMailgun(ProviderConfig{APIKey: "bad", Domain: "mg.example.net", Endpoint: srv.URL, Timeout: 5 * time.Second}, &mockHTTPClient{})

	_, err := mg.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Mailgun API error: 401" {
		t.Errorf("error = %q, want Mailgun API error: 401", err.Error())
	}
}

func TestMailgun_HealthCheck(t *testing.T) {
	client := &mockHTTPClient{resp: &HTTPResponse{StatusCode: 200}}
	mg := NewMailgun(ProviderConfig{APIKey: "k", Domain: "mg.example.net"}, client)

	if err := mg.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	req := client.last()
	if req.URL != "https://api.mailgun.net/v3/domains/mg.example.net" {
		t.Errorf("URL = %s", req.URL)
	}
	if req.Headers["Authorization"] != "Basic "+basicAuth("api", "k") {
		t.Errorf("Authorization = %q", req.Headers["Authorization"])
	}
}
