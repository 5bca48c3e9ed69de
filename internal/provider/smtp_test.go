package provider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
)

// captureBackend is a minimal go-smtp backend that records one envelope.
type captureBackend struct {
	mu       sync.Mutex
	from     string
	rcpts    []string
	data     string
	rejectTo string
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{b: b}, nil
}

type captureSession struct{ b *captureBackend }

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if to == s.b.rejectTo {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.b.rcpts = append(s.b.rcpts, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data = string(data)
	return nil
}

func (s *captureSession) Reset()        {}
func (s *captureSession) Logout() error { return nil }

func startSMTPServer(t *testing.T, be *captureBackend) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { srv.Close() })
	return l.Addr().String()
}

// startSilentServer accepts connections and never sends a greeting.
func startSilentServer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return l.Addr().String()
}

func TestSMTP_Send(t *testing.T) {
	be := &captureBackend{}
	addr := startSMTPServer(t, be)

	s, err := NewSMTP(ProviderConfig{Endpoint: addr})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	msg := testMessage()
	msg.Bcc = Recipients{"archive@example.net"}

	res, err := s.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.ProviderMessageID != msg.ID {
		t.Errorf("ProviderMessageID = %q, want %q", res.ProviderMessageID, msg.ID)
	}

	be.mu.Lock()
	defer be.mu.Unlock()
	if be.from != "campaign@example.net" {
		t.Errorf("MAIL FROM = %q", be.from)
	}
	want := "mp@example.org,constituent@example.com,archive@example.net"
	if got := strings.Join(be.rcpts, ","); got != want {
		t.Errorf("RCPT TO = %q, want %q", got, want)
	}
	if !strings.Contains(be.data, "Subject: Act now") {
		t.Errorf("message missing subject header:\n%s", be.data)
	}
	if strings.Contains(be.data, "archive@example.net") {
		t.Error("bcc address leaked into message headers")
	}
}

func TestSMTP_Send_RejectedRecipient(t *testing.T) {
	be := &captureBackend{rejectTo: "mp@example.org"}
	addr := startSMTPServer(t, be)

	s, err := NewSMTP(ProviderConfig{Endpoint: addr})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	_, err = s.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "SMTP API error: 550" {
		t.Errorf("error = %q", err.Error())
	}
	if !IsPermanent(err) {
		t.Error("550 should be permanent")
	}
}

func TestSMTP_Send_DKIM(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	be := &captureBackend{}
	addr := startSMTPServer(t, be)

	s, err := NewSMTP(ProviderConfig{Endpoint: addr, DKIMSelector: "mail", DKIMPrivateKey: string(pemKey)})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	if _, err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	be.mu.Lock()
	defer be.mu.Unlock()
	if !strings.HasPrefix(be.data, "DKIM-Signature:") {
		t.Fatalf("expected DKIM-Signature first, got:\n%s", be.data)
	}
	if !strings.Contains(be.data, "d=example.net") || !strings.Contains(be.data, "s=mail") {
		t.Errorf("unexpected signature tags:\n%s", be.data)
	}
}

func TestNewSMTP_BadDKIMKey(t *testing.T) {
	_, err := NewSMTP(ProviderConfig{Endpoint: "localhost:25", DKIMSelector: "mail", DKIMPrivateKey: "not a key"})
	if err == nil {
		t.Fatal("expected error for invalid DKIM key")
	}
}

func TestSMTP_Send_CancelledContext(t *testing.T) {
	s, err := NewSMTP(ProviderConfig{Endpoint: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Send(ctx, testMessage()); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestSMTP_HealthCheck(t *testing.T) {
	addr := startSMTPServer(t, &captureBackend{})
	s, err := NewSMTP(ProviderConfig{Endpoint: addr})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestSMTP_Send_NoGreetingTimesOut(t *testing.T) {
	addr := startSilentServer(t)
	s, err := NewSMTP(ProviderConfig{Endpoint: addr, Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := s.Send(ctx, testMessage()); err == nil {
		t.Fatal("expected error from relay that never greets")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send took %v, want it bounded by the timeout", elapsed)
	}
}

func TestSMTP_Send_TimeoutWithoutDeadline(t *testing.T) {
	addr := startSilentServer(t)
	s, err := NewSMTP(ProviderConfig{Endpoint: addr, Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}

	start := time.Now()
	if _, err := s.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Send took %v, want it bounded by the timeout", elapsed)
	}
}

func TestSMTP_HealthCheck_NoGreeting(t *testing.T) {
	addr := startSilentServer(t)
	s, err := NewSMTP(ProviderConfig{Endpoint: addr})
	if err != nil {
		t.Fatalf("NewSMTP: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := s.HealthCheck(ctx); err == nil {
		t.Fatal("expected health check to fail")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("HealthCheck took %v, want it bounded by ctx", elapsed)
	}
}

func TestSMTP_TLSModes(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"", false},
		{"none", false},
		{"starttls", true},
	}

	for _, tt := range tests {
		t.Run("mode="+tt.mode, func(t *testing.T) {
			be := &captureBackend{}
			addr := startSMTPServer(t, be)
			s, err := NewSMTP(ProviderConfig{Endpoint: addr, TLSMode: tt.mode})
			if err != nil {
				t.Fatalf("NewSMTP: %v", err)
			}
			_, err = s.Send(context.Background(), testMessage())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			be.mu.Lock()
			defer be.mu.Unlock()
			if !tt.wantErr && be.from != "campaign@example.net" {
				t.Errorf("MAIL FROM = %q", be.from)
			}
			if tt.wantErr && be.data != "" {
				t.Error("message delivered over plain text despite starttls being required")
			}
		})
	}
}

func TestNewSMTP_BadEndpoint(t *testing.T) {
	if _, err := NewSMTP(ProviderConfig{Endpoint: "no-port"}); err == nil {
		t.Fatal("expected error for endpoint without port")
	}
}
