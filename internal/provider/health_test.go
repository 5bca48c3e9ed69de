package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockChecker struct {
	mu  sync.Mutex
	err error
}

func (m *mockChecker) HealthCheck(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockChecker) set(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func TestHealthChecker_ReadyWhenAllHealthy(t *testing.T) {
	hc := NewHealthChecker()
	hc.Add("store", &mockChecker{})
	hc.Add("provider", &mockChecker{})

	if ready, _ := hc.Ready(); ready {
		t.Error("expected not ready before the first check")
	}

	hc.CheckNow(context.Background())
	ready, statuses := hc.Ready()
	if !ready {
		t.Errorf("expected ready, got %+v", statuses)
	}
	if len(statuses) != 2 {
		t.Errorf("expected 2 statuses, got %d", len(statuses))
	}
	if got := hc.Names(); len(got) != 2 || got[0] != "provider" {
		t.Errorf("Names() = %v", got)
	}
}

func TestHealthChecker_UnhealthyAfterThreshold(t *testing.T) {
	hc := NewHealthChecker()
	mc := &mockChecker{err: errors.New("connection refused")}
	hc.Add("store", mc)

	for i := 0; i < unhealthyThreshold-1; i++ {
		hc.CheckNow(context.Background())
	}
	if ready, _ := hc.Ready(); !ready {
		t.Fatal("expected still ready below threshold")
	}

	hc.CheckNow(context.Background())
	ready, statuses := hc.Ready()
	if ready {
		t.Fatal("expected not ready at threshold")
	}
	if statuses["store"].LastError != "connection refused" {
		t.Errorf("LastError = %q", statuses["store"].LastError)
	}

	mc.set(nil)
	hc.CheckNow(context.Background())
	if ready, _ := hc.Ready(); !ready {
		t.Error("expected one success to restore readiness")
	}
}

func TestHealthChecker_StartStop(t *testing.T) {
	hc := NewHealthChecker()
	hc.checkInterval = 10 * time.Millisecond
	hc.Add("p", &mockChecker{})

	hc.Start(context.Background())
	if ready, _ := hc.Ready(); !ready {
		t.Error("expected ready right after Start")
	}
	hc.Stop()
}
