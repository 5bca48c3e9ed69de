package provider

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	unhealthyThreshold   = 3
)

// Checker is anything with a health probe: providers and stores both qualify.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus represents the current health state of a component.
type HealthStatus struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// HealthChecker probes registered components in the background and caches
// the results, so readiness probes never wait on an ESP or the store.
// A component turns unhealthy after unhealthyThreshold consecutive failures.
type HealthChecker struct {
	mu            sync.RWMutex
	checkers      map[string]Checker
	statuses      map[string]*HealthStatus
	checkInterval time.Duration
	checkTimeout  time.Duration
	stopCh        chan struct{}
	stopped       chan struct{}
}

// NewHealthChecker creates an empty health checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checkers:      make(map[string]Checker),
		statuses:      make(map[string]*HealthStatus),
		checkInterval: defaultCheckInterval,
		checkTimeout:  defaultCheckTimeout,
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Add registers a component under name. Call before Start.
func (hc *HealthChecker) Add(name string, c Checker) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = c
}

// Start runs one check of every component synchronously, then keeps
// checking in the background until ctx is done or Stop is called.
func (hc *HealthChecker) Start(ctx context.Context) {
	hc.CheckNow(ctx)
	go hc.run(ctx)
}

// Stop signals the health check loop to terminate and waits for it to finish.
func (hc *HealthChecker) Stop() {
	close(hc.stopCh)
	<-hc.stopped
}

// Ready reports whether every registered component is healthy, together
// with a snapshot of all statuses.
func (hc *HealthChecker) Ready() (bool, map[string]HealthStatus) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	ready := true
	out := make(map[string]HealthStatus, len(hc.checkers))
	for name := range hc.checkers {
		st, ok := hc.statuses[name]
		if !ok {
			ready = false
			out[name] = HealthStatus{}
			continue
		}
		if !st.Healthy {
			ready = false
		}
		out[name] = *st
	}
	return ready, out
}

// Names returns the registered component names, sorted.
func (hc *HealthChecker) Names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.checkers))
	for n := range hc.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CheckNow probes every component once.
func (hc *HealthChecker) CheckNow(ctx context.Context) {
	hc.mu.RLock()
	checkers := make(map[string]Checker, len(hc.checkers))
	for n, c := range hc.checkers {
		checkers[n] = c
	}
	hc.mu.RUnlock()

	for name, c := range checkers {
		hc.check(ctx, name, c)
	}
}

func (hc *HealthChecker) run(ctx context.Context) {
	defer close(hc.stopped)

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.CheckNow(ctx)
		}
	}
}

func (hc *HealthChecker) check(ctx context.Context, name string, c Checker) {
	ctx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
	defer cancel()

	err := c.HealthCheck(ctx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	status, ok := hc.statuses[name]
	if !ok {
		status = &HealthStatus{Healthy: true}
		hc.statuses[name] = status
	}
	status.LastCheck = time.Now()

	if err != nil {
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		if status.ConsecutiveFailures >= unhealthyThreshold {
			status.Healthy = false
		}
		return
	}
	status.ConsecutiveFailures = 0
	status.Healthy = true
	status.LastError = ""
}
