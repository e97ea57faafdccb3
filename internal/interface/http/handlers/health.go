// Package handlers contains reusable HTTP building blocks: health checks
// and generic middleware.
package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker reports service health for /healthz.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// HealthCheckFunc performs a single check; a non-nil error fails it.
type HealthCheckFunc func(ctx context.Context) error

// Status levels reported in HealthStatus.Status.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// HealthStatus is the aggregated result.
type HealthStatus struct {
	// Healthy is false only when a critical check failed.
	Healthy bool                   `json:"healthy"`
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`

	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type namedCheck struct {
	name     string
	critical bool
	fn       HealthCheckFunc
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// CompositeHealthChecker runs registered checks in parallel, each bounded by
// its own timeout. A failing critical check marks the service down; a
// failing optional check only degrades it.
type CompositeHealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]namedCheck
	started time.Time
	version string
	timeout time.Duration
	now     func() time.Time
}

// NewCompositeHealthChecker creates a checker with a 5s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:  make(map[string]namedCheck),
		started: time.Now(),
		version: version,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// SetTimeout sets the per-check timeout.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// AddCheck registers a critical check, replacing one with the same name.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(namedCheck{name: name, critical: true, fn: check})
}

// AddOptionalCheck registers a check whose failure only degrades the status.
func (c *CompositeHealthChecker) AddOptionalCheck(name string, check HealthCheckFunc) {
	c.add(namedCheck{name: name, fn: check})
}

func (c *CompositeHealthChecker) add(nc namedCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[nc.name] = nc
}

// RemoveCheck unregisters a check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check runs every registered check and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make([]namedCheck, 0, len(c.checks))
	for _, nc := range c.checks {
		checks = append(checks, nc)
	}
	timeout := c.timeout
	c.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, nc := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, nc, timeout)
		}()
	}
	wg.Wait()

	status := HealthStatus{
		Healthy:   true,
		Status:    StatusOK,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    c.now().Sub(c.started).Round(time.Second).String(),
		Timestamp: c.now().UTC(),
		Version:   c.version,
	}

	var failed []string
	for i, nc := range checks {
		res := results[i]
		status.Checks[nc.name] = res
		if res.Healthy {
			continue
		}
		failed = append(failed, nc.name)
		if nc.critical {
			status.Healthy = false
			status.Status = StatusDown
		} else if status.Status == StatusOK {
			status.Status = StatusDegraded
		}
	}

	switch {
	case len(checks) == 0:
		status.Message = "No health checks registered"
	case len(failed) == 0:
		status.Message = "All checks passed"
	default:
		sort.Strings(failed)
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

func (c *CompositeHealthChecker) run(ctx context.Context, nc namedCheck, timeout time.Duration) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.now()
	err := nc.fn(checkCtx)
	res := CheckResult{
		Healthy:  err == nil,
		Critical: nc.critical,
		Message:  "OK",
		Duration: c.now().Sub(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// Pinger is satisfied by the stores and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a HealthCheckFunc.
func PingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// NoopHealthChecker always reports healthy.
type NoopHealthChecker struct {
	started time.Time
}

// NewNoopHealthChecker creates a new no-op health checker.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{started: time.Now()}
}

// Check always returns a healthy status.
func (n *NoopHealthChecker) Check(ctx context.Context) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		Status:    StatusOK,
		Message:   "No health checks configured",
		Uptime:    time.Since(n.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}
