// Package health provides liveness and readiness probes.
package health

import (
	"context"
	"sync"
	"time"

	"vton/internal/endpoint"
	"vton/internal/store"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult contains the result of one dependency check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response. Its top-level status field matches
// the probe contract load balancers and the supervisor poll for.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies the service can do useful work: the object store bucket
// answers and at least one compute endpoint is configured.
type Checker struct {
	store    store.Client
	selector *endpoint.Selector
	timeout  time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a health checker.
func NewChecker(st store.Client, sel *endpoint.Selector) *Checker {
	return &Checker{
		store:    st,
		selector: sel,
		timeout:  5 * time.Second,
	}
}

// Liveness reports whether the process is alive. No external dependencies;
// failing this probe should restart the container.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness reports whether the service should receive traffic. Results are
// cached for a second so probe storms do not hammer the bucket.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult)
	overall := StatusHealthy

	storeCheck := c.checkStore(ctx)
	checks["store"] = storeCheck
	if storeCheck.Status != StatusHealthy {
		overall = StatusUnhealthy
	}

	endpointCheck := c.checkEndpoints()
	checks["endpoints"] = endpointCheck
	if endpointCheck.Status != StatusHealthy {
		overall = StatusUnhealthy
	}

	response := &Response{
		Status: overall,
		Checks: checks,
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkStore(ctx context.Context) CheckResult {
	if c.store == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "object store not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.store.Ready(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

func (c *Checker) checkEndpoints() CheckResult {
	if c.selector == nil || c.selector.Len() == 0 {
		return CheckResult{Status: StatusUnhealthy, Message: "no compute endpoints configured"}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy reports whether the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown marks the service as draining. Readiness turns unhealthy
// immediately so load balancers stop sending new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
