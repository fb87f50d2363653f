package health

import (
	"context"
	"errors"
	"testing"

	"vton/internal/endpoint"
	"vton/internal/store"
	"vton/pkg/failsafe"
)

// failingStore reports not ready.
type failingStore struct {
	*store.Memory
}

func (f *failingStore) Ready(ctx context.Context) error {
	return errors.New("bucket unreachable")
}

func testSelector(n int) *endpoint.Selector {
	eps := make([]endpoint.Endpoint, 0, n)
	for i := 0; i < n; i++ {
		eps = append(eps, endpoint.Endpoint{ID: string(rune('a' + i)), BaseURL: "https://example.test"})
	}
	return endpoint.NewSelector(eps, failsafe.BreakerConfig{})
}

func TestLivenessAlwaysHealthy(t *testing.T) {
	t.Parallel()

	c := NewChecker(nil, nil)
	if resp := c.Liveness(context.Background()); !resp.IsHealthy() {
		t.Errorf("Liveness() = %+v, want healthy", resp)
	}
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		store    store.Client
		selector *endpoint.Selector
		want     Status
	}{
		{"ready", store.NewMemory(), testSelector(2), StatusHealthy},
		{"store down", &failingStore{store.NewMemory()}, testSelector(2), StatusUnhealthy},
		{"no endpoints", store.NewMemory(), testSelector(0), StatusUnhealthy},
		{"nothing wired", nil, nil, StatusUnhealthy},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewChecker(tt.store, tt.selector)
			if resp := c.Readiness(context.Background()); resp.Status != tt.want {
				t.Errorf("Readiness() = %+v, want %s", resp, tt.want)
			}
		})
	}
}

func TestReadinessCaches(t *testing.T) {
	t.Parallel()

	c := NewChecker(store.NewMemory(), testSelector(1))

	first := c.Readiness(context.Background())
	second := c.Readiness(context.Background())
	if first != second {
		t.Error("back-to-back readiness checks should hit the cache")
	}
}

func TestSetShuttingDown(t *testing.T) {
	t.Parallel()

	c := NewChecker(store.NewMemory(), testSelector(1))
	if resp := c.Readiness(context.Background()); !resp.IsHealthy() {
		t.Fatalf("Readiness() = %+v before shutdown", resp)
	}

	c.SetShuttingDown()

	resp := c.Readiness(context.Background())
	if resp.IsHealthy() {
		t.Error("Readiness() healthy while shutting down")
	}
	if resp.Checks["shutdown"].Status != StatusUnhealthy {
		t.Errorf("checks = %+v, want shutdown flagged", resp.Checks)
	}
}
