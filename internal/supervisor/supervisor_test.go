package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// healthStub serves the subprocess health contract, flipping to healthy
// after a set number of probes.
func healthStub(healthyAfter int64) (*httptest.Server, *atomic.Int64) {
	var probes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := probes.Add(1)
		status := "healthy"
		if n <= healthyAfter {
			status = "loading"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	return srv, &probes
}

func TestWaitReady(t *testing.T) {
	t.Parallel()

	srv, probes := healthStub(2)
	defer srv.Close()

	s := New(Config{
		Command:        []string{"sleep", "60"},
		HealthURL:      srv.URL + "/ping",
		StartupTimeout: 10 * time.Second,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady() error: %v", err)
	}
	if got := probes.Load(); got < 3 {
		t.Errorf("probes = %d, want at least 3 (two unhealthy then healthy)", got)
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	t.Parallel()

	srv, _ := healthStub(1 << 30) // never healthy
	defer srv.Close()

	s := New(Config{
		Command:        []string{"sleep", "60"},
		HealthURL:      srv.URL + "/ping",
		StartupTimeout: 500 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer s.Stop()

	if err := s.WaitReady(context.Background()); err == nil {
		t.Fatal("WaitReady() succeeded against a server that never became healthy")
	}
}

func TestWaitReadyDetectsEarlyExit(t *testing.T) {
	t.Parallel()

	srv, _ := healthStub(1 << 30)
	defer srv.Close()

	s := New(Config{
		Command:        []string{"true"},
		HealthURL:      srv.URL + "/ping",
		StartupTimeout: 10 * time.Second,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	start := time.Now()
	err := s.WaitReady(context.Background())
	if err == nil {
		t.Fatal("WaitReady() succeeded after the process exited")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("early exit took %v to detect", time.Since(start))
	}
}

func TestStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Command: []string{"sleep", "60"}, StopGrace: 2 * time.Second})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("Stop() took %v", time.Since(start))
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := New(Config{Command: []string{"sleep", "60"}})
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() before Start() = %v, want nil", err)
	}
}

func TestStartMissingCommand(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() with no command succeeded")
	}
}
