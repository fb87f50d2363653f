// Package supervisor manages a local inference server subprocess: start it,
// wait for its health probe to come up, terminate it on shutdown. The
// subprocess is opaque beyond its HTTP contract.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"vton/pkg/failsafe"
)

// Config describes the subprocess and how to probe it.
type Config struct {
	// Command is the argv of the inference server, e.g.
	// ["python", "server.py"].
	Command []string
	// Env entries appended to the current environment.
	Env []string
	// HealthURL is polled until it answers {"status":"healthy"}.
	HealthURL string
	// StartupTimeout bounds WaitReady. Model loading dominates, so the
	// default is generous.
	StartupTimeout time.Duration
	// StopGrace is how long Stop waits after SIGTERM before killing.
	StopGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 2 * time.Minute
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 10 * time.Second
	}
	return c
}

// Supervisor runs one subprocess for the lifetime of the service.
type Supervisor struct {
	config  Config
	client  *http.Client
	backoff failsafe.Backoff
	logger  *slog.Logger

	cmd  *exec.Cmd
	done chan error
}

// New creates a supervisor. Start must be called before WaitReady or Stop.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		config:  cfg.withDefaults(),
		client:  &http.Client{Timeout: 2 * time.Second},
		backoff: failsafe.Backoff{Initial: 250 * time.Millisecond, Cap: 5 * time.Second},
		logger:  slog.With("component", "supervisor"),
	}
}

// Start launches the subprocess. Its output is passed through so inference
// server logs land in the same stream as the service's.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.config.Command) == 0 {
		return fmt.Errorf("supervisor: no command configured")
	}

	cmd := exec.CommandContext(ctx, s.config.Command[0], s.config.Command[1:]...)
	cmd.Env = append(os.Environ(), s.config.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("supervisor: start %q: %w", s.config.Command[0], err)
	}

	s.cmd = cmd
	s.done = make(chan error, 1)
	go func() {
		s.done <- cmd.Wait()
	}()

	s.logger.Info("Inference server started", "pid", cmd.Process.Pid, "command", s.config.Command[0])
	return nil
}

// WaitReady polls the health URL with exponential backoff until the server
// reports healthy, the subprocess exits, or the startup timeout elapses.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StartupTimeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		if s.probe(ctx) {
			s.logger.Info("Inference server ready", "attempts", attempt+1)
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("supervisor: server not ready within %s", s.config.StartupTimeout)
		case err := <-s.done:
			return fmt.Errorf("supervisor: server exited before becoming ready: %w", err)
		case <-time.After(s.backoff.Delay(attempt)):
		}
	}
}

// probe performs one health check against the server.
func (s *Supervisor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.HealthURL, nil)
	if err != nil {
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "healthy"
}

// Stop terminates the subprocess: SIGTERM first, SIGKILL after the grace
// period. Safe to call when Start never ran.
func (s *Supervisor) Stop() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}

	s.logger.Info("Stopping inference server", "pid", s.cmd.Process.Pid)
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone.
		return nil
	}

	select {
	case err := <-s.done:
		s.logger.Info("Inference server stopped", "error", err)
		return nil
	case <-time.After(s.config.StopGrace):
		s.logger.Warn("Inference server did not exit, killing", "pid", s.cmd.Process.Pid)
		s.cmd.Process.Kill()
		<-s.done
		return nil
	}
}
