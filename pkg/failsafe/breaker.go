package failsafe

import (
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	StateClosed   BreakerState = iota // normal operation
	StateOpen                         // tripped, traffic blocked
	StateHalfOpen                     // cooldown elapsed, probing
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker tracks consecutive failures against one resource and blocks
// traffic to it after a threshold, letting a probe through once the
// cooldown elapses.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	trippedAt time.Time

	threshold int
	cooldown  time.Duration
}

// BreakerConfig holds breaker tuning. Zero values use defaults
// (threshold 5, cooldown 30s).
type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Allow reports whether traffic to the resource should be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.trippedAt) > b.cooldown {
		b.state = StateHalfOpen
	}
	return b.state != StateOpen
}

// Succeed records a successful call and closes the breaker.
func (b *Breaker) Succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
}

// Fail records a failed call. A half-open probe failure reopens the
// breaker immediately; otherwise the breaker opens at the threshold.
func (b *Breaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.trippedAt = time.Now()

	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry hands out one breaker per key, creating on first use.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      BreakerConfig
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for a key, creating it if needed.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker(r.cfg)
		r.breakers[key] = b
	}
	return b
}

// OpenCount returns how many breakers are currently open.
func (r *Registry) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	open := 0
	for _, b := range r.breakers {
		if b.State() == StateOpen {
			open++
		}
	}
	return open
}
