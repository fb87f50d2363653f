// Package failsafe provides the retry/backoff and failure-tracking
// primitives used around flaky dependencies: a capped exponential backoff
// policy and a per-key circuit breaker registry.
package failsafe

import (
	"math"
	"time"
)

// Backoff is a capped exponential backoff policy. The zero value uses
// 100ms initial and 5s cap.
type Backoff struct {
	Initial time.Duration
	Cap     time.Duration
}

// Delay returns the wait before the given attempt. Attempt 1 waits
// Initial, attempt 2 waits Initial*2, and so on up to Cap.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	ceiling := b.Cap
	if ceiling <= 0 {
		ceiling = 5 * time.Second
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if d > float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}
