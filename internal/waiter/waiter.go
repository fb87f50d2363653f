// Package waiter detects completion of a remote try-on job. Two strategies
// exist: the synchronous worker route answers with the result key in the
// invocation response, while the push strategy subscribes to a socket and
// filters completion announcements by correlation id. Both converge on the
// same CompletionEvent contract.
package waiter

import (
	"context"

	"vton/internal/endpoint"
	"vton/internal/invoker"
)

// Terminal job statuses. Exactly one CompletionEvent is produced per job;
// nothing transitions out of a terminal status.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusTimedOut  = "timed_out"
)

// CompletionEvent is the single terminal outcome of one job.
type CompletionEvent struct {
	JobID     string
	Status    string
	OutputKey string // set only when Status is StatusSucceeded
}

// Waiter invokes a worker and blocks until it reports completion, a
// terminal error, or the context deadline elapses. Implementations must not
// block other concurrent jobs.
type Waiter interface {
	Await(ctx context.Context, ep *endpoint.Endpoint, jobID string, p *invoker.Payload) (*CompletionEvent, error)
}

// SyncWaiter is Strategy A: the invocation call itself blocks until the
// pipeline finishes and carries the output reference in its response.
type SyncWaiter struct {
	invoker *invoker.Invoker
}

// NewSync creates a synchronous request/response waiter.
func NewSync(inv *invoker.Invoker) *SyncWaiter {
	return &SyncWaiter{invoker: inv}
}

// Await submits the job and waits on the HTTP response.
func (w *SyncWaiter) Await(ctx context.Context, ep *endpoint.Endpoint, jobID string, p *invoker.Payload) (*CompletionEvent, error) {
	key, err := w.invoker.InvokeSync(ctx, ep, p)
	if err != nil {
		return nil, err
	}
	return &CompletionEvent{
		JobID:     jobID,
		Status:    StatusSucceeded,
		OutputKey: key,
	}, nil
}

// Verify both strategies satisfy the contract
var (
	_ Waiter = (*SyncWaiter)(nil)
	_ Waiter = (*PushWaiter)(nil)
)
