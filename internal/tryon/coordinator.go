package tryon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"vton/internal/apperrors"
	"vton/internal/config"
	"vton/internal/endpoint"
	"vton/internal/invoker"
	"vton/internal/observability"
	"vton/internal/store"
	"vton/internal/waiter"
)

// Cleaner receives staged input keys for asynchronous deletion once their
// job has finished.
type Cleaner interface {
	Enqueue(key string)
}

// Coordinator drives try-on jobs end to end. It is stateless across jobs;
// the only shared state is the admission gate bounding concurrent work.
type Coordinator struct {
	store    store.Client
	selector *endpoint.Selector
	waiter   waiter.Waiter
	cleaner  Cleaner
	metrics  *observability.Metrics
	gate     *semaphore.Weighted
	active   atomic.Int64

	jobTimeout time.Duration
	delivery   string
	scratchDir string
	logger     *slog.Logger
}

// NewCoordinator creates a coordinator. cfg supplies the job timeout, the
// admission cap, the delivery mode, and the scratch directory root.
func NewCoordinator(st store.Client, sel *endpoint.Selector, w waiter.Waiter, cl Cleaner, m *observability.Metrics, cfg config.ServiceConfig) *Coordinator {
	return &Coordinator{
		store:      st,
		selector:   sel,
		waiter:     w,
		cleaner:    cl,
		metrics:    m,
		gate:       semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		jobTimeout: cfg.JobTimeout,
		delivery:   cfg.ResultDelivery,
		scratchDir: cfg.ScratchDir,
		logger:     slog.With("component", "coordinator"),
	}
}

// Submit runs one job to completion. The whole lifecycle, including time
// spent queued at the admission gate, is bounded by the job timeout. Errors
// are never retried internally; the caller owns retry policy.
func (c *Coordinator) Submit(ctx context.Context, req *Request) (*Result, error) {
	applyDefaults(req)
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	defer cancel()

	// Admission: block until a slot frees up, never reject.
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Timeout("coordinator.admit")
	}
	c.active.Add(1)
	start := time.Now()
	if c.metrics != nil {
		c.metrics.RecordJobAdmitted(ctx, req.ClothType)
	}

	result, err := c.run(ctx, req)

	c.gate.Release(1)
	c.active.Add(-1)
	if c.metrics != nil {
		// Completion metrics must survive a job that burned its deadline.
		c.metrics.RecordJobCompleted(context.WithoutCancel(ctx), req.ClothType, err == nil, time.Since(start).Seconds())
	}
	return result, err
}

// run executes the staged lifecycle. The scratch dir and staged store keys
// are released on every exit path.
func (c *Coordinator) run(ctx context.Context, req *Request) (*Result, error) {
	jobID := store.NewID()
	logger := c.logger.With("jobId", jobID, "clothType", req.ClothType)

	scratch, err := os.MkdirTemp(c.scratchDir, "tryon-"+jobID+"-")
	if err != nil {
		return nil, apperrors.Internal("coordinator.scratch", err)
	}
	defer os.RemoveAll(scratch)

	payload, staged, err := c.stage(ctx, jobID, scratch, req)
	if c.cleaner != nil && len(staged) > 0 {
		defer func() {
			for _, key := range staged {
				c.cleaner.Enqueue(key)
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	ep, err := c.selector.Pick()
	if err != nil {
		return nil, err
	}
	logger = logger.With("endpoint", ep.ID)
	logger.Info("Job dispatched")

	ev, err := c.await(ctx, ep, jobID, payload)
	if err != nil {
		logger.Warn("Job failed", "error", err)
		return nil, err
	}
	logger.Info("Job completed", "resultKey", ev.OutputKey)

	return c.deliver(ctx, ev.OutputKey)
}

// stage writes byte inputs under the scratch dir and uploads them to the
// store. Keys the caller supplied are referenced as-is and never cleaned.
// Returned staged keys are valid even when the error is non-nil so partial
// uploads still get cleaned up.
func (c *Coordinator) stage(ctx context.Context, jobID, scratch string, req *Request) (*invoker.Payload, []string, error) {
	var staged []string

	personKey, err := c.stageOne(ctx, jobID, scratch, "person", req.Person, req.PersonKey)
	if err != nil {
		return nil, staged, err
	}
	if req.PersonKey == "" {
		staged = append(staged, personKey)
	}

	garmentKey, err := c.stageOne(ctx, jobID, scratch, "garment", req.Garment, req.GarmentKey)
	if err != nil {
		return nil, staged, err
	}
	if req.GarmentKey == "" {
		staged = append(staged, garmentKey)
	}

	return &invoker.Payload{
		PersonImageKey:  personKey,
		GarmentImageKey: garmentKey,
		ClothType:       req.ClothType,
		Seed:            req.Seed,
	}, staged, nil
}

// stageOne resolves one input to a store key, uploading raw bytes when no
// key was supplied.
func (c *Coordinator) stageOne(ctx context.Context, jobID, scratch, kind string, data []byte, key string) (string, error) {
	if key != "" {
		return key, nil
	}

	local := filepath.Join(scratch, kind+".jpg")
	if err := os.WriteFile(local, data, 0o600); err != nil {
		return "", apperrors.Internal("coordinator.scratch", err)
	}

	staged := store.UploadKey(kind, jobID, "jpg")
	start := time.Now()
	err := c.store.Put(ctx, store.ObjectRef{Key: staged}, data)
	if c.metrics != nil {
		c.metrics.RecordStoreOp(ctx, "put", err, time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	return staged, nil
}

// await invokes the worker through the configured strategy and reports the
// outcome to the selector's breakers. Only connection-level failures count
// against an endpoint; a rejection proves it is reachable.
func (c *Coordinator) await(ctx context.Context, ep *endpoint.Endpoint, jobID string, p *invoker.Payload) (*waiter.CompletionEvent, error) {
	ev, err := c.waiter.Await(ctx, ep, jobID, p)
	if err != nil {
		if errors.Is(err, apperrors.ErrEndpointUnreachable) {
			c.selector.ReportUnreachable(ep)
		}
		return nil, err
	}
	c.selector.ReportSuccess(ep)
	return ev, nil
}

// deliver shapes the terminal result. Key delivery hands back the store
// reference untouched; inline delivery fetches the artifact bytes.
func (c *Coordinator) deliver(ctx context.Context, key string) (*Result, error) {
	if c.delivery == config.DeliveryKey {
		return &Result{Key: key}, nil
	}

	start := time.Now()
	data, err := c.store.Get(ctx, store.ObjectRef{Key: key})
	if c.metrics != nil {
		c.metrics.RecordStoreOp(ctx, "get", err, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return &Result{Inline: data, Key: key}, nil
}

// Active reports how many jobs currently hold an admission slot.
func (c *Coordinator) Active() int64 {
	return c.active.Load()
}

func applyDefaults(req *Request) {
	if req.ClothType == "" {
		req.ClothType = ClothUpper
	}
}

func validate(req *Request) error {
	if !validClothType(req.ClothType) {
		return apperrors.Validation("cloth_type", "must be one of upper, lower, overall")
	}
	if len(req.Person) == 0 && req.PersonKey == "" {
		return apperrors.Validation("person_image", "person image is required")
	}
	if len(req.Person) > 0 && req.PersonKey != "" {
		return apperrors.Validation("person_image", "provide person image bytes or a key, not both")
	}
	if len(req.Garment) == 0 && req.GarmentKey == "" {
		return apperrors.Validation("garment_image", "garment image is required")
	}
	if len(req.Garment) > 0 && req.GarmentKey != "" {
		return apperrors.Validation("garment_image", "provide garment image bytes or a key, not both")
	}
	return nil
}
