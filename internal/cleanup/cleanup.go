// Package cleanup deletes staged input objects after their job finishes.
// Deletion is best effort: a failure is logged and counted, never retried,
// and never surfaces into the job path. Result objects are retained.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"vton/internal/store"
)

// Defaults sized for a gateway where each job stages two small objects.
const (
	defaultWorkers    = 2
	defaultBufferSize = 256
	defaultOpTimeout  = 10 * time.Second
)

// MetricsRecorder is an optional sink for cleanup metrics.
type MetricsRecorder interface {
	RecordCleanupDeleted(ctx context.Context)
	RecordCleanupFailed(ctx context.Context)
	RecordCleanupQueueSize(ctx context.Context, size int64)
}

// Config tunes the worker pool.
type Config struct {
	Workers    int
	BufferSize int
	OpTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = defaultOpTimeout
	}
	return c
}

// Stats is a point-in-time snapshot of cleaner counters.
type Stats struct {
	QueueDepth int
	Enqueued   int64
	Deleted    int64
	Failed     int64
	Dropped    int64
}

// Cleaner deletes keys from the object store through a bounded queue and a
// small worker pool. A full queue drops keys rather than blocking the job
// that finished; orphaned uploads are reclaimed by bucket lifecycle rules.
type Cleaner struct {
	queue   chan string
	store   store.Client
	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder

	enqueued atomic.Int64
	deleted  atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a cleaner and starts its workers.
func New(st store.Client, cfg Config, metrics MetricsRecorder) *Cleaner {
	cfg = cfg.withDefaults()

	c := &Cleaner{
		queue:    make(chan string, cfg.BufferSize),
		store:    st,
		config:   cfg,
		logger:   slog.With("component", "cleanup"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker()
	}

	if metrics != nil {
		go c.reportQueueSize()
	}

	c.logger.Info("Cleanup worker started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return c
}

// Enqueue queues a key for deletion. Never blocks.
func (c *Cleaner) Enqueue(key string) {
	if c.closed.Load() {
		return
	}

	select {
	case c.queue <- key:
		c.enqueued.Add(1)
	default:
		c.dropped.Add(1)
		c.logger.Warn("Cleanup key dropped, buffer full", "key", key)
	}
}

// Stats returns current counters.
func (c *Cleaner) Stats() Stats {
	return Stats{
		QueueDepth: len(c.queue),
		Enqueued:   c.enqueued.Load(),
		Deleted:    c.deleted.Load(),
		Failed:     c.failed.Load(),
		Dropped:    c.dropped.Load(),
	}
}

// Close drains the queue and stops the workers, bounded by ctx.
func (c *Cleaner) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.logger.Info("Cleanup worker shutting down", "queued", len(c.queue))
	close(c.shutdown)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cleanup worker shutdown complete",
			"deleted", c.deleted.Load(),
			"failed", c.failed.Load(),
			"dropped", c.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		c.logger.Warn("Cleanup worker shutdown timed out", "remaining", len(c.queue))
		return ctx.Err()
	}
}

func (c *Cleaner) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.shutdown:
			c.drain()
			return
		case key := <-c.queue:
			c.remove(key)
		}
	}
}

// drain deletes the remaining keys after the shutdown signal.
func (c *Cleaner) drain() {
	for {
		select {
		case key := <-c.queue:
			c.remove(key)
		default:
			return
		}
	}
}

func (c *Cleaner) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.OpTimeout)
	defer cancel()

	if err := c.store.Remove(ctx, store.ObjectRef{Key: key}); err != nil {
		c.failed.Add(1)
		if c.metrics != nil {
			c.metrics.RecordCleanupFailed(ctx)
		}
		c.logger.Warn("Staged object deletion failed", "key", key, "error", err)
		return
	}

	c.deleted.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCleanupDeleted(ctx)
	}
}

func (c *Cleaner) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.metrics.RecordCleanupQueueSize(context.Background(), int64(len(c.queue)))
		}
	}
}
