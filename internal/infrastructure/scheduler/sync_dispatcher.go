package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Sync Job
// ---------------------------------------------------------------------------

// SyncJob is one webhook request waiting for, or running on, a dispatcher worker
type SyncJob struct {
	ID          string
	SubmittedAt time.Time

	ctx  context.Context
	run  func(ctx context.Context)
	err  error
	done chan struct{}
}

func newSyncJob(ctx context.Context, id string, run func(ctx context.Context)) *SyncJob {
	return &SyncJob{
		ID:          id,
		SubmittedAt: time.Now(),
		ctx:         ctx,
		run:         run,
		done:        make(chan struct{}),
	}
}

// Done is closed once the job has finished or was dropped
func (j *SyncJob) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
// A job whose caller gave up keeps running to completion on its worker.
func (j *SyncJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *SyncJob) finish(err error) {
	j.err = err
	close(j.done)
}

// ---------------------------------------------------------------------------
// Dispatcher Config
// ---------------------------------------------------------------------------

// DispatcherConfig holds configuration for the sync dispatcher
type DispatcherConfig struct {
	// Workers is the number of requests processed concurrently
	Workers int
	// QueueSize is the number of requests that may wait for a worker
	QueueSize int
}

// DefaultDispatcherConfig returns default configuration
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   10,
		QueueSize: 100,
	}
}

// Validate validates the configuration
func (c *DispatcherConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue size must not be negative", ErrInvalidConfig)
	}
	return nil
}

// QueueMetrics receives the queue depth. telemetry.SyncMetrics implements it
type QueueMetrics interface {
	SetQueueDepth(n int)
}

type noopQueueMetrics struct{}

func (noopQueueMetrics) SetQueueDepth(int) {}

// DispatcherStats is a point in time view of the dispatcher
type DispatcherStats struct {
	Running   bool  `json:"running"`
	Workers   int   `json:"workers"`
	QueueSize int   `json:"queue_size"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Processed int64 `json:"processed"`
	Rejected  int64 `json:"rejected"`
}

// ---------------------------------------------------------------------------
// SyncDispatcher
// ---------------------------------------------------------------------------

// SyncDispatcher runs webhook requests on a fixed pool of workers fed by a bounded queue
type SyncDispatcher struct {
	config  DispatcherConfig
	logger  *zap.Logger
	metrics QueueMetrics

	jobs      chan *SyncJob
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	active    atomic.Int64
	processed atomic.Int64
	rejected  atomic.Int64
}

// DispatcherOption configures a SyncDispatcher
type DispatcherOption func(*SyncDispatcher)

// WithQueueMetrics sets the queue depth sink
func WithQueueMetrics(m QueueMetrics) DispatcherOption {
	return func(d *SyncDispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// NewSyncDispatcher creates a new sync dispatcher
func NewSyncDispatcher(config DispatcherConfig, logger *zap.Logger, opts ...DispatcherOption) (*SyncDispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &SyncDispatcher{
		config:  config,
		logger:  logger,
		metrics: noopQueueMetrics{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start starts the worker pool
func (d *SyncDispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isRunning {
		return nil
	}

	d.runCtx, d.cancel = context.WithCancel(ctx)
	d.jobs = make(chan *SyncJob, d.config.QueueSize)
	d.isRunning = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(d.runCtx, d.jobs, i)
	}

	d.logger.Info("Sync dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("queue_size", d.config.QueueSize),
	)
	return nil
}

// Stop stops accepting jobs and cancels running ones, so retries and rate limit
// waits end promptly. It waits for the workers until ctx is done.
func (d *SyncDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.isRunning {
		d.mu.Unlock()
		return nil
	}
	d.isRunning = false
	d.cancel()
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Sync dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Sync dispatcher stop timed out", zap.Int64("active", d.active.Load()))
		return ctx.Err()
	}
}

// IsRunning reports whether the dispatcher accepts jobs
func (d *SyncDispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}

// Submit queues run without blocking. The job context keeps the values of ctx
// but is cancelled only when the dispatcher stops.
func (d *SyncDispatcher) Submit(ctx context.Context, id string, run func(ctx context.Context)) (*SyncJob, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isRunning {
		return nil, ErrSchedulerNotRunning
	}

	job := newSyncJob(ctx, id, run)
	select {
	case d.jobs <- job:
		d.metrics.SetQueueDepth(len(d.jobs))
		d.logger.Debug("Sync job submitted", zap.String("job_id", id))
		return job, nil
	default:
		d.rejected.Add(1)
		d.logger.Warn("Sync job rejected, queue full",
			zap.String("job_id", id),
			zap.Int("queue_size", d.config.QueueSize))
		return nil, ErrJobQueueFull
	}
}

// Do submits run and waits for it to finish or for ctx to be done
func (d *SyncDispatcher) Do(ctx context.Context, id string, run func(ctx context.Context)) error {
	job, err := d.Submit(ctx, id, run)
	if err != nil {
		return err
	}
	return job.Wait(ctx)
}

// Stats returns the current dispatcher state
func (d *SyncDispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	running := d.isRunning
	queued := 0
	if d.jobs != nil && running {
		queued = len(d.jobs)
	}
	d.mu.Unlock()

	return DispatcherStats{
		Running:   running,
		Workers:   d.config.Workers,
		QueueSize: d.config.QueueSize,
		Queued:    queued,
		Active:    d.active.Load(),
		Processed: d.processed.Load(),
		Rejected:  d.rejected.Load(),
	}
}

// worker processes jobs until the queue is closed
func (d *SyncDispatcher) worker(runCtx context.Context, jobs <-chan *SyncJob, workerID int) {
	defer d.wg.Done()
	d.logger.Debug("Sync worker started", zap.Int("worker_id", workerID))

	for job := range jobs {
		d.metrics.SetQueueDepth(len(jobs))
		if runCtx.Err() != nil {
			d.logger.Warn("Dropping queued sync job at shutdown", zap.String("job_id", job.ID))
			job.finish(ErrJobDropped)
			continue
		}
		d.processJob(runCtx, job, workerID)
	}

	d.logger.Debug("Sync worker stopping", zap.Int("worker_id", workerID))
}

// processJob runs a single job on a context carrying the submitter's values and the dispatcher's cancellation
func (d *SyncDispatcher) processJob(runCtx context.Context, job *SyncJob, workerID int) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(job.ctx))
	stop := context.AfterFunc(runCtx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	d.active.Add(1)
	start := time.Now()
	err := d.runSafely(jobCtx, job)
	d.active.Add(-1)
	d.processed.Add(1)

	d.logger.Debug("Sync job finished",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID),
		zap.Duration("queued", start.Sub(job.SubmittedAt)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	job.finish(err)
}

func (d *SyncDispatcher) runSafely(ctx context.Context, job *SyncJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Sync job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = ErrJobPanicked
		}
	}()
	job.run(ctx)
	return nil
}
