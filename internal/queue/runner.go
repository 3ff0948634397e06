// Package queue runs analysis jobs on a bounded worker pool with retry and
// backoff.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Yoav-S/legal-analyzer-backend/internal/domain"
)

// ErrQueueFull means the job buffer is at capacity; the caller should surface
// a retry-later to the client.
var ErrQueueFull = errors.New("analysis queue is full")

// PipelineRunner executes one document's analysis run.
type PipelineRunner interface {
	Run(ctx context.Context, documentID, userID string) error
}

// Job is one queued analysis attempt. Attempt starts at 1.
type Job struct {
	DocumentID string
	UserID     string
	Attempt    int
}

// Config sizes the runner.
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number, so retries spread
	// out: backoff, 2*backoff, ...
	RetryBackoff time.Duration
}

// Runner owns the worker pool. Between attempts a document goes back to
// waiting_in_queue; the failed status is set only after the final attempt,
// with a user-facing message. A document already held by another run is
// dropped without a retry.
type Runner struct {
	pipeline PipelineRunner
	store    domain.DocumentStore
	cfg      Config
	jobs     chan Job
	logger   *zap.Logger

	// inflight has one entry per document from Enqueue until its job
	// reaches a final outcome, so duplicate enqueues collapse.
	mu       sync.Mutex
	inflight map[string]struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewRunner(pipeline PipelineRunner, store domain.DocumentStore, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
		jobs:     make(chan Job, cfg.QueueSize),
		logger:   logger,
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool.
func (r *Runner) Start() {
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("analysis queue started",
		zap.Int("workers", r.cfg.Workers),
		zap.Int("queue_size", r.cfg.QueueSize),
	)
}

// Enqueue admits a document for analysis: marks it waiting_in_queue and hands
// it to the pool. A document already in flight is accepted silently without a
// second job. Fails with ErrQueueFull when the buffer is at capacity, and
// surfaces the store's domain.ErrTerminalStatus for a document that already
// completed or failed.
func (r *Runner) Enqueue(ctx context.Context, documentID, userID string) error {
	r.mu.Lock()
	if _, ok := r.inflight[documentID]; ok {
		r.mu.Unlock()
		r.logger.Debug("document already queued", zap.String("document_id", documentID))
		return nil
	}
	r.inflight[documentID] = struct{}{}
	r.mu.Unlock()

	if err := r.store.UpdateStatus(ctx, documentID, domain.StatusWaitingInQueue, ""); err != nil {
		r.release(documentID)
		return errors.Wrap(err, "mark document queued")
	}

	select {
	case r.jobs <- Job{DocumentID: documentID, UserID: userID, Attempt: 1}:
		return nil
	default:
		r.release(documentID)
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits for in-progress jobs, up to the
// context deadline.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(r.cancel)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("analysis queue stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "queue shutdown")
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.jobs:
			r.handle(id, job)
		}
	}
}

func (r *Runner) handle(workerID int, job Job) {
	log := r.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("document_id", job.DocumentID),
		zap.Int("attempt", job.Attempt),
	)

	err := r.pipeline.Run(r.ctx, job.DocumentID, job.UserID)
	if err == nil {
		log.Info("analysis job finished")
		r.release(job.DocumentID)
		return
	}

	if errors.Is(err, domain.ErrAlreadyProcessing) {
		log.Debug("document held by another run, dropping job")
		r.release(job.DocumentID)
		return
	}

	if job.Attempt >= r.cfg.MaxAttempts {
		log.Error("analysis job failed permanently", zap.Error(err))
		if uerr := r.store.UpdateStatus(r.ctx, job.DocumentID, domain.StatusFailed, domain.UserMessage(err)); uerr != nil {
			log.Error("failed to mark document failed", zap.Error(uerr))
		}
		r.release(job.DocumentID)
		return
	}

	log.Warn("analysis job failed, scheduling retry", zap.Error(err))
	if uerr := r.store.UpdateStatus(r.ctx, job.DocumentID, domain.StatusWaitingInQueue, ""); uerr != nil {
		log.Error("failed to requeue document status", zap.Error(uerr))
	}
	r.requeueAfter(job, r.cfg.RetryBackoff*time.Duration(job.Attempt))
}

// requeueAfter re-submits the job after the backoff, keeping its inflight
// slot so a user-triggered enqueue cannot race in a duplicate. Shutdown
// abandons pending retries; the document stays waiting_in_queue for the next
// process to pick up.
func (r *Runner) requeueAfter(job Job, delay time.Duration) {
	next := Job{DocumentID: job.DocumentID, UserID: job.UserID, Attempt: job.Attempt + 1}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-r.ctx.Done():
		case <-timer.C:
			select {
			case r.jobs <- next:
				return
			case <-r.ctx.Done():
			}
		}
		r.release(job.DocumentID)
	}()
}

func (r *Runner) release(documentID string) {
	r.mu.Lock()
	delete(r.inflight, documentID)
	r.mu.Unlock()
}
