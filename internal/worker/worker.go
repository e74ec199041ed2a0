package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/ports/driven"
	"github.com/custodia-labs/nexus/internal/core/services"
	"github.com/custodia-labs/nexus/internal/metrics"
)

// Ingester runs ingestion for a stored object and rescans the object store.
type Ingester interface {
	Ingest(ctx context.Context, source string) (*domain.Document, error)
	Rescan(ctx context.Context) (int, error)
}

// SlackProcessor answers one dispatched Slack event.
type SlackProcessor interface {
	Process(ctx context.Context, event *domain.SlackEvent) (domain.PostOutcome, error)
}

// Default per-task time limits
const (
	DefaultIngestTimeout = 10 * time.Minute
	DefaultSlackTimeout  = 2 * time.Minute
	DefaultScanTimeout   = 5 * time.Minute
)

// Worker processes tasks from the task queue.
// Ingest and scan tasks go to the ingestion service, Slack events to the
// Slack processor.
type Worker struct {
	taskQueue driven.TaskQueue
	ingester  Ingester
	slack     SlackProcessor
	scheduler *services.Scheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds
	timeouts       map[domain.TaskType]time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Ingester       Ingester
	Slack          SlackProcessor // Optional: slack tasks fail without it
	Scheduler      *services.Scheduler
	Logger         *slog.Logger
	Concurrency    int // Number of concurrent task processors
	DequeueTimeout int // Seconds to wait for a task before checking again

	IngestTimeout time.Duration
	SlackTimeout  time.Duration
	ScanTimeout   time.Duration
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	timeouts := map[domain.TaskType]time.Duration{
		domain.TaskTypeIngestDocument: orDefault(cfg.IngestTimeout, DefaultIngestTimeout),
		domain.TaskTypeSlackEvent:     orDefault(cfg.SlackTimeout, DefaultSlackTimeout),
		domain.TaskTypeScanSources:    orDefault(cfg.ScanTimeout, DefaultScanTimeout),
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		ingester:       cfg.Ingester,
		slack:          cfg.Slack,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		timeouts:       timeouts,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
	)

	// Start the scheduler if provided
	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. In-flight tasks finish first.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-time.After(time.Second): // Back off on error
			case <-ctx.Done():
			case <-w.stopCh:
			}
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task under its type's time limit and settles it.
// Permanent failures are acknowledged so they are not retried.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")

	startTime := time.Now()

	taskCtx := ctx
	if limit, ok := w.timeouts[task.Type]; ok {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	var err error
	switch task.Type {
	case domain.TaskTypeIngestDocument:
		err = w.handleIngest(taskCtx, task)
	case domain.TaskTypeSlackEvent:
		err = w.handleSlackEvent(taskCtx, task, logger)
	case domain.TaskTypeScanSources:
		err = w.handleScan(taskCtx)
	default:
		err = &permanentError{fmt.Errorf("unknown task type: %s", task.Type)}
	}

	duration := time.Since(startTime)
	metrics.RecordTask(string(task.Type), err)

	// Settle with a fresh context so shutdown does not strand the task
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	var perm *permanentError
	switch {
	case err == nil:
		logger.Info("task completed", "duration", duration)
		if ackErr := w.taskQueue.Ack(settleCtx, task.ID); ackErr != nil {
			logger.Error("failed to ack task", "ack_error", ackErr)
		}
	case errors.As(err, &perm):
		logger.Error("task failed permanently", "duration", duration, "error", err)
		if ackErr := w.taskQueue.Ack(settleCtx, task.ID); ackErr != nil {
			logger.Error("failed to ack task", "ack_error", ackErr)
		}
	default:
		logger.Error("task failed", "duration", duration, "error", err)
		if nackErr := w.taskQueue.Nack(settleCtx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
	}
}

// permanentError marks a task failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// handleIngest handles an ingest_document task.
func (w *Worker) handleIngest(ctx context.Context, task *domain.Task) error {
	source := task.Source()
	if source == "" {
		return &permanentError{fmt.Errorf("source not found in task payload")}
	}
	if w.ingester == nil {
		return fmt.Errorf("no ingester configured")
	}

	doc, err := w.ingester.Ingest(ctx, source)
	if err != nil {
		if services.IsPermanentIngestError(err) {
			return &permanentError{err}
		}
		return err
	}
	if doc.Status == domain.DocumentStatusPartial {
		w.logger.Warn("document partially indexed", "document_id", doc.ID, "error", doc.Error)
	}
	return nil
}

// handleSlackEvent handles a slack_event task. A failed answer has already
// been reported to the channel, so it is never retried.
func (w *Worker) handleSlackEvent(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	if w.slack == nil {
		return fmt.Errorf("no slack processor configured")
	}
	event, err := task.SlackEvent()
	if err != nil {
		return &permanentError{err}
	}

	outcome, err := w.slack.Process(ctx, event)
	if err != nil {
		logger.Warn("slack question answered with error notice", "outcome", outcome, "error", err)
	}
	if outcome == domain.PostFailed {
		return &permanentError{fmt.Errorf("slack delivery %s could not be posted", event.DeliveryID)}
	}
	return nil
}

// handleScan handles a scan_sources task.
func (w *Worker) handleScan(ctx context.Context) error {
	if w.ingester == nil {
		return fmt.Errorf("no ingester configured")
	}
	_, err := w.ingester.Rescan(ctx)
	return err
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
