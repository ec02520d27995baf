// Package jobs runs backtest jobs on a bounded priority queue served by a worker pool.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/logger"
	"github.com/yourusername/stocktester/internal/metrics"
	"github.com/yourusername/stocktester/internal/models"
	"github.com/yourusername/stocktester/internal/repository"
)

// Pool errors
var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrNotCancellable = errors.New("backtest is not pending")
	ErrPoolStopped    = errors.New("worker pool is not running")
	ErrUnknownKind    = errors.New("unknown job kind")
)

// Messages stored on records failed by the pool itself
const (
	msgInterrupted = "interrupted by restart"
	msgShutdown    = "interrupted by shutdown"
)

// Result is what a handler produces for a completed job
type Result struct {
	Results  json.RawMessage
	Strategy string
	Trades   int
}

// Handler executes one job. The record is in the running state.
type Handler func(ctx context.Context, record *models.BacktestRecord) (*Result, error)

// Config holds worker pool settings
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// ConfigFromEngine maps the engine config section onto pool settings
func ConfigFromEngine(cfg config.EngineConfig) Config {
	return Config{
		Workers:    cfg.MaxConcurrentJobs,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout(),
	}
}

// Status is the engine status served by GET /api/v1/backtest/status
type Status struct {
	Running           bool    `json:"running"`
	ActiveJobs        int     `json:"active_jobs"`
	QueuedJobs        int     `json:"queued_jobs"`
	MaxConcurrentJobs int     `json:"max_concurrent_jobs"`
	Workers           int     `json:"workers"`
	Uptime            float64 `json:"uptime"`
}

// Pool persists, queues and executes backtest jobs
type Pool struct {
	cfg       Config
	repo      repository.BacktestRepository
	handlers  map[models.JobKind]Handler
	publisher Publisher
	logger    *logrus.Logger
	jobLogger *logger.JobLogger

	mu          sync.Mutex
	cond        *sync.Cond
	queue       *jobQueue
	active      int
	liveWorkers int
	running     bool
	stopping    bool
	startedAt   time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a stopped pool. publisher may be nil.
func NewPool(cfg Config, repo repository.BacktestRepository, publisher Publisher, log *logrus.Logger) (*Pool, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", cfg.QueueSize)
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}

	p := &Pool{
		cfg:       cfg,
		repo:      repo,
		handlers:  make(map[models.JobKind]Handler),
		publisher: publisher,
		logger:    log,
		jobLogger: logger.NewJobLogger(log),
		queue:     newJobQueue(),
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// RegisterHandler sets the handler for a job kind. Call before Start.
func (p *Pool) RegisterHandler(kind models.JobKind, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// SetPublisher replaces the event publisher. Call before Start.
func (p *Pool) SetPublisher(publisher Publisher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if publisher == nil {
		publisher = nopPublisher{}
	}
	p.publisher = publisher
}

// Start recovers jobs left by a previous process and launches the workers.
// Records still running are failed; pending records are queued again.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is already running")
	}
	p.mu.Unlock()

	interrupted, err := p.repo.FailRunning(ctx, msgInterrupted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to recover running jobs: %w", err)
	}
	pending, err := p.repo.ListByStatus(ctx, models.StatusPending, p.cfg.QueueSize)
	if err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	p.mu.Lock()
	for _, record := range pending {
		p.queue.add(itemFor(record))
	}
	p.baseCtx, p.cancel = context.WithCancel(context.Background())
	p.running = true
	p.stopping = false
	p.startedAt = time.Now()
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		p.liveWorkers++
		go p.worker(i)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.jobLogger.LogRecovery(interrupted, len(pending))
	if len(pending) == p.cfg.QueueSize {
		p.logger.WithField("queue_size", p.cfg.QueueSize).Warn("Pending backlog fills the queue; older jobs may wait for a later restart")
	}
	p.logger.WithFields(logrus.Fields{
		"workers":    p.cfg.Workers,
		"queue_size": p.cfg.QueueSize,
	}).Info("Worker pool started")
	return nil
}

// Shutdown stops intake and waits for in-flight jobs until ctx expires,
// after which running jobs are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.running || p.stopping {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warn("Shutdown deadline reached, cancelling running jobs")
		p.cancel()
		<-done
		err = ctx.Err()
	}
	p.cancel()

	p.mu.Lock()
	p.running = false
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.logger.Info("Worker pool stopped")
	return err
}

// Running reports whether workers are accepting jobs
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && !p.stopping
}

// Submit persists record as pending and queues it
func (p *Pool) Submit(ctx context.Context, record *models.BacktestRecord) error {
	if record.Kind == "" {
		record.Kind = models.JobKindBacktest
	}
	p.mu.Lock()
	accepting := p.running && !p.stopping
	_, known := p.handlers[record.Kind]
	p.mu.Unlock()
	if !accepting {
		return ErrPoolStopped
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownKind, record.Kind)
	}

	if record.ID == "" {
		record.ID = models.NewBacktestID()
	}
	record.Status = models.StatusPending
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := p.repo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to store backtest: %w", err)
	}

	p.mu.Lock()
	full := p.queue.Len() >= p.cfg.QueueSize
	if !full {
		p.queue.add(itemFor(record))
		p.cond.Signal()
	}
	queued := p.queue.Len()
	p.updateGaugesLocked()
	p.mu.Unlock()

	if full {
		msg := ErrQueueFull.Error()
		now := time.Now().UTC()
		if err := p.repo.Transition(ctx, record.ID, models.StatusFailed, repository.StatusUpdate{At: now, Error: &msg}); err != nil {
			p.logger.WithError(err).WithField("backtest_id", record.ID).Error("Failed to mark rejected job")
		}
		record.Status = models.StatusFailed
		record.Error = &msg
		metrics.RecordBacktestJob(string(record.Kind), string(models.StatusFailed))
		p.publish(record, models.StatusFailed, 0, msg)
		return ErrQueueFull
	}

	metrics.RecordBacktestJob(string(record.Kind), string(models.StatusPending))
	p.jobLogger.LogJobQueued(record.ID, string(record.Kind), record.Priority, queued)
	p.publish(record, models.StatusPending, 0, "")
	return nil
}

// Cancel moves a pending job to cancelled and drops it from the queue
func (p *Pool) Cancel(ctx context.Context, id string) error {
	err := p.repo.Transition(ctx, id, models.StatusCancelled, repository.StatusUpdate{At: time.Now().UTC()})
	if errors.Is(err, models.ErrInvalidTransition) {
		return fmt.Errorf("%w: %s", ErrNotCancellable, id)
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.queue.remove(id)
	p.updateGaugesLocked()
	p.mu.Unlock()

	record, err := p.repo.GetByID(ctx, id)
	if err != nil {
		record = &models.BacktestRecord{ID: id}
	}
	metrics.RecordBacktestJob(string(record.Kind), string(models.StatusCancelled))
	p.jobLogger.LogJobCancelled(id)
	p.publish(record, models.StatusCancelled, 0, "")
	return nil
}

// Status returns a snapshot of the pool
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var uptime float64
	if p.running {
		uptime = time.Since(p.startedAt).Seconds()
	}
	return Status{
		Running:           p.running && !p.stopping,
		ActiveJobs:        p.active,
		QueuedJobs:        p.queue.Len(),
		MaxConcurrentJobs: p.cfg.Workers,
		Workers:           p.liveWorkers,
		Uptime:            uptime,
	}
}

// RefreshMetrics updates the queue gauges and the stored record counts
func (p *Pool) RefreshMetrics(ctx context.Context) error {
	p.mu.Lock()
	p.updateGaugesLocked()
	p.mu.Unlock()

	counts, err := p.repo.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count backtests: %w", err)
	}
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	metrics.UpdateStoredBacktests(byStatus)
	return nil
}

func (p *Pool) worker(n int) {
	defer func() {
		p.mu.Lock()
		p.liveWorkers--
		p.mu.Unlock()
		p.wg.Done()
	}()

	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.stopping {
			p.cond.Wait()
		}
		if p.stopping {
			p.mu.Unlock()
			return
		}
		item := p.queue.next()
		p.active++
		p.updateGaugesLocked()
		p.mu.Unlock()

		p.process(n, item)

		p.mu.Lock()
		p.active--
		p.updateGaugesLocked()
		p.mu.Unlock()
	}
}

func (p *Pool) process(worker int, item *queueItem) {
	started := time.Now()
	err := p.repo.Transition(p.baseCtx, item.ID, models.StatusRunning, repository.StatusUpdate{At: started.UTC()})
	if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
		p.logger.WithField("backtest_id", item.ID).Debug("Skipping job that is no longer pending")
		return
	}
	if err != nil {
		p.logger.WithError(err).WithField("backtest_id", item.ID).Error("Failed to start job")
		return
	}

	record, err := p.repo.GetByID(p.baseCtx, item.ID)
	if err != nil {
		p.finish(&models.BacktestRecord{ID: item.ID, Kind: item.Kind}, started, nil, fmt.Errorf("failed to load backtest: %w", err))
		return
	}
	metrics.RecordBacktestJob(string(record.Kind), string(models.StatusRunning))
	p.jobLogger.LogJobStarted(record.ID, string(record.Kind), worker, started.Sub(item.EnqueuedAt))
	p.publish(record, models.StatusRunning, 0, "")

	p.mu.Lock()
	handler := p.handlers[record.Kind]
	p.mu.Unlock()

	ctx := p.baseCtx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.baseCtx, p.cfg.JobTimeout)
		defer cancel()
	}

	result, err := runHandler(ctx, handler, record)
	p.finish(record, started, result, err)
}

func runHandler(ctx context.Context, handler Handler, record *models.BacktestRecord) (result *Result, err error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, record.Kind)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler(ctx, record)
}

// finish stores the terminal status of a running job
func (p *Pool) finish(record *models.BacktestRecord, started time.Time, result *Result, runErr error) {
	elapsed := time.Since(started)
	seconds := elapsed.Seconds()
	kind := string(record.Kind)

	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runErr != nil {
		msg := p.failureMessage(runErr)
		update := repository.StatusUpdate{At: time.Now().UTC(), Error: &msg, ExecutionTime: &seconds}
		if err := p.repo.Transition(writeCtx, record.ID, models.StatusFailed, update); err != nil {
			p.logger.WithError(err).WithField("backtest_id", record.ID).Error("Failed to store job failure")
		}
		metrics.RecordBacktestJob(kind, string(models.StatusFailed))
		metrics.RecordBacktestDuration(kind, "", seconds)
		p.jobLogger.LogJobFailed(record.ID, kind, elapsed, runErr)
		p.publish(record, models.StatusFailed, seconds, msg)
		return
	}

	update := repository.StatusUpdate{At: time.Now().UTC(), Results: result.Results, ExecutionTime: &seconds}
	if err := p.repo.Transition(writeCtx, record.ID, models.StatusCompleted, update); err != nil {
		p.logger.WithError(err).WithField("backtest_id", record.ID).Error("Failed to store job results")
		return
	}
	metrics.RecordBacktestJob(kind, string(models.StatusCompleted))
	metrics.RecordBacktestDuration(kind, result.Strategy, seconds)
	p.jobLogger.LogJobCompleted(record.ID, kind, result.Strategy, elapsed, result.Trades)
	p.publish(record, models.StatusCompleted, seconds, "")
}

func (p *Pool) failureMessage(err error) string {
	switch {
	case p.baseCtx != nil && p.baseCtx.Err() != nil:
		return msgShutdown
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("backtest exceeded the %s time limit", p.cfg.JobTimeout)
	}
	return err.Error()
}

func (p *Pool) publish(record *models.BacktestRecord, status models.BacktestStatus, seconds float64, msg string) {
	p.mu.Lock()
	publisher := p.publisher
	p.mu.Unlock()

	publisher.Publish(Event{
		Type:          EventType(status),
		BacktestID:    record.ID,
		Kind:          record.Kind,
		Status:        status,
		ExecutionTime: seconds,
		Error:         msg,
		Timestamp:     time.Now().UTC(),
	})
}

func (p *Pool) updateGaugesLocked() {
	metrics.UpdateQueue(p.queue.Len(), p.active)
}

func itemFor(record *models.BacktestRecord) *queueItem {
	enqueued := record.CreatedAt
	if enqueued.IsZero() {
		enqueued = time.Now()
	}
	return &queueItem{
		ID:         record.ID,
		Kind:       record.Kind,
		Priority:   record.Priority,
		EnqueuedAt: enqueued,
	}
}
