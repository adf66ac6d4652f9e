package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gradloop/taskwell/internal/platform/logger"
	"github.com/gradloop/taskwell/internal/redact"
)

// WorkerPoolConfig holds configuration for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent workers poll for tasks.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// Queues lists the queues this pool services, in priority order:
	// each poll offers the first queue with an eligible task. Dedicated
	// queues per concern keep a backlog in one from starving another.
	Queues []string

	// PollInterval is how long a worker sleeps after finding no eligible
	// task. If zero, defaults to one second.
	PollInterval time.Duration

	// StoreErrorBackoff is how long a worker pauses after a store-level
	// dequeue error, independent of task-level retry logic. If zero,
	// defaults to five seconds.
	StoreErrorBackoff time.Duration

	// StuckTaskAge defines how long a task can sit in processing state
	// before it is considered abandoned and reset. If zero, defaults to
	// 30 minutes.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks.
	// If zero, defaults to 5 minutes.
	StuckTaskCheckInterval time.Duration

	// GuardFailureMode decides fail-open vs fail-closed when the
	// idempotency guard's backing store is unreachable.
	GuardFailureMode GuardFailureMode

	// GuardDefaultTTL is the suppression window Execution.AcquireOnce
	// applies when the handler does not choose its own. If zero, defaults
	// to one hour.
	GuardDefaultTTL time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:            2,
		PollInterval:           time.Second,
		StoreErrorBackoff:      5 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
		GuardFailureMode:       FailOpen,
		GuardDefaultTTL:        time.Hour,
	}
}

func (c WorkerPoolConfig) withDefaults(logger *slog.Logger) WorkerPoolConfig {
	if c.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", c.WorkerCount,
			"default_count", 1)
		c.WorkerCount = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StoreErrorBackoff <= 0 {
		c.StoreErrorBackoff = 5 * time.Second
	}
	if c.StuckTaskAge <= 0 {
		c.StuckTaskAge = 30 * time.Minute
	}
	if c.StuckTaskCheckInterval <= 0 {
		c.StuckTaskCheckInterval = 5 * time.Minute
	}
	if c.GuardFailureMode == "" {
		c.GuardFailureMode = FailOpen
	}
	if c.GuardDefaultTTL <= 0 {
		c.GuardDefaultTTL = time.Hour
	}
	return c
}

// WorkerPool runs concurrent workers that claim tasks from the store,
// execute their handlers under a per-attempt timeout, and route the
// typed result through the retry policy. Handler failures of any kind
// never escape a worker; only store-level errors pause polling.
type WorkerPool struct {
	store    Store
	registry *Registry
	reporter FailureReporter
	binder   TenantBinder
	guard    *GuardedAcquirer
	enqueuer FollowUpEnqueuer
	config   WorkerPoolConfig
	logger   *slog.Logger
	clock    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWorkerPool creates a worker pool. The guard may be nil when no
// idempotency backing store is configured; handlers then see every
// delivery as the first.
func NewWorkerPool(
	store Store,
	registry *Registry,
	reporter FailureReporter,
	binder TenantBinder,
	guard Guard,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	config = config.withDefaults(logger)
	if binder == nil {
		binder = NopTenantBinder()
	}
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}

	var acquirer *GuardedAcquirer
	if guard != nil {
		acquirer = NewGuardedAcquirer(guard, config.GuardFailureMode, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		store:    store,
		registry: registry,
		reporter: reporter,
		binder:   binder,
		guard:    acquirer,
		config:   config,
		logger:   logger.With("component", "worker_pool"),
		clock:    time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetEnqueuer wires the enqueuer handed to handlers for follow-up
// fan-out. Wired after construction because the Enqueuer itself needs
// the registry the pool validates against.
func (p *WorkerPool) SetEnqueuer(e FollowUpEnqueuer) {
	p.enqueuer = e
}

// SetClock replaces the time source. Test hook.
func (p *WorkerPool) SetClock(clock func() time.Time) {
	p.clock = clock
}

// Start recovers stuck tasks and launches the worker goroutines and the
// stuck-task monitor.
func (p *WorkerPool) Start() error {
	var startErr error
	p.startOnce.Do(func() {
		reset, err := p.store.ResetStuck(p.ctx, p.config.StuckTaskAge)
		if err != nil {
			startErr = fmt.Errorf("failed to recover stuck tasks: %w", err)
			return
		}
		if reset > 0 {
			p.logger.Info("recovered stuck tasks on startup", "count", reset)
		}

		for i := 0; i < p.config.WorkerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}

		p.wg.Add(1)
		go p.stuckTaskMonitor()

		p.logger.Info("worker pool started",
			"worker_count", p.config.WorkerCount,
			"queues", p.config.Queues)
	})
	return startErr
}

// Stop cancels in-flight attempts and waits for all workers to exit.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// worker polls the store for eligible tasks until the pool shuts down.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	log.Debug("starting worker")
	ctx := logger.WithLogger(p.ctx, log)

	for {
		select {
		case <-p.ctx.Done():
			log.Debug("stopping worker")
			return
		default:
		}

		t, err := p.store.Dequeue(ctx, p.config.Queues)
		switch {
		case err == nil:
			p.processTask(t, id)
		case errors.Is(err, ErrNoTask):
			p.sleep(p.config.PollInterval)
		case errors.Is(err, context.Canceled):
			// Shutdown races the in-flight poll.
		default:
			log.Error("failed to dequeue task", "error", err)
			p.sleep(p.config.StoreErrorBackoff)
		}
	}
}

func (p *WorkerPool) sleep(d time.Duration) {
	select {
	case <-p.ctx.Done():
	case <-time.After(d):
	}
}

// processTask runs one execution attempt and applies the retry verdict.
// The task arrives already claimed, with Attempt reflecting this
// attempt.
func (p *WorkerPool) processTask(t *Task, workerID int) {
	traceID := newTraceID()
	log := p.logger.With(
		"task_id", t.ID,
		"queue", t.Queue,
		"handler", t.Handler,
		"attempt", t.Attempt,
		"trace_id", traceID,
		"worker_id", workerID,
	)

	started := p.clock()
	res := p.executeAttempt(t, traceID, log)
	duration := p.clock().Sub(started)

	log.Info("task attempt finished",
		"outcome", res.Outcome.String(),
		"duration_ms", duration.Milliseconds(),
		"tags", t.Tags)

	verdict := Decide(p.clock(), t, res)
	// Store calls run off the pool context so a shutdown mid-verdict
	// cannot lose the outcome; the scoped logger rides along for
	// store-level logging.
	ctx := logger.WithLogger(context.Background(), log)

	switch verdict.Decision {
	case DecisionComplete:
		if res.Outcome == OutcomeSkipped {
			log.Info("task skipped", "reason", res.Reason)
		}
		if err := p.store.MarkCompleted(ctx, t.ID); err != nil {
			log.Error("failed to mark task completed", "error", err)
		}

	case DecisionRetry:
		note := redact.Error(verdict.Err)
		if err := p.store.Reschedule(ctx, t.ID, verdict.AvailableAt, note); err != nil {
			log.Error("failed to reschedule task", "error", err)
			return
		}
		p.reporter.ReportTransient(ctx, t, verdict.Err, verdict.AvailableAt)

	case DecisionFail:
		note := redact.Error(verdict.Err)
		if err := p.store.MarkFailed(ctx, t.ID, note); err != nil {
			log.Error("failed to mark task failed", "error", err)
		}
		p.reporter.ReportPermanent(ctx, t, verdict.Err)
		p.compensate(t, traceID, verdict.Err, log)
	}
}

// executeAttempt binds tenant scope, resolves the handler, and runs it
// under the attempt timeout. Panics and timeouts surface as transient
// failures; an unknown handler reference is permanent.
func (p *WorkerPool) executeAttempt(t *Task, traceID string, log *slog.Logger) Result {
	handler, err := p.registry.Resolve(t.Handler)
	if err != nil {
		return Fail(err)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	ctx, err = p.binder.Bind(ctx, t.TenantID)
	if err != nil {
		return Retry(fmt.Errorf("failed to bind tenant %q: %w", t.TenantID, err))
	}

	exec := &Execution{
		Task:      t,
		Attempt:   t.Attempt,
		TenantID:  t.TenantID,
		TraceID:   traceID,
		Logger:    log,
		guard:     p.guard,
		guardTTL:  p.config.GuardDefaultTTL,
		enqueuer:  p.enqueuer,
		startedAt: p.clock(),
		clock:     p.clock,
	}

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Retry(fmt.Errorf("handler panicked: %v", r))
			}
		}()
		done <- handler.Handle(ctx, exec)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		// The attempt is abandoned: the handler goroutine sees the
		// cancelled context and unwinds on its own. Whether its side
		// effects landed is ambiguous, which is exactly what the
		// idempotency guard exists for.
		return Retry(fmt.Errorf("attempt timed out after %s: %w", timeout, ctx.Err()))
	}
}

// compensate invokes the handler's OnPermanentFailure hook, if any, so
// the owning domain entity ends up observably failed rather than just a
// log line.
func (p *WorkerPool) compensate(t *Task, traceID string, cause error, log *slog.Logger) {
	handler, err := p.registry.Resolve(t.Handler)
	if err != nil {
		return
	}
	hook, ok := handler.(PermanentFailureHandler)
	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("permanent-failure hook panicked", "panic", r)
		}
	}()

	exec := &Execution{
		Task:      t,
		Attempt:   t.Attempt,
		TenantID:  t.TenantID,
		TraceID:   traceID,
		Logger:    log,
		guard:     p.guard,
		guardTTL:  p.config.GuardDefaultTTL,
		enqueuer:  p.enqueuer,
		startedAt: p.clock(),
		clock:     p.clock,
	}
	hook.OnPermanentFailure(logger.WithLogger(context.Background(), log), exec, cause)
}

// stuckTaskMonitor periodically resets tasks stranded in processing
// state, e.g. after a worker crash mid-attempt.
func (p *WorkerPool) stuckTaskMonitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			reset, err := p.store.ResetStuck(context.Background(), p.config.StuckTaskAge)
			if err != nil {
				p.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}
			if reset > 0 {
				p.logger.Info("reset stuck tasks", "count", reset)
			}
		}
	}
}
