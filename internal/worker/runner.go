// Package worker drains pending audit runs from the store with a fixed pool
// of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/metrics"
)

const (
	DefaultWorkers      = 2
	DefaultPollInterval = 2 * time.Second
)

// ErrStopped is returned by Start on a runner that was already stopped.
var ErrStopped = errors.New("worker runner stopped")

// Logger is the logging surface used by the runner.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// RunStore persists run state transitions.
type RunStore interface {
	ClaimNextPending(ctx context.Context) (*core.AuditRun, error)
	MarkCompleted(ctx context.Context, result *core.AuditResult) error
	MarkFailed(ctx context.Context, id, message string) error
}

// Auditor executes one audit.
type Auditor interface {
	Run(ctx context.Context, run core.AuditRun) (*core.AuditResult, error)
}

// Notifier is told about every terminal run.
type Notifier interface {
	NotifyStatus(ctx context.Context, run core.AuditRun) error
}

// Runner polls the store for pending runs and executes them.
type Runner struct {
	Store        RunStore
	Auditor      Auditor
	Workers      int
	PollInterval time.Duration
	Notifier     Notifier
	Logger       Logger

	mu       sync.Mutex
	started  bool
	closing  *atomic.Bool
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// Start launches the worker goroutines and returns immediately.
func (r *Runner) Start(ctx context.Context) error {
	if r.Store == nil || r.Auditor == nil {
		return errors.New("worker runner requires a store and an auditor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		if r.closing.Load() {
			return ErrStopped
		}
		return nil
	}
	r.started = true
	r.closing = atomic.NewBool(false)
	r.shutdown = make(chan struct{})

	workers := r.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	for i := range workers {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			r.loop(ctx, id)
		}(i)
	}
	r.logger().Info("worker pool started", zap.Int("workers", workers), zap.Duration("poll_interval", r.pollInterval()))
	return nil
}

// Stop signals the workers and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	closing, shutdown := r.closing, r.shutdown
	r.mu.Unlock()

	if closing.CAS(false, true) {
		close(shutdown)
	}
	r.wg.Wait()
	r.logger().Info("worker pool stopped")
}

func (r *Runner) loop(ctx context.Context, id int) {
	log := r.logger()
	for !r.closing.Load() {
		if ctx.Err() != nil {
			return
		}
		run, err := r.Store.ClaimNextPending(ctx)
		if err != nil {
			log.Warn("claim pending run failed", zap.Int("worker", id), zap.Error(err))
		}
		if run != nil {
			_, _ = r.Execute(ctx, *run)
			continue
		}
		if !r.wait(ctx) {
			return
		}
	}
}

func (r *Runner) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.pollInterval())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-r.shutdown:
		return false
	case <-timer.C:
		return true
	}
}

// Execute runs one audit and records its terminal state. It is also used
// directly by the CLI for synchronous audits.
func (r *Runner) Execute(ctx context.Context, run core.AuditRun) (*core.AuditResult, error) {
	log := r.logger()
	persistCtx := context.WithoutCancel(ctx)

	if r.Store == nil && run.StartedAt == nil {
		started := time.Now()
		run.StartedAt = &started
	}
	result, err := r.Auditor.Run(ctx, run)
	if err != nil {
		run.Status = core.StatusFailed
		run.Error = core.PublicMessage(err)
		if r.Store != nil {
			if markErr := r.Store.MarkFailed(persistCtx, run.ID, run.Error); markErr != nil {
				log.Error("mark run failed", zap.String("run_id", run.ID), zap.Error(markErr))
			}
		}
		log.Warn("audit failed", zap.String("run_id", run.ID), zap.String("target", run.TargetURL), zap.Error(err))
		metrics.RecordAuditOutcome(string(core.StatusFailed))
		r.notify(persistCtx, run)
		return nil, err
	}

	if r.Store != nil {
		if err := r.Store.MarkCompleted(persistCtx, result); err != nil {
			log.Error("mark run completed", zap.String("run_id", run.ID), zap.Error(err))
			return result, err
		}
	} else {
		finishUnstored(&result.Run)
	}
	metrics.RecordAuditOutcome(string(core.StatusCompleted))
	r.notify(persistCtx, result.Run)
	return result, nil
}

// finishUnstored stamps what MarkCompleted would for a run with no store.
func finishUnstored(run *core.AuditRun) {
	finished := time.Now()
	run.Status = core.StatusCompleted
	run.FinishedAt = &finished
	if run.StartedAt != nil {
		run.Elapsed = finished.Sub(*run.StartedAt)
	}
}

func (r *Runner) notify(ctx context.Context, run core.AuditRun) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.NotifyStatus(ctx, run); err != nil {
		r.logger().Warn("status notification failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

func (r *Runner) logger() Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
