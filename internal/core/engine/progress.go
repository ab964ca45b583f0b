package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Progress milestones reported by Run.
const (
	ProgressCollecting = 10
	ProgressMeasuring  = 30
	ProgressClassified = 50
	ProgressGrading    = 70
	ProgressScoring    = 80
	ProgressCompleted  = 100
)

const (
	progressBuffer       = 16
	defaultDrainTimeout  = 2 * time.Second
	progressWriteTimeout = 5 * time.Second
)

// ProgressReporter persists or publishes a progress update.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, runID string, percent int, message string) error
}

// MultiProgress fans an update out to every reporter and joins their errors.
type MultiProgress []ProgressReporter

// ReportProgress implements ProgressReporter.
func (m MultiProgress) ReportProgress(ctx context.Context, runID string, percent int, message string) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.ReportProgress(ctx, runID, percent, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type progressUpdate struct {
	percent int
	message string
}

// progressDispatcher delivers updates for one run in order on a single
// goroutine so the pipeline never waits on a slow reporter. Updates that
// would move progress backwards are dropped.
type progressDispatcher struct {
	reporter ProgressReporter
	runID    string
	logger   Logger

	mu     sync.Mutex
	last   int
	closed bool
	ch     chan progressUpdate
	done   chan struct{}
}

func newProgressDispatcher(reporter ProgressReporter, runID string, logger Logger) *progressDispatcher {
	d := &progressDispatcher{
		reporter: reporter,
		runID:    runID,
		logger:   logger,
		last:     -1,
		ch:       make(chan progressUpdate, progressBuffer),
		done:     make(chan struct{}),
	}
	go d.loop()
	return d
}

// Send queues an update. When the buffer is full the update is dropped.
func (d *progressDispatcher) Send(percent int, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || percent <= d.last {
		return
	}
	d.last = percent
	select {
	case d.ch <- progressUpdate{percent: percent, message: message}:
	default:
		d.logger.Warn("progress update dropped", zap.String("run_id", d.runID), zap.Int("percent", percent))
	}
}

// Close stops accepting updates and waits up to timeout for queued ones.
func (d *progressDispatcher) Close(timeout time.Duration) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	if timeout <= 0 {
		timeout = defaultDrainTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.done:
	case <-timer.C:
		d.logger.Warn("progress drain timed out", zap.String("run_id", d.runID))
	}
}

func (d *progressDispatcher) loop() {
	defer close(d.done)
	for update := range d.ch {
		if d.reporter == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), progressWriteTimeout)
		err := d.reporter.ReportProgress(ctx, d.runID, update.percent, update.message)
		cancel()
		if err != nil {
			d.logger.Warn("progress report failed",
				zap.String("run_id", d.runID),
				zap.Int("percent", update.percent),
				zap.Error(err))
		}
	}
}
