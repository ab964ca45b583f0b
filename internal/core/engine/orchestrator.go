// Package engine runs one storefront audit end to end: collection,
// measurement, classification, grading, scoring and reporting.
package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/grader"
	"github.com/storelens/storelens/internal/core/platform"
	"github.com/storelens/storelens/internal/core/scoring"
	"github.com/storelens/storelens/internal/metrics"
)

// DefaultHTMLLimit bounds the markup sent to the grader.
const DefaultHTMLLimit = 60000

// Logger is satisfied by *zap.Logger and the gofulmen logger.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Collector produces a page capture.
type Collector interface {
	Collect(ctx context.Context, target string, hint core.Platform) (*core.Capture, error)
}

// Attempt is one entry in the ordered collection policy.
type Attempt struct {
	Name      string
	Collector Collector
	// Service is the quota key checked before the call; empty means unmetered.
	Service    string
	Timeout    time.Duration
	Sufficient func(*core.Capture) bool
}

// PerformanceAuditor measures loading metrics for a URL.
type PerformanceAuditor interface {
	Audit(ctx context.Context, target, deviceProfile string) (core.PerformanceMetrics, error)
}

// DOMAnalyzer derives markup signals from HTML.
type DOMAnalyzer interface {
	Analyze(html string) (core.MarkupSignals, error)
}

// Grader scores the ten categories from a capture.
type Grader interface {
	Grade(ctx context.Context, in grader.Input) ([]core.CategoryResult, error)
}

// Reporter renders and stores artifacts for a finished result.
type Reporter interface {
	Report(ctx context.Context, result *core.AuditResult, capture *core.Capture) ([]core.Artifact, error)
}

// Timeouts bound each external call. Zero means no bound beyond the caller's.
type Timeouts struct {
	Performance time.Duration
	Grade       time.Duration
	Report      time.Duration
}

// Orchestrator wires the collaborators of an audit. It never persists run
// status; the caller marks the run from the returned result or error.
type Orchestrator struct {
	Attempts      []Attempt
	Performance   PerformanceAuditor
	DeviceProfile string
	DOM           DOMAnalyzer
	Classifier    *platform.Classifier
	Grader        Grader
	Fallback      Grader
	Scorer        *scoring.Engine
	Reporter      Reporter
	Progress      ProgressReporter
	Limiter       *RateLimiter
	Logger        Logger
	Timeouts      Timeouts
	HTMLLimit     int
	DrainTimeout  time.Duration
	Clock         func() time.Time
}

// Run executes the audit for run.TargetURL. Cancellation of ctx is not
// observed once the run has started.
func (o *Orchestrator) Run(ctx context.Context, run core.AuditRun) (*core.AuditResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := core.NormalizeTargetURL(run.TargetURL)
	if err != nil {
		return nil, err
	}
	run.TargetURL = target

	stageCtx := context.WithoutCancel(ctx)
	log := o.logger()
	progress := newProgressDispatcher(o.Progress, run.ID, log)
	defer progress.Close(o.DrainTimeout)

	var degraded []string
	degrade := func(stage string, err error) {
		degraded = append(degraded, stage)
		metrics.RecordStageDegraded(stage)
		log.Warn("stage degraded", zap.String("run_id", run.ID), zap.String("stage", stage), zap.Error(err))
	}

	progress.Send(ProgressCollecting, "collecting page")
	hint := o.classifier().Classify(platform.Input{URL: target}).Platform
	stageStart := time.Now()
	capture, err := o.collect(stageCtx, target, hint, degrade)
	metrics.RecordStageDuration("collect", time.Since(stageStart))
	if err != nil {
		return nil, err
	}

	progress.Send(ProgressMeasuring, "measuring performance and markup")
	stageStart = time.Now()
	perf, markup := o.measure(stageCtx, target, capture, degrade)
	metrics.RecordStageDuration("measure", time.Since(stageStart))

	progress.Send(ProgressClassified, "detecting platform")
	detection := o.classifier().Classify(platform.Input{
		URL:          firstNonEmpty(capture.FinalURL, target),
		HTML:         capture.HTML,
		ResourceURLs: capture.Links,
		Headers:      http.Header(capture.Headers),
		Cookies:      capture.Cookies,
	})
	metrics.RecordPlatform(string(detection.Platform))
	log.Debug("platform classified",
		zap.String("run_id", run.ID),
		zap.String("platform", string(detection.Platform)),
		zap.Float64("confidence", detection.Confidence))

	progress.Send(ProgressGrading, "grading first view")
	stageStart = time.Now()
	graded := o.grade(stageCtx, grader.Input{
		URL:        target,
		HTML:       truncateHTML(capture.HTML, o.htmlLimit()),
		Platform:   detection.Platform,
		Screenshot: capture.Screenshot,
		FlowShots:  capture.ActionShots,
	}, degrade)
	metrics.RecordStageDuration("grade", time.Since(stageStart))

	progress.Send(ProgressScoring, "scoring")
	flow := flowSteps(capture.ActionShots)
	scored := o.scorer().Score(scoring.InjectMeasurements(graded, scoring.Measurements{
		Performance:  perf,
		Markup:       markup,
		PurchaseFlow: flow,
	}))
	if err := scored.Validate(); err != nil {
		return nil, err
	}

	now := o.now()
	total := scored.TotalScore
	run.Status = core.StatusCompleted
	run.Progress = ProgressCompleted
	run.TotalScore = &total
	run.Platform = detection.Platform
	result := &core.AuditResult{
		Run:          run,
		Categories:   scored.Categories,
		Improvements: scored.Improvements,
		Platform:     detection,
		PurchaseFlow: flow,
		GeneratedAt:  now,
		Degraded:     degraded,
	}

	if o.Reporter != nil {
		reportCtx, cancel := withTimeout(stageCtx, o.Timeouts.Report)
		artifacts, err := o.Reporter.Report(reportCtx, result, capture)
		cancel()
		if err != nil {
			degrade("report", err)
		}
		result.Artifacts = artifacts
	}
	result.Degraded = degraded

	progress.Send(ProgressCompleted, "completed")
	log.Info("audit completed",
		zap.String("run_id", run.ID),
		zap.String("target", target),
		zap.Int("total_score", total),
		zap.Strings("degraded", degraded))
	return result, nil
}

// collect walks the attempt table. The first sufficient capture wins;
// otherwise the richest usable partial capture is kept.
func (o *Orchestrator) collect(ctx context.Context, target string, hint core.Platform, degrade func(string, error)) (*core.Capture, error) {
	var (
		best     *core.Capture
		attempts []error
	)
	for _, attempt := range o.Attempts {
		if attempt.Collector == nil {
			continue
		}
		capture, err := o.runAttempt(ctx, attempt, target, hint)
		sufficient := capture.Usable() && (attempt.Sufficient == nil || attempt.Sufficient(capture))
		if sufficient {
			if err != nil {
				degrade(attempt.Name, err)
			}
			return capture, nil
		}
		if err == nil {
			err = errors.New("insufficient capture")
		}
		degrade(attempt.Name, err)
		attempts = append(attempts, err)
		if capture.Usable() && richness(capture) > richness(best) {
			best = capture
		}
	}
	if best != nil {
		return best, nil
	}
	return nil, core.NewFatalError("collect", "target could not be collected", errors.Join(attempts...))
}

func (o *Orchestrator) runAttempt(ctx context.Context, attempt Attempt, target string, hint core.Platform) (*core.Capture, error) {
	if err := o.admit(ctx, attempt.Service); err != nil {
		return nil, err
	}
	attemptCtx, cancel := withTimeout(ctx, attempt.Timeout)
	defer cancel()
	capture, err := attempt.Collector.Collect(attemptCtx, target, hint)
	o.observe(ctx, attempt.Service, err)
	return capture, err
}

// measure runs the performance audit and DOM heuristics concurrently.
func (o *Orchestrator) measure(ctx context.Context, target string, capture *core.Capture, degrade func(string, error)) (core.PerformanceMetrics, *core.MarkupSignals) {
	var (
		wg        sync.WaitGroup
		perf      core.PerformanceMetrics
		perfErr   error
		markup    *core.MarkupSignals
		markupErr error
	)

	if o.Performance != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if perfErr = o.admit(ctx, ServicePageSpeed); perfErr != nil {
				return
			}
			auditCtx, cancel := withTimeout(ctx, o.Timeouts.Performance)
			defer cancel()
			perf, perfErr = o.Performance.Audit(auditCtx, target, o.DeviceProfile)
			o.observe(ctx, ServicePageSpeed, perfErr)
		}()
	}

	if o.DOM != nil && strings.TrimSpace(capture.HTML) != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			signals, err := o.DOM.Analyze(capture.HTML)
			if err != nil {
				markupErr = err
				return
			}
			markup = &signals
		}()
	}

	wg.Wait()

	if perfErr != nil {
		degrade("performance", perfErr)
		perf = core.PerformanceMetrics{}
	}
	if markupErr != nil {
		degrade("dom", markupErr)
	}
	return perf, markup
}

// grade asks the configured grader and falls back to the mock grader.
func (o *Orchestrator) grade(ctx context.Context, in grader.Input, degrade func(string, error)) []core.CategoryResult {
	if o.Grader != nil {
		results, err := o.gradeWith(ctx, in)
		if err == nil {
			return results
		}
		degrade("grade", err)
	} else {
		degrade("grade", errors.New("no grader configured"))
	}

	fallback := o.Fallback
	if fallback == nil {
		fallback = grader.MockGrader{}
	}
	results, err := fallback.Grade(ctx, in)
	if err != nil {
		// Scoring still yields ten rule or gated results.
		degrade("grade_fallback", err)
		return nil
	}
	return results
}

func (o *Orchestrator) gradeWith(ctx context.Context, in grader.Input) ([]core.CategoryResult, error) {
	if err := o.admit(ctx, ServiceGrader); err != nil {
		return nil, err
	}
	gradeCtx, cancel := withTimeout(ctx, o.Timeouts.Grade)
	defer cancel()
	results, err := o.Grader.Grade(gradeCtx, in)
	o.observe(ctx, ServiceGrader, err)
	return results, err
}

// admit checks the quota for service. Store errors do not block the call.
func (o *Orchestrator) admit(ctx context.Context, service string) error {
	if o.Limiter == nil || service == "" {
		return nil
	}
	allowed, wait, err := o.Limiter.Allow(ctx, service)
	if err != nil {
		o.logger().Warn("rate limit lookup failed", zap.String("service", service), zap.Error(err))
		return nil
	}
	if !allowed {
		return &QuotaError{Service: service, Wait: wait}
	}
	return nil
}

// throttler is implemented by collaborator errors that carry a 429 answer.
type throttler interface {
	Throttle() (time.Duration, bool)
}

// observe records a finished call and any throttling answer.
func (o *Orchestrator) observe(ctx context.Context, service string, callErr error) {
	if o.Limiter == nil || service == "" {
		return
	}
	if err := o.Limiter.Record(ctx, service); err != nil {
		o.logger().Warn("rate limit record failed", zap.String("service", service), zap.Error(err))
	}
	var throttled throttler
	if !errors.As(callErr, &throttled) {
		return
	}
	if wait, ok := throttled.Throttle(); ok {
		if err := o.Limiter.RecordThrottled(ctx, service, wait); err != nil {
			o.logger().Warn("rate limit backoff failed", zap.String("service", service), zap.Error(err))
		}
	}
}

func (o *Orchestrator) classifier() *platform.Classifier {
	if o.Classifier != nil {
		return o.Classifier
	}
	return platform.NewClassifier(platform.DefaultRules())
}

func (o *Orchestrator) scorer() *scoring.Engine {
	if o.Scorer != nil {
		return o.Scorer
	}
	return scoring.NewEngine(scoring.DefaultRuleConfig(), nil)
}

func (o *Orchestrator) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Orchestrator) htmlLimit() int {
	if o.HTMLLimit > 0 {
		return o.HTMLLimit
	}
	return DefaultHTMLLimit
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// richness ranks partial captures: a screenshot outweighs markup.
func richness(c *core.Capture) int {
	if c == nil {
		return 0
	}
	score := 0
	if len(c.Screenshot) > 0 {
		score += 2
	}
	if strings.TrimSpace(c.HTML) != "" {
		score++
	}
	return score
}

// truncateHTML cuts markup to at most limit bytes on a rune boundary.
func truncateHTML(doc string, limit int) string {
	if limit <= 0 || len(doc) <= limit {
		return doc
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(doc[cut]) {
		cut--
	}
	return doc[:cut]
}

func flowSteps(shots []core.ActionShot) []core.FlowStep {
	if len(shots) == 0 {
		return nil
	}
	steps := make([]core.FlowStep, 0, len(shots))
	for _, s := range shots {
		steps = append(steps, core.FlowStep{Name: s.Name, URL: s.URL, Success: s.Success})
	}
	return steps
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
