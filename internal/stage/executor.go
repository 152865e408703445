// Package stage runs a single bronze, silver or gold step of a job through
// the transformation executor and gates its output on quality rules.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 2
	DefaultBackoff     = time.Second
)

// Runner is the external transformation executor.
type Runner interface {
	RunStage(ctx context.Context, req Request) (Output, error)
	// OpenOutput streams the records written under ref.
	OpenOutput(ctx context.Context, ref string) (quality.BatchReader, error)
}

type RuleSource interface {
	ListActiveRules(ctx context.Context, jobID string, stage domain.Stage) ([]domain.QualityRule, error)
}

type Gate interface {
	Evaluate(ctx context.Context, in quality.Input, reader quality.BatchReader) (quality.Verdict, error)
}

// MetricsSink records stage outcomes. All methods must be non-blocking.
type MetricsSink interface {
	StageCompleted(stage domain.Stage, outcome string, duration time.Duration)
	StageRetried(stage domain.Stage)
}

// Outcome labels for MetricsSink.StageCompleted.
const (
	OutcomeSuccess = "success"
	OutcomeBlocked = "blocked"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

type Request struct {
	Job            domain.Job
	JobExecutionID string
	Stage          domain.Stage
	// InputRef is the previous stage's output, or the ingest input for bronze.
	InputRef string
	// Proceed, when set, runs after the runner succeeds and before any rule
	// is evaluated. An error ends the stage and is returned unchanged.
	Proceed func(ctx context.Context) error
}

type Output struct {
	Ref     string
	Records int64
}

type Result struct {
	Stage       domain.Stage
	OutputRef   string
	RecordCount int64
	Verdict     quality.Verdict
	Attempts    int
}

type Executor struct {
	runner      Runner
	rules       RuleSource
	gate        Gate
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	metrics     MetricsSink // optional, nil = disabled
}

func New(runner Runner, rules RuleSource, gate Gate) *Executor {
	return &Executor{
		runner:      runner,
		rules:       rules,
		gate:        gate,
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
}

// WithTimeout bounds each call into the runner.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// WithRetry sets the total attempts per stage and the pause between them.
func (e *Executor) WithRetry(maxAttempts int, backoff time.Duration) *Executor {
	if maxAttempts > 0 {
		e.maxAttempts = maxAttempts
	}
	if backoff < time.Millisecond {
		backoff = time.Millisecond
	}
	e.backoff = backoff
	return e
}

func (e *Executor) WithMetrics(sink MetricsSink) *Executor {
	e.metrics = sink
	return e
}

// Run executes the stage, retrying a StageExecutionError up to the configured
// attempts, then evaluates the active rules for the stage against the
// output. A blocking verdict is reported in Result, not as an error.
//
// Errors: *domain.StageExecutionError after the last attempt,
// *domain.ConfigurationError without retry, ctx.Err() when the caller
// cancelled, or a wrapped store/gate error.
func (e *Executor) Run(ctx context.Context, req Request) (Result, error) {
	res := Result{Stage: req.Stage}
	start := time.Now()

	var out Output
	backoff := retry.WithMaxRetries(uint64(e.maxAttempts-1), retry.NewConstant(e.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res.Attempts++
		if res.Attempts > 1 && e.metrics != nil {
			e.metrics.StageRetried(req.Stage)
		}
		o, err := e.call(ctx, req)
		if err == nil {
			out = o
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if domain.IsConfigurationError(err) {
			return err
		}
		log.Printf("stage: job_execution=%s stage=%s attempt=%d error: %v", req.JobExecutionID, req.Stage, res.Attempts, err)
		return retry.RetryableError(err)
	})
	if err != nil {
		e.record(req.Stage, outcomeFor(err), start)
		return res, err
	}
	res.OutputRef, res.RecordCount = out.Ref, out.Records

	if req.Proceed != nil {
		if err := req.Proceed(ctx); err != nil {
			e.record(req.Stage, OutcomeFailed, start)
			return res, err
		}
	}

	rules, err := e.rules.ListActiveRules(ctx, req.Job.ID, req.Stage)
	if err != nil {
		e.record(req.Stage, OutcomeFailed, start)
		return res, fmt.Errorf("load %s rules: %w", req.Stage, err)
	}
	if len(rules) > 0 {
		// Cancelled stages never reach the gate.
		if err := ctx.Err(); err != nil {
			return res, err
		}
		reader, err := e.runner.OpenOutput(ctx, out.Ref)
		if err != nil {
			e.record(req.Stage, OutcomeFailed, start)
			return res, &domain.StageExecutionError{Stage: req.Stage, Cause: fmt.Errorf("open output %s: %w", out.Ref, err)}
		}
		res.Verdict, err = e.gate.Evaluate(ctx, quality.Input{
			JobExecutionID: req.JobExecutionID,
			Stage:          req.Stage,
			Rules:          rules,
		}, reader)
		if closer, ok := reader.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		if err != nil {
			e.record(req.Stage, OutcomeFailed, start)
			return res, fmt.Errorf("quality gate: %w", err)
		}
	} else {
		res.Verdict = quality.Verdict{Stage: req.Stage}
	}

	if res.Verdict.Blocking() {
		e.record(req.Stage, OutcomeBlocked, start)
	} else {
		e.record(req.Stage, OutcomeSuccess, start)
	}
	return res, nil
}

// call makes one bounded attempt. A deadline hit by the per-call timeout,
// not the caller, is reported as a timeout.
func (e *Executor) call(ctx context.Context, req Request) (Output, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.runner.RunStage(callCtx, req)
	if err == nil {
		return out, nil
	}
	if domain.IsConfigurationError(err) || ctx.Err() != nil {
		return Output{}, err
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return Output{}, &domain.StageExecutionError{Stage: req.Stage, Cause: err, Timeout: true}
	}
	var se *domain.StageExecutionError
	if errors.As(err, &se) {
		return Output{}, err
	}
	return Output{}, &domain.StageExecutionError{Stage: req.Stage, Cause: err}
}

func (e *Executor) record(stage domain.Stage, outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.StageCompleted(stage, outcome, time.Since(start))
	}
}

func outcomeFor(err error) string {
	var se *domain.StageExecutionError
	if errors.As(err, &se) && se.Timeout {
		return OutcomeTimeout
	}
	return OutcomeFailed
}
