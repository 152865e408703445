// Package engine runs workflow executions: every job moves through bronze,
// silver and gold, gated by quality rules, and the execution status is
// derived from the job outcomes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/stage"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

const DefaultMaxParallelJobs = 4

// errNotPending aborts a claim on an execution another worker already took.
var errNotPending = errors.New("execution is not pending")

type Store interface {
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error
	GetJob(ctx context.Context, id string) (domain.Job, error)
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)

	InsertExecution(ctx context.Context, exec domain.Execution) error
	GetExecution(ctx context.Context, id string) (domain.Execution, error)
	UpdateExecution(ctx context.Context, id string, mutate store.ExecutionMutation) (domain.Execution, error)

	InsertJobExecution(ctx context.Context, je domain.JobExecution) error
	GetJobExecution(ctx context.Context, id string) (domain.JobExecution, error)
	ListJobExecutions(ctx context.Context, executionID string) ([]domain.JobExecution, error)
	UpdateJobExecution(ctx context.Context, id string, mutate store.JobExecutionMutation) (domain.JobExecution, error)

	FindProcessedFile(ctx context.Context, sourceID, contentHash string) (domain.FileProcessingLog, bool, error)
	InsertFileLog(ctx context.Context, f domain.FileProcessingLog) error
	CompleteFileLog(ctx context.Context, id string, status domain.FileStatus, records int64, at time.Time) error
}

type StageRunner interface {
	Run(ctx context.Context, req stage.Request) (stage.Result, error)
}

// CompletionEmitter publishes terminal executions for dependency cascades.
type CompletionEmitter interface {
	Emit(ctx context.Context, event domain.CompletionEvent) error
}

// AnalyticsSink records processed volumes. Best effort, never blocks a run.
type AnalyticsSink interface {
	RecordStage(ctx context.Context, workflowID string, stage domain.Stage, records int64)
	RecordExecution(ctx context.Context, workflowID string, status domain.ExecutionStatus)
}

// MetricsSink records engine metrics. All methods must be non-blocking.
type MetricsSink interface {
	ExecutionFinished(status domain.ExecutionStatus, duration time.Duration)
	JobExecutionFinished(status domain.JobExecutionStatus)
	ExecutionsInFlightIncr()
	ExecutionsInFlightDecr()
}

type Engine struct {
	store       Store
	stages      StageRunner
	completions CompletionEmitter // optional, nil = no cascades
	analytics   AnalyticsSink     // optional, nil = disabled
	metrics     MetricsSink       // optional, nil = disabled
	maxParallel int
	now         func() time.Time

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(store Store, stages StageRunner) *Engine {
	return &Engine{
		store:       store,
		stages:      stages,
		maxParallel: DefaultMaxParallelJobs,
		now:         func() time.Time { return time.Now().UTC() },
		running:     make(map[string]context.CancelFunc),
	}
}

func (e *Engine) WithCompletions(c CompletionEmitter) *Engine {
	e.completions = c
	return e
}

func (e *Engine) WithAnalytics(sink AnalyticsSink) *Engine {
	e.analytics = sink
	return e
}

func (e *Engine) WithMetrics(sink MetricsSink) *Engine {
	e.metrics = sink
	return e
}

// WithMaxParallelJobs bounds how many jobs of one execution run at once.
func (e *Engine) WithMaxParallelJobs(n int) *Engine {
	if n > 0 {
		e.maxParallel = n
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = func() time.Time { return now().UTC() }
	return e
}

// Run claims a pending execution and drives it to a terminal state. An
// execution that is no longer pending was claimed elsewhere and is skipped,
// which makes redelivered run requests harmless.
func (e *Engine) Run(ctx context.Context, executionID string) error {
	startedAt := e.now()
	exec, err := e.store.UpdateExecution(ctx, executionID, func(x *domain.Execution) error {
		if x.Status != domain.ExecutionStatusPending {
			return errNotPending
		}
		x.Status = domain.ExecutionStatusRunning
		x.StartedAt = &startedAt
		return nil
	})
	if errors.Is(err, errNotPending) {
		log.Printf("engine: execution=%s already claimed, skipping", executionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim execution %s: %w", executionID, err)
	}

	if e.metrics != nil {
		e.metrics.ExecutionsInFlightIncr()
		defer e.metrics.ExecutionsInFlightDecr()
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.track(exec.ID, cancel)
	defer e.untrack(exec.ID)

	runs, mode, err := e.prepare(runCtx, exec)
	if err != nil {
		log.Printf("engine: execution=%s prepare failed: %v", exec.ID, err)
		for _, jr := range runs {
			jr.fail(ctx, "", fmt.Sprintf("execution could not start: %v", err))
		}
		_, ferr := e.finalizeAs(context.WithoutCancel(ctx), exec.ID, domain.ExecutionStatusFailed)
		return errors.Join(err, ferr)
	}

	log.Printf("engine: execution=%s workflow=%s started jobs=%d mode=%s", exec.ID, exec.WorkflowID, len(runs), mode)
	if err := e.store.SetWorkflowStatus(runCtx, exec.WorkflowID, domain.WorkflowStatusRunning); err != nil {
		log.Printf("engine: workflow=%s set running: %v", exec.WorkflowID, err)
	}

	if mode == domain.WorkflowModeLayerCentric {
		e.runLayerCentric(runCtx, runs)
	} else {
		e.runSourceCentric(runCtx, runs)
	}

	_, err = e.Finalize(context.WithoutCancel(ctx), exec.ID)
	return err
}

// prepare loads the jobs in scope and creates a pending JobExecution each.
// On error it still returns the runs whose rows were already inserted.
func (e *Engine) prepare(ctx context.Context, exec domain.Execution) ([]*jobRun, domain.WorkflowMode, error) {
	wf, err := e.store.GetWorkflow(ctx, exec.WorkflowID)
	if err != nil {
		return nil, "", fmt.Errorf("load workflow: %w", err)
	}

	var jobs []domain.Job
	for _, job := range wf.Jobs {
		if exec.ScopeJobID != "" && job.ID != exec.ScopeJobID {
			continue
		}
		if job.Status == domain.JobStatusDisabled && exec.ScopeJobID == "" {
			continue
		}
		jobs = append(jobs, job)
	}
	if exec.ScopeJobID != "" && len(jobs) == 0 {
		return nil, "", fmt.Errorf("job %s: %w", exec.ScopeJobID, store.ErrNotFound)
	}

	now := e.now()
	runs := make([]*jobRun, 0, len(jobs))
	for _, job := range jobs {
		je := domain.JobExecution{
			ID:          uuid.NewString(),
			ExecutionID: exec.ID,
			JobID:       job.ID,
			Status:      domain.JobExecutionStatusPending,
			UpdatedAt:   now,
		}
		je.Logf(now, fmt.Sprintf("queued job %q", job.Name))
		if err := e.store.InsertJobExecution(ctx, je); err != nil {
			return runs, "", fmt.Errorf("create job execution for %s: %w", job.ID, err)
		}
		runs = append(runs, e.newJobRun(exec, job, je.ID))
	}
	return runs, wf.Mode, nil
}

// runSourceCentric runs every job's full pipeline independently. A failing
// job never stops its siblings.
func (e *Engine) runSourceCentric(ctx context.Context, runs []*jobRun) {
	var g errgroup.Group
	g.SetLimit(e.maxParallel)
	for _, jr := range runs {
		g.Go(func() error {
			for _, st := range domain.Stages {
				if !e.runStage(ctx, jr, st) {
					return nil
				}
			}
			jr.complete(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// runLayerCentric finishes each stage across all jobs before any job moves
// on. One job failing a stage stops every sibling at that barrier.
func (e *Engine) runLayerCentric(ctx context.Context, runs []*jobRun) {
	for _, st := range domain.Stages {
		var (
			mu      sync.Mutex
			blocked []*jobRun
		)
		var g errgroup.Group
		g.SetLimit(e.maxParallel)
		for _, jr := range runs {
			g.Go(func() error {
				if !e.runStage(ctx, jr, st) {
					mu.Lock()
					blocked = append(blocked, jr)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(blocked) == 0 {
			continue
		}
		if ctx.Err() != nil {
			for _, jr := range runs {
				jr.cancel(ctx)
			}
			return
		}
		blocker := blocked[0]
		cause := "failed"
		if blocker.closed {
			cause = "was closed at"
		}
		for _, jr := range runs {
			jr.fail(ctx, st, fmt.Sprintf("stage %s barrier not met: job %q %s stage %s", st, blocker.job.Name, cause, st))
		}
		return
	}
	for _, jr := range runs {
		jr.complete(ctx)
	}
}

// runStage runs one stage for one job and reports whether the job may
// advance. Every non-advancing path leaves the job in a terminal state.
func (e *Engine) runStage(ctx context.Context, jr *jobRun, st domain.Stage) bool {
	if ctx.Err() != nil {
		jr.cancel(ctx)
		return false
	}
	if err := jr.fsm.FireCtx(ctx, triggerAdvance); err != nil {
		if errors.Is(err, errJobClosed) {
			jr.detach(st)
			return false
		}
		log.Printf("engine: job_execution=%s enter %s: %v", jr.jeID, st, err)
		jr.fail(ctx, st, fmt.Sprintf("stage %s could not start: %v", st, err))
		return false
	}

	res, err := e.stages.Run(ctx, stage.Request{
		Job:            jr.job,
		JobExecutionID: jr.jeID,
		Stage:          st,
		InputRef:       jr.input,
		Proceed:        jr.checkOpen,
	})
	if err != nil {
		if errors.Is(err, errJobClosed) {
			jr.detach(st)
			return false
		}
		if ctx.Err() != nil {
			jr.cancel(ctx)
			return false
		}
		jr.fail(ctx, st, fmt.Sprintf("stage %s failed: %v", st, err))
		return false
	}

	blocking := res.Verdict.Blocking()
	now := e.now()
	err = jr.update(context.WithoutCancel(ctx), func(je *domain.JobExecution) {
		if len(res.Verdict.RuleExecutions) > 0 {
			je.ValidationResults = append(je.ValidationResults, res.Verdict.Validation())
			je.QuarantinedRecords += res.Verdict.Quarantined
		}
		if n := res.Verdict.Warnings; n > 0 {
			je.Logf(now, fmt.Sprintf("stage %s: %d warning rule(s) did not pass", st, n))
		}
		if !blocking {
			je.RecordStage(st, res.OutputRef, res.RecordCount)
			je.Logf(now, fmt.Sprintf("stage %s completed: %d records", st, res.RecordCount))
		}
	})
	if errors.Is(err, errJobClosed) {
		jr.detach(st)
		return false
	}
	if err != nil {
		jr.fail(ctx, st, fmt.Sprintf("stage %s: record result: %v", st, err))
		return false
	}

	if blocking {
		jr.fail(ctx, st, fmt.Sprintf("stage %s failed quality gate: rules [%s], %d record(s) quarantined",
			st, strings.Join(res.Verdict.BlockingRules(), ", "), res.Verdict.Quarantined))
		return false
	}

	if e.analytics != nil {
		e.analytics.RecordStage(context.WithoutCancel(ctx), jr.exec.WorkflowID, st, res.RecordCount)
	}
	jr.input = res.OutputRef
	return true
}

// Finalize derives the execution status from its job executions and
// persists it. It does nothing while any job execution is still open, or
// when the execution is already terminal.
func (e *Engine) Finalize(ctx context.Context, executionID string) (domain.Execution, error) {
	jes, err := e.store.ListJobExecutions(ctx, executionID)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("list job executions: %w", err)
	}
	status := domain.DeriveExecutionStatus(jes)
	if !status.Terminal() {
		return e.store.GetExecution(ctx, executionID)
	}
	var records int64
	for _, je := range jes {
		records += je.Records()
	}
	return e.finalize(ctx, executionID, status, records, false)
}

func (e *Engine) finalizeAs(ctx context.Context, executionID string, status domain.ExecutionStatus) (domain.Execution, error) {
	return e.finalize(ctx, executionID, status, 0, false)
}

// finalize writes the terminal status once. With onlyPending it returns
// errNotPending if the execution was claimed in the meantime.
func (e *Engine) finalize(ctx context.Context, executionID string, status domain.ExecutionStatus, records int64, onlyPending bool) (domain.Execution, error) {
	now := e.now()
	exec, err := e.store.UpdateExecution(ctx, executionID, func(x *domain.Execution) error {
		if x.Status.Terminal() {
			return store.ErrStatusTransitionDenied
		}
		if onlyPending && x.Status != domain.ExecutionStatusPending {
			return errNotPending
		}
		x.Status = status
		x.CompletedAt = &now
		if x.StartedAt != nil {
			x.Duration = now.Sub(*x.StartedAt)
		}
		return nil
	})
	if errors.Is(err, store.ErrStatusTransitionDenied) {
		return e.store.GetExecution(ctx, executionID)
	}
	if errors.Is(err, errNotPending) {
		return domain.Execution{}, err
	}
	if err != nil {
		return domain.Execution{}, fmt.Errorf("finalize execution %s: %w", executionID, err)
	}

	log.Printf("engine: execution=%s workflow=%s finished status=%s duration=%s", exec.ID, exec.WorkflowID, status, exec.Duration)
	e.applyWorkflowStatus(ctx, exec.WorkflowID, status)

	if exec.FileLogID != "" {
		fileStatus := domain.FileStatusCompleted
		if status != domain.ExecutionStatusCompleted {
			fileStatus = domain.FileStatusFailed
		}
		if err := e.store.CompleteFileLog(ctx, exec.FileLogID, fileStatus, records, now); err != nil {
			log.Printf("engine: execution=%s complete file log %s: %v", exec.ID, exec.FileLogID, err)
		}
	}

	if e.metrics != nil {
		e.metrics.ExecutionFinished(status, exec.Duration)
	}
	if e.analytics != nil {
		e.analytics.RecordExecution(ctx, exec.WorkflowID, status)
	}
	if e.completions != nil {
		event := domain.CompletionEvent{
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			Status:      status,
			CompletedAt: now,
		}
		if err := e.completions.Emit(ctx, event); err != nil {
			log.Printf("engine: execution=%s emit completion: %v", exec.ID, err)
		}
	}
	return exec, nil
}

func (e *Engine) applyWorkflowStatus(ctx context.Context, workflowID string, status domain.ExecutionStatus) {
	var triggers []domain.Trigger
	if status == domain.ExecutionStatusCancelled {
		var err error
		if triggers, err = e.store.ListTriggers(ctx, workflowID); err != nil {
			log.Printf("engine: workflow=%s list triggers: %v", workflowID, err)
		}
	}
	ws, ok := domain.WorkflowStatusFor(status, triggers)
	if !ok {
		return
	}
	if err := e.store.SetWorkflowStatus(ctx, workflowID, ws); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("engine: workflow=%s set status %s: %v", workflowID, ws, err)
	}
}

// Cancel stops an execution. Open job executions become cancelled; stages
// that already completed keep their output. A pending execution is
// cancelled outright.
func (e *Engine) Cancel(ctx context.Context, executionID string) (domain.Execution, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return domain.Execution{}, err
	}
	if exec.Status.Terminal() {
		return exec, nil
	}

	e.mu.Lock()
	cancel, local := e.running[executionID]
	e.mu.Unlock()
	if local {
		cancel()
	}

	now := e.now()
	jes, err := e.store.ListJobExecutions(ctx, executionID)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("list job executions: %w", err)
	}
	for _, je := range jes {
		if je.Status.Terminal() {
			continue
		}
		_, err := e.store.UpdateJobExecution(ctx, je.ID, func(x *domain.JobExecution) error {
			if x.Status.Terminal() {
				return store.ErrStatusTransitionDenied
			}
			x.Status = domain.JobExecutionStatusCancelled
			x.CompletedAt = &now
			x.Logf(now, "cancelled by request")
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrStatusTransitionDenied) {
			return domain.Execution{}, fmt.Errorf("cancel job execution %s: %w", je.ID, err)
		}
	}

	if exec.Status == domain.ExecutionStatusPending {
		cancelled, err := e.finalize(ctx, executionID, domain.ExecutionStatusCancelled, 0, true)
		if err == nil {
			log.Printf("engine: execution=%s cancelled before start", executionID)
			return cancelled, nil
		}
		if !errors.Is(err, errNotPending) {
			return domain.Execution{}, err
		}
	}

	if local {
		// The running goroutine finalizes once its jobs observe cancellation.
		return e.store.GetExecution(ctx, executionID)
	}
	return e.Finalize(ctx, executionID)
}

func (e *Engine) track(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[id] = cancel
}

func (e *Engine) untrack(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.running[id]; ok {
		cancel()
		delete(e.running, id)
	}
}

func (e *Engine) jobFinished(status domain.JobExecutionStatus) {
	if e.metrics != nil {
		e.metrics.JobExecutionFinished(status)
	}
}
