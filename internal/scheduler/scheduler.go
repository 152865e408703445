// Package scheduler creates executions: cron ticks, manual runs and
// dependency cascades from upstream completions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/resolver"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

// errAlreadyClaimed aborts a tick claim when the trigger moved on or was
// disabled since it was listed.
var errAlreadyClaimed = errors.New("trigger already claimed")

type Store interface {
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error

	CreateTrigger(ctx context.Context, t domain.Trigger) error
	GetTrigger(ctx context.Context, id string) (domain.Trigger, error)
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)
	ListDueTriggers(ctx context.Context, now time.Time) ([]domain.Trigger, error)
	UpdateTrigger(ctx context.Context, id string, mutate store.TriggerMutation) (domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error

	InsertExecution(ctx context.Context, exec domain.Execution) error
	ExecutionExists(ctx context.Context, dedupKey string) (bool, error)
	ListTriggerExecutions(ctx context.Context, triggerID string, limit int) ([]domain.Execution, error)
}

type CronEvaluator interface {
	Validate(expression, timezone string) error
	NextRun(expression, timezone string, after time.Time) (time.Time, error)
}

// RunEmitter hands pending executions to the dispatcher.
type RunEmitter interface {
	Emit(ctx context.Context, req domain.RunRequest) error
}

type Resolver interface {
	Downstream(ctx context.Context, workflowID string) ([]resolver.Edge, error)
	ValidateDependency(ctx context.Context, workflowID, upstreamID string) error
	ValidateDependencyChange(ctx context.Context, triggerID, workflowID, upstreamID string) error
}

// DeploySync mirrors schedule state to the deployment system. Best effort.
type DeploySync interface {
	Pause(ctx context.Context, triggerID string) error
	Resume(ctx context.Context, triggerID string) error
}

// MetricsSink records scheduler metrics. All methods must be non-blocking.
type MetricsSink interface {
	TickStarted()
	TickCompleted(duration time.Duration, executionsCreated int, err error)
	ExecutionCreated(kind domain.TriggerKind)
	DependencyDelayArmed()
	ExternalSyncFailed(op string)
}

// Timer is the handle of an armed dependency delay.
type Timer interface {
	Stop() bool
}

type Config struct {
	TickInterval time.Duration
}

type Scheduler struct {
	config   Config
	store    Store
	cron     CronEvaluator
	runs     RunEmitter
	resolver Resolver
	deploy   DeploySync  // optional, nil = no external sync
	metrics  MetricsSink // optional, nil = disabled
	clock    func() time.Time

	afterFunc func(d time.Duration, f func()) Timer

	mu      sync.Mutex
	delayed map[string]*delayedRun
}

// delayedRun is a dependency run waiting out its trigger's delay.
type delayedRun struct {
	timer              Timer
	triggerID          string
	workflowID         string
	upstreamWorkflowID string
}

func New(config Config, store Store, cron CronEvaluator, runs RunEmitter, resolver Resolver) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		cron:     cron,
		runs:     runs,
		resolver: resolver,
		clock:    time.Now,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		delayed: make(map[string]*delayedRun),
	}
}

func (s *Scheduler) WithDeploySync(deploy DeploySync) *Scheduler {
	s.deploy = deploy
	return s
}

func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// WithAfterFunc replaces time.AfterFunc for dependency delays.
func (s *Scheduler) WithAfterFunc(fn func(d time.Duration, f func()) Timer) *Scheduler {
	s.afterFunc = fn
	return s
}

func (s *Scheduler) now() time.Time {
	return s.clock().UTC()
}

// Run ticks until ctx is done. Pending dependency delays are stopped on exit.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	defer s.stopDelays(func(*delayedRun) bool { return true })

	log.Printf("scheduler: started, tick=%s", s.config.TickInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

// Tick fires every enabled scheduled trigger that is due. Runs missed while
// the scheduler was down collapse into a single execution per trigger.
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.TickStarted()
	}
	now := s.now()

	created := 0
	due, err := s.store.ListDueTriggers(ctx, now)
	if err != nil {
		err = fmt.Errorf("list due triggers: %w", err)
	} else {
		for _, t := range due {
			ok, ferr := s.fire(ctx, t, now)
			if ferr != nil {
				log.Printf("scheduler: trigger %s error: %v", t.ID, ferr)
				continue
			}
			if ok {
				created++
			}
		}
	}

	if s.metrics != nil {
		s.metrics.TickCompleted(time.Since(start), created, err)
	}
	return err
}

func (s *Scheduler) fire(ctx context.Context, t domain.Trigger, now time.Time) (bool, error) {
	if t.NextRunAt == nil {
		return false, nil
	}
	observed := *t.NextRunAt

	next, err := s.cron.NextRun(t.CronExpression, t.Timezone, now)
	if err != nil {
		return false, fmt.Errorf("next run: %w", err)
	}

	_, err = s.store.UpdateTrigger(ctx, t.ID, func(cur *domain.Trigger) error {
		if !cur.Enabled || cur.NextRunAt == nil || !cur.NextRunAt.Equal(observed) {
			return errAlreadyClaimed
		}
		lastRun := now
		cur.NextRunAt = &next
		cur.LastRunAt = &lastRun
		return nil
	})
	if errors.Is(err, errAlreadyClaimed) || errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim trigger: %w", err)
	}

	exec := domain.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  t.WorkflowID,
		TriggerID:   t.ID,
		TriggerKind: domain.TriggerKindScheduled,
		DedupKey:    fmt.Sprintf("scheduled:%s:%d", t.ID, observed.Unix()),
		Status:      domain.ExecutionStatusPending,
		CreatedAt:   now,
	}
	created, err := s.createExecution(ctx, exec)
	if err != nil {
		s.release(ctx, t, observed, next)
		return false, err
	}
	if created {
		log.Printf("scheduler: fired trigger=%s workflow=%s scheduled_at=%s next=%s",
			t.ID, t.WorkflowID, observed.Format(time.RFC3339), next.Format(time.RFC3339))
	}
	return created, nil
}

// release puts a claimed run back when its execution could not be
// inserted, so the next tick retries it under the same dedup key. A trigger
// that was disabled or rescheduled in the meantime is left alone.
func (s *Scheduler) release(ctx context.Context, t domain.Trigger, observed, next time.Time) {
	_, err := s.store.UpdateTrigger(context.WithoutCancel(ctx), t.ID, func(cur *domain.Trigger) error {
		if !cur.Enabled || cur.NextRunAt == nil || !cur.NextRunAt.Equal(next) {
			return errAlreadyClaimed
		}
		cur.NextRunAt = &observed
		cur.LastRunAt = t.LastRunAt
		return nil
	})
	switch {
	case err == nil:
		log.Printf("scheduler: trigger=%s run at %s released for retry", t.ID, observed.Format(time.RFC3339))
	case errors.Is(err, errAlreadyClaimed), errors.Is(err, store.ErrNotFound):
	default:
		log.Printf("scheduler: trigger=%s release claim: %v", t.ID, err)
	}
}

// TriggerManual creates an execution for workflowID and queues it at once.
func (s *Scheduler) TriggerManual(ctx context.Context, workflowID string) (domain.Execution, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return domain.Execution{}, fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	exec := domain.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		TriggerKind: domain.TriggerKindManual,
		Status:      domain.ExecutionStatusPending,
		CreatedAt:   s.now(),
	}
	if _, err := s.createExecution(ctx, exec); err != nil {
		return domain.Execution{}, err
	}
	log.Printf("scheduler: manual run workflow=%s execution=%s", workflowID, exec.ID)
	return exec, nil
}

// Enqueue emits a run request for an execution created elsewhere, such as
// an ingest.
func (s *Scheduler) Enqueue(ctx context.Context, exec domain.Execution) {
	s.emit(ctx, exec)
}

// createExecution inserts exec and queues it. A dedup key collision means an
// earlier delivery already created the run and reports created=false.
func (s *Scheduler) createExecution(ctx context.Context, exec domain.Execution) (bool, error) {
	if err := s.store.InsertExecution(ctx, exec); err != nil {
		if errors.Is(err, store.ErrDuplicateExecution) {
			log.Printf("scheduler: execution %s already exists, skipping", exec.DedupKey)
			return false, nil
		}
		return false, fmt.Errorf("insert execution: %w", err)
	}
	if s.metrics != nil {
		s.metrics.ExecutionCreated(exec.TriggerKind)
	}
	s.emit(ctx, exec)
	return true, nil
}

// emit failures are logged only; the reconciler re-emits pending executions.
func (s *Scheduler) emit(ctx context.Context, exec domain.Execution) {
	req := domain.RunRequest{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		RequestedAt: s.now(),
	}
	if err := s.runs.Emit(ctx, req); err != nil {
		log.Printf("scheduler: execution=%s emit: %v", exec.ID, err)
	}
}
