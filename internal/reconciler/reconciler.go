// Package reconciler recovers work the normal pipeline lost.
//
// Three cases are handled each cycle:
//   - A pending execution whose run request never reached a dispatcher
//     worker (bus full, crash before emit) is re-emitted. The engine's
//     pending→running claim makes a duplicate delivery a no-op.
//   - A running job execution that has not been updated for longer than
//     the stuck threshold is failed, and its execution is finalized once no
//     live job execution remains.
//   - When completion replay is enabled, executions finished within the
//     replay window are fed back through the dependency cascade, so a
//     completion event dropped by a crash still starts its downstream
//     workflows. Dedup keys keep a replay from running anything twice.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

// errNotStuck aborts an update when the job execution made progress after
// it was listed.
var errNotStuck = errors.New("job execution is no longer stuck")

type Store interface {
	ListPendingExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Execution, error)
	ListStuckJobExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.JobExecution, error)
	ListJobExecutions(ctx context.Context, executionID string) ([]domain.JobExecution, error)
	UpdateJobExecution(ctx context.Context, id string, mutate store.JobExecutionMutation) (domain.JobExecution, error)
	ListFinishedExecutions(ctx context.Context, since time.Time, limit int) ([]domain.Execution, error)
}

type RunEmitter interface {
	Emit(ctx context.Context, req domain.RunRequest) error
}

// Finalizer derives and persists the terminal status of an execution.
type Finalizer interface {
	Finalize(ctx context.Context, executionID string) (domain.Execution, error)
}

// Cascader starts the dependency triggers of a finished execution.
type Cascader interface {
	ReplayCompletion(ctx context.Context, ev domain.CompletionEvent) error
}

// MetricsSink records reconciler metrics. All methods must be non-blocking.
type MetricsSink interface {
	PendingReemitted(count int)
	StuckJobExecutionsFailed(count int)
}

type Config struct {
	// Interval is how often a cycle runs. Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which a pending execution is re-emitted.
	// Default: 10 minutes.
	Threshold time.Duration

	// StuckThreshold is how long a running job execution may go without an
	// update. It must exceed the stage timeout times its attempts.
	// Default: 1 hour.
	StuckThreshold time.Duration

	// BatchSize caps the records handled per cycle and per case.
	// Default: 100.
	BatchSize int

	// ReplayWindow is how far back finished executions are replayed. It
	// must cover the longest dependency delay. Default: 25 hours.
	ReplayWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		Threshold:      10 * time.Minute,
		StuckThreshold: time.Hour,
		BatchSize:      100,
		ReplayWindow:   time.Duration(domain.MaxDelayMinutes)*time.Minute + time.Hour,
	}
}

type Reconciler struct {
	config    Config
	store     Store
	runs      RunEmitter
	finalizer Finalizer
	metrics   MetricsSink // optional, nil = disabled
	cascader  Cascader    // optional, nil = no completion replay
	replayed  time.Time   // completions before this were replayed already
	clock     func() time.Time
}

func New(config Config, store Store, runs RunEmitter, finalizer Finalizer) *Reconciler {
	return &Reconciler{
		config:    config,
		store:     store,
		runs:      runs,
		finalizer: finalizer,
		clock:     time.Now,
	}
}

func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// WithCompletionReplay enables the completion replay pass.
func (r *Reconciler) WithCompletionReplay(c Cascader) *Reconciler {
	r.cascader = c
	return r
}

func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// Run reconciles once at startup and then every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, stuck=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.StuckThreshold, r.config.BatchSize)

	r.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.RunCycle(ctx)
		}
	}
}

// RunCycle performs one pass over every case. Errors are logged and the
// affected records are retried next cycle.
func (r *Reconciler) RunCycle(ctx context.Context) {
	now := r.clock().UTC()
	r.reemitPending(ctx, now)
	r.failStuck(ctx, now)
	if r.cascader != nil {
		r.replayCompletions(ctx, now)
	}
}

func (r *Reconciler) reemitPending(ctx context.Context, now time.Time) {
	pending, err := r.store.ListPendingExecutions(ctx, now.Add(-r.config.Threshold), r.config.BatchSize)
	if err != nil {
		log.Printf("reconciler: failed to list pending executions: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Printf("reconciler: found %d pending executions", len(pending))

	emitted, failed := 0, 0
	for _, exec := range pending {
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, processed %d/%d pending", emitted+failed, len(pending))
			break
		}
		req := domain.RunRequest{
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			RequestedAt: now,
		}
		if err := r.runs.Emit(ctx, req); err != nil {
			log.Printf("reconciler: failed to re-emit execution=%s workflow=%s: %v", exec.ID, exec.WorkflowID, err)
			failed++
			continue
		}
		log.Printf("reconciler: re-emitted execution=%s workflow=%s (age=%s)",
			exec.ID, exec.WorkflowID, now.Sub(exec.CreatedAt).Round(time.Second))
		emitted++
	}

	if r.metrics != nil && emitted > 0 {
		r.metrics.PendingReemitted(emitted)
	}
	log.Printf("reconciler: pending pass complete, re-emitted=%d, failed=%d", emitted, failed)
}

func (r *Reconciler) failStuck(ctx context.Context, now time.Time) {
	cutoff := now.Add(-r.config.StuckThreshold)
	stuck, err := r.store.ListStuckJobExecutions(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		log.Printf("reconciler: failed to list stuck job executions: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	log.Printf("reconciler: found %d stuck job executions", len(stuck))

	failed := 0
	var executions []string
	seen := make(map[string]bool)
	for _, je := range stuck {
		if ctx.Err() != nil {
			break
		}
		if err := r.failJobExecution(ctx, je, cutoff, now); err != nil {
			if !errors.Is(err, errNotStuck) {
				log.Printf("reconciler: job_execution=%s: %v", je.ID, err)
			}
			continue
		}
		failed++
		if !seen[je.ExecutionID] {
			seen[je.ExecutionID] = true
			executions = append(executions, je.ExecutionID)
		}
	}

	for _, id := range executions {
		if err := r.settle(ctx, id, now); err != nil {
			log.Printf("reconciler: execution=%s: %v", id, err)
		}
	}

	if r.metrics != nil && failed > 0 {
		r.metrics.StuckJobExecutionsFailed(failed)
	}
	log.Printf("reconciler: stuck pass complete, failed=%d, executions=%d", failed, len(executions))
}

func (r *Reconciler) failJobExecution(ctx context.Context, je domain.JobExecution, cutoff, now time.Time) error {
	_, err := r.store.UpdateJobExecution(ctx, je.ID, func(cur *domain.JobExecution) error {
		if cur.Status != domain.JobExecutionStatusRunning || !cur.UpdatedAt.Before(cutoff) {
			return errNotStuck
		}
		cur.Status = domain.JobExecutionStatusFailed
		cur.FailedStage = cur.CurrentStage
		cur.CompletedAt = &now
		cur.Logf(now, fmt.Sprintf("stage %s abandoned: no progress since %s", cur.CurrentStage, cur.UpdatedAt.Format(time.RFC3339)))
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("reconciler: failed stuck job_execution=%s execution=%s stage=%s", je.ID, je.ExecutionID, je.CurrentStage)
	return nil
}

// settle finalizes an execution whose stuck job executions were failed.
// Pending siblings never started and are failed too, unless a live sibling
// is still running, which means the engine owning the execution is alive.
func (r *Reconciler) settle(ctx context.Context, executionID string, now time.Time) error {
	jes, err := r.store.ListJobExecutions(ctx, executionID)
	if err != nil {
		return fmt.Errorf("list job executions: %w", err)
	}
	for _, je := range jes {
		if je.Status == domain.JobExecutionStatusRunning {
			return nil
		}
	}
	for _, je := range jes {
		if je.Status != domain.JobExecutionStatusPending {
			continue
		}
		_, err := r.store.UpdateJobExecution(ctx, je.ID, func(cur *domain.JobExecution) error {
			if cur.Status != domain.JobExecutionStatusPending {
				return errNotStuck
			}
			cur.Status = domain.JobExecutionStatusFailed
			cur.CompletedAt = &now
			cur.Logf(now, "never started: execution abandoned")
			return nil
		})
		if err != nil && !errors.Is(err, errNotStuck) {
			return fmt.Errorf("fail pending job_execution %s: %w", je.ID, err)
		}
	}
	exec, err := r.finalizer.Finalize(ctx, executionID)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	log.Printf("reconciler: execution=%s finalized status=%s", executionID, exec.Status)
	return nil
}

func (r *Reconciler) replayCompletions(ctx context.Context, now time.Time) {
	window := r.config.ReplayWindow
	if window <= 0 {
		window = DefaultConfig().ReplayWindow
	}
	since := now.Add(-window)
	if r.replayed.After(since) {
		since = r.replayed
	}
	finished, err := r.store.ListFinishedExecutions(ctx, since, r.config.BatchSize)
	if err != nil {
		log.Printf("reconciler: failed to list finished executions: %v", err)
		return
	}

	failed := 0
	for _, exec := range finished {
		if ctx.Err() != nil {
			return
		}
		if exec.CompletedAt == nil {
			continue
		}
		ev := domain.CompletionEvent{
			ExecutionID: exec.ID,
			WorkflowID:  exec.WorkflowID,
			Status:      exec.Status,
			CompletedAt: *exec.CompletedAt,
		}
		if err := r.cascader.ReplayCompletion(ctx, ev); err != nil {
			log.Printf("reconciler: replay execution=%s workflow=%s: %v", exec.ID, exec.WorkflowID, err)
			failed++
		}
	}

	// A full batch resumes from its last completion. Otherwise the cursor
	// trails now by Threshold so executions committed late are not skipped.
	if n := len(finished); n > 0 && n >= r.config.BatchSize && finished[n-1].CompletedAt != nil {
		r.replayed = *finished[n-1].CompletedAt
	} else {
		r.replayed = now.Add(-r.config.Threshold)
	}
	if len(finished) > 0 {
		log.Printf("reconciler: replay pass complete, executions=%d, failed=%d", len(finished), failed)
	}
}
