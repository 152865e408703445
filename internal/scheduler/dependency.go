package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/resolver"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

// RunCompletions cascades every completion event until ctx is done or ch
// is closed.
func (s *Scheduler) RunCompletions(ctx context.Context, ch <-chan domain.CompletionEvent) error {
	log.Println("scheduler: completion consumer started")
	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: completion consumer stopped")
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.HandleCompletion(ctx, ev); err != nil {
				log.Printf("scheduler: completion execution=%s: %v", ev.ExecutionID, err)
			}
		}
	}
}

// HandleCompletion starts the downstream workflows whose dependency
// condition matches the upstream outcome. Redelivered events are harmless:
// each (trigger, upstream execution) pair creates at most one execution.
// The delay counts from the upstream completion, so an event replayed late
// only waits out what is left of it.
func (s *Scheduler) HandleCompletion(ctx context.Context, ev domain.CompletionEvent) error {
	return s.cascade(ctx, ev, false)
}

// ReplayCompletion is HandleCompletion for a completion recovered from the
// store after the live event may have been lost. Triggers changed after the
// upstream completed are skipped so a new or re-pointed trigger never
// reacts to an older run.
func (s *Scheduler) ReplayCompletion(ctx context.Context, ev domain.CompletionEvent) error {
	return s.cascade(ctx, ev, true)
}

func (s *Scheduler) cascade(ctx context.Context, ev domain.CompletionEvent, replay bool) error {
	if !ev.Status.Terminal() {
		return nil
	}
	edges, err := s.resolver.Downstream(ctx, ev.WorkflowID)
	if err != nil {
		return fmt.Errorf("downstream of %s: %w", ev.WorkflowID, err)
	}

	for _, edge := range edges {
		if !edge.Enabled || !resolver.ConditionMet(edge.Condition, ev.Status) {
			continue
		}
		if replay && edge.UpdatedAt.After(ev.CompletedAt) {
			continue
		}
		key := dependencyKey(edge.TriggerID, ev.ExecutionID)
		exists, err := s.store.ExecutionExists(ctx, key)
		if err != nil {
			log.Printf("scheduler: dependency trigger=%s lookup %s: %v", edge.TriggerID, key, err)
		}
		if exists {
			continue
		}
		wait := remainingDelay(time.Duration(edge.DelayMinutes)*time.Minute, ev.CompletedAt, s.now())
		if wait <= 0 {
			if err := s.fireDependency(ctx, edge.TriggerID, ev.ExecutionID, key); err != nil {
				log.Printf("scheduler: dependency trigger=%s: %v", edge.TriggerID, err)
			}
			continue
		}
		s.arm(context.WithoutCancel(ctx), edge, ev.ExecutionID, key, wait)
	}
	return nil
}

func dependencyKey(triggerID, upstreamExecID string) string {
	return fmt.Sprintf("dependency:%s:%s", triggerID, upstreamExecID)
}

// remainingDelay is the part of delay not yet elapsed since completedAt,
// never more than delay itself. A zero completedAt waits the full delay.
func remainingDelay(delay time.Duration, completedAt, now time.Time) time.Duration {
	if delay <= 0 {
		return 0
	}
	if completedAt.IsZero() {
		return delay
	}
	left := delay - now.Sub(completedAt)
	if left > delay {
		return delay
	}
	return left
}

func (s *Scheduler) arm(ctx context.Context, edge resolver.Edge, upstreamExecID, key string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delayed[key]; ok {
		return
	}

	run := &delayedRun{
		triggerID:          edge.TriggerID,
		workflowID:         edge.WorkflowID,
		upstreamWorkflowID: edge.UpstreamWorkflowID,
	}
	run.timer = s.afterFunc(delay, func() {
		s.mu.Lock()
		_, pending := s.delayed[key]
		delete(s.delayed, key)
		s.mu.Unlock()
		if !pending {
			return
		}
		if err := s.fireDependency(ctx, edge.TriggerID, upstreamExecID, key); err != nil {
			log.Printf("scheduler: delayed dependency trigger=%s: %v", edge.TriggerID, err)
		}
	})
	s.delayed[key] = run

	if s.metrics != nil {
		s.metrics.DependencyDelayArmed()
	}
	log.Printf("scheduler: dependency trigger=%s workflow=%s armed for %s", edge.TriggerID, edge.WorkflowID, delay)
}

// fireDependency re-reads the trigger so a run armed before a disable or
// delete never starts.
func (s *Scheduler) fireDependency(ctx context.Context, triggerID, upstreamExecID, key string) error {
	t, err := s.store.GetTrigger(ctx, triggerID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("scheduler: dependency trigger=%s deleted, skipping", triggerID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load trigger: %w", err)
	}
	if !t.Enabled {
		log.Printf("scheduler: dependency trigger=%s disabled, skipping", triggerID)
		return nil
	}

	exec := domain.Execution{
		ID:                  uuid.NewString(),
		WorkflowID:          t.WorkflowID,
		TriggerID:           t.ID,
		TriggerKind:         domain.TriggerKindDependency,
		UpstreamExecutionID: upstreamExecID,
		DedupKey:            key,
		Status:              domain.ExecutionStatusPending,
		CreatedAt:           s.now(),
	}
	created, err := s.createExecution(ctx, exec)
	if err != nil {
		return err
	}
	if created {
		log.Printf("scheduler: dependency trigger=%s started workflow=%s after execution=%s", t.ID, t.WorkflowID, upstreamExecID)
	}
	return nil
}

// PendingDelays reports how many dependency runs are waiting on a delay.
func (s *Scheduler) PendingDelays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delayed)
}

// CancelWorkflow stops pending delayed runs of workflowID and runs waiting
// on it as upstream.
func (s *Scheduler) CancelWorkflow(workflowID string) int {
	return s.stopDelays(func(r *delayedRun) bool {
		return r.workflowID == workflowID || r.upstreamWorkflowID == workflowID
	})
}

func (s *Scheduler) cancelTrigger(triggerID string) int {
	return s.stopDelays(func(r *delayedRun) bool { return r.triggerID == triggerID })
}

func (s *Scheduler) stopDelays(match func(*delayedRun) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, r := range s.delayed {
		if !match(r) {
			continue
		}
		r.timer.Stop()
		delete(s.delayed, key)
		n++
	}
	return n
}
