package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// Deployment sync operations, also used as metric labels.
const (
	SyncPause  = "pause"
	SyncResume = "resume"
)

// CreateTrigger validates and persists a trigger. Scheduled triggers get
// their first next_run_at; dependency triggers are checked for self
// reference, cycles and duplicates. Nothing is stored on error.
func (s *Scheduler) CreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error) {
	if _, err := s.store.GetWorkflow(ctx, t.WorkflowID); err != nil {
		return domain.Trigger{}, fmt.Errorf("workflow %s: %w", t.WorkflowID, err)
	}

	now := s.now()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	t.LastRunAt = nil
	t.NextRunAt = nil

	switch t.Type {
	case domain.TriggerTypeScheduled:
		if t.CronExpression == "" {
			return domain.Trigger{}, &domain.ConfigurationError{Field: "cron_expression", Reason: "required"}
		}
		if t.Timezone == "" {
			t.Timezone = "UTC"
		}
		if err := s.cron.Validate(t.CronExpression, t.Timezone); err != nil {
			return domain.Trigger{}, &domain.ConfigurationError{Field: "cron_expression", Reason: err.Error()}
		}
		if t.Enabled {
			next, err := s.cron.NextRun(t.CronExpression, t.Timezone, now)
			if err != nil {
				return domain.Trigger{}, &domain.ConfigurationError{Field: "cron_expression", Reason: err.Error()}
			}
			t.NextRunAt = &next
		}

	case domain.TriggerTypeDependency:
		if t.DependsOnWorkflowID == "" {
			return domain.Trigger{}, &domain.ConfigurationError{Field: "depends_on_workflow_id", Reason: "required"}
		}
		if t.Condition == "" {
			t.Condition = domain.ConditionOnSuccess
		}
		if !t.Condition.Valid() {
			return domain.Trigger{}, &domain.ConfigurationError{Field: "condition", Reason: fmt.Sprintf("unknown condition %q", t.Condition)}
		}
		if t.DelayMinutes < 0 || t.DelayMinutes > domain.MaxDelayMinutes {
			return domain.Trigger{}, &domain.ConfigurationError{
				Field:  "delay_minutes",
				Reason: fmt.Sprintf("must be between 0 and %d", domain.MaxDelayMinutes),
			}
		}
		if err := s.resolver.ValidateDependency(ctx, t.WorkflowID, t.DependsOnWorkflowID); err != nil {
			return domain.Trigger{}, err
		}

	case domain.TriggerTypeManual:

	default:
		return domain.Trigger{}, &domain.ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown trigger type %q", t.Type)}
	}

	if err := s.store.CreateTrigger(ctx, t); err != nil {
		return domain.Trigger{}, fmt.Errorf("create trigger: %w", err)
	}
	log.Printf("scheduler: created %s trigger=%s workflow=%s", t.Type, t.ID, t.WorkflowID)
	s.refreshWorkflowStatus(ctx, t.WorkflowID)
	return t, nil
}

// SetTriggerEnabled flips a trigger on or off. Enabling a scheduled trigger
// recomputes next_run_at from now in the same update the tick claims
// against. Disabling cancels pending delayed runs of the trigger.
func (s *Scheduler) SetTriggerEnabled(ctx context.Context, id string, enabled bool) (domain.Trigger, error) {
	now := s.now()
	t, err := s.store.UpdateTrigger(ctx, id, func(cur *domain.Trigger) error {
		cur.Enabled = enabled
		if cur.Type != domain.TriggerTypeScheduled {
			return nil
		}
		if !enabled {
			cur.NextRunAt = nil
			return nil
		}
		next, err := s.cron.NextRun(cur.CronExpression, cur.Timezone, now)
		if err != nil {
			return &domain.ConfigurationError{Field: "cron_expression", Reason: err.Error()}
		}
		cur.NextRunAt = &next
		return nil
	})
	if err != nil {
		return domain.Trigger{}, err
	}

	if !enabled {
		if n := s.cancelTrigger(id); n > 0 {
			log.Printf("scheduler: trigger=%s disabled, cancelled %d delayed run(s)", id, n)
		}
	}
	if t.Type == domain.TriggerTypeScheduled {
		op := SyncResume
		if !enabled {
			op = SyncPause
		}
		s.syncDeployment(ctx, op, id)
	}
	log.Printf("scheduler: trigger=%s enabled=%t", id, enabled)
	s.refreshWorkflowStatus(ctx, t.WorkflowID)
	return t, nil
}

// TriggerPatch lists the trigger fields an edit may change. Nil fields
// keep their current value. Fields of the other trigger type are rejected.
type TriggerPatch struct {
	Name *string

	CronExpression *string
	Timezone       *string

	DependsOnWorkflowID *string
	Condition           *domain.DependencyCondition
	DelayMinutes        *int
}

// UpdateTrigger edits a trigger in place. A new schedule recomputes
// next_run_at in the same row update the tick claims against; a new
// upstream is checked for cycles and duplicates first. Delayed runs armed
// under the old upstream are dropped.
func (s *Scheduler) UpdateTrigger(ctx context.Context, id string, patch TriggerPatch) (domain.Trigger, error) {
	cur, err := s.store.GetTrigger(ctx, id)
	if err != nil {
		return domain.Trigger{}, err
	}
	if err := checkPatch(cur.Type, patch); err != nil {
		return domain.Trigger{}, err
	}

	repointed := patch.DependsOnWorkflowID != nil && *patch.DependsOnWorkflowID != cur.DependsOnWorkflowID
	if repointed {
		if *patch.DependsOnWorkflowID == "" {
			return domain.Trigger{}, &domain.ConfigurationError{Field: "depends_on_workflow_id", Reason: "required"}
		}
		if err := s.resolver.ValidateDependencyChange(ctx, id, cur.WorkflowID, *patch.DependsOnWorkflowID); err != nil {
			return domain.Trigger{}, err
		}
	}

	now := s.now()
	t, err := s.store.UpdateTrigger(ctx, id, func(t *domain.Trigger) error {
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		switch t.Type {
		case domain.TriggerTypeScheduled:
			return applySchedule(s.cron, t, patch, now)
		case domain.TriggerTypeDependency:
			return applyDependency(t, patch)
		}
		return nil
	})
	if err != nil {
		return domain.Trigger{}, err
	}

	if repointed {
		if n := s.cancelTrigger(id); n > 0 {
			log.Printf("scheduler: trigger=%s upstream changed, cancelled %d delayed run(s)", id, n)
		}
	}
	log.Printf("scheduler: updated %s trigger=%s workflow=%s", t.Type, t.ID, t.WorkflowID)
	return t, nil
}

func checkPatch(typ domain.TriggerType, p TriggerPatch) error {
	scheduled := p.CronExpression != nil || p.Timezone != nil
	dependency := p.DependsOnWorkflowID != nil || p.Condition != nil || p.DelayMinutes != nil
	switch {
	case scheduled && typ != domain.TriggerTypeScheduled:
		return &domain.ConfigurationError{Field: "cron_expression", Reason: fmt.Sprintf("not editable on a %s trigger", typ)}
	case dependency && typ != domain.TriggerTypeDependency:
		return &domain.ConfigurationError{Field: "depends_on_workflow_id", Reason: fmt.Sprintf("not editable on a %s trigger", typ)}
	}
	return nil
}

func applySchedule(cron CronEvaluator, t *domain.Trigger, p TriggerPatch, now time.Time) error {
	if p.CronExpression == nil && p.Timezone == nil {
		return nil
	}
	if p.CronExpression != nil {
		t.CronExpression = *p.CronExpression
	}
	if p.Timezone != nil {
		t.Timezone = *p.Timezone
		if t.Timezone == "" {
			t.Timezone = "UTC"
		}
	}
	if t.CronExpression == "" {
		return &domain.ConfigurationError{Field: "cron_expression", Reason: "required"}
	}
	if err := cron.Validate(t.CronExpression, t.Timezone); err != nil {
		return &domain.ConfigurationError{Field: "cron_expression", Reason: err.Error()}
	}
	if !t.Enabled {
		return nil
	}
	next, err := cron.NextRun(t.CronExpression, t.Timezone, now)
	if err != nil {
		return &domain.ConfigurationError{Field: "cron_expression", Reason: err.Error()}
	}
	t.NextRunAt = &next
	return nil
}

func applyDependency(t *domain.Trigger, p TriggerPatch) error {
	if p.DependsOnWorkflowID != nil {
		t.DependsOnWorkflowID = *p.DependsOnWorkflowID
	}
	if p.Condition != nil {
		if !p.Condition.Valid() {
			return &domain.ConfigurationError{Field: "condition", Reason: fmt.Sprintf("unknown condition %q", *p.Condition)}
		}
		t.Condition = *p.Condition
	}
	if p.DelayMinutes != nil {
		if *p.DelayMinutes < 0 || *p.DelayMinutes > domain.MaxDelayMinutes {
			return &domain.ConfigurationError{
				Field:  "delay_minutes",
				Reason: fmt.Sprintf("must be between 0 and %d", domain.MaxDelayMinutes),
			}
		}
		t.DelayMinutes = *p.DelayMinutes
	}
	return nil
}

// Trigger history limits.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50
)

// TriggerHistory returns the newest executions the trigger created. The
// limit defaults to DefaultHistoryLimit and is capped at MaxHistoryLimit.
func (s *Scheduler) TriggerHistory(ctx context.Context, id string, limit int) ([]domain.Execution, error) {
	if _, err := s.store.GetTrigger(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.store.ListTriggerExecutions(ctx, id, limit)
}

func (s *Scheduler) GetTrigger(ctx context.Context, id string) (domain.Trigger, error) {
	return s.store.GetTrigger(ctx, id)
}

// DeleteTrigger removes a trigger and any delayed runs it armed. A deleted
// schedule is paused in the deployment system.
func (s *Scheduler) DeleteTrigger(ctx context.Context, id string) error {
	t, err := s.store.GetTrigger(ctx, id)
	if err != nil {
		return err
	}
	s.cancelTrigger(id)
	if err := s.store.DeleteTrigger(ctx, id); err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	if t.Type == domain.TriggerTypeScheduled {
		s.syncDeployment(ctx, SyncPause, id)
	}
	log.Printf("scheduler: deleted trigger=%s workflow=%s", id, t.WorkflowID)
	s.refreshWorkflowStatus(ctx, t.WorkflowID)
	return nil
}

func (s *Scheduler) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	if _, err := s.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, err)
	}
	return s.store.ListTriggers(ctx, workflowID)
}

// syncDeployment never fails the caller.
func (s *Scheduler) syncDeployment(ctx context.Context, op, triggerID string) {
	if s.deploy == nil {
		return
	}
	var err error
	if op == SyncPause {
		err = s.deploy.Pause(ctx, triggerID)
	} else {
		err = s.deploy.Resume(ctx, triggerID)
	}
	if err == nil {
		return
	}
	syncErr := &domain.ExternalSyncError{Op: op, TriggerID: triggerID, Cause: err}
	log.Printf("scheduler: %v", syncErr)
	if s.metrics != nil {
		s.metrics.ExternalSyncFailed(op)
	}
}

// refreshWorkflowStatus moves an idle workflow to the status its enabled
// triggers imply. Running workflows are left alone.
func (s *Scheduler) refreshWorkflowStatus(ctx context.Context, workflowID string) {
	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil || wf.Status == domain.WorkflowStatusRunning {
		return
	}
	triggers, err := s.store.ListTriggers(ctx, workflowID)
	if err != nil {
		log.Printf("scheduler: workflow=%s list triggers: %v", workflowID, err)
		return
	}
	idle := domain.IdleWorkflowStatus(triggers)
	switch wf.Status {
	case domain.WorkflowStatusManual, domain.WorkflowStatusScheduled, domain.WorkflowStatusDependency:
	default:
		// Completed, failed and paused keep their status until the next run.
		return
	}
	if idle == wf.Status {
		return
	}
	if err := s.store.SetWorkflowStatus(ctx, workflowID, idle); err != nil {
		log.Printf("scheduler: workflow=%s set status %s: %v", workflowID, idle, err)
	}
}
