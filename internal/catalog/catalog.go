// Package catalog registers workflows, jobs and quality rules, validating
// them the way the runtime will need them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

type Store interface {
	CreateWorkflow(ctx context.Context, wf domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	CreateJob(ctx context.Context, job domain.Job) error
	GetJob(ctx context.Context, id string) (domain.Job, error)
	DeleteJob(ctx context.Context, id string) error

	CreateRule(ctx context.Context, rule domain.QualityRule) error
	GetRule(ctx context.Context, id string) (domain.QualityRule, error)
	UpdateRule(ctx context.Context, id string, mutate store.RuleMutation) (domain.QualityRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, jobID string) ([]domain.QualityRule, error)
}

// Triggers is the part of the scheduler that owns trigger lifecycle.
type Triggers interface {
	CreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error)
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error
	CancelWorkflow(workflowID string) int
}

type Catalog struct {
	store    Store
	triggers Triggers
	now      func() time.Time
}

func New(store Store, triggers Triggers) *Catalog {
	return &Catalog{
		store:    store,
		triggers: triggers,
		now:      time.Now,
	}
}

func (c *Catalog) WithClock(now func() time.Time) *Catalog {
	c.now = now
	return c
}

// CreateWorkflow registers an empty workflow. Mode defaults to
// source_centric and the initial status is manual.
func (c *Catalog) CreateWorkflow(ctx context.Context, wf domain.Workflow) (domain.Workflow, error) {
	wf.Name = strings.TrimSpace(wf.Name)
	if wf.Name == "" {
		return domain.Workflow{}, &domain.ConfigurationError{Field: "name", Reason: "required"}
	}
	if wf.Mode == "" {
		wf.Mode = domain.WorkflowModeSourceCentric
	}
	if !wf.Mode.Valid() {
		return domain.Workflow{}, &domain.ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", wf.Mode)}
	}
	now := c.now().UTC()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	wf.Status = domain.WorkflowStatusManual
	wf.Jobs = nil
	wf.CreatedAt, wf.UpdatedAt = now, now
	if err := c.store.CreateWorkflow(ctx, wf); err != nil {
		return domain.Workflow{}, fmt.Errorf("create workflow: %w", err)
	}
	log.Printf("catalog: created workflow=%s name=%q mode=%s", wf.ID, wf.Name, wf.Mode)
	return wf, nil
}

func (c *Catalog) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	return c.store.GetWorkflow(ctx, id)
}

func (c *Catalog) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	return c.store.ListWorkflows(ctx)
}

// DeleteWorkflow removes the workflow with its jobs, triggers, executions
// and rules. Triggers go through the scheduler first so armed delays are
// stopped and deployed schedules paused.
func (c *Catalog) DeleteWorkflow(ctx context.Context, id string) error {
	if _, err := c.store.GetWorkflow(ctx, id); err != nil {
		return err
	}
	triggers, err := c.triggers.ListTriggers(ctx, id)
	if err != nil {
		return fmt.Errorf("list triggers: %w", err)
	}
	for _, t := range triggers {
		if err := c.triggers.DeleteTrigger(ctx, t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("delete trigger %s: %w", t.ID, err)
		}
	}
	if n := c.triggers.CancelWorkflow(id); n > 0 {
		log.Printf("catalog: workflow=%s cancelled %d delayed run(s)", id, n)
	}
	if err := c.store.DeleteWorkflow(ctx, id); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	log.Printf("catalog: deleted workflow=%s", id)
	return nil
}

// CreateJob validates the config against the job type and stores the job.
// A negative order index appends the job after its siblings.
func (c *Catalog) CreateJob(ctx context.Context, job domain.Job) (domain.Job, error) {
	wf, err := c.store.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("workflow %s: %w", job.WorkflowID, err)
	}
	job.Name = strings.TrimSpace(job.Name)
	if job.Name == "" {
		return domain.Job{}, &domain.ConfigurationError{Field: "name", Reason: "required"}
	}
	if err := job.Config.Validate(job.Type); err != nil {
		return domain.Job{}, err
	}
	switch job.Status {
	case "":
		job.Status = domain.JobStatusConfigured
	case domain.JobStatusConfigured, domain.JobStatusActive, domain.JobStatusDisabled:
	default:
		return domain.Job{}, &domain.ConfigurationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", job.Status)}
	}
	if job.OrderIndex < 0 {
		job.OrderIndex = nextOrder(wf.Jobs)
	}
	now := c.now().UTC()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt, job.UpdatedAt = now, now
	if err := c.store.CreateJob(ctx, job); err != nil {
		return domain.Job{}, err
	}
	log.Printf("catalog: created job=%s workflow=%s name=%q type=%s order=%d", job.ID, job.WorkflowID, job.Name, job.Type, job.OrderIndex)
	return job, nil
}

func (c *Catalog) GetJob(ctx context.Context, id string) (domain.Job, error) {
	return c.store.GetJob(ctx, id)
}

// DeleteJob removes the job with its job executions and quality rules.
func (c *Catalog) DeleteJob(ctx context.Context, id string) error {
	if err := c.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	log.Printf("catalog: deleted job=%s", id)
	return nil
}

// CloneJob copies a job into the same workflow under a free "(copy)" name,
// after the last sibling. The copy starts configured and has no rules.
func (c *Catalog) CloneJob(ctx context.Context, id string) (domain.Job, error) {
	src, err := c.store.GetJob(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	wf, err := c.store.GetWorkflow(ctx, src.WorkflowID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("workflow %s: %w", src.WorkflowID, err)
	}
	now := c.now().UTC()
	clone := domain.Job{
		ID:         uuid.NewString(),
		WorkflowID: src.WorkflowID,
		Name:       CopyName(src.Name, wf.Jobs),
		OrderIndex: nextOrder(wf.Jobs),
		Type:       src.Type,
		Status:     domain.JobStatusConfigured,
		Config:     src.Config.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := c.store.CreateJob(ctx, clone); err != nil {
		return domain.Job{}, err
	}
	log.Printf("catalog: cloned job=%s into job=%s name=%q", src.ID, clone.ID, clone.Name)
	return clone, nil
}

// CopyName returns "<name> (copy)", or "<name> (copy N)" for the lowest
// N >= 2 not already taken by a sibling.
func CopyName(name string, siblings []domain.Job) string {
	taken := make(map[string]bool, len(siblings))
	for _, j := range siblings {
		taken[j.Name] = true
	}
	candidate := name + " (copy)"
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s (copy %d)", name, n)
	}
	return candidate
}

func nextOrder(jobs []domain.Job) int {
	next := 0
	for _, j := range jobs {
		if j.OrderIndex >= next {
			next = j.OrderIndex + 1
		}
	}
	return next
}

// CreateRule validates and stores a quality rule. An empty stage means
// bronze.
func (c *Catalog) CreateRule(ctx context.Context, rule domain.QualityRule) (domain.QualityRule, error) {
	if _, err := c.store.GetJob(ctx, rule.JobID); err != nil {
		return domain.QualityRule{}, fmt.Errorf("job %s: %w", rule.JobID, err)
	}
	if err := quality.ValidateRule(rule); err != nil {
		return domain.QualityRule{}, err
	}
	if rule.Stage == "" {
		rule.Stage = domain.StageBronze
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.CreatedAt = c.now().UTC()
	if err := c.store.CreateRule(ctx, rule); err != nil {
		return domain.QualityRule{}, fmt.Errorf("create rule: %w", err)
	}
	log.Printf("catalog: created rule=%s job=%s type=%s severity=%s stage=%s", rule.ID, rule.JobID, rule.Type, rule.Severity, rule.Stage)
	return rule, nil
}

func (c *Catalog) ListRules(ctx context.Context, jobID string) ([]domain.QualityRule, error) {
	if _, err := c.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.store.ListRules(ctx, jobID)
}

func (c *Catalog) GetRule(ctx context.Context, id string) (domain.QualityRule, error) {
	return c.store.GetRule(ctx, id)
}

// RulePatch lists the rule fields an edit may change. Nil fields keep their
// current value.
type RulePatch struct {
	Name     *string
	Column   *string
	Type     *domain.RuleType
	Params   *domain.RuleParams
	Severity *domain.Severity
	Stage    *domain.Stage
	Active   *bool
}

func (p RulePatch) empty() bool {
	return p.Name == nil && p.Column == nil && p.Type == nil && p.Params == nil &&
		p.Severity == nil && p.Stage == nil && p.Active == nil
}

// UpdateRule applies patch and re-validates the whole rule. Stage gates
// that already ran keep the rule executions they recorded.
func (c *Catalog) UpdateRule(ctx context.Context, id string, patch RulePatch) (domain.QualityRule, error) {
	if patch.empty() {
		return domain.QualityRule{}, &domain.ConfigurationError{Field: "rule", Reason: "no fields to update"}
	}
	rule, err := c.store.UpdateRule(ctx, id, func(r *domain.QualityRule) error {
		if patch.Name != nil {
			r.Name = *patch.Name
		}
		if patch.Column != nil {
			r.Column = *patch.Column
		}
		if patch.Type != nil {
			r.Type = *patch.Type
		}
		if patch.Params != nil {
			r.Params = *patch.Params
		}
		if patch.Severity != nil {
			r.Severity = *patch.Severity
		}
		if patch.Stage != nil {
			r.Stage = *patch.Stage
			if r.Stage == "" {
				r.Stage = domain.StageBronze
			}
		}
		if patch.Active != nil {
			r.Active = *patch.Active
		}
		return quality.ValidateRule(*r)
	})
	if err != nil {
		return domain.QualityRule{}, err
	}
	log.Printf("catalog: updated rule=%s job=%s active=%t", rule.ID, rule.JobID, rule.Active)
	return rule, nil
}

// DeleteRule deactivates the rule, or removes it when hard is set. Either
// way its past rule executions and quarantine records are kept.
func (c *Catalog) DeleteRule(ctx context.Context, id string, hard bool) error {
	if hard {
		if err := c.store.DeleteRule(ctx, id); err != nil {
			return err
		}
		log.Printf("catalog: deleted rule=%s", id)
		return nil
	}
	_, err := c.store.UpdateRule(ctx, id, func(r *domain.QualityRule) error {
		r.Active = false
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("catalog: deactivated rule=%s", id)
	return nil
}
