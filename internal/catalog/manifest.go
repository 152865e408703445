package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
)

// Manifest declares workflows with their jobs, rules and triggers.
//
//	workflows:
//	  - name: orders
//	    mode: layer_centric
//	    jobs:
//	      - name: orders_csv
//	        type: file_based
//	        config:
//	          source: {file: {path: /landing/orders, format: csv}}
//	          destination: {bronze_table: bronze_orders}
//	        rules:
//	          - {name: id present, column: order_id, type: not_null, severity: error}
//	    triggers:
//	      - {name: nightly, type: scheduled, cron: "0 2 * * *"}
//	      - {name: after customers, type: dependency, depends_on: customers}
type Manifest struct {
	Workflows []WorkflowSpec `yaml:"workflows"`
}

type WorkflowSpec struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description,omitempty"`
	Mode        domain.WorkflowMode `yaml:"mode,omitempty"`
	Jobs        []JobSpec           `yaml:"jobs,omitempty"`
	Triggers    []TriggerSpec       `yaml:"triggers,omitempty"`
}

type JobSpec struct {
	Name   string           `yaml:"name"`
	Type   domain.JobType   `yaml:"type"`
	Order  *int             `yaml:"order,omitempty"`
	Status domain.JobStatus `yaml:"status,omitempty"`
	Config domain.JobConfig `yaml:"config"`
	Rules  []RuleSpec       `yaml:"rules,omitempty"`
}

type RuleSpec struct {
	Name     string            `yaml:"name"`
	Column   string            `yaml:"column,omitempty"`
	Type     domain.RuleType   `yaml:"type"`
	Params   domain.RuleParams `yaml:"params,omitempty"`
	Severity domain.Severity   `yaml:"severity"`
	Stage    domain.Stage      `yaml:"stage,omitempty"`
	Active   *bool             `yaml:"active,omitempty"`
}

// TriggerSpec names its upstream by workflow name. A name not declared in
// the manifest is looked up among stored workflows, then used as an id.
type TriggerSpec struct {
	Name         string                     `yaml:"name"`
	Type         domain.TriggerType         `yaml:"type"`
	Enabled      *bool                      `yaml:"enabled,omitempty"`
	Cron         string                     `yaml:"cron,omitempty"`
	Timezone     string                     `yaml:"timezone,omitempty"`
	DependsOn    string                     `yaml:"depends_on,omitempty"`
	Condition    domain.DependencyCondition `yaml:"condition,omitempty"`
	DelayMinutes int                        `yaml:"delay_minutes,omitempty"`
}

type ImportResult struct {
	Workflows []domain.Workflow
	Jobs      int
	Rules     int
	Triggers  int
}

// ParseManifest decodes and validates a manifest. Unknown keys are errors.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return Manifest{}, &domain.ConfigurationError{Field: "workflows", Reason: "manifest is empty"}
		}
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate performs every check that does not need the store. Cron
// expressions and dependency cycles are checked at import.
func (m Manifest) Validate() error {
	if len(m.Workflows) == 0 {
		return &domain.ConfigurationError{Field: "workflows", Reason: "at least one workflow required"}
	}
	names := make(map[string]bool, len(m.Workflows))
	for i, wf := range m.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("workflows[%d]: %w", i, &domain.ConfigurationError{Field: "name", Reason: "required"})
		}
		if names[wf.Name] {
			return fmt.Errorf("workflows[%d]: %w", i, &domain.ConfigurationError{Field: "name", Reason: fmt.Sprintf("duplicate workflow %q", wf.Name)})
		}
		names[wf.Name] = true
		if wf.Mode != "" && !wf.Mode.Valid() {
			return fmt.Errorf("workflow %q: %w", wf.Name, &domain.ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", wf.Mode)})
		}

		jobs := make(map[string]bool, len(wf.Jobs))
		for j, job := range wf.Jobs {
			if job.Name == "" {
				return fmt.Errorf("workflow %q jobs[%d]: %w", wf.Name, j, &domain.ConfigurationError{Field: "name", Reason: "required"})
			}
			if jobs[job.Name] {
				return fmt.Errorf("workflow %q: %w", wf.Name, &domain.ConfigurationError{Field: "jobs", Reason: fmt.Sprintf("duplicate job %q", job.Name)})
			}
			jobs[job.Name] = true
			if err := job.Config.Validate(job.Type); err != nil {
				return fmt.Errorf("job %q: %w", job.Name, err)
			}
			for k, r := range job.Rules {
				if err := quality.ValidateRule(r.rule("")); err != nil {
					return fmt.Errorf("job %q rules[%d]: %w", job.Name, k, err)
				}
			}
		}

		for k, t := range wf.Triggers {
			switch t.Type {
			case domain.TriggerTypeScheduled:
				if t.Cron == "" {
					return fmt.Errorf("workflow %q triggers[%d]: %w", wf.Name, k, &domain.ConfigurationError{Field: "cron", Reason: "required"})
				}
			case domain.TriggerTypeDependency:
				if t.DependsOn == "" {
					return fmt.Errorf("workflow %q triggers[%d]: %w", wf.Name, k, &domain.ConfigurationError{Field: "depends_on", Reason: "required"})
				}
				if t.DependsOn == wf.Name {
					return fmt.Errorf("workflow %q triggers[%d]: %w", wf.Name, k, &domain.ConfigurationError{Field: "depends_on", Reason: "workflow cannot depend on itself"})
				}
			case domain.TriggerTypeManual:
			default:
				return fmt.Errorf("workflow %q triggers[%d]: %w", wf.Name, k, &domain.ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown trigger type %q", t.Type)})
			}
		}
	}
	return nil
}

func (r RuleSpec) rule(jobID string) domain.QualityRule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.QualityRule{
		JobID:    jobID,
		Name:     r.Name,
		Column:   r.Column,
		Type:     r.Type,
		Params:   r.Params,
		Severity: r.Severity,
		Stage:    r.Stage,
		Active:   active,
	}
}

// Import creates everything the manifest declares. Workflows, jobs and
// rules go first so dependency triggers can refer to workflows declared
// later in the file. Import stops at the first error and reports what was
// created up to that point.
func (c *Catalog) Import(ctx context.Context, m Manifest) (ImportResult, error) {
	var res ImportResult
	if err := m.Validate(); err != nil {
		return res, err
	}

	ids := make(map[string]string, len(m.Workflows))
	for _, spec := range m.Workflows {
		wf, err := c.CreateWorkflow(ctx, domain.Workflow{Name: spec.Name, Description: spec.Description, Mode: spec.Mode})
		if err != nil {
			return res, fmt.Errorf("workflow %q: %w", spec.Name, err)
		}
		ids[spec.Name] = wf.ID
		res.Workflows = append(res.Workflows, wf)

		for _, js := range spec.Jobs {
			order := -1
			if js.Order != nil {
				order = *js.Order
			}
			job, err := c.CreateJob(ctx, domain.Job{
				WorkflowID: wf.ID,
				Name:       js.Name,
				OrderIndex: order,
				Type:       js.Type,
				Status:     js.Status,
				Config:     js.Config,
			})
			if err != nil {
				return res, fmt.Errorf("job %q: %w", js.Name, err)
			}
			res.Jobs++
			for _, rs := range js.Rules {
				if _, err := c.CreateRule(ctx, rs.rule(job.ID)); err != nil {
					return res, fmt.Errorf("job %q rule %q: %w", js.Name, rs.Name, err)
				}
				res.Rules++
			}
		}
	}

	for _, spec := range m.Workflows {
		for _, ts := range spec.Triggers {
			t := domain.Trigger{
				WorkflowID:     ids[spec.Name],
				Name:           ts.Name,
				Type:           ts.Type,
				Enabled:        ts.Enabled == nil || *ts.Enabled,
				CronExpression: ts.Cron,
				Timezone:       ts.Timezone,
				Condition:      ts.Condition,
				DelayMinutes:   ts.DelayMinutes,
			}
			if ts.Type == domain.TriggerTypeDependency {
				upstream, err := c.resolveWorkflow(ctx, ts.DependsOn, ids)
				if err != nil {
					return res, fmt.Errorf("workflow %q trigger %q: %w", spec.Name, ts.Name, err)
				}
				t.DependsOnWorkflowID = upstream
			}
			if _, err := c.triggers.CreateTrigger(ctx, t); err != nil {
				return res, fmt.Errorf("workflow %q trigger %q: %w", spec.Name, ts.Name, err)
			}
			res.Triggers++
		}
	}

	log.Printf("catalog: imported workflows=%d jobs=%d rules=%d triggers=%d",
		len(res.Workflows), res.Jobs, res.Rules, res.Triggers)
	return res, nil
}

func (c *Catalog) resolveWorkflow(ctx context.Context, ref string, declared map[string]string) (string, error) {
	if id, ok := declared[ref]; ok {
		return id, nil
	}
	wfs, err := c.store.ListWorkflows(ctx)
	if err != nil {
		return "", fmt.Errorf("list workflows: %w", err)
	}
	for _, wf := range wfs {
		if wf.Name == ref || wf.ID == ref {
			return wf.ID, nil
		}
	}
	return ref, nil
}
