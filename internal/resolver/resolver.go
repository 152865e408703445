// Package resolver answers questions about the workflow dependency graph
// formed by dependency triggers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

type Store interface {
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)
	ListDependencyTriggers(ctx context.Context) ([]domain.Trigger, error)
}

// Edge is one dependency trigger seen from either end.
type Edge struct {
	TriggerID          string                     `json:"trigger_id"`
	WorkflowID         string                     `json:"workflow_id"`
	WorkflowName       string                     `json:"workflow_name"`
	UpstreamWorkflowID string                     `json:"upstream_workflow_id"`
	UpstreamName       string                     `json:"upstream_name"`
	Condition          domain.DependencyCondition `json:"condition"`
	DelayMinutes       int                        `json:"delay_minutes"`
	Enabled            bool                       `json:"enabled"`
	UpdatedAt          time.Time                  `json:"updated_at"`
}

type Graph struct {
	WorkflowID string `json:"workflow_id"`
	Upstream   []Edge `json:"upstream"`
	Downstream []Edge `json:"downstream"`
}

type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Upstream returns the enabled dependency triggers owned by workflowID.
func (r *Resolver) Upstream(ctx context.Context, workflowID string) ([]Edge, error) {
	triggers, err := r.store.ListTriggers(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	names := make(map[string]string)
	var edges []Edge
	for _, t := range triggers {
		if t.Type != domain.TriggerTypeDependency || !t.Enabled {
			continue
		}
		edges = append(edges, r.edge(ctx, t, names))
	}
	return edges, nil
}

// Downstream returns the enabled dependency triggers, from any workflow,
// that wait on workflowID.
func (r *Resolver) Downstream(ctx context.Context, workflowID string) ([]Edge, error) {
	triggers, err := r.store.ListDependencyTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dependency triggers: %w", err)
	}
	names := make(map[string]string)
	var edges []Edge
	for _, t := range triggers {
		if t.DependsOnWorkflowID != workflowID || !t.Enabled {
			continue
		}
		edges = append(edges, r.edge(ctx, t, names))
	}
	return edges, nil
}

func (r *Resolver) Graph(ctx context.Context, workflowID string) (Graph, error) {
	if _, err := r.store.GetWorkflow(ctx, workflowID); err != nil {
		return Graph{}, err
	}
	up, err := r.Upstream(ctx, workflowID)
	if err != nil {
		return Graph{}, err
	}
	down, err := r.Downstream(ctx, workflowID)
	if err != nil {
		return Graph{}, err
	}
	return Graph{WorkflowID: workflowID, Upstream: up, Downstream: down}, nil
}

func (r *Resolver) edge(ctx context.Context, t domain.Trigger, names map[string]string) Edge {
	return Edge{
		TriggerID:          t.ID,
		WorkflowID:         t.WorkflowID,
		WorkflowName:       r.name(ctx, t.WorkflowID, names),
		UpstreamWorkflowID: t.DependsOnWorkflowID,
		UpstreamName:       r.name(ctx, t.DependsOnWorkflowID, names),
		Condition:          t.Condition,
		DelayMinutes:       t.DelayMinutes,
		Enabled:            t.Enabled,
		UpdatedAt:          t.UpdatedAt,
	}
}

// name resolves a workflow name, tolerating workflows deleted concurrently.
func (r *Resolver) name(ctx context.Context, id string, cache map[string]string) string {
	if n, ok := cache[id]; ok {
		return n
	}
	wf, err := r.store.GetWorkflow(ctx, id)
	if err != nil {
		cache[id] = ""
		return ""
	}
	cache[id] = wf.Name
	return wf.Name
}

// ValidateDependency checks that workflowID may depend on upstreamID.
// Disabled triggers count: enabling one later must not close a loop.
func (r *Resolver) ValidateDependency(ctx context.Context, workflowID, upstreamID string) error {
	return r.validate(ctx, workflowID, upstreamID, "")
}

// ValidateDependencyChange checks re-pointing dependency trigger triggerID
// of workflowID at upstreamID. The trigger's current edge is ignored.
func (r *Resolver) ValidateDependencyChange(ctx context.Context, triggerID, workflowID, upstreamID string) error {
	return r.validate(ctx, workflowID, upstreamID, triggerID)
}

func (r *Resolver) validate(ctx context.Context, workflowID, upstreamID, ignoreTriggerID string) error {
	if workflowID == upstreamID {
		return &domain.CyclicDependencyError{WorkflowID: workflowID, UpstreamID: upstreamID, Chain: []string{workflowID}}
	}
	if _, err := r.store.GetWorkflow(ctx, upstreamID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &domain.ConfigurationError{Field: "depends_on_workflow_id", Reason: fmt.Sprintf("workflow %s not found", upstreamID)}
		}
		return err
	}

	dependsOn, err := r.dependsOn(ctx, ignoreTriggerID)
	if err != nil {
		return err
	}
	return checkEdge(dependsOn, workflowID, upstreamID)
}

// dependsOn maps each workflow to the workflows its dependency triggers
// wait on, skipping ignoreTriggerID.
func (r *Resolver) dependsOn(ctx context.Context, ignoreTriggerID string) (map[string][]string, error) {
	triggers, err := r.store.ListDependencyTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dependency triggers: %w", err)
	}
	out := make(map[string][]string)
	for _, t := range triggers {
		if t.ID == ignoreTriggerID {
			continue
		}
		out[t.WorkflowID] = append(out[t.WorkflowID], t.DependsOnWorkflowID)
	}
	return out, nil
}

func checkEdge(dependsOn map[string][]string, workflowID, upstreamID string) error {
	for _, up := range dependsOn[workflowID] {
		if up == upstreamID {
			return store.ErrDuplicateDependency
		}
	}
	if chain := findPath(dependsOn, upstreamID, workflowID); chain != nil {
		return &domain.CyclicDependencyError{WorkflowID: workflowID, UpstreamID: upstreamID, Chain: chain}
	}
	return nil
}

// Candidate is a workflow considered as an upstream for another one.
type Candidate struct {
	WorkflowID string                `json:"workflow_id"`
	Name       string                `json:"name"`
	Status     domain.WorkflowStatus `json:"status"`
	Valid      bool                  `json:"valid"`
	Reason     string                `json:"reason,omitempty"`
}

// AvailableUpstream lists every other workflow, sorted by name, and whether
// workflowID could depend on it today.
func (r *Resolver) AvailableUpstream(ctx context.Context, workflowID string) ([]Candidate, error) {
	if _, err := r.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	workflows, err := r.store.ListWorkflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	dependsOn, err := r.dependsOn(ctx, "")
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(workflows))
	for _, wf := range workflows {
		if wf.ID == workflowID {
			continue
		}
		c := Candidate{WorkflowID: wf.ID, Name: wf.Name, Status: wf.Status, Valid: true}
		if err := checkEdge(dependsOn, workflowID, wf.ID); err != nil {
			c.Valid, c.Reason = false, err.Error()
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// ChainNames renders a cycle chain with workflow names where they resolve.
func (r *Resolver) ChainNames(ctx context.Context, chain []string) []string {
	names := make(map[string]string)
	out := make([]string, len(chain))
	for i, id := range chain {
		if n := r.name(ctx, id, names); n != "" {
			out[i] = n
		} else {
			out[i] = id
		}
	}
	return out
}

// findPath runs a DFS along "depends on" edges and returns the first path
// from -> ... -> to, or nil.
func findPath(dependsOn map[string][]string, from, to string) []string {
	visited := make(map[string]bool)
	var path []string
	var visit func(id string) bool
	visit = func(id string) bool {
		path = append(path, id)
		if id == to {
			return true
		}
		if !visited[id] {
			visited[id] = true
			for _, next := range dependsOn[id] {
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if visit(from) {
		return path
	}
	return nil
}

// ConditionMet reports whether an upstream terminal status satisfies the
// trigger condition. Cancelled upstreams never cascade.
func ConditionMet(cond domain.DependencyCondition, status domain.ExecutionStatus) bool {
	switch cond {
	case domain.ConditionOnSuccess:
		return status == domain.ExecutionStatusCompleted
	case domain.ConditionOnCompletion:
		return status == domain.ExecutionStatusCompleted || status == domain.ExecutionStatusFailed
	case domain.ConditionOnFailure:
		return status == domain.ExecutionStatusFailed
	}
	return false
}
