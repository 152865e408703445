// Package memory is an in-process execution store backed by go-memdb.
// Reads run on immutable snapshots; each mutation runs in its own write
// transaction so read-modify-write cycles never lose updates.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	db    *memdb.MemDB
	clock func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for UpdatedAt stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

func New(opts ...Option) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("memory: build schema: %w", err)
	}
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) now() time.Time { return s.clock().UTC() }

func first[T any](txn *memdb.Txn, table, index string, args ...interface{}) (*T, error) {
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, store.ErrNotFound
	}
	return raw.(*T), nil
}

func all[T any](txn *memdb.Txn, table, index string, args ...interface{}) ([]*T, error) {
	it, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, err
	}
	var out []*T
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*T))
	}
	return out, nil
}

// Workflows

func (s *Store) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := first[domain.Workflow](txn, tableWorkflows, "id", wf.ID); err == nil {
		return fmt.Errorf("workflow %s already exists", wf.ID)
	}
	wf.Jobs = nil
	if err := txn.Insert(tableWorkflows, &wf); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	txn := s.db.Txn(false)
	wf, err := first[domain.Workflow](txn, tableWorkflows, "id", id)
	if err != nil {
		return domain.Workflow{}, err
	}
	jobs, err := all[domain.Job](txn, tableJobs, "workflow", id)
	if err != nil {
		return domain.Workflow{}, err
	}
	out := *wf
	out.Jobs = make([]domain.Job, 0, len(jobs))
	for _, j := range jobs {
		out.Jobs = append(out.Jobs, copyJob(*j))
	}
	sort.Slice(out.Jobs, func(a, b int) bool { return out.Jobs[a].OrderIndex < out.Jobs[b].OrderIndex })
	return out, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	txn := s.db.Txn(false)
	wfs, err := all[domain.Workflow](txn, tableWorkflows, "id_prefix", "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Workflow, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, *wf)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	wf, err := first[domain.Workflow](txn, tableWorkflows, "id", id)
	if err != nil {
		return err
	}
	updated := *wf
	updated.Status = status
	updated.UpdatedAt = s.now()
	if err := txn.Insert(tableWorkflows, &updated); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// DeleteWorkflow removes the workflow with its jobs, triggers, rules,
// executions and job executions. Rule executions and quarantine records
// are weak references and are kept.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	wf, err := first[domain.Workflow](txn, tableWorkflows, "id", id)
	if err != nil {
		return err
	}
	jobs, err := all[domain.Job](txn, tableJobs, "workflow", id)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := deleteJobTxn(txn, j); err != nil {
			return err
		}
	}
	if _, err := txn.DeleteAll(tableTriggers, "workflow", id); err != nil {
		return err
	}
	execs, err := all[domain.Execution](txn, tableExecutions, "workflow", id)
	if err != nil {
		return err
	}
	for _, e := range execs {
		if _, err := txn.DeleteAll(tableJobExecutions, "execution", e.ID); err != nil {
			return err
		}
		if err := txn.Delete(tableExecutions, e); err != nil {
			return err
		}
	}
	if err := txn.Delete(tableWorkflows, wf); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Jobs

func (s *Store) CreateJob(ctx context.Context, job domain.Job) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := first[domain.Workflow](txn, tableWorkflows, "id", job.WorkflowID); err != nil {
		return fmt.Errorf("workflow %s: %w", job.WorkflowID, err)
	}
	siblings, err := all[domain.Job](txn, tableJobs, "workflow", job.WorkflowID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.Name == job.Name {
			return store.ErrDuplicateName
		}
		if sib.OrderIndex == job.OrderIndex {
			return store.ErrDuplicateOrder
		}
	}
	cp := copyJob(job)
	if err := txn.Insert(tableJobs, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, error) {
	j, err := first[domain.Job](s.db.Txn(false), tableJobs, "id", id)
	if err != nil {
		return domain.Job{}, err
	}
	return copyJob(*j), nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	j, err := first[domain.Job](txn, tableJobs, "id", id)
	if err != nil {
		return err
	}
	if err := deleteJobTxn(txn, j); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func deleteJobTxn(txn *memdb.Txn, j *domain.Job) error {
	if _, err := txn.DeleteAll(tableJobExecutions, "job", j.ID); err != nil {
		return err
	}
	if _, err := txn.DeleteAll(tableRules, "job", j.ID); err != nil {
		return err
	}
	return txn.Delete(tableJobs, j)
}

// Triggers

func (s *Store) CreateTrigger(ctx context.Context, t domain.Trigger) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := first[domain.Workflow](txn, tableWorkflows, "id", t.WorkflowID); err != nil {
		return fmt.Errorf("workflow %s: %w", t.WorkflowID, err)
	}
	if t.Type == domain.TriggerTypeDependency {
		existing, err := all[domain.Trigger](txn, tableTriggers, "workflow", t.WorkflowID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Type == domain.TriggerTypeDependency && e.DependsOnWorkflowID == t.DependsOnWorkflowID {
				return store.ErrDuplicateDependency
			}
		}
	}
	cp := copyTrigger(t)
	if err := txn.Insert(tableTriggers, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetTrigger(ctx context.Context, id string) (domain.Trigger, error) {
	t, err := first[domain.Trigger](s.db.Txn(false), tableTriggers, "id", id)
	if err != nil {
		return domain.Trigger{}, err
	}
	return copyTrigger(*t), nil
}

func (s *Store) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	ts, err := all[domain.Trigger](s.db.Txn(false), tableTriggers, "workflow", workflowID)
	if err != nil {
		return nil, err
	}
	return sortedTriggers(ts), nil
}

func (s *Store) ListDependencyTriggers(ctx context.Context) ([]domain.Trigger, error) {
	ts, err := all[domain.Trigger](s.db.Txn(false), tableTriggers, "type", string(domain.TriggerTypeDependency))
	if err != nil {
		return nil, err
	}
	return sortedTriggers(ts), nil
}

func (s *Store) ListDueTriggers(ctx context.Context, now time.Time) ([]domain.Trigger, error) {
	ts, err := all[domain.Trigger](s.db.Txn(false), tableTriggers, "type", string(domain.TriggerTypeScheduled))
	if err != nil {
		return nil, err
	}
	var due []*domain.Trigger
	for _, t := range ts {
		if t.Enabled && t.NextRunAt != nil && !t.NextRunAt.After(now) {
			due = append(due, t)
		}
	}
	return sortedTriggers(due), nil
}

func (s *Store) UpdateTrigger(ctx context.Context, id string, mutate store.TriggerMutation) (domain.Trigger, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	t, err := first[domain.Trigger](txn, tableTriggers, "id", id)
	if err != nil {
		return domain.Trigger{}, err
	}
	updated := copyTrigger(*t)
	if err := mutate(&updated); err != nil {
		return domain.Trigger{}, err
	}
	updated.ID, updated.WorkflowID, updated.Type = t.ID, t.WorkflowID, t.Type
	if updated.Type == domain.TriggerTypeDependency && updated.DependsOnWorkflowID != t.DependsOnWorkflowID {
		siblings, err := all[domain.Trigger](txn, tableTriggers, "workflow", t.WorkflowID)
		if err != nil {
			return domain.Trigger{}, err
		}
		for _, e := range siblings {
			if e.ID != t.ID && e.Type == domain.TriggerTypeDependency && e.DependsOnWorkflowID == updated.DependsOnWorkflowID {
				return domain.Trigger{}, store.ErrDuplicateDependency
			}
		}
	}
	updated.UpdatedAt = s.now()
	if err := txn.Insert(tableTriggers, &updated); err != nil {
		return domain.Trigger{}, err
	}
	txn.Commit()
	return copyTrigger(updated), nil
}

func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	t, err := first[domain.Trigger](txn, tableTriggers, "id", id)
	if err != nil {
		return err
	}
	if err := txn.Delete(tableTriggers, t); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func sortedTriggers(ts []*domain.Trigger) []domain.Trigger {
	out := make([]domain.Trigger, 0, len(ts))
	for _, t := range ts {
		out = append(out, copyTrigger(*t))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Executions

func (s *Store) InsertExecution(ctx context.Context, exec domain.Execution) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if exec.DedupKey != "" {
		if _, err := first[domain.Execution](txn, tableExecutions, "dedup", exec.DedupKey); err == nil {
			return store.ErrDuplicateExecution
		}
	}
	cp := copyExecution(exec)
	if err := txn.Insert(tableExecutions, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (domain.Execution, error) {
	e, err := first[domain.Execution](s.db.Txn(false), tableExecutions, "id", id)
	if err != nil {
		return domain.Execution{}, err
	}
	return copyExecution(*e), nil
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]domain.Execution, error) {
	es, err := all[domain.Execution](s.db.Txn(false), tableExecutions, "workflow", workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Execution, 0, len(es))
	for _, e := range es {
		out = append(out, copyExecution(*e))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return store.Page(out, limit, offset), nil
}

func (s *Store) UpdateExecution(ctx context.Context, id string, mutate store.ExecutionMutation) (domain.Execution, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	e, err := first[domain.Execution](txn, tableExecutions, "id", id)
	if err != nil {
		return domain.Execution{}, err
	}
	updated := copyExecution(*e)
	if err := mutate(&updated); err != nil {
		return domain.Execution{}, err
	}
	updated.ID, updated.DedupKey = e.ID, e.DedupKey
	if err := txn.Insert(tableExecutions, &updated); err != nil {
		return domain.Execution{}, err
	}
	txn.Commit()
	return copyExecution(updated), nil
}

func (s *Store) ListPendingExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Execution, error) {
	es, err := all[domain.Execution](s.db.Txn(false), tableExecutions, "status", string(domain.ExecutionStatusPending))
	if err != nil {
		return nil, err
	}
	var out []domain.Execution
	for _, e := range es {
		if e.CreatedAt.Before(olderThan) {
			out = append(out, copyExecution(*e))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return store.Page(out, limit, 0), nil
}

// ListTriggerExecutions returns the newest executions a trigger created.
func (s *Store) ListTriggerExecutions(ctx context.Context, triggerID string, limit int) ([]domain.Execution, error) {
	es, err := all[domain.Execution](s.db.Txn(false), tableExecutions, "trigger", triggerID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Execution, 0, len(es))
	for _, e := range es {
		out = append(out, copyExecution(*e))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return store.Page(out, limit, 0), nil
}

// ListFinishedExecutions returns terminal executions completed at or after
// since, oldest first.
func (s *Store) ListFinishedExecutions(ctx context.Context, since time.Time, limit int) ([]domain.Execution, error) {
	txn := s.db.Txn(false)
	var out []domain.Execution
	for _, status := range []domain.ExecutionStatus{
		domain.ExecutionStatusCompleted,
		domain.ExecutionStatusFailed,
		domain.ExecutionStatusCancelled,
	} {
		es, err := all[domain.Execution](txn, tableExecutions, "status", string(status))
		if err != nil {
			return nil, err
		}
		for _, e := range es {
			if e.CompletedAt != nil && !e.CompletedAt.Before(since) {
				out = append(out, copyExecution(*e))
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CompletedAt.Before(*out[b].CompletedAt) })
	return store.Page(out, limit, 0), nil
}

func (s *Store) ExecutionExists(ctx context.Context, dedupKey string) (bool, error) {
	_, err := first[domain.Execution](s.db.Txn(false), tableExecutions, "dedup", dedupKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Job executions

func (s *Store) InsertJobExecution(ctx context.Context, je domain.JobExecution) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := first[domain.Execution](txn, tableExecutions, "id", je.ExecutionID); err != nil {
		return fmt.Errorf("execution %s: %w", je.ExecutionID, err)
	}
	cp := copyJobExecution(je)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	if err := txn.Insert(tableJobExecutions, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetJobExecution(ctx context.Context, id string) (domain.JobExecution, error) {
	je, err := first[domain.JobExecution](s.db.Txn(false), tableJobExecutions, "id", id)
	if err != nil {
		return domain.JobExecution{}, err
	}
	return copyJobExecution(*je), nil
}

func (s *Store) ListJobExecutions(ctx context.Context, executionID string) ([]domain.JobExecution, error) {
	jes, err := all[domain.JobExecution](s.db.Txn(false), tableJobExecutions, "execution", executionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.JobExecution, 0, len(jes))
	for _, je := range jes {
		out = append(out, copyJobExecution(*je))
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt == nil || out[b].StartedAt == nil {
			return out[a].ID < out[b].ID
		}
		return out[a].StartedAt.Before(*out[b].StartedAt)
	})
	return out, nil
}

func (s *Store) UpdateJobExecution(ctx context.Context, id string, mutate store.JobExecutionMutation) (domain.JobExecution, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	je, err := first[domain.JobExecution](txn, tableJobExecutions, "id", id)
	if err != nil {
		return domain.JobExecution{}, err
	}
	updated := copyJobExecution(*je)
	if err := mutate(&updated); err != nil {
		return domain.JobExecution{}, err
	}
	updated.ID, updated.ExecutionID, updated.JobID = je.ID, je.ExecutionID, je.JobID
	updated.UpdatedAt = s.now()
	if err := txn.Insert(tableJobExecutions, &updated); err != nil {
		return domain.JobExecution{}, err
	}
	txn.Commit()
	return copyJobExecution(updated), nil
}

func (s *Store) ListStuckJobExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.JobExecution, error) {
	jes, err := all[domain.JobExecution](s.db.Txn(false), tableJobExecutions, "status", string(domain.JobExecutionStatusRunning))
	if err != nil {
		return nil, err
	}
	var out []domain.JobExecution
	for _, je := range jes {
		if je.UpdatedAt.Before(olderThan) {
			out = append(out, copyJobExecution(*je))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	return store.Page(out, limit, 0), nil
}

// Quality rules

func (s *Store) CreateRule(ctx context.Context, rule domain.QualityRule) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := first[domain.Job](txn, tableJobs, "id", rule.JobID); err != nil {
		return fmt.Errorf("job %s: %w", rule.JobID, err)
	}
	cp := copyRule(rule)
	if err := txn.Insert(tableRules, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) GetRule(ctx context.Context, id string) (domain.QualityRule, error) {
	r, err := first[domain.QualityRule](s.db.Txn(false), tableRules, "id", id)
	if err != nil {
		return domain.QualityRule{}, err
	}
	return copyRule(*r), nil
}

func (s *Store) UpdateRule(ctx context.Context, id string, mutate store.RuleMutation) (domain.QualityRule, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	r, err := first[domain.QualityRule](txn, tableRules, "id", id)
	if err != nil {
		return domain.QualityRule{}, err
	}
	updated := copyRule(*r)
	if err := mutate(&updated); err != nil {
		return domain.QualityRule{}, err
	}
	updated.ID, updated.JobID, updated.CreatedAt = r.ID, r.JobID, r.CreatedAt
	if err := txn.Insert(tableRules, &updated); err != nil {
		return domain.QualityRule{}, err
	}
	txn.Commit()
	return copyRule(updated), nil
}

// DeleteRule removes the rule. Its rule executions and quarantine records
// stay, keyed by the rule id.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	r, err := first[domain.QualityRule](txn, tableRules, "id", id)
	if err != nil {
		return err
	}
	if err := txn.Delete(tableRules, r); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) ListRules(ctx context.Context, jobID string) ([]domain.QualityRule, error) {
	rs, err := all[domain.QualityRule](s.db.Txn(false), tableRules, "job", jobID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QualityRule, 0, len(rs))
	for _, r := range rs {
		out = append(out, copyRule(*r))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *Store) ListActiveRules(ctx context.Context, jobID string, stage domain.Stage) ([]domain.QualityRule, error) {
	rules, err := s.ListRules(ctx, jobID)
	if err != nil {
		return nil, err
	}
	active := rules[:0]
	for _, r := range rules {
		if r.Active && r.Stage == stage {
			active = append(active, r)
		}
	}
	return active, nil
}

// Rule executions and quarantine

func (s *Store) InsertRuleExecution(ctx context.Context, re domain.RuleExecution) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	cp := copyRuleExecution(re)
	if err := txn.Insert(tableRuleExecutions, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) ListRuleExecutions(ctx context.Context, jobExecutionID string) ([]domain.RuleExecution, error) {
	res, err := all[domain.RuleExecution](s.db.Txn(false), tableRuleExecutions, "job_execution", jobExecutionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RuleExecution, 0, len(res))
	for _, re := range res {
		out = append(out, copyRuleExecution(*re))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ExecutedAt.Before(out[b].ExecutedAt) })
	return out, nil
}

func (s *Store) InsertQuarantineRecords(ctx context.Context, records []domain.QuarantineRecord) error {
	if len(records) == 0 {
		return nil
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	for i := range records {
		cp := copyQuarantine(records[i])
		if err := txn.Insert(tableQuarantine, &cp); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *Store) ListQuarantineRecords(ctx context.Context, filter store.QuarantineFilter) ([]domain.QuarantineRecord, error) {
	txn := s.db.Txn(false)
	var (
		rs  []*domain.QuarantineRecord
		err error
	)
	switch {
	case filter.RuleExecutionID != "":
		rs, err = all[domain.QuarantineRecord](txn, tableQuarantine, "rule_execution", filter.RuleExecutionID)
	case filter.JobExecutionID != "":
		rs, err = all[domain.QuarantineRecord](txn, tableQuarantine, "job_execution", filter.JobExecutionID)
	default:
		rs, err = all[domain.QuarantineRecord](txn, tableQuarantine, "id_prefix", "")
	}
	if err != nil {
		return nil, err
	}
	var out []domain.QuarantineRecord
	for _, r := range rs {
		if filter.JobExecutionID != "" && r.JobExecutionID != filter.JobExecutionID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, copyQuarantine(*r))
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return store.Page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) ReviewQuarantineRecord(ctx context.Context, id string, status domain.ReviewStatus, reviewer string, at time.Time) (domain.QuarantineRecord, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()
	r, err := first[domain.QuarantineRecord](txn, tableQuarantine, "id", id)
	if err != nil {
		return domain.QuarantineRecord{}, err
	}
	updated := copyQuarantine(*r)
	updated.Status = status
	updated.ReviewedBy = reviewer
	reviewedAt := at.UTC()
	updated.ReviewedAt = &reviewedAt
	if err := txn.Insert(tableQuarantine, &updated); err != nil {
		return domain.QuarantineRecord{}, err
	}
	txn.Commit()
	return copyQuarantine(updated), nil
}

// File processing log

func (s *Store) FindProcessedFile(ctx context.Context, sourceID, contentHash string) (domain.FileProcessingLog, bool, error) {
	fs, err := all[domain.FileProcessingLog](s.db.Txn(false), tableFiles, "source_hash", sourceID, contentHash)
	if err != nil {
		return domain.FileProcessingLog{}, false, err
	}
	var match *domain.FileProcessingLog
	for _, f := range fs {
		if f.Status != domain.FileStatusCompleted && f.Status != domain.FileStatusArchived {
			continue
		}
		if match == nil || f.CreatedAt.After(match.CreatedAt) {
			match = f
		}
	}
	if match == nil {
		return domain.FileProcessingLog{}, false, nil
	}
	return copyFile(*match), true, nil
}

func (s *Store) InsertFileLog(ctx context.Context, f domain.FileProcessingLog) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	cp := copyFile(f)
	if err := txn.Insert(tableFiles, &cp); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) CompleteFileLog(ctx context.Context, id string, status domain.FileStatus, records int64, at time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	f, err := first[domain.FileProcessingLog](txn, tableFiles, "id", id)
	if err != nil {
		return err
	}
	updated := copyFile(*f)
	updated.Status = status
	updated.Records = records
	completedAt := at.UTC()
	updated.CompletedAt = &completedAt
	if err := txn.Insert(tableFiles, &updated); err != nil {
		return err
	}
	txn.Commit()
	return nil
}
