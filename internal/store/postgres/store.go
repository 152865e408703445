package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL. Read-modify-write updates
// lock only the affected row (SELECT ... FOR UPDATE) for the duration of the
// mutation.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a store. A positive opTimeout bounds every statement.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// uniqueViolation maps a unique-constraint failure to the matching sentinel.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "executions_dedup_key":
		return store.ErrDuplicateExecution
	case "triggers_dependency_pair_key":
		return store.ErrDuplicateDependency
	case "jobs_workflow_name_key":
		return store.ErrDuplicateName
	case "jobs_workflow_order_key":
		return store.ErrDuplicateOrder
	}
	return err
}

func foreignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Workflows

func (s *Store) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertWorkflow,
		wf.ID, wf.Name, wf.Description, string(wf.Mode), string(wf.Status), wf.CreatedAt, wf.UpdatedAt)
	return err
}

func scanWorkflow(row scanner) (domain.Workflow, error) {
	var wf domain.Workflow
	var mode, status string
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &mode, &status, &wf.CreatedAt, &wf.UpdatedAt)
	wf.Mode, wf.Status = domain.WorkflowMode(mode), domain.WorkflowStatus(status)
	return wf, err
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, queryGetWorkflow, id))
	if err != nil {
		return domain.Workflow{}, notFound(err)
	}
	rows, err := s.db.QueryContext(ctx, queryListJobsByWorkflow, id)
	if err != nil {
		return domain.Workflow{}, err
	}
	defer rows.Close()
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return domain.Workflow{}, err
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	return wf, rows.Err()
}

func (s *Store) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, queryListWorkflows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

func (s *Store) SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.execOne(ctx, querySetWorkflowStatus, id, string(status), time.Now().UTC())
}

// DeleteWorkflow relies on ON DELETE CASCADE for jobs, triggers, executions,
// job executions and rules.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.execOne(ctx, queryDeleteWorkflow, id)
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Jobs

func (s *Store) CreateJob(ctx context.Context, job domain.Job) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cfg, err := jsonText(job.Config)
	if err != nil {
		return fmt.Errorf("encode job config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, queryInsertJob,
		job.ID, job.WorkflowID, job.Name, job.OrderIndex, string(job.Type), string(job.Status),
		cfg, job.CreatedAt, job.UpdatedAt)
	if foreignKeyViolation(err) {
		return fmt.Errorf("workflow %s: %w", job.WorkflowID, store.ErrNotFound)
	}
	return uniqueViolation(err)
}

func scanJob(row scanner) (domain.Job, error) {
	var job domain.Job
	var typ, status string
	var cfg []byte
	err := row.Scan(&job.ID, &job.WorkflowID, &job.Name, &job.OrderIndex, &typ, &status, &cfg,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return domain.Job{}, err
	}
	job.Type, job.Status = domain.JobType(typ), domain.JobStatus(status)
	if err := json.Unmarshal(cfg, &job.Config); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s config: %w", job.ID, err)
	}
	return job, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	job, err := scanJob(s.db.QueryRowContext(ctx, queryGetJob, id))
	return job, notFound(err)
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.execOne(ctx, queryDeleteJob, id)
}

// Triggers

func (s *Store) CreateTrigger(ctx context.Context, t domain.Trigger) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertTrigger,
		t.ID, t.WorkflowID, t.Name, string(t.Type), t.Enabled, t.CronExpression, t.Timezone,
		t.NextRunAt, t.LastRunAt, t.DependsOnWorkflowID, string(t.Condition), t.DelayMinutes,
		t.CreatedAt, t.UpdatedAt)
	if foreignKeyViolation(err) {
		return fmt.Errorf("workflow %s: %w", t.WorkflowID, store.ErrNotFound)
	}
	return uniqueViolation(err)
}

func scanTrigger(row scanner) (domain.Trigger, error) {
	var t domain.Trigger
	var typ, cond string
	var next, last sql.NullTime
	err := row.Scan(&t.ID, &t.WorkflowID, &t.Name, &typ, &t.Enabled, &t.CronExpression, &t.Timezone,
		&next, &last, &t.DependsOnWorkflowID, &cond, &t.DelayMinutes, &t.CreatedAt, &t.UpdatedAt)
	t.Type, t.Condition = domain.TriggerType(typ), domain.DependencyCondition(cond)
	t.NextRunAt, t.LastRunAt = timePtr(next), timePtr(last)
	return t, err
}

func (s *Store) GetTrigger(ctx context.Context, id string) (domain.Trigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	t, err := scanTrigger(s.db.QueryRowContext(ctx, queryGetTrigger, id))
	return t, notFound(err)
}

func (s *Store) queryTriggers(ctx context.Context, query string, args ...any) ([]domain.Trigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, queryListTriggers, workflowID)
}

func (s *Store) ListDependencyTriggers(ctx context.Context) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, queryListDependencyTriggers)
}

func (s *Store) ListDueTriggers(ctx context.Context, now time.Time) ([]domain.Trigger, error) {
	return s.queryTriggers(ctx, queryListDueTriggers, now)
}

// UpdateTrigger holds the trigger's row lock while mutate runs, so a
// concurrent enable/disable and a scheduler claim serialize on the row.
func (s *Store) UpdateTrigger(ctx context.Context, id string, mutate store.TriggerMutation) (domain.Trigger, error) {
	var out domain.Trigger
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTrigger(tx.QueryRowContext(ctx, queryLockTrigger, id))
		if err != nil {
			return notFound(err)
		}
		if err := mutate(&t); err != nil {
			return err
		}
		t.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, queryUpdateTrigger,
			id, t.Name, t.Enabled, t.CronExpression, t.Timezone, t.NextRunAt, t.LastRunAt,
			string(t.Condition), t.DelayMinutes, t.UpdatedAt, t.DependsOnWorkflowID)
		out = t
		return uniqueViolation(err)
	})
	return out, err
}

func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.execOne(ctx, queryDeleteTrigger, id)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Executions

// InsertExecution returns store.ErrDuplicateExecution when the dedup key
// is already taken.
func (s *Store) InsertExecution(ctx context.Context, e domain.Execution) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertExecution,
		e.ID, e.WorkflowID, e.TriggerID, string(e.TriggerKind), e.UpstreamExecutionID, e.DedupKey,
		e.ScopeJobID, e.InputRef, e.FileLogID, string(e.Status), e.CreatedAt, e.StartedAt,
		e.CompletedAt, e.Duration.Milliseconds())
	return uniqueViolation(err)
}

func scanExecution(row scanner) (domain.Execution, error) {
	var e domain.Execution
	var kind, status string
	var started, completed sql.NullTime
	var durationMs int64
	err := row.Scan(&e.ID, &e.WorkflowID, &e.TriggerID, &kind, &e.UpstreamExecutionID, &e.DedupKey,
		&e.ScopeJobID, &e.InputRef, &e.FileLogID, &status, &e.CreatedAt, &started, &completed, &durationMs)
	e.TriggerKind, e.Status = domain.TriggerKind(kind), domain.ExecutionStatus(status)
	e.StartedAt, e.CompletedAt = timePtr(started), timePtr(completed)
	e.Duration = time.Duration(durationMs) * time.Millisecond
	return e, err
}

func (s *Store) GetExecution(ctx context.Context, id string) (domain.Execution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	e, err := scanExecution(s.db.QueryRowContext(ctx, queryGetExecution, id))
	return e, notFound(err)
}

func (s *Store) queryExecutions(ctx context.Context, query string, args ...any) ([]domain.Execution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return s.queryExecutions(ctx, queryListExecutions, workflowID, limit, offset)
}

func (s *Store) UpdateExecution(ctx context.Context, id string, mutate store.ExecutionMutation) (domain.Execution, error) {
	var out domain.Execution
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		e, err := scanExecution(tx.QueryRowContext(ctx, queryLockExecution, id))
		if err != nil {
			return notFound(err)
		}
		if err := mutate(&e); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, queryUpdateExecution,
			id, string(e.Status), e.StartedAt, e.CompletedAt, e.Duration.Milliseconds(), e.FileLogID)
		out = e
		return err
	})
	return out, err
}

func (s *Store) ListPendingExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return s.queryExecutions(ctx, queryListPendingExecutions, olderThan, limit)
}

func (s *Store) ListTriggerExecutions(ctx context.Context, triggerID string, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return s.queryExecutions(ctx, queryListTriggerExecutions, triggerID, limit)
}

func (s *Store) ListFinishedExecutions(ctx context.Context, since time.Time, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return s.queryExecutions(ctx, queryListFinishedExecutions, since, limit)
}

func (s *Store) ExecutionExists(ctx context.Context, dedupKey string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var exists bool
	err := s.db.QueryRowContext(ctx, queryExecutionExists, dedupKey).Scan(&exists)
	return exists, err
}

// Job executions

func jobExecutionArgs(je domain.JobExecution) ([]any, error) {
	vr, err := jsonText(je.ValidationResults)
	if err != nil {
		return nil, err
	}
	logs, err := jsonText(je.Logs)
	if err != nil {
		return nil, err
	}
	return []any{
		je.ID, je.ExecutionID, je.JobID, string(je.Status), string(je.CurrentStage), string(je.FailedStage),
		je.BronzeRecords, je.SilverRecords, je.GoldRecords, je.BronzeRef, je.SilverRef, je.GoldRef,
		vr, je.QuarantinedRecords, logs, je.StartedAt, je.CompletedAt, je.UpdatedAt,
	}, nil
}

func (s *Store) InsertJobExecution(ctx context.Context, je domain.JobExecution) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if je.UpdatedAt.IsZero() {
		je.UpdatedAt = time.Now().UTC()
	}
	args, err := jobExecutionArgs(je)
	if err != nil {
		return fmt.Errorf("encode job execution: %w", err)
	}
	_, err = s.db.ExecContext(ctx, queryInsertJobExecution, args...)
	if foreignKeyViolation(err) {
		return fmt.Errorf("execution %s: %w", je.ExecutionID, store.ErrNotFound)
	}
	return err
}

func scanJobExecution(row scanner) (domain.JobExecution, error) {
	var je domain.JobExecution
	var status, current, failed string
	var vr, logs []byte
	var started, completed sql.NullTime
	err := row.Scan(&je.ID, &je.ExecutionID, &je.JobID, &status, &current, &failed,
		&je.BronzeRecords, &je.SilverRecords, &je.GoldRecords, &je.BronzeRef, &je.SilverRef, &je.GoldRef,
		&vr, &je.QuarantinedRecords, &logs, &started, &completed, &je.UpdatedAt)
	if err != nil {
		return domain.JobExecution{}, err
	}
	je.Status = domain.JobExecutionStatus(status)
	je.CurrentStage, je.FailedStage = domain.Stage(current), domain.Stage(failed)
	je.StartedAt, je.CompletedAt = timePtr(started), timePtr(completed)
	if err := json.Unmarshal(vr, &je.ValidationResults); err != nil {
		return domain.JobExecution{}, fmt.Errorf("decode validation results: %w", err)
	}
	if err := json.Unmarshal(logs, &je.Logs); err != nil {
		return domain.JobExecution{}, fmt.Errorf("decode logs: %w", err)
	}
	return je, nil
}

func (s *Store) GetJobExecution(ctx context.Context, id string) (domain.JobExecution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	je, err := scanJobExecution(s.db.QueryRowContext(ctx, queryGetJobExecution, id))
	return je, notFound(err)
}

func (s *Store) queryJobExecutions(ctx context.Context, query string, args ...any) ([]domain.JobExecution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.JobExecution
	for rows.Next() {
		je, err := scanJobExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, rows.Err()
}

func (s *Store) ListJobExecutions(ctx context.Context, executionID string) ([]domain.JobExecution, error) {
	return s.queryJobExecutions(ctx, queryListJobExecutions, executionID)
}

// UpdateJobExecution locks only this job execution's row; sibling job
// executions of the same execution update concurrently.
func (s *Store) UpdateJobExecution(ctx context.Context, id string, mutate store.JobExecutionMutation) (domain.JobExecution, error) {
	var out domain.JobExecution
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		je, err := scanJobExecution(tx.QueryRowContext(ctx, queryLockJobExecution, id))
		if err != nil {
			return notFound(err)
		}
		if err := mutate(&je); err != nil {
			return err
		}
		je.UpdatedAt = time.Now().UTC()
		vr, err := jsonText(je.ValidationResults)
		if err != nil {
			return err
		}
		logs, err := jsonText(je.Logs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, queryUpdateJobExecution,
			id, string(je.Status), string(je.CurrentStage), string(je.FailedStage),
			je.BronzeRecords, je.SilverRecords, je.GoldRecords, je.BronzeRef, je.SilverRef, je.GoldRef,
			vr, je.QuarantinedRecords, logs, je.StartedAt, je.CompletedAt, je.UpdatedAt)
		out = je
		return err
	})
	return out, err
}

func (s *Store) ListStuckJobExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.JobExecution, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	return s.queryJobExecutions(ctx, queryListStuckJobExecutions, olderThan, limit)
}

// Quality rules

func (s *Store) CreateRule(ctx context.Context, r domain.QualityRule) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	params, err := jsonText(r.Params)
	if err != nil {
		return fmt.Errorf("encode rule params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, queryInsertRule,
		r.ID, r.JobID, r.Name, r.Column, string(r.Type), params, string(r.Severity), string(r.Stage),
		r.Active, r.CreatedAt)
	if foreignKeyViolation(err) {
		return fmt.Errorf("job %s: %w", r.JobID, store.ErrNotFound)
	}
	return err
}

func scanRule(row scanner) (domain.QualityRule, error) {
	var r domain.QualityRule
	var typ, severity, stage string
	var params []byte
	if err := row.Scan(&r.ID, &r.JobID, &r.Name, &r.Column, &typ, &params, &severity, &stage,
		&r.Active, &r.CreatedAt); err != nil {
		return domain.QualityRule{}, err
	}
	r.Type, r.Severity, r.Stage = domain.RuleType(typ), domain.Severity(severity), domain.Stage(stage)
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return domain.QualityRule{}, fmt.Errorf("decode rule %s params: %w", r.ID, err)
	}
	return r, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (domain.QualityRule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	r, err := scanRule(s.db.QueryRowContext(ctx, queryGetRule, id))
	return r, notFound(err)
}

func (s *Store) UpdateRule(ctx context.Context, id string, mutate store.RuleMutation) (domain.QualityRule, error) {
	var out domain.QualityRule
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := scanRule(tx.QueryRowContext(ctx, queryLockRule, id))
		if err != nil {
			return notFound(err)
		}
		if err := mutate(&r); err != nil {
			return err
		}
		params, err := jsonText(r.Params)
		if err != nil {
			return fmt.Errorf("encode rule params: %w", err)
		}
		_, err = tx.ExecContext(ctx, queryUpdateRule,
			id, r.Name, r.Column, string(r.Type), params, string(r.Severity), string(r.Stage), r.Active)
		out = r
		return err
	})
	return out, err
}

// DeleteRule leaves rule executions and quarantine records in place; they
// reference the rule by id only.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.execOne(ctx, queryDeleteRule, id)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]domain.QualityRule, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.QualityRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListRules(ctx context.Context, jobID string) ([]domain.QualityRule, error) {
	return s.queryRules(ctx, queryListRules, jobID)
}

func (s *Store) ListActiveRules(ctx context.Context, jobID string, stage domain.Stage) ([]domain.QualityRule, error) {
	return s.queryRules(ctx, queryListActiveRules, jobID, string(stage))
}

// Rule executions and quarantine

func (s *Store) InsertRuleExecution(ctx context.Context, re domain.RuleExecution) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sample := re.FailedSample
	if sample == nil {
		sample = []json.RawMessage{}
	}
	sampleText, err := jsonText(sample)
	if err != nil {
		return fmt.Errorf("encode failed sample: %w", err)
	}
	_, err = s.db.ExecContext(ctx, queryInsertRuleExecution,
		re.ID, re.RuleID, re.RuleName, re.JobExecutionID, string(re.Stage), re.Column, string(re.Severity),
		string(re.Status), re.RecordsChecked, re.RecordsPassed, re.RecordsFailed, re.PassPercentage,
		sampleText, re.ErrorMessage, re.ExecutedAt)
	return err
}

func (s *Store) ListRuleExecutions(ctx context.Context, jobExecutionID string) ([]domain.RuleExecution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, queryListRuleExecutions, jobExecutionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RuleExecution
	for rows.Next() {
		var re domain.RuleExecution
		var stage, severity, status string
		var sample []byte
		if err := rows.Scan(&re.ID, &re.RuleID, &re.RuleName, &re.JobExecutionID, &stage, &re.Column,
			&severity, &status, &re.RecordsChecked, &re.RecordsPassed, &re.RecordsFailed,
			&re.PassPercentage, &sample, &re.ErrorMessage, &re.ExecutedAt); err != nil {
			return nil, err
		}
		re.Stage, re.Severity, re.Status = domain.Stage(stage), domain.Severity(severity), domain.RuleStatus(status)
		if err := json.Unmarshal(sample, &re.FailedSample); err != nil {
			return nil, fmt.Errorf("decode failed sample: %w", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

func (s *Store) InsertQuarantineRecords(ctx context.Context, records []domain.QuarantineRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, queryInsertQuarantine)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, q := range records {
			if _, err := stmt.ExecContext(ctx, q.ID, q.RuleID, q.RuleExecutionID, q.JobExecutionID,
				string(q.Payload), q.Reason, string(q.Status), q.ReviewedBy, q.ReviewedAt, q.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanQuarantine(row scanner) (domain.QuarantineRecord, error) {
	var q domain.QuarantineRecord
	var status string
	var payload []byte
	var reviewed sql.NullTime
	err := row.Scan(&q.ID, &q.RuleID, &q.RuleExecutionID, &q.JobExecutionID, &payload, &q.Reason, &status,
		&q.ReviewedBy, &reviewed, &q.CreatedAt)
	q.Payload = json.RawMessage(payload)
	q.Status = domain.ReviewStatus(status)
	q.ReviewedAt = timePtr(reviewed)
	return q, err
}

func (s *Store) ListQuarantineRecords(ctx context.Context, f store.QuarantineFilter) ([]domain.QuarantineRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, queryListQuarantine,
		f.JobExecutionID, f.RuleExecutionID, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.QuarantineRecord
	for rows.Next() {
		q, err := scanQuarantine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) ReviewQuarantineRecord(ctx context.Context, id string, status domain.ReviewStatus, reviewer string, at time.Time) (domain.QuarantineRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	q, err := scanQuarantine(s.db.QueryRowContext(ctx, queryReviewQuarantine, id, string(status), reviewer, at.UTC()))
	return q, notFound(err)
}

// File processing log

func scanFile(row scanner) (domain.FileProcessingLog, error) {
	var f domain.FileProcessingLog
	var status string
	var completed sql.NullTime
	err := row.Scan(&f.ID, &f.SourceID, &f.FileName, &f.ContentHash, &status, &f.ExecutionID, &f.Records,
		&f.CreatedAt, &completed)
	f.Status = domain.FileStatus(status)
	f.CompletedAt = timePtr(completed)
	return f, err
}

func (s *Store) FindProcessedFile(ctx context.Context, sourceID, contentHash string) (domain.FileProcessingLog, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	f, err := scanFile(s.db.QueryRowContext(ctx, queryFindProcessedFile, sourceID, contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FileProcessingLog{}, false, nil
	}
	if err != nil {
		return domain.FileProcessingLog{}, false, err
	}
	return f, true, nil
}

func (s *Store) InsertFileLog(ctx context.Context, f domain.FileProcessingLog) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, queryInsertFileLog,
		f.ID, f.SourceID, f.FileName, f.ContentHash, string(f.Status), f.ExecutionID, f.Records,
		f.CreatedAt, f.CompletedAt)
	return err
}

func (s *Store) CompleteFileLog(ctx context.Context, id string, status domain.FileStatus, records int64, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.execOne(ctx, queryCompleteFileLog, id, string(status), records, at.UTC())
}
