// Package store defines the persistence contract shared by the Postgres and
// in-memory execution stores.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateExecution is returned when an execution with the same
	// dedup key already exists.
	ErrDuplicateExecution = errors.New("duplicate execution")

	// ErrDuplicateDependency is returned when a dependency trigger for the
	// same (workflow, upstream) pair already exists.
	ErrDuplicateDependency = errors.New("dependency trigger already exists for workflow and upstream")

	ErrDuplicateName  = errors.New("name already used in workflow")
	ErrDuplicateOrder = errors.New("order index already used in workflow")

	// ErrStatusTransitionDenied is returned by mutations that would move a
	// record out of a terminal state.
	ErrStatusTransitionDenied = errors.New("status transition denied: record is terminal")
)

// Mutation functions run under the record's lock. Returning an error aborts
// the update and is passed back to the caller unchanged.
type (
	ExecutionMutation    func(*domain.Execution) error
	JobExecutionMutation func(*domain.JobExecution) error
	TriggerMutation      func(*domain.Trigger) error
	RuleMutation         func(*domain.QualityRule) error
)

// Store is the full persistence surface. Consumers depend on narrower
// interfaces declared in their own packages.
type Store interface {
	CreateWorkflow(ctx context.Context, wf domain.Workflow) error
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
	SetWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus) error
	DeleteWorkflow(ctx context.Context, id string) error

	CreateJob(ctx context.Context, job domain.Job) error
	GetJob(ctx context.Context, id string) (domain.Job, error)
	DeleteJob(ctx context.Context, id string) error

	CreateTrigger(ctx context.Context, t domain.Trigger) error
	GetTrigger(ctx context.Context, id string) (domain.Trigger, error)
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)
	ListDependencyTriggers(ctx context.Context) ([]domain.Trigger, error)
	ListDueTriggers(ctx context.Context, now time.Time) ([]domain.Trigger, error)
	UpdateTrigger(ctx context.Context, id string, mutate TriggerMutation) (domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error

	InsertExecution(ctx context.Context, exec domain.Execution) error
	GetExecution(ctx context.Context, id string) (domain.Execution, error)
	ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]domain.Execution, error)
	UpdateExecution(ctx context.Context, id string, mutate ExecutionMutation) (domain.Execution, error)
	ListPendingExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.Execution, error)
	ListTriggerExecutions(ctx context.Context, triggerID string, limit int) ([]domain.Execution, error)
	ListFinishedExecutions(ctx context.Context, since time.Time, limit int) ([]domain.Execution, error)
	ExecutionExists(ctx context.Context, dedupKey string) (bool, error)

	InsertJobExecution(ctx context.Context, je domain.JobExecution) error
	GetJobExecution(ctx context.Context, id string) (domain.JobExecution, error)
	ListJobExecutions(ctx context.Context, executionID string) ([]domain.JobExecution, error)
	UpdateJobExecution(ctx context.Context, id string, mutate JobExecutionMutation) (domain.JobExecution, error)
	ListStuckJobExecutions(ctx context.Context, olderThan time.Time, limit int) ([]domain.JobExecution, error)

	CreateRule(ctx context.Context, rule domain.QualityRule) error
	GetRule(ctx context.Context, id string) (domain.QualityRule, error)
	UpdateRule(ctx context.Context, id string, mutate RuleMutation) (domain.QualityRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, jobID string) ([]domain.QualityRule, error)
	ListActiveRules(ctx context.Context, jobID string, stage domain.Stage) ([]domain.QualityRule, error)

	InsertRuleExecution(ctx context.Context, re domain.RuleExecution) error
	ListRuleExecutions(ctx context.Context, jobExecutionID string) ([]domain.RuleExecution, error)

	InsertQuarantineRecords(ctx context.Context, records []domain.QuarantineRecord) error
	ListQuarantineRecords(ctx context.Context, filter QuarantineFilter) ([]domain.QuarantineRecord, error)
	ReviewQuarantineRecord(ctx context.Context, id string, status domain.ReviewStatus, reviewer string, at time.Time) (domain.QuarantineRecord, error)

	FindProcessedFile(ctx context.Context, sourceID, contentHash string) (domain.FileProcessingLog, bool, error)
	InsertFileLog(ctx context.Context, f domain.FileProcessingLog) error
	CompleteFileLog(ctx context.Context, id string, status domain.FileStatus, records int64, at time.Time) error
}

// QuarantineFilter selects quarantine records. Empty fields match everything.
type QuarantineFilter struct {
	JobExecutionID  string
	RuleExecutionID string
	Status          domain.ReviewStatus
	Limit           int
	Offset          int
}

// DefaultLimit applies when a list call passes a non-positive limit.
const DefaultLimit = 100

// Page clamps a slice to [offset, offset+limit).
func Page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
