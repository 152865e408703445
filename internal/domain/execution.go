package domain

import "time"

type Stage string

const (
	StageBronze Stage = "bronze"
	StageSilver Stage = "silver"
	StageGold   Stage = "gold"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StageBronze, StageSilver, StageGold}

func (s Stage) Valid() bool {
	return s == StageBronze || s == StageSilver || s == StageGold
}

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

type TriggerKind string

const (
	TriggerKindManual     TriggerKind = "manual"
	TriggerKindScheduled  TriggerKind = "scheduled"
	TriggerKindDependency TriggerKind = "dependency"
	TriggerKindIngest     TriggerKind = "ingest"
)

// Execution is one run of a workflow. TriggerID is empty for manual runs.
type Execution struct {
	ID         string
	WorkflowID string

	TriggerID           string
	TriggerKind         TriggerKind
	UpstreamExecutionID string
	DedupKey            string // unique when non-empty

	// ScopeJobID limits the run to a single job (ingest runs).
	ScopeJobID string
	InputRef   string
	FileLogID  string

	Status ExecutionStatus

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Duration    time.Duration
}

type JobExecutionStatus string

const (
	JobExecutionStatusPending   JobExecutionStatus = "pending"
	JobExecutionStatusRunning   JobExecutionStatus = "running"
	JobExecutionStatusCompleted JobExecutionStatus = "completed"
	JobExecutionStatusFailed    JobExecutionStatus = "failed"
	JobExecutionStatusCancelled JobExecutionStatus = "cancelled"
)

func (s JobExecutionStatus) Terminal() bool {
	return s == JobExecutionStatusCompleted || s == JobExecutionStatusFailed || s == JobExecutionStatusCancelled
}

// StageValidation summarizes the quality verdict attached to one stage of a run.
type StageValidation struct {
	Stage            Stage    `json:"stage"`
	Passed           bool     `json:"passed"`
	Errors           int      `json:"errors"`
	Warnings         int      `json:"warnings"`
	Infos            int      `json:"infos"`
	Quarantined      int64    `json:"quarantined"`
	RuleExecutionIDs []string `json:"rule_execution_ids,omitempty"`
}

type JobExecution struct {
	ID          string
	ExecutionID string
	JobID       string

	Status       JobExecutionStatus
	CurrentStage Stage
	FailedStage  Stage

	BronzeRecords int64
	SilverRecords int64
	GoldRecords   int64

	BronzeRef string
	SilverRef string
	GoldRef   string

	ValidationResults  []StageValidation
	QuarantinedRecords int64
	Logs               []string

	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// RecordStage fills the count and output reference for a finished stage.
func (je *JobExecution) RecordStage(stage Stage, ref string, records int64) {
	switch stage {
	case StageBronze:
		je.BronzeRef, je.BronzeRecords = ref, records
	case StageSilver:
		je.SilverRef, je.SilverRecords = ref, records
	case StageGold:
		je.GoldRef, je.GoldRecords = ref, records
	}
}

// Records returns the count of the furthest stage that produced output.
func (je JobExecution) Records() int64 {
	switch {
	case je.GoldRecords > 0:
		return je.GoldRecords
	case je.SilverRecords > 0:
		return je.SilverRecords
	default:
		return je.BronzeRecords
	}
}

// Logf appends a timestamped line to the job execution log.
func (je *JobExecution) Logf(at time.Time, line string) {
	je.Logs = append(je.Logs, at.UTC().Format(time.RFC3339)+" "+line)
}

// DeriveExecutionStatus aggregates JobExecution states into the Execution
// status. An execution with no job executions is completed.
func DeriveExecutionStatus(jobs []JobExecution) ExecutionStatus {
	var failed, open, cancelled bool
	for _, je := range jobs {
		switch je.Status {
		case JobExecutionStatusFailed:
			failed = true
		case JobExecutionStatusCancelled:
			cancelled = true
		case JobExecutionStatusPending, JobExecutionStatusRunning:
			open = true
		}
	}
	switch {
	case failed:
		return ExecutionStatusFailed
	case open:
		return ExecutionStatusRunning
	case cancelled:
		return ExecutionStatusCancelled
	default:
		return ExecutionStatusCompleted
	}
}

// ExecutionMetrics are the aggregate counters shown for one execution.
type ExecutionMetrics struct {
	TotalJobs        int   `json:"total_jobs"`
	CompletedJobs    int   `json:"completed_jobs"`
	FailedJobs       int   `json:"failed_jobs"`
	RunningJobs      int   `json:"running_jobs"`
	PendingJobs      int   `json:"pending_jobs"`
	CancelledJobs    int   `json:"cancelled_jobs"`
	RecordsProcessed int64 `json:"records_processed"`
	Quarantined      int64 `json:"quarantined_records"`
}

func AggregateExecutionMetrics(jobs []JobExecution) ExecutionMetrics {
	m := ExecutionMetrics{TotalJobs: len(jobs)}
	for _, je := range jobs {
		switch je.Status {
		case JobExecutionStatusCompleted:
			m.CompletedJobs++
		case JobExecutionStatusFailed:
			m.FailedJobs++
		case JobExecutionStatusRunning:
			m.RunningJobs++
		case JobExecutionStatusPending:
			m.PendingJobs++
		case JobExecutionStatusCancelled:
			m.CancelledJobs++
		}
		m.RecordsProcessed += je.Records()
		m.Quarantined += je.QuarantinedRecords
	}
	return m
}
