package api

import (
	"encoding/json"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/catalog"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/resolver"
)

type CreateWorkflowRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Mode        domain.WorkflowMode `json:"mode,omitempty"` // default source_centric
}

type CreateJobRequest struct {
	Name       string           `json:"name"`
	Type       domain.JobType   `json:"type"`
	OrderIndex *int             `json:"order_index,omitempty"` // default: after the last job
	Status     domain.JobStatus `json:"status,omitempty"`
	Config     domain.JobConfig `json:"config"`
}

type CreateRuleRequest struct {
	Name     string            `json:"name"`
	Column   string            `json:"column"`
	Type     domain.RuleType   `json:"type"`
	Params   domain.RuleParams `json:"params"`
	Severity domain.Severity   `json:"severity"`
	Stage    domain.Stage      `json:"stage,omitempty"`  // default bronze
	Active   *bool             `json:"active,omitempty"` // default true
}

type CreateTriggerRequest struct {
	Name    string             `json:"name"`
	Type    domain.TriggerType `json:"type"`
	Enabled *bool              `json:"enabled,omitempty"` // default true

	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`

	DependsOnWorkflowID string                     `json:"depends_on_workflow_id,omitempty"`
	Condition           domain.DependencyCondition `json:"condition,omitempty"`
	DelayMinutes        int                        `json:"delay_minutes,omitempty"`
}

// UpdateRuleRequest edits a rule. Omitted fields are left unchanged.
type UpdateRuleRequest struct {
	Name     *string            `json:"name,omitempty"`
	Column   *string            `json:"column,omitempty"`
	Type     *domain.RuleType   `json:"type,omitempty"`
	Params   *domain.RuleParams `json:"params,omitempty"`
	Severity *domain.Severity   `json:"severity,omitempty"`
	Stage    *domain.Stage      `json:"stage,omitempty"`
	Active   *bool              `json:"active,omitempty"`
}

// UpdateTriggerRequest edits a trigger. Omitted fields are left unchanged;
// enabling and disabling go through their own endpoints.
type UpdateTriggerRequest struct {
	Name *string `json:"name,omitempty"`

	CronExpression *string `json:"cron_expression,omitempty"`
	Timezone       *string `json:"timezone,omitempty"`

	DependsOnWorkflowID *string                     `json:"depends_on_workflow_id,omitempty"`
	Condition           *domain.DependencyCondition `json:"condition,omitempty"`
	DelayMinutes        *int                        `json:"delay_minutes,omitempty"`
}

type ValidateDependencyRequest struct {
	DependsOnWorkflowID string `json:"depends_on_workflow_id"`
}

type ValidateDependencyResponse struct {
	Valid bool     `json:"valid"`
	Error string   `json:"error,omitempty"`
	Chain []string `json:"chain,omitempty"`
}

type IngestRequest struct {
	FileName    string `json:"file_name"`
	ContentHash string `json:"content_hash"`
	InputRef    string `json:"input_ref"`
}

type ReviewRequest struct {
	Status   domain.ReviewStatus `json:"status"`
	Reviewer string              `json:"reviewer"`
}

type WorkflowResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Mode        string        `json:"mode"`
	Status      string        `json:"status"`
	Jobs        []JobResponse `json:"jobs,omitempty"`
	CreatedAt   string        `json:"created_at"`
	UpdatedAt   string        `json:"updated_at"`
}

type JobResponse struct {
	ID         string           `json:"id"`
	WorkflowID string           `json:"workflow_id"`
	Name       string           `json:"name"`
	OrderIndex int              `json:"order_index"`
	Type       string           `json:"type"`
	Status     string           `json:"status"`
	Config     domain.JobConfig `json:"config"`
	CreatedAt  string           `json:"created_at"`
}

type RuleResponse struct {
	ID        string            `json:"id"`
	JobID     string            `json:"job_id"`
	Name      string            `json:"name"`
	Column    string            `json:"column,omitempty"`
	Type      string            `json:"type"`
	Params    domain.RuleParams `json:"params"`
	Severity  string            `json:"severity"`
	Stage     string            `json:"stage"`
	Active    bool              `json:"active"`
	CreatedAt string            `json:"created_at"`
}

type TriggerResponse struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Enabled    bool   `json:"enabled"`

	CronExpression string  `json:"cron_expression,omitempty"`
	Timezone       string  `json:"timezone,omitempty"`
	NextRunAt      *string `json:"next_run_at,omitempty"`
	LastRunAt      *string `json:"last_run_at,omitempty"`

	DependsOnWorkflowID string `json:"depends_on_workflow_id,omitempty"`
	Condition           string `json:"condition,omitempty"`
	DelayMinutes        int    `json:"delay_minutes,omitempty"`

	CreatedAt string `json:"created_at"`
}

type ExecutionResponse struct {
	ID                  string  `json:"id"`
	WorkflowID          string  `json:"workflow_id"`
	TriggerID           string  `json:"trigger_id,omitempty"`
	TriggerType         string  `json:"trigger_type"`
	UpstreamExecutionID string  `json:"upstream_execution_id,omitempty"`
	ScopeJobID          string  `json:"scope_job_id,omitempty"`
	Status              string  `json:"status"`
	CreatedAt           string  `json:"created_at"`
	StartedAt           *string `json:"started_at,omitempty"`
	CompletedAt         *string `json:"completed_at,omitempty"`
	DurationMs          int64   `json:"duration_ms,omitempty"`
}

type JobExecutionResponse struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage,omitempty"`
	FailedStage  string `json:"failed_stage,omitempty"`

	BronzeRecords int64 `json:"bronze_records"`
	SilverRecords int64 `json:"silver_records"`
	GoldRecords   int64 `json:"gold_records"`

	ValidationResults  []domain.StageValidation `json:"validation_results,omitempty"`
	QuarantinedRecords int64                    `json:"quarantined_records"`
	Logs               []string                 `json:"logs,omitempty"`

	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

type ExecutionDetailResponse struct {
	ExecutionResponse
	JobExecutions []JobExecutionResponse  `json:"job_executions"`
	Metrics       domain.ExecutionMetrics `json:"metrics"`
}

type RuleExecutionResponse struct {
	ID             string            `json:"id"`
	RuleID         string            `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	Stage          string            `json:"stage"`
	Column         string            `json:"column,omitempty"`
	Severity       string            `json:"severity"`
	Status         string            `json:"status"`
	RecordsChecked int64             `json:"records_checked"`
	RecordsPassed  int64             `json:"records_passed"`
	RecordsFailed  int64             `json:"records_failed"`
	PassPercentage float64           `json:"pass_percentage"`
	FailedSample   []json.RawMessage `json:"failed_records_sample,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ExecutedAt     string            `json:"executed_at"`
}

type QualityResponse struct {
	JobExecutionID string                  `json:"job_execution_id"`
	Summary        quality.Summary         `json:"summary"`
	Rules          []RuleExecutionResponse `json:"rules"`
}

type QuarantineRecordResponse struct {
	ID              string          `json:"id"`
	RuleID          string          `json:"rule_id"`
	RuleExecutionID string          `json:"rule_execution_id"`
	JobExecutionID  string          `json:"job_execution_id"`
	Payload         json.RawMessage `json:"record_data"`
	Reason          string          `json:"failure_reason"`
	Status          string          `json:"status"`
	ReviewedBy      string          `json:"reviewed_by,omitempty"`
	ReviewedAt      *string         `json:"reviewed_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

type FileLogResponse struct {
	ID          string  `json:"id"`
	SourceID    string  `json:"source_id"`
	FileName    string  `json:"file_name"`
	ContentHash string  `json:"content_hash"`
	Status      string  `json:"status"`
	ExecutionID string  `json:"execution_id,omitempty"`
	Records     int64   `json:"records"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// IngestResponse carries either the queued execution or, for content seen
// before, the existing file log.
type IngestResponse struct {
	Duplicate bool               `json:"duplicate"`
	Execution *ExecutionResponse `json:"execution,omitempty"`
	Existing  *FileLogResponse   `json:"existing,omitempty"`
}

type CronPreviewResponse struct {
	Expression string   `json:"expression"`
	Timezone   string   `json:"timezone"`
	Runs       []string `json:"runs"`
}

type ImportResponse struct {
	Workflows []WorkflowResponse `json:"workflows"`
	Jobs      int                `json:"jobs"`
	Rules     int                `json:"rules"`
	Triggers  int                `json:"triggers"`
}

type ListWorkflowsResponse struct {
	Workflows []WorkflowResponse `json:"workflows"`
}

type ListRulesResponse struct {
	Rules []RuleResponse `json:"rules"`
}

type ListTriggersResponse struct {
	Triggers []TriggerResponse `json:"triggers"`
}

type ListExecutionsResponse struct {
	Executions []ExecutionResponse `json:"executions"`
}

type ListQuarantineResponse struct {
	Records []QuarantineRecordResponse `json:"records"`
}

type TriggerHistoryEntry struct {
	ExecutionID string  `json:"execution_id"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	StartedAt   *string `json:"started_at,omitempty"`
	DurationMs  int64   `json:"duration_ms"`
}

type TriggerHistoryResponse struct {
	TriggerID string                `json:"trigger_id"`
	History   []TriggerHistoryEntry `json:"history"`
}

type AvailableUpstreamResponse struct {
	Workflows []resolver.Candidate `json:"workflows"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// CycleErrorResponse names the workflows that would form the loop.
type CycleErrorResponse struct {
	Error string   `json:"error"`
	Chain []string `json:"chain"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toWorkflowResponse(wf domain.Workflow) WorkflowResponse {
	resp := WorkflowResponse{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Mode:        string(wf.Mode),
		Status:      string(wf.Status),
		CreatedAt:   formatTime(wf.CreatedAt),
		UpdatedAt:   formatTime(wf.UpdatedAt),
	}
	for _, j := range wf.Jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	return resp
}

func toJobResponse(j domain.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		WorkflowID: j.WorkflowID,
		Name:       j.Name,
		OrderIndex: j.OrderIndex,
		Type:       string(j.Type),
		Status:     string(j.Status),
		Config:     j.Config,
		CreatedAt:  formatTime(j.CreatedAt),
	}
}

func toRuleResponse(r domain.QualityRule) RuleResponse {
	return RuleResponse{
		ID:        r.ID,
		JobID:     r.JobID,
		Name:      r.Name,
		Column:    r.Column,
		Type:      string(r.Type),
		Params:    r.Params,
		Severity:  string(r.Severity),
		Stage:     string(r.Stage),
		Active:    r.Active,
		CreatedAt: formatTime(r.CreatedAt),
	}
}

func toTriggerResponse(t domain.Trigger) TriggerResponse {
	return TriggerResponse{
		ID:                  t.ID,
		WorkflowID:          t.WorkflowID,
		Name:                t.Name,
		Type:                string(t.Type),
		Enabled:             t.Enabled,
		CronExpression:      t.CronExpression,
		Timezone:            t.Timezone,
		NextRunAt:           formatTimePtr(t.NextRunAt),
		LastRunAt:           formatTimePtr(t.LastRunAt),
		DependsOnWorkflowID: t.DependsOnWorkflowID,
		Condition:           string(t.Condition),
		DelayMinutes:        t.DelayMinutes,
		CreatedAt:           formatTime(t.CreatedAt),
	}
}

func toExecutionResponse(e domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:                  e.ID,
		WorkflowID:          e.WorkflowID,
		TriggerID:           e.TriggerID,
		TriggerType:         string(e.TriggerKind),
		UpstreamExecutionID: e.UpstreamExecutionID,
		ScopeJobID:          e.ScopeJobID,
		Status:              string(e.Status),
		CreatedAt:           formatTime(e.CreatedAt),
		StartedAt:           formatTimePtr(e.StartedAt),
		CompletedAt:         formatTimePtr(e.CompletedAt),
		DurationMs:          e.Duration.Milliseconds(),
	}
}

func toJobExecutionResponse(je domain.JobExecution) JobExecutionResponse {
	return JobExecutionResponse{
		ID:                 je.ID,
		JobID:              je.JobID,
		Status:             string(je.Status),
		CurrentStage:       string(je.CurrentStage),
		FailedStage:        string(je.FailedStage),
		BronzeRecords:      je.BronzeRecords,
		SilverRecords:      je.SilverRecords,
		GoldRecords:        je.GoldRecords,
		ValidationResults:  je.ValidationResults,
		QuarantinedRecords: je.QuarantinedRecords,
		Logs:               je.Logs,
		StartedAt:          formatTimePtr(je.StartedAt),
		CompletedAt:        formatTimePtr(je.CompletedAt),
	}
}

func toRuleExecutionResponse(re domain.RuleExecution) RuleExecutionResponse {
	return RuleExecutionResponse{
		ID:             re.ID,
		RuleID:         re.RuleID,
		RuleName:       re.RuleName,
		Stage:          string(re.Stage),
		Column:         re.Column,
		Severity:       string(re.Severity),
		Status:         string(re.Status),
		RecordsChecked: re.RecordsChecked,
		RecordsPassed:  re.RecordsPassed,
		RecordsFailed:  re.RecordsFailed,
		PassPercentage: re.PassPercentage,
		FailedSample:   re.FailedSample,
		ErrorMessage:   re.ErrorMessage,
		ExecutedAt:     formatTime(re.ExecutedAt),
	}
}

func toQuarantineResponse(q domain.QuarantineRecord) QuarantineRecordResponse {
	return QuarantineRecordResponse{
		ID:              q.ID,
		RuleID:          q.RuleID,
		RuleExecutionID: q.RuleExecutionID,
		JobExecutionID:  q.JobExecutionID,
		Payload:         q.Payload,
		Reason:          q.Reason,
		Status:          string(q.Status),
		ReviewedBy:      q.ReviewedBy,
		ReviewedAt:      formatTimePtr(q.ReviewedAt),
		CreatedAt:       formatTime(q.CreatedAt),
	}
}

func toFileLogResponse(f domain.FileProcessingLog) FileLogResponse {
	return FileLogResponse{
		ID:          f.ID,
		SourceID:    f.SourceID,
		FileName:    f.FileName,
		ContentHash: f.ContentHash,
		Status:      string(f.Status),
		ExecutionID: f.ExecutionID,
		Records:     f.Records,
		CreatedAt:   formatTime(f.CreatedAt),
		CompletedAt: formatTimePtr(f.CompletedAt),
	}
}

func toImportResponse(res catalog.ImportResult) ImportResponse {
	resp := ImportResponse{Jobs: res.Jobs, Rules: res.Rules, Triggers: res.Triggers}
	for _, wf := range res.Workflows {
		resp.Workflows = append(resp.Workflows, toWorkflowResponse(wf))
	}
	return resp
}

func toTriggerHistory(triggerID string, execs []domain.Execution) TriggerHistoryResponse {
	resp := TriggerHistoryResponse{TriggerID: triggerID, History: make([]TriggerHistoryEntry, len(execs))}
	for i, e := range execs {
		resp.History[i] = TriggerHistoryEntry{
			ExecutionID: e.ID,
			Status:      string(e.Status),
			CreatedAt:   formatTime(e.CreatedAt),
			StartedAt:   formatTimePtr(e.StartedAt),
			DurationMs:  e.Duration.Milliseconds(),
		}
	}
	return resp
}
