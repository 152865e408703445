package domain

import (
	"encoding/json"
	"time"
)

type RuleType string

const (
	RuleTypeNotNull RuleType = "not_null"
	RuleTypeUnique  RuleType = "unique"
	RuleTypeRange   RuleType = "range"
	RuleTypePattern RuleType = "pattern"
	RuleTypeEnum    RuleType = "enum"
	RuleTypeCustom  RuleType = "custom"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning || s == SeverityInfo
}

type RuleParams struct {
	Min           *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern       string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	AllowedValues []any    `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	Expression    string   `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// QualityRule guards one column of a job's output at a given stage.
type QualityRule struct {
	ID       string
	JobID    string
	Name     string
	Column   string
	Type     RuleType
	Params   RuleParams
	Severity Severity
	Stage    Stage
	Active   bool

	CreatedAt time.Time
}

type RuleStatus string

const (
	RuleStatusPassed RuleStatus = "passed"
	RuleStatusFailed RuleStatus = "failed"
	RuleStatusError  RuleStatus = "error"
)

type RuleExecution struct {
	ID             string
	RuleID         string
	RuleName       string
	JobExecutionID string
	Stage          Stage
	Column         string
	Severity       Severity

	Status         RuleStatus
	RecordsChecked int64
	RecordsPassed  int64
	RecordsFailed  int64
	PassPercentage float64
	FailedSample   []json.RawMessage
	ErrorMessage   string

	ExecutedAt time.Time
}

// Blocking reports whether this result fails the stage.
func (re RuleExecution) Blocking() bool {
	return re.Severity == SeverityError && re.Status != RuleStatusPassed
}

type ReviewStatus string

const (
	ReviewStatusQuarantined ReviewStatus = "quarantined"
	ReviewStatusApproved    ReviewStatus = "approved"
	ReviewStatusRejected    ReviewStatus = "rejected"
	ReviewStatusFixed       ReviewStatus = "fixed"
)

func (s ReviewStatus) Valid() bool {
	switch s {
	case ReviewStatusQuarantined, ReviewStatusApproved, ReviewStatusRejected, ReviewStatusFixed:
		return true
	}
	return false
}

type QuarantineRecord struct {
	ID              string
	RuleID          string
	RuleExecutionID string
	JobExecutionID  string
	Payload         json.RawMessage
	Reason          string

	Status     ReviewStatus
	ReviewedBy string
	ReviewedAt *time.Time
	CreatedAt  time.Time
}

type FileStatus string

const (
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
	FileStatusArchived   FileStatus = "archived"
)

// FileProcessingLog tracks files ingested for a source job, keyed by content hash.
type FileProcessingLog struct {
	ID          string
	SourceID    string
	FileName    string
	ContentHash string
	Status      FileStatus
	ExecutionID string
	Records     int64

	CreatedAt   time.Time
	CompletedAt *time.Time
}
