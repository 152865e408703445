package domain

import "time"

type TriggerType string

const (
	TriggerTypeScheduled  TriggerType = "scheduled"
	TriggerTypeDependency TriggerType = "dependency"
	TriggerTypeManual     TriggerType = "manual"
)

type DependencyCondition string

const (
	ConditionOnSuccess    DependencyCondition = "on_success"
	ConditionOnCompletion DependencyCondition = "on_completion"
	ConditionOnFailure    DependencyCondition = "on_failure"
)

func (c DependencyCondition) Valid() bool {
	return c == ConditionOnSuccess || c == ConditionOnCompletion || c == ConditionOnFailure
}

// MaxDelayMinutes caps the dependency delay at one day.
const MaxDelayMinutes = 1440

type Trigger struct {
	ID         string
	WorkflowID string
	Name       string
	Type       TriggerType
	Enabled    bool

	// Scheduled
	CronExpression string
	Timezone       string // IANA, defaults to UTC
	NextRunAt      *time.Time
	LastRunAt      *time.Time

	// Dependency
	DependsOnWorkflowID string
	Condition           DependencyCondition
	DelayMinutes        int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Trigger) Delay() time.Duration {
	return time.Duration(t.DelayMinutes) * time.Minute
}

// RunRequest asks the engine to run a pending execution.
type RunRequest struct {
	ExecutionID string
	WorkflowID  string
	RequestedAt time.Time
}

// CompletionEvent is published when an execution reaches a terminal state.
type CompletionEvent struct {
	ExecutionID string
	WorkflowID  string
	Status      ExecutionStatus
	CompletedAt time.Time
}
