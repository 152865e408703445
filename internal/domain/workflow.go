package domain

import "time"

type WorkflowMode string

const (
	// WorkflowModeSourceCentric runs every job's bronze→silver→gold pipeline independently.
	WorkflowModeSourceCentric WorkflowMode = "source_centric"
	// WorkflowModeLayerCentric finishes one stage across all jobs before any job advances.
	WorkflowModeLayerCentric WorkflowMode = "layer_centric"
)

func (m WorkflowMode) Valid() bool {
	return m == WorkflowModeSourceCentric || m == WorkflowModeLayerCentric
}

type WorkflowStatus string

const (
	WorkflowStatusManual     WorkflowStatus = "manual"
	WorkflowStatusScheduled  WorkflowStatus = "scheduled"
	WorkflowStatusDependency WorkflowStatus = "dependency"
	WorkflowStatusRunning    WorkflowStatus = "running"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
	WorkflowStatusPaused     WorkflowStatus = "paused"
)

// Workflow is a named collection of jobs sharing triggers and lifecycle.
// Jobs are ordered by OrderIndex.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Mode        WorkflowMode
	Status      WorkflowStatus

	Jobs []Job

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IdleWorkflowStatus is the status a workflow rests in when no execution is
// driving it, based on which of its triggers are enabled.
func IdleWorkflowStatus(triggers []Trigger) WorkflowStatus {
	status := WorkflowStatusManual
	for _, t := range triggers {
		if !t.Enabled {
			continue
		}
		switch t.Type {
		case TriggerTypeScheduled:
			return WorkflowStatusScheduled
		case TriggerTypeDependency:
			status = WorkflowStatusDependency
		}
	}
	return status
}

// WorkflowStatusFor maps an execution status onto the owning workflow.
// The second return value is false when the workflow status must not change.
func WorkflowStatusFor(exec ExecutionStatus, triggers []Trigger) (WorkflowStatus, bool) {
	switch exec {
	case ExecutionStatusRunning:
		return WorkflowStatusRunning, true
	case ExecutionStatusCompleted:
		return WorkflowStatusCompleted, true
	case ExecutionStatusFailed:
		return WorkflowStatusFailed, true
	case ExecutionStatusCancelled:
		return IdleWorkflowStatus(triggers), true
	default:
		return "", false
	}
}
