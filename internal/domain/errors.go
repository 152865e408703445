package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a malformed job, rule or trigger definition.
// It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// StageExecutionError reports a failed or timed-out call into the
// transformation executor.
type StageExecutionError struct {
	Stage   Stage
	Cause   error
	Timeout bool
}

func (e *StageExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("stage %s timed out: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *StageExecutionError) Unwrap() error { return e.Cause }

// CyclicDependencyError rejects a dependency trigger that would close a loop.
// Chain lists workflow ids from the candidate upstream back to the workflow.
type CyclicDependencyError struct {
	WorkflowID string
	UpstreamID string
	Chain      []string
}

func (e *CyclicDependencyError) Error() string {
	if e.WorkflowID == e.UpstreamID {
		return fmt.Sprintf("cyclic dependency: workflow %s cannot depend on itself", e.WorkflowID)
	}
	return fmt.Sprintf("cyclic dependency: %s -> %s closes loop [%s]",
		e.WorkflowID, e.UpstreamID, strings.Join(e.Chain, " -> "))
}

// DuplicateContentError short-circuits ingestion of already processed content.
type DuplicateContentError struct {
	Existing FileProcessingLog
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("duplicate content: %s already processed as %s (%s)",
		e.Existing.ContentHash, e.Existing.FileName, e.Existing.Status)
}

// ExternalSyncError wraps a failed best-effort call to a deployment collaborator.
type ExternalSyncError struct {
	Op        string
	TriggerID string
	Cause     error
}

func (e *ExternalSyncError) Error() string {
	return fmt.Sprintf("external sync %s for trigger %s: %v", e.Op, e.TriggerID, e.Cause)
}

func (e *ExternalSyncError) Unwrap() error { return e.Cause }

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsStageExecutionError(err error) bool {
	var se *StageExecutionError
	return errors.As(err, &se)
}
