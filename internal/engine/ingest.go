package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

type IngestRequest struct {
	JobID       string `json:"job_id"`
	FileName    string `json:"file_name"`
	ContentHash string `json:"content_hash"`
	// InputRef points the bronze stage at the landed file.
	InputRef string `json:"input_ref"`
}

// Ingest registers a landed file for a job and creates a pending execution
// scoped to that job. Content already processed for the same job returns a
// *domain.DuplicateContentError and creates nothing.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (domain.Execution, error) {
	if req.ContentHash == "" {
		return domain.Execution{}, &domain.ConfigurationError{Field: "content_hash", Reason: "required"}
	}
	job, err := e.store.GetJob(ctx, req.JobID)
	if err != nil {
		return domain.Execution{}, fmt.Errorf("job %s: %w", req.JobID, err)
	}

	existing, found, err := e.IsDuplicate(ctx, job.ID, req.ContentHash)
	if err != nil {
		return domain.Execution{}, err
	}
	if found {
		log.Printf("engine: job=%s file=%s hash=%s already processed as %s, skipping", job.ID, req.FileName, req.ContentHash, existing.ID)
		return domain.Execution{}, &domain.DuplicateContentError{Existing: existing}
	}

	now := e.now()
	fileLog := domain.FileProcessingLog{
		ID:          uuid.NewString(),
		SourceID:    job.ID,
		FileName:    req.FileName,
		ContentHash: req.ContentHash,
		Status:      domain.FileStatusProcessing,
		CreatedAt:   now,
	}
	exec := domain.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  job.WorkflowID,
		TriggerKind: domain.TriggerKindIngest,
		ScopeJobID:  job.ID,
		InputRef:    req.InputRef,
		FileLogID:   fileLog.ID,
		Status:      domain.ExecutionStatusPending,
		CreatedAt:   now,
	}
	fileLog.ExecutionID = exec.ID

	if err := e.store.InsertFileLog(ctx, fileLog); err != nil {
		return domain.Execution{}, fmt.Errorf("create file log: %w", err)
	}
	if err := e.store.InsertExecution(ctx, exec); err != nil {
		return domain.Execution{}, fmt.Errorf("create execution: %w", err)
	}
	log.Printf("engine: job=%s file=%s queued execution=%s", job.ID, req.FileName, exec.ID)
	return exec, nil
}

// IsDuplicate reports whether content with this hash was already processed
// for the source job.
func (e *Engine) IsDuplicate(ctx context.Context, sourceID, contentHash string) (domain.FileProcessingLog, bool, error) {
	f, ok, err := e.store.FindProcessedFile(ctx, sourceID, contentHash)
	if err != nil {
		return domain.FileProcessingLog{}, false, fmt.Errorf("check processed files: %w", err)
	}
	return f, ok, nil
}
