package postgres

const workflowColumns = `id, name, description, mode, status, created_at, updated_at`

const queryInsertWorkflow = `
INSERT INTO workflows (` + workflowColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

const queryGetWorkflow = `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

const queryListWorkflows = `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at`

const querySetWorkflowStatus = `
UPDATE workflows SET status = $2, updated_at = $3 WHERE id = $1
`

const queryDeleteWorkflow = `DELETE FROM workflows WHERE id = $1`

const jobColumns = `id, workflow_id, name, order_index, type, status, config, created_at, updated_at`

const queryInsertJob = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const queryGetJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

const queryListJobsByWorkflow = `
SELECT ` + jobColumns + ` FROM jobs WHERE workflow_id = $1 ORDER BY order_index
`

const queryDeleteJob = `DELETE FROM jobs WHERE id = $1`

const triggerColumns = `
    id, workflow_id, name, type, enabled, cron_expression, timezone,
    next_run_at, last_run_at, depends_on_workflow_id, condition, delay_minutes,
    created_at, updated_at`

const queryInsertTrigger = `
INSERT INTO triggers (` + triggerColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const queryGetTrigger = `SELECT ` + triggerColumns + ` FROM triggers WHERE id = $1`

const queryLockTrigger = `SELECT ` + triggerColumns + ` FROM triggers WHERE id = $1 FOR UPDATE`

const queryListTriggers = `
SELECT ` + triggerColumns + ` FROM triggers WHERE workflow_id = $1 ORDER BY created_at
`

const queryListDependencyTriggers = `
SELECT ` + triggerColumns + ` FROM triggers WHERE type = 'dependency' ORDER BY created_at
`

const queryListDueTriggers = `
SELECT ` + triggerColumns + `
FROM triggers
WHERE type = 'scheduled'
  AND enabled
  AND next_run_at <= $1
ORDER BY next_run_at
`

const queryUpdateTrigger = `
UPDATE triggers
SET name = $2, enabled = $3, cron_expression = $4, timezone = $5,
    next_run_at = $6, last_run_at = $7, condition = $8, delay_minutes = $9,
    updated_at = $10, depends_on_workflow_id = $11
WHERE id = $1
`

const queryDeleteTrigger = `DELETE FROM triggers WHERE id = $1`

const executionColumns = `
    id, workflow_id, trigger_id, trigger_kind, upstream_execution_id, dedup_key,
    scope_job_id, input_ref, file_log_id, status, created_at, started_at,
    completed_at, duration_ms`

const queryInsertExecution = `
INSERT INTO executions (` + executionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

const queryGetExecution = `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

const queryLockExecution = `SELECT ` + executionColumns + ` FROM executions WHERE id = $1 FOR UPDATE`

const queryListExecutions = `
SELECT ` + executionColumns + `
FROM executions
WHERE workflow_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

const queryUpdateExecution = `
UPDATE executions
SET status = $2, started_at = $3, completed_at = $4, duration_ms = $5, file_log_id = $6
WHERE id = $1
`

const queryListPendingExecutions = `
SELECT ` + executionColumns + `
FROM executions
WHERE status = 'pending'
  AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`

const queryListTriggerExecutions = `
SELECT ` + executionColumns + `
FROM executions
WHERE trigger_id = $1
ORDER BY created_at DESC
LIMIT $2
`

const queryListFinishedExecutions = `
SELECT ` + executionColumns + `
FROM executions
WHERE status IN ('completed', 'failed', 'cancelled')
  AND completed_at >= $1
ORDER BY completed_at ASC
LIMIT $2
`

const queryExecutionExists = `SELECT EXISTS (SELECT 1 FROM executions WHERE dedup_key = $1)`

const jobExecutionColumns = `
    id, execution_id, job_id, status, current_stage, failed_stage,
    bronze_records, silver_records, gold_records, bronze_ref, silver_ref, gold_ref,
    validation_results, quarantined_records, logs, started_at, completed_at, updated_at`

const queryInsertJobExecution = `
INSERT INTO job_executions (` + jobExecutionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`

const queryGetJobExecution = `SELECT ` + jobExecutionColumns + ` FROM job_executions WHERE id = $1`

const queryLockJobExecution = `SELECT ` + jobExecutionColumns + ` FROM job_executions WHERE id = $1 FOR UPDATE`

const queryListJobExecutions = `
SELECT ` + jobExecutionColumns + `
FROM job_executions
WHERE execution_id = $1
ORDER BY started_at NULLS LAST, id
`

const queryUpdateJobExecution = `
UPDATE job_executions
SET status = $2, current_stage = $3, failed_stage = $4,
    bronze_records = $5, silver_records = $6, gold_records = $7,
    bronze_ref = $8, silver_ref = $9, gold_ref = $10,
    validation_results = $11, quarantined_records = $12, logs = $13,
    started_at = $14, completed_at = $15, updated_at = $16
WHERE id = $1
`

const queryListStuckJobExecutions = `
SELECT ` + jobExecutionColumns + `
FROM job_executions
WHERE status = 'running'
  AND updated_at < $1
ORDER BY updated_at ASC
LIMIT $2
`

const ruleColumns = `id, job_id, name, column_name, type, params, severity, stage, active, created_at`

const queryInsertRule = `
INSERT INTO quality_rules (` + ruleColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const queryGetRule = `SELECT ` + ruleColumns + ` FROM quality_rules WHERE id = $1`

const queryLockRule = `SELECT ` + ruleColumns + ` FROM quality_rules WHERE id = $1 FOR UPDATE`

const queryUpdateRule = `
UPDATE quality_rules
SET name = $2, column_name = $3, type = $4, params = $5, severity = $6, stage = $7, active = $8
WHERE id = $1
`

const queryDeleteRule = `DELETE FROM quality_rules WHERE id = $1`

const queryListRules = `
SELECT ` + ruleColumns + ` FROM quality_rules WHERE job_id = $1 ORDER BY created_at
`

const queryListActiveRules = `
SELECT ` + ruleColumns + `
FROM quality_rules
WHERE job_id = $1 AND stage = $2 AND active
ORDER BY created_at
`

const ruleExecutionColumns = `
    id, rule_id, rule_name, job_execution_id, stage, column_name, severity, status,
    records_checked, records_passed, records_failed, pass_percentage,
    failed_sample, error_message, executed_at`

const queryInsertRuleExecution = `
INSERT INTO rule_executions (` + ruleExecutionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

const queryListRuleExecutions = `
SELECT ` + ruleExecutionColumns + `
FROM rule_executions
WHERE job_execution_id = $1
ORDER BY executed_at
`

const quarantineColumns = `
    id, rule_id, rule_execution_id, job_execution_id, payload, reason, status,
    reviewed_by, reviewed_at, created_at`

const queryInsertQuarantine = `
INSERT INTO quarantine_records (` + quarantineColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Empty filter arguments match every row.
const queryListQuarantine = `
SELECT ` + quarantineColumns + `
FROM quarantine_records
WHERE ($1 = '' OR job_execution_id = $1)
  AND ($2 = '' OR rule_execution_id = $2)
  AND ($3 = '' OR status = $3)
ORDER BY created_at, id
LIMIT $4 OFFSET $5
`

const queryReviewQuarantine = `
UPDATE quarantine_records
SET status = $2, reviewed_by = $3, reviewed_at = $4
WHERE id = $1
RETURNING ` + quarantineColumns

const fileColumns = `id, source_id, file_name, content_hash, status, execution_id, records, created_at, completed_at`

const queryFindProcessedFile = `
SELECT ` + fileColumns + `
FROM file_processing_log
WHERE source_id = $1
  AND content_hash = $2
  AND status IN ('completed', 'archived')
ORDER BY created_at DESC
LIMIT 1
`

const queryInsertFileLog = `
INSERT INTO file_processing_log (` + fileColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const queryCompleteFileLog = `
UPDATE file_processing_log
SET status = $2, records = $3, completed_at = $4
WHERE id = $1
`
