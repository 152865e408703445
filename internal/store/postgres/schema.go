package postgres

// schema is applied by Migrate. Statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    mode        TEXT NOT NULL,
    status      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    order_index INTEGER NOT NULL,
    type        TEXT NOT NULL,
    status      TEXT NOT NULL,
    config      JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    CONSTRAINT jobs_workflow_name_key UNIQUE (workflow_id, name),
    CONSTRAINT jobs_workflow_order_key UNIQUE (workflow_id, order_index)
);

CREATE TABLE IF NOT EXISTS triggers (
    id                     TEXT PRIMARY KEY,
    workflow_id            TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    name                   TEXT NOT NULL DEFAULT '',
    type                   TEXT NOT NULL,
    enabled                BOOLEAN NOT NULL,
    cron_expression        TEXT NOT NULL DEFAULT '',
    timezone               TEXT NOT NULL DEFAULT 'UTC',
    next_run_at            TIMESTAMPTZ,
    last_run_at            TIMESTAMPTZ,
    depends_on_workflow_id TEXT NOT NULL DEFAULT '',
    condition              TEXT NOT NULL DEFAULT '',
    delay_minutes          INTEGER NOT NULL DEFAULT 0,
    created_at             TIMESTAMPTZ NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS triggers_dependency_pair_key
    ON triggers (workflow_id, depends_on_workflow_id) WHERE type = 'dependency';
CREATE INDEX IF NOT EXISTS triggers_due_idx
    ON triggers (next_run_at) WHERE type = 'scheduled' AND enabled;
CREATE INDEX IF NOT EXISTS triggers_depends_on_idx
    ON triggers (depends_on_workflow_id) WHERE type = 'dependency';

CREATE TABLE IF NOT EXISTS executions (
    id                    TEXT PRIMARY KEY,
    workflow_id           TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
    trigger_id            TEXT NOT NULL DEFAULT '',
    trigger_kind          TEXT NOT NULL,
    upstream_execution_id TEXT NOT NULL DEFAULT '',
    dedup_key             TEXT NOT NULL DEFAULT '',
    scope_job_id          TEXT NOT NULL DEFAULT '',
    input_ref             TEXT NOT NULL DEFAULT '',
    file_log_id           TEXT NOT NULL DEFAULT '',
    status                TEXT NOT NULL,
    created_at            TIMESTAMPTZ NOT NULL,
    started_at            TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ,
    duration_ms           BIGINT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS executions_dedup_key
    ON executions (dedup_key) WHERE dedup_key <> '';
CREATE INDEX IF NOT EXISTS executions_workflow_idx ON executions (workflow_id, created_at DESC);
CREATE INDEX IF NOT EXISTS executions_pending_idx ON executions (created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS executions_trigger_idx ON executions (trigger_id, created_at DESC) WHERE trigger_id <> '';
CREATE INDEX IF NOT EXISTS executions_finished_idx ON executions (completed_at) WHERE completed_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS job_executions (
    id                  TEXT PRIMARY KEY,
    execution_id        TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
    job_id              TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    status              TEXT NOT NULL,
    current_stage       TEXT NOT NULL DEFAULT '',
    failed_stage        TEXT NOT NULL DEFAULT '',
    bronze_records      BIGINT NOT NULL DEFAULT 0,
    silver_records      BIGINT NOT NULL DEFAULT 0,
    gold_records        BIGINT NOT NULL DEFAULT 0,
    bronze_ref          TEXT NOT NULL DEFAULT '',
    silver_ref          TEXT NOT NULL DEFAULT '',
    gold_ref            TEXT NOT NULL DEFAULT '',
    validation_results  JSONB NOT NULL DEFAULT '[]',
    quarantined_records BIGINT NOT NULL DEFAULT 0,
    logs                JSONB NOT NULL DEFAULT '[]',
    started_at          TIMESTAMPTZ,
    completed_at        TIMESTAMPTZ,
    updated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS job_executions_execution_idx ON job_executions (execution_id);
CREATE INDEX IF NOT EXISTS job_executions_running_idx ON job_executions (updated_at) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS quality_rules (
    id          TEXT PRIMARY KEY,
    job_id      TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    column_name TEXT NOT NULL,
    type        TEXT NOT NULL,
    params      JSONB NOT NULL,
    severity    TEXT NOT NULL,
    stage       TEXT NOT NULL,
    active      BOOLEAN NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS quality_rules_job_idx ON quality_rules (job_id, stage) WHERE active;

-- rule_executions and quarantine_records reference job executions by id
-- only; they outlive pruned job executions.
CREATE TABLE IF NOT EXISTS rule_executions (
    id               TEXT PRIMARY KEY,
    rule_id          TEXT NOT NULL,
    rule_name        TEXT NOT NULL DEFAULT '',
    job_execution_id TEXT NOT NULL,
    stage            TEXT NOT NULL,
    column_name      TEXT NOT NULL,
    severity         TEXT NOT NULL,
    status           TEXT NOT NULL,
    records_checked  BIGINT NOT NULL,
    records_passed   BIGINT NOT NULL,
    records_failed   BIGINT NOT NULL,
    pass_percentage  DOUBLE PRECISION NOT NULL,
    failed_sample    JSONB NOT NULL DEFAULT '[]',
    error_message    TEXT NOT NULL DEFAULT '',
    executed_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS rule_executions_job_execution_idx ON rule_executions (job_execution_id);

CREATE TABLE IF NOT EXISTS quarantine_records (
    id                TEXT PRIMARY KEY,
    rule_id           TEXT NOT NULL,
    rule_execution_id TEXT NOT NULL,
    job_execution_id  TEXT NOT NULL,
    payload           JSONB NOT NULL,
    reason            TEXT NOT NULL,
    status            TEXT NOT NULL,
    reviewed_by       TEXT NOT NULL DEFAULT '',
    reviewed_at       TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS quarantine_job_execution_idx ON quarantine_records (job_execution_id, status);
CREATE INDEX IF NOT EXISTS quarantine_rule_execution_idx ON quarantine_records (rule_execution_id);

CREATE TABLE IF NOT EXISTS file_processing_log (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    file_name    TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    status       TEXT NOT NULL,
    execution_id TEXT NOT NULL DEFAULT '',
    records      BIGINT NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS file_processing_log_hash_idx ON file_processing_log (source_id, content_hash);
`
