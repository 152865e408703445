package memory

import memdb "github.com/hashicorp/go-memdb"

const (
	tableWorkflows      = "workflows"
	tableJobs           = "jobs"
	tableTriggers       = "triggers"
	tableExecutions     = "executions"
	tableJobExecutions  = "job_executions"
	tableRules          = "quality_rules"
	tableRuleExecutions = "rule_executions"
	tableQuarantine     = "quarantine_records"
	tableFiles          = "file_processing_log"
)

func idIndex() *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:    "id",
		Unique:  true,
		Indexer: &memdb.StringFieldIndex{Field: "ID"},
	}
}

func fieldIndex(name, field string, allowMissing bool) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:         name,
		AllowMissing: allowMissing,
		Indexer:      &memdb.StringFieldIndex{Field: field},
	}
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableWorkflows: {
				Name:    tableWorkflows,
				Indexes: map[string]*memdb.IndexSchema{"id": idIndex()},
			},
			tableJobs: {
				Name: tableJobs,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       idIndex(),
					"workflow": fieldIndex("workflow", "WorkflowID", false),
				},
			},
			tableTriggers: {
				Name: tableTriggers,
				Indexes: map[string]*memdb.IndexSchema{
					"id":         idIndex(),
					"workflow":   fieldIndex("workflow", "WorkflowID", false),
					"type":       fieldIndex("type", "Type", false),
					"depends_on": fieldIndex("depends_on", "DependsOnWorkflowID", true),
				},
			},
			tableExecutions: {
				Name: tableExecutions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       idIndex(),
					"workflow": fieldIndex("workflow", "WorkflowID", false),
					"trigger":  fieldIndex("trigger", "TriggerID", true),
					"status":   fieldIndex("status", "Status", false),
					"dedup": {
						Name:         "dedup",
						Unique:       true,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "DedupKey"},
					},
				},
			},
			tableJobExecutions: {
				Name: tableJobExecutions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":        idIndex(),
					"execution": fieldIndex("execution", "ExecutionID", false),
					"job":       fieldIndex("job", "JobID", false),
					"status":    fieldIndex("status", "Status", false),
				},
			},
			tableRules: {
				Name: tableRules,
				Indexes: map[string]*memdb.IndexSchema{
					"id":  idIndex(),
					"job": fieldIndex("job", "JobID", false),
				},
			},
			tableRuleExecutions: {
				Name: tableRuleExecutions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":            idIndex(),
					"job_execution": fieldIndex("job_execution", "JobExecutionID", false),
				},
			},
			tableQuarantine: {
				Name: tableQuarantine,
				Indexes: map[string]*memdb.IndexSchema{
					"id":             idIndex(),
					"job_execution":  fieldIndex("job_execution", "JobExecutionID", false),
					"rule_execution": fieldIndex("rule_execution", "RuleExecutionID", false),
				},
			},
			tableFiles: {
				Name: tableFiles,
				Indexes: map[string]*memdb.IndexSchema{
					"id": idIndex(),
					"source_hash": {
						Name: "source_hash",
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "SourceID"},
								&memdb.StringFieldIndex{Field: "ContentHash"},
							},
						},
					},
				},
			},
		},
	}
}
