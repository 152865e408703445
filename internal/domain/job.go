package domain

import (
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeFileBased JobType = "file_based"
	JobTypeDatabase  JobType = "database"
	JobTypeAPI       JobType = "api"
	JobTypeNoSQL     JobType = "nosql"
	JobTypeDataset   JobType = "dataset"
)

type JobStatus string

const (
	JobStatusConfigured JobStatus = "configured"
	JobStatusActive     JobStatus = "active"
	JobStatusDisabled   JobStatus = "disabled"
)

// Job is one ingestion/transformation unit within a workflow.
type Job struct {
	ID         string
	WorkflowID string
	Name       string
	OrderIndex int
	Type       JobType
	Status     JobStatus
	Config     JobConfig

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobConfig is opaque to the engine beyond presence checks; the shape of
// Source depends on the job type.
type JobConfig struct {
	Source         SourceConfig          `json:"source" yaml:"source"`
	Destination    DestinationConfig     `json:"destination" yaml:"destination"`
	Transformation *TransformationConfig `json:"transformation,omitempty" yaml:"transformation,omitempty"`
	Validation     *ValidationConfig     `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// SourceConfig holds exactly one variant, matching the job type.
type SourceConfig struct {
	File     *FileSource     `json:"file,omitempty" yaml:"file,omitempty"`
	Database *DatabaseSource `json:"database,omitempty" yaml:"database,omitempty"`
	API      *APISource      `json:"api,omitempty" yaml:"api,omitempty"`
	NoSQL    *NoSQLSource    `json:"nosql,omitempty" yaml:"nosql,omitempty"`
	Dataset  *DatasetSource  `json:"dataset,omitempty" yaml:"dataset,omitempty"`
}

type FileSource struct {
	Path    string `json:"path" yaml:"path"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Format  string `json:"format" yaml:"format"`
}

type DatabaseSource struct {
	ConnectionID      string `json:"connection_id" yaml:"connection_id"`
	Table             string `json:"table,omitempty" yaml:"table,omitempty"`
	Query             string `json:"query,omitempty" yaml:"query,omitempty"`
	IncrementalColumn string `json:"incremental_column,omitempty" yaml:"incremental_column,omitempty"`
}

type APISource struct {
	URL    string `json:"url" yaml:"url"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

type NoSQLSource struct {
	ConnectionID string `json:"connection_id" yaml:"connection_id"`
	Collection   string `json:"collection" yaml:"collection"`
}

type DatasetSource struct {
	UpstreamJobIDs []string `json:"upstream_job_ids" yaml:"upstream_job_ids"`
}

type DestinationConfig struct {
	BronzeTable string `json:"bronze_table" yaml:"bronze_table"`
	SilverTable string `json:"silver_table,omitempty" yaml:"silver_table,omitempty"`
	GoldTable   string `json:"gold_table,omitempty" yaml:"gold_table,omitempty"`
}

type TransformationConfig struct {
	DeduplicateOn []string          `json:"deduplicate_on,omitempty" yaml:"deduplicate_on,omitempty"`
	Rename        map[string]string `json:"rename,omitempty" yaml:"rename,omitempty"`
	Aggregation   string            `json:"aggregation,omitempty" yaml:"aggregation,omitempty"`
}

type ValidationConfig struct {
	FailOnSchemaDrift bool `json:"fail_on_schema_drift" yaml:"fail_on_schema_drift"`
}

// Validate checks that the config carries the source variant for jobType and
// the required destination. It returns a *ConfigurationError on failure.
func (c JobConfig) Validate(jobType JobType) error {
	set := c.Source.variants()
	if len(set) != 1 {
		return &ConfigurationError{Field: "source", Reason: fmt.Sprintf("exactly one source variant required, got %d", len(set))}
	}
	want, ok := sourceVariantFor[jobType]
	if !ok {
		return &ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown job type %q", jobType)}
	}
	if set[0] != want {
		return &ConfigurationError{Field: "source", Reason: fmt.Sprintf("job type %s requires source.%s, got source.%s", jobType, want, set[0])}
	}

	s := c.Source
	switch jobType {
	case JobTypeFileBased:
		if s.File.Path == "" && s.File.Pattern == "" {
			return &ConfigurationError{Field: "source.file.path", Reason: "path or pattern required"}
		}
	case JobTypeDatabase:
		if s.Database.ConnectionID == "" {
			return &ConfigurationError{Field: "source.database.connection_id", Reason: "required"}
		}
		if s.Database.Table == "" && s.Database.Query == "" {
			return &ConfigurationError{Field: "source.database.table", Reason: "table or query required"}
		}
	case JobTypeAPI:
		if s.API.URL == "" {
			return &ConfigurationError{Field: "source.api.url", Reason: "required"}
		}
	case JobTypeNoSQL:
		if s.NoSQL.ConnectionID == "" || s.NoSQL.Collection == "" {
			return &ConfigurationError{Field: "source.nosql", Reason: "connection_id and collection required"}
		}
	case JobTypeDataset:
		if len(s.Dataset.UpstreamJobIDs) == 0 {
			return &ConfigurationError{Field: "source.dataset.upstream_job_ids", Reason: "at least one upstream job required"}
		}
	}

	if c.Destination.BronzeTable == "" {
		return &ConfigurationError{Field: "destination.bronze_table", Reason: "required"}
	}
	return nil
}

var sourceVariantFor = map[JobType]string{
	JobTypeFileBased: "file",
	JobTypeDatabase:  "database",
	JobTypeAPI:       "api",
	JobTypeNoSQL:     "nosql",
	JobTypeDataset:   "dataset",
}

func (s SourceConfig) variants() []string {
	var out []string
	if s.File != nil {
		out = append(out, "file")
	}
	if s.Database != nil {
		out = append(out, "database")
	}
	if s.API != nil {
		out = append(out, "api")
	}
	if s.NoSQL != nil {
		out = append(out, "nosql")
	}
	if s.Dataset != nil {
		out = append(out, "dataset")
	}
	return out
}

// Clone returns a deep copy so a cloned job never shares config with its source.
func (c JobConfig) Clone() JobConfig {
	out := JobConfig{Destination: c.Destination}
	if c.Source.File != nil {
		v := *c.Source.File
		out.Source.File = &v
	}
	if c.Source.Database != nil {
		v := *c.Source.Database
		out.Source.Database = &v
	}
	if c.Source.API != nil {
		v := *c.Source.API
		out.Source.API = &v
	}
	if c.Source.NoSQL != nil {
		v := *c.Source.NoSQL
		out.Source.NoSQL = &v
	}
	if c.Source.Dataset != nil {
		out.Source.Dataset = &DatasetSource{
			UpstreamJobIDs: append([]string(nil), c.Source.Dataset.UpstreamJobIDs...),
		}
	}
	if c.Transformation != nil {
		t := TransformationConfig{
			DeduplicateOn: append([]string(nil), c.Transformation.DeduplicateOn...),
			Aggregation:   c.Transformation.Aggregation,
		}
		if c.Transformation.Rename != nil {
			t.Rename = make(map[string]string, len(c.Transformation.Rename))
			for k, v := range c.Transformation.Rename {
				t.Rename[k] = v
			}
		}
		out.Transformation = &t
	}
	if c.Validation != nil {
		v := *c.Validation
		out.Validation = &v
	}
	return out
}
