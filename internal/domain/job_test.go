package domain

import (
	"errors"
	"testing"
)

func TestJobConfig_Validate(t *testing.T) {
	dest := DestinationConfig{BronzeTable: "bronze_orders"}
	tests := []struct {
		name    string
		jobType JobType
		cfg     JobConfig
		field   string
	}{
		{
			name:    "file ok",
			jobType: JobTypeFileBased,
			cfg:     JobConfig{Source: SourceConfig{File: &FileSource{Path: "s3://in/orders.csv", Format: "csv"}}, Destination: dest},
		},
		{
			name:    "database ok",
			jobType: JobTypeDatabase,
			cfg:     JobConfig{Source: SourceConfig{Database: &DatabaseSource{ConnectionID: "c1", Table: "orders"}}, Destination: dest},
		},
		{
			name:    "wrong variant",
			jobType: JobTypeAPI,
			cfg:     JobConfig{Source: SourceConfig{File: &FileSource{Path: "x"}}, Destination: dest},
			field:   "source",
		},
		{
			name:    "two variants",
			jobType: JobTypeFileBased,
			cfg: JobConfig{Source: SourceConfig{
				File:  &FileSource{Path: "x"},
				NoSQL: &NoSQLSource{ConnectionID: "c", Collection: "y"},
			}, Destination: dest},
			field: "source",
		},
		{
			name:    "unknown type",
			jobType: JobType("ftp"),
			cfg:     JobConfig{Source: SourceConfig{File: &FileSource{Path: "x"}}, Destination: dest},
			field:   "type",
		},
		{
			name:    "database without table or query",
			jobType: JobTypeDatabase,
			cfg:     JobConfig{Source: SourceConfig{Database: &DatabaseSource{ConnectionID: "c1"}}, Destination: dest},
			field:   "source.database.table",
		},
		{
			name:    "missing destination",
			jobType: JobTypeAPI,
			cfg:     JobConfig{Source: SourceConfig{API: &APISource{URL: "https://example.com"}}},
			field:   "destination.bronze_table",
		},
		{
			name:    "dataset without upstream",
			jobType: JobTypeDataset,
			cfg:     JobConfig{Source: SourceConfig{Dataset: &DatasetSource{}}, Destination: dest},
			field:   "source.dataset.upstream_job_ids",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.jobType)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestJobConfig_CloneIsDeep(t *testing.T) {
	orig := JobConfig{
		Source:         SourceConfig{Dataset: &DatasetSource{UpstreamJobIDs: []string{"a"}}},
		Transformation: &TransformationConfig{Rename: map[string]string{"a": "b"}},
	}
	cp := orig.Clone()
	cp.Source.Dataset.UpstreamJobIDs[0] = "z"
	cp.Transformation.Rename["a"] = "z"

	if orig.Source.Dataset.UpstreamJobIDs[0] != "a" {
		t.Error("clone shares upstream ids with original")
	}
	if orig.Transformation.Rename["a"] != "b" {
		t.Error("clone shares rename map with original")
	}
}

func TestCyclicDependencyError_Message(t *testing.T) {
	self := &CyclicDependencyError{WorkflowID: "a", UpstreamID: "a"}
	if self.Error() != "cyclic dependency: workflow a cannot depend on itself" {
		t.Errorf("unexpected message: %s", self.Error())
	}
	loop := &CyclicDependencyError{WorkflowID: "a", UpstreamID: "b", Chain: []string{"b", "c", "a"}}
	if loop.Error() != "cyclic dependency: a -> b closes loop [b -> c -> a]" {
		t.Errorf("unexpected message: %s", loop.Error())
	}
}

func TestStageExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&StageExecutionError{Stage: StageSilver, Cause: cause})
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the cause")
	}
	if !IsStageExecutionError(err) {
		t.Error("IsStageExecutionError = false")
	}
}
