package domain

import (
	"math/rand"
	"testing"
)

func TestExecutionStatus_Values(t *testing.T) {
	tests := []struct {
		status ExecutionStatus
		want   string
	}{
		{ExecutionStatusPending, "pending"},
		{ExecutionStatusRunning, "running"},
		{ExecutionStatusCompleted, "completed"},
		{ExecutionStatusFailed, "failed"},
		{ExecutionStatusCancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if string(tt.status) != tt.want {
				t.Errorf("ExecutionStatus = %q, want %q", tt.status, tt.want)
			}
		})
	}
}

func jobs(statuses ...JobExecutionStatus) []JobExecution {
	out := make([]JobExecution, len(statuses))
	for i, s := range statuses {
		out[i] = JobExecution{Status: s}
	}
	return out
}

func TestDeriveExecutionStatus(t *testing.T) {
	tests := []struct {
		name string
		jobs []JobExecution
		want ExecutionStatus
	}{
		{"empty", nil, ExecutionStatusCompleted},
		{"all completed", jobs(JobExecutionStatusCompleted, JobExecutionStatusCompleted), ExecutionStatusCompleted},
		{"one failed", jobs(JobExecutionStatusCompleted, JobExecutionStatusFailed), ExecutionStatusFailed},
		{"failed while sibling running", jobs(JobExecutionStatusRunning, JobExecutionStatusFailed), ExecutionStatusFailed},
		{"still running", jobs(JobExecutionStatusCompleted, JobExecutionStatusRunning), ExecutionStatusRunning},
		{"pending", jobs(JobExecutionStatusPending), ExecutionStatusRunning},
		{"cancelled", jobs(JobExecutionStatusCompleted, JobExecutionStatusCancelled), ExecutionStatusCancelled},
		{"failed beats cancelled", jobs(JobExecutionStatusCancelled, JobExecutionStatusFailed), ExecutionStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveExecutionStatus(tt.jobs); got != tt.want {
				t.Errorf("DeriveExecutionStatus = %q, want %q", got, tt.want)
			}
		})
	}
}

// For any terminal set: completed iff all completed, failed iff any failed.
func TestDeriveExecutionStatus_Property(t *testing.T) {
	all := []JobExecutionStatus{
		JobExecutionStatusCompleted,
		JobExecutionStatusFailed,
		JobExecutionStatusCancelled,
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		set := make([]JobExecution, n)
		allCompleted, anyFailed := true, false
		for j := range set {
			s := all[rng.Intn(len(all))]
			set[j].Status = s
			if s != JobExecutionStatusCompleted {
				allCompleted = false
			}
			if s == JobExecutionStatusFailed {
				anyFailed = true
			}
		}
		got := DeriveExecutionStatus(set)
		if (got == ExecutionStatusCompleted) != allCompleted {
			t.Fatalf("iteration %d: status %q, allCompleted=%v", i, got, allCompleted)
		}
		if (got == ExecutionStatusFailed) != anyFailed {
			t.Fatalf("iteration %d: status %q, anyFailed=%v", i, got, anyFailed)
		}
	}
}

func TestAggregateExecutionMetrics(t *testing.T) {
	set := []JobExecution{
		{Status: JobExecutionStatusCompleted, BronzeRecords: 100, SilverRecords: 90, GoldRecords: 80},
		{Status: JobExecutionStatusFailed, BronzeRecords: 50, QuarantinedRecords: 5},
		{Status: JobExecutionStatusRunning, BronzeRecords: 10, SilverRecords: 10},
		{Status: JobExecutionStatusPending},
	}
	m := AggregateExecutionMetrics(set)
	if m.TotalJobs != 4 || m.CompletedJobs != 1 || m.FailedJobs != 1 || m.RunningJobs != 1 || m.PendingJobs != 1 {
		t.Errorf("unexpected job counts: %+v", m)
	}
	if m.RecordsProcessed != 140 {
		t.Errorf("RecordsProcessed = %d, want 140", m.RecordsProcessed)
	}
	if m.Quarantined != 5 {
		t.Errorf("Quarantined = %d, want 5", m.Quarantined)
	}
}

func TestWorkflowStatusFor(t *testing.T) {
	scheduled := []Trigger{{Type: TriggerTypeScheduled, Enabled: true}}
	dependency := []Trigger{{Type: TriggerTypeDependency, Enabled: true}, {Type: TriggerTypeScheduled, Enabled: false}}

	if _, ok := WorkflowStatusFor(ExecutionStatusPending, nil); ok {
		t.Error("pending execution should not change workflow status")
	}
	if got, _ := WorkflowStatusFor(ExecutionStatusFailed, nil); got != WorkflowStatusFailed {
		t.Errorf("failed -> %q", got)
	}
	if got, _ := WorkflowStatusFor(ExecutionStatusCancelled, scheduled); got != WorkflowStatusScheduled {
		t.Errorf("cancelled with schedule -> %q", got)
	}
	if got, _ := WorkflowStatusFor(ExecutionStatusCancelled, dependency); got != WorkflowStatusDependency {
		t.Errorf("cancelled with dependency -> %q", got)
	}
	if got, _ := WorkflowStatusFor(ExecutionStatusCancelled, nil); got != WorkflowStatusManual {
		t.Errorf("cancelled without triggers -> %q", got)
	}
}
