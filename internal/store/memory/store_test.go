package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func seedWorkflow(t *testing.T, s *Store, id string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateWorkflow(ctx, domain.Workflow{ID: id, Name: id, Mode: domain.WorkflowModeSourceCentric, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
}

func seedJob(t *testing.T, s *Store, workflowID, id string, order int) {
	t.Helper()
	job := domain.Job{
		ID: id, WorkflowID: workflowID, Name: id, OrderIndex: order, Type: domain.JobTypeAPI,
		Config: domain.JobConfig{
			Source:      domain.SourceConfig{API: &domain.APISource{URL: "https://example.com"}},
			Destination: domain.DestinationConfig{BronzeTable: "b"},
		},
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

func TestStore_WorkflowJobsOrdered(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	seedJob(t, s, "wf", "second", 2)
	seedJob(t, s, "wf", "first", 1)

	wf, err := s.GetWorkflow(context.Background(), "wf")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if len(wf.Jobs) != 2 || wf.Jobs[0].ID != "first" || wf.Jobs[1].ID != "second" {
		t.Errorf("jobs not ordered by order index: %+v", wf.Jobs)
	}
}

func TestStore_CreateJob_UniqueNameAndOrder(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	seedJob(t, s, "wf", "a", 1)
	ctx := context.Background()

	dupName := domain.Job{ID: "b", WorkflowID: "wf", Name: "a", OrderIndex: 2}
	if err := s.CreateJob(ctx, dupName); !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	dupOrder := domain.Job{ID: "c", WorkflowID: "wf", Name: "c", OrderIndex: 1}
	if err := s.CreateJob(ctx, dupOrder); !errors.Is(err, store.ErrDuplicateOrder) {
		t.Errorf("expected ErrDuplicateOrder, got %v", err)
	}
	orphan := domain.Job{ID: "d", WorkflowID: "missing", Name: "d"}
	if err := s.CreateJob(ctx, orphan); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing workflow, got %v", err)
	}
}

func TestStore_InsertExecution_DedupKey(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	ctx := context.Background()

	exec := domain.Execution{ID: "e1", WorkflowID: "wf", DedupKey: "dependency:t1:up1", Status: domain.ExecutionStatusPending}
	if err := s.InsertExecution(ctx, exec); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	exec.ID = "e2"
	if err := s.InsertExecution(ctx, exec); !errors.Is(err, store.ErrDuplicateExecution) {
		t.Fatalf("expected ErrDuplicateExecution, got %v", err)
	}

	// Executions without a dedup key never collide.
	for i := 0; i < 3; i++ {
		if err := s.InsertExecution(ctx, domain.Execution{ID: fmt.Sprintf("m%d", i), WorkflowID: "wf", Status: domain.ExecutionStatusPending}); err != nil {
			t.Fatalf("manual insert %d: %v", i, err)
		}
	}
	list, err := s.ListExecutions(ctx, "wf", 10, 0)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(list) != 4 {
		t.Errorf("got %d executions, want 4", len(list))
	}
}

func TestStore_StatusIndexRequiresStatus(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	ctx := context.Background()

	if err := s.InsertExecution(ctx, domain.Execution{ID: "bare", WorkflowID: "wf"}); err == nil {
		t.Error("execution without status inserted")
	}
	if err := s.InsertExecution(ctx, domain.Execution{ID: "e", WorkflowID: "wf", Status: domain.ExecutionStatusPending}); err != nil {
		t.Fatalf("InsertExecution: %v", err)
	}
	if err := s.InsertJobExecution(ctx, domain.JobExecution{ID: "bare", ExecutionID: "e", JobID: "j"}); err == nil {
		t.Error("job execution without status inserted")
	}

	pending, err := s.ListPendingExecutions(ctx, time.Now().Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("ListPendingExecutions: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "e" {
		t.Errorf("pending = %+v, want e", pending)
	}
}

func TestStore_CreateTrigger_DuplicateDependency(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "w1")
	seedWorkflow(t, s, "w2")
	ctx := context.Background()

	dep := domain.Trigger{ID: "t1", WorkflowID: "w2", Type: domain.TriggerTypeDependency, DependsOnWorkflowID: "w1", Condition: domain.ConditionOnSuccess, Enabled: true}
	if err := s.CreateTrigger(ctx, dep); err != nil {
		t.Fatalf("CreateTrigger: %v", err)
	}
	dep.ID = "t2"
	dep.Condition = domain.ConditionOnFailure
	if err := s.CreateTrigger(ctx, dep); !errors.Is(err, store.ErrDuplicateDependency) {
		t.Fatalf("expected ErrDuplicateDependency, got %v", err)
	}

	sched := domain.Trigger{ID: "t3", WorkflowID: "w2", Type: domain.TriggerTypeScheduled, CronExpression: "0 * * * *"}
	if err := s.CreateTrigger(ctx, sched); err != nil {
		t.Fatalf("scheduled trigger with empty upstream should insert: %v", err)
	}
	deps, err := s.ListDependencyTriggers(ctx)
	if err != nil {
		t.Fatalf("ListDependencyTriggers: %v", err)
	}
	if len(deps) != 1 || deps[0].ID != "t1" {
		t.Errorf("unexpected dependency triggers: %+v", deps)
	}
}

func TestStore_ListDueTriggers(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)

	triggers := []domain.Trigger{
		{ID: "due", WorkflowID: "wf", Type: domain.TriggerTypeScheduled, Enabled: true, NextRunAt: &past},
		{ID: "exact", WorkflowID: "wf", Type: domain.TriggerTypeScheduled, Enabled: true, NextRunAt: &now},
		{ID: "later", WorkflowID: "wf", Type: domain.TriggerTypeScheduled, Enabled: true, NextRunAt: &future},
		{ID: "disabled", WorkflowID: "wf", Type: domain.TriggerTypeScheduled, Enabled: false, NextRunAt: &past},
	}
	for _, tr := range triggers {
		if err := s.CreateTrigger(ctx, tr); err != nil {
			t.Fatalf("CreateTrigger %s: %v", tr.ID, err)
		}
	}
	due, err := s.ListDueTriggers(ctx, now)
	if err != nil {
		t.Fatalf("ListDueTriggers: %v", err)
	}
	got := map[string]bool{}
	for _, tr := range due {
		got[tr.ID] = true
	}
	if len(got) != 2 || !got["due"] || !got["exact"] {
		t.Errorf("due = %v, want due and exact", got)
	}
}

func TestStore_UpdateJobExecution_ConcurrentNoLostUpdates(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	ctx := context.Background()
	if err := s.InsertExecution(ctx, domain.Execution{ID: "e", WorkflowID: "wf", Status: domain.ExecutionStatusRunning}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJobExecution(ctx, domain.JobExecution{ID: "je", ExecutionID: "e", JobID: "j", Status: domain.JobExecutionStatusRunning}); err != nil {
		t.Fatal(err)
	}

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateJobExecution(ctx, "je", func(je *domain.JobExecution) error {
				je.Logs = append(je.Logs, fmt.Sprintf("line %d", i))
				je.BronzeRecords++
				return nil
			})
			if err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	je, err := s.GetJobExecution(ctx, "je")
	if err != nil {
		t.Fatal(err)
	}
	if len(je.Logs) != writers || je.BronzeRecords != writers {
		t.Errorf("lost updates: logs=%d records=%d, want %d", len(je.Logs), je.BronzeRecords, writers)
	}
}

func TestStore_UpdateJobExecution_MutationErrorAborts(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	ctx := context.Background()
	if err := s.InsertExecution(ctx, domain.Execution{ID: "e", WorkflowID: "wf", Status: domain.ExecutionStatusCompleted}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJobExecution(ctx, domain.JobExecution{ID: "je", ExecutionID: "e", JobID: "j", Status: domain.JobExecutionStatusCompleted}); err != nil {
		t.Fatal(err)
	}

	_, err := s.UpdateJobExecution(ctx, "je", func(je *domain.JobExecution) error {
		je.Status = domain.JobExecutionStatusFailed
		return store.ErrStatusTransitionDenied
	})
	if !errors.Is(err, store.ErrStatusTransitionDenied) {
		t.Fatalf("expected ErrStatusTransitionDenied, got %v", err)
	}
	je, _ := s.GetJobExecution(ctx, "je")
	if je.Status != domain.JobExecutionStatusCompleted {
		t.Errorf("status changed to %q despite aborted mutation", je.Status)
	}
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	ctx := context.Background()
	if err := s.InsertExecution(ctx, domain.Execution{ID: "e", WorkflowID: "wf", Status: domain.ExecutionStatusRunning}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertJobExecution(ctx, domain.JobExecution{ID: "je", ExecutionID: "e", JobID: "j", Status: domain.JobExecutionStatusRunning, Logs: []string{"a"}}); err != nil {
		t.Fatal(err)
	}

	je, err := s.GetJobExecution(ctx, "je")
	if err != nil {
		t.Fatal(err)
	}
	je.Logs[0] = "mutated"
	again, err := s.GetJobExecution(ctx, "je")
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Logs) != 1 || again.Logs[0] != "a" {
		t.Errorf("store value aliased by caller: %q", again.Logs[0])
	}
}

func TestStore_DeleteWorkflowCascades(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	seedJob(t, s, "wf", "j", 1)
	ctx := context.Background()
	seeds := []error{
		s.CreateTrigger(ctx, domain.Trigger{ID: "t", WorkflowID: "wf", Type: domain.TriggerTypeManual}),
		s.CreateRule(ctx, domain.QualityRule{ID: "r", JobID: "j", Stage: domain.StageBronze, Active: true}),
		s.InsertExecution(ctx, domain.Execution{ID: "e", WorkflowID: "wf", Status: domain.ExecutionStatusCompleted}),
		s.InsertJobExecution(ctx, domain.JobExecution{ID: "je", ExecutionID: "e", JobID: "j", Status: domain.JobExecutionStatusCompleted}),
		s.InsertRuleExecution(ctx, domain.RuleExecution{ID: "re", RuleID: "r", JobExecutionID: "je"}),
	}
	for i, err := range seeds {
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
	if _, err := s.GetJobExecution(ctx, "je"); err != nil {
		t.Fatalf("job execution not seeded: %v", err)
	}

	if err := s.DeleteWorkflow(ctx, "wf"); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	if _, err := s.GetJob(ctx, "j"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job survived: %v", err)
	}
	if _, err := s.GetTrigger(ctx, "t"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("trigger survived: %v", err)
	}
	if _, err := s.GetExecution(ctx, "e"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("execution survived: %v", err)
	}
	if _, err := s.GetJobExecution(ctx, "je"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job execution survived: %v", err)
	}
	if rules, _ := s.ListRules(ctx, "j"); len(rules) != 0 {
		t.Errorf("rules survived: %d", len(rules))
	}
	// Rule executions are weak references and outlive the job execution.
	if res, _ := s.ListRuleExecutions(ctx, "je"); len(res) != 1 {
		t.Errorf("rule executions = %d, want 1", len(res))
	}
}

func TestStore_ActiveRulesByStage(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "wf")
	seedJob(t, s, "wf", "j", 1)
	ctx := context.Background()
	_ = s.CreateRule(ctx, domain.QualityRule{ID: "r1", JobID: "j", Stage: domain.StageBronze, Active: true})
	_ = s.CreateRule(ctx, domain.QualityRule{ID: "r2", JobID: "j", Stage: domain.StageSilver, Active: true})
	_ = s.CreateRule(ctx, domain.QualityRule{ID: "r3", JobID: "j", Stage: domain.StageBronze, Active: false})

	rules, err := s.ListActiveRules(ctx, "j", domain.StageBronze)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Errorf("active bronze rules = %+v", rules)
	}
}

func TestStore_FindProcessedFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	_ = s.InsertFileLog(ctx, domain.FileProcessingLog{ID: "f1", SourceID: "job", ContentHash: "abc", Status: domain.FileStatusFailed, CreatedAt: now})

	if _, ok, _ := s.FindProcessedFile(ctx, "job", "abc"); ok {
		t.Fatal("failed file must not count as processed")
	}
	if err := s.CompleteFileLog(ctx, "f1", domain.FileStatusCompleted, 10, now); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.FindProcessedFile(ctx, "job", "abc")
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	if got.ID != "f1" || got.Records != 10 {
		t.Errorf("unexpected record: %+v", got)
	}
	if _, ok, _ := s.FindProcessedFile(ctx, "other-job", "abc"); ok {
		t.Error("hash match for a different source must not count")
	}
}

func TestStore_ReviewQuarantineRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_ = s.InsertQuarantineRecords(ctx, []domain.QuarantineRecord{
		{ID: "q1", RuleExecutionID: "re", JobExecutionID: "je", Status: domain.ReviewStatusQuarantined},
		{ID: "q2", RuleExecutionID: "re", JobExecutionID: "je", Status: domain.ReviewStatusQuarantined},
	})
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	rec, err := s.ReviewQuarantineRecord(ctx, "q1", domain.ReviewStatusApproved, "analyst", at)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.ReviewStatusApproved || rec.ReviewedBy != "analyst" || !rec.ReviewedAt.Equal(at) {
		t.Errorf("unexpected review result: %+v", rec)
	}
	pending, _ := s.ListQuarantineRecords(ctx, store.QuarantineFilter{JobExecutionID: "je", Status: domain.ReviewStatusQuarantined})
	if len(pending) != 1 || pending[0].ID != "q2" {
		t.Errorf("pending = %+v", pending)
	}
}

func TestStore_UpdateTrigger_RepointDuplicate(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"w1", "w2", "w3"} {
		seedWorkflow(t, s, id)
	}
	ctx := context.Background()
	for _, tr := range []domain.Trigger{
		{ID: "t1", WorkflowID: "w3", Type: domain.TriggerTypeDependency, DependsOnWorkflowID: "w1", Condition: domain.ConditionOnSuccess, Enabled: true},
		{ID: "t2", WorkflowID: "w3", Type: domain.TriggerTypeDependency, DependsOnWorkflowID: "w2", Condition: domain.ConditionOnSuccess, Enabled: true},
	} {
		if err := s.CreateTrigger(ctx, tr); err != nil {
			t.Fatalf("CreateTrigger: %v", err)
		}
	}

	_, err := s.UpdateTrigger(ctx, "t2", func(tr *domain.Trigger) error {
		tr.DependsOnWorkflowID = "w1"
		return nil
	})
	if !errors.Is(err, store.ErrDuplicateDependency) {
		t.Fatalf("expected ErrDuplicateDependency, got %v", err)
	}

	got, err := s.UpdateTrigger(ctx, "t2", func(tr *domain.Trigger) error {
		tr.ID, tr.WorkflowID, tr.Type = "hijack", "w1", domain.TriggerTypeScheduled
		tr.DelayMinutes = 7
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateTrigger: %v", err)
	}
	if got.ID != "t2" || got.WorkflowID != "w3" || got.Type != domain.TriggerTypeDependency || got.DelayMinutes != 7 {
		t.Errorf("immutable fields not preserved: %+v", got)
	}
}

func TestStore_TriggerAndFinishedExecutions(t *testing.T) {
	s := newTestStore(t)
	seedWorkflow(t, s, "w1")
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, status := range []domain.ExecutionStatus{
		domain.ExecutionStatusCompleted, domain.ExecutionStatusFailed, domain.ExecutionStatusRunning,
	} {
		e := domain.Execution{
			ID: fmt.Sprintf("e%d", i), WorkflowID: "w1", TriggerID: "t1",
			DedupKey: fmt.Sprintf("k%d", i), Status: status, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if status != domain.ExecutionStatusRunning {
			done := e.CreatedAt.Add(30 * time.Second)
			e.CompletedAt = &done
		}
		if err := s.InsertExecution(ctx, e); err != nil {
			t.Fatalf("InsertExecution: %v", err)
		}
	}

	hist, err := s.ListTriggerExecutions(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("ListTriggerExecutions: %v", err)
	}
	if len(hist) != 2 || hist[0].ID != "e2" || hist[1].ID != "e1" {
		t.Errorf("history = %+v, want e2, e1", hist)
	}

	finished, err := s.ListFinishedExecutions(ctx, base.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("ListFinishedExecutions: %v", err)
	}
	if len(finished) != 1 || finished[0].ID != "e1" {
		t.Errorf("finished = %+v, want e1", finished)
	}

	for key, want := range map[string]bool{"k0": true, "missing": false} {
		got, err := s.ExecutionExists(ctx, key)
		if err != nil || got != want {
			t.Errorf("ExecutionExists(%s) = %t, %v; want %t", key, got, err, want)
		}
	}
}
