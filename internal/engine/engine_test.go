package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/stage"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store/memory"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/testutil"
)

// fakeRunner stands in for the transformation executor. Keys are
// "<job id>:<stage>".
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	block   map[string]bool
	hold    map[string]chan struct{}
	records map[domain.Stage][]quality.Record
	started chan string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		fail:    make(map[string]error),
		block:   make(map[string]bool),
		hold:    make(map[string]chan struct{}),
		records: make(map[domain.Stage][]quality.Record),
		started: make(chan string, 64),
	}
}

func (f *fakeRunner) RunStage(ctx context.Context, req stage.Request) (stage.Output, error) {
	key := req.Job.ID + ":" + string(req.Stage)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	err := f.fail[key]
	block := f.block[key]
	hold := f.hold[key]
	n := len(f.records[req.Stage])
	f.mu.Unlock()

	f.started <- key
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return stage.Output{}, ctx.Err()
		}
	}
	if block {
		<-ctx.Done()
		return stage.Output{}, ctx.Err()
	}
	if err != nil {
		return stage.Output{}, err
	}
	if n == 0 {
		n = 5
	}
	return stage.Output{Ref: req.Job.ID + "/" + string(req.Stage), Records: int64(n)}, nil
}

func (f *fakeRunner) OpenOutput(ctx context.Context, ref string) (quality.BatchReader, error) {
	st := domain.Stage(ref[strings.LastIndex(ref, "/")+1:])
	f.mu.Lock()
	defer f.mu.Unlock()
	return &sliceReader{records: f.records[st]}, nil
}

func (f *fakeRunner) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

type sliceReader struct {
	records []quality.Record
}

func (r *sliceReader) Next(ctx context.Context) ([]quality.Record, error) {
	if len(r.records) == 0 {
		return nil, io.EOF
	}
	n := 100
	if n > len(r.records) {
		n = len(r.records)
	}
	batch := r.records[:n]
	r.records = r.records[n:]
	return batch, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.CompletionEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, event domain.CompletionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type fixture struct {
	store    *memory.Store
	runner   *fakeRunner
	engine   *Engine
	emitter  *recordingEmitter
	workflow domain.Workflow
	jobs     []domain.Job
}

func newFixture(t *testing.T, mode domain.WorkflowMode, jobCount int) *fixture {
	t.Helper()
	ctx := testutil.TestContext(t)
	st, err := memory.New()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	wf := domain.Workflow{
		ID: uuid.NewString(), Name: "orders", Mode: mode,
		Status: domain.WorkflowStatusManual, CreatedAt: now, UpdatedAt: now,
	}
	if err := st.CreateWorkflow(ctx, wf); err != nil {
		t.Fatal(err)
	}
	var jobs []domain.Job
	for i := 0; i < jobCount; i++ {
		job := domain.Job{
			ID: uuid.NewString(), WorkflowID: wf.ID, Name: fmt.Sprintf("job-%d", i), OrderIndex: i,
			Type: domain.JobTypeFileBased, Status: domain.JobStatusActive,
			Config: domain.JobConfig{
				Source:      domain.SourceConfig{File: &domain.FileSource{Path: "/landing", Format: "csv"}},
				Destination: domain.DestinationConfig{BronzeTable: fmt.Sprintf("bronze_%d", i)},
			},
			CreatedAt: now, UpdatedAt: now,
		}
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, job)
	}

	runner := newFakeRunner()
	exec := stage.New(runner, st, quality.New(st)).WithRetry(1, time.Millisecond).WithTimeout(2 * time.Second)
	emitter := &recordingEmitter{}
	return &fixture{
		store:    st,
		runner:   runner,
		engine:   New(st, exec).WithCompletions(emitter),
		emitter:  emitter,
		workflow: wf,
		jobs:     jobs,
	}
}

func (f *fixture) pendingExecution(t *testing.T) domain.Execution {
	t.Helper()
	exec := domain.Execution{
		ID: uuid.NewString(), WorkflowID: f.workflow.ID, TriggerKind: domain.TriggerKindManual,
		Status: domain.ExecutionStatusPending, CreatedAt: time.Now().UTC(),
	}
	if err := f.store.InsertExecution(testutil.TestContext(t), exec); err != nil {
		t.Fatal(err)
	}
	return exec
}

func (f *fixture) jobExecution(t *testing.T, execID, jobID string) domain.JobExecution {
	t.Helper()
	jes, err := f.store.ListJobExecutions(testutil.TestContext(t), execID)
	if err != nil {
		t.Fatal(err)
	}
	for _, je := range jes {
		if je.JobID == jobID {
			return je
		}
	}
	t.Fatalf("no job execution for job %s", jobID)
	return domain.JobExecution{}
}

func (f *fixture) addRule(t *testing.T, jobID string, r domain.QualityRule) {
	t.Helper()
	r.ID = uuid.NewString()
	r.JobID = jobID
	r.Active = true
	if r.Stage == "" {
		r.Stage = domain.StageBronze
	}
	if err := f.store.CreateRule(testutil.TestContext(t), r); err != nil {
		t.Fatal(err)
	}
}

func TestRun_SourceCentricCompletes(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 3)
	ctx := testutil.TestContext(t)
	exec := f.pendingExecution(t)

	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := f.store.GetExecution(ctx, exec.ID)
	if got.Status != domain.ExecutionStatusCompleted {
		t.Errorf("execution status = %s, want completed", got.Status)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}
	for _, job := range f.jobs {
		je := f.jobExecution(t, exec.ID, job.ID)
		if je.Status != domain.JobExecutionStatusCompleted {
			t.Errorf("job %s status = %s", job.Name, je.Status)
		}
		if je.BronzeRecords != 5 || je.SilverRecords != 5 || je.GoldRecords != 5 {
			t.Errorf("job %s records = %d/%d/%d", job.Name, je.BronzeRecords, je.SilverRecords, je.GoldRecords)
		}
		if je.GoldRef != job.ID+"/gold" {
			t.Errorf("gold ref = %q", je.GoldRef)
		}
	}

	wf, _ := f.store.GetWorkflow(ctx, f.workflow.ID)
	if wf.Status != domain.WorkflowStatusCompleted {
		t.Errorf("workflow status = %s, want completed", wf.Status)
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].Status != domain.ExecutionStatusCompleted {
		t.Errorf("completion events = %+v", f.emitter.events)
	}
}

func TestRun_BronzeQualityFailureStopsJob(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	job := f.jobs[0]

	var records []quality.Record
	for i := 0; i < 1000; i++ {
		rec := quality.Record{"id": float64(i), "customer_id": "c-1"}
		if i < 12 {
			rec["customer_id"] = nil
		}
		records = append(records, rec)
	}
	f.runner.records[domain.StageBronze] = records
	f.addRule(t, job.ID, domain.QualityRule{
		Name: "customer required", Column: "customer_id", Type: domain.RuleTypeNotNull, Severity: domain.SeverityError,
	})

	exec := f.pendingExecution(t)
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	je := f.jobExecution(t, exec.ID, job.ID)
	if je.Status != domain.JobExecutionStatusFailed || je.FailedStage != domain.StageBronze {
		t.Errorf("job execution = %s at %q, want failed at bronze", je.Status, je.FailedStage)
	}
	if je.SilverRecords != 0 || je.BronzeRecords != 0 {
		t.Errorf("records advanced: bronze=%d silver=%d", je.BronzeRecords, je.SilverRecords)
	}
	if f.runner.called(job.ID + ":silver") {
		t.Error("silver must never be attempted")
	}
	if je.QuarantinedRecords != 12 {
		t.Errorf("quarantined = %d, want 12", je.QuarantinedRecords)
	}
	q, err := f.store.ListQuarantineRecords(ctx, store.QuarantineFilter{JobExecutionID: je.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(q) != 12 {
		t.Errorf("quarantine records = %d, want 12", len(q))
	}
	if len(je.ValidationResults) != 1 || je.ValidationResults[0].Passed {
		t.Errorf("validation results = %+v", je.ValidationResults)
	}
	if last := je.Logs[len(je.Logs)-1]; !strings.Contains(last, "quality gate") || !strings.Contains(last, "bronze") {
		t.Errorf("last log line = %q", last)
	}

	got, _ := f.store.GetExecution(ctx, exec.ID)
	if got.Status != domain.ExecutionStatusFailed {
		t.Errorf("execution = %s, want failed", got.Status)
	}
}

func TestRun_SilverOnlyAfterCleanBronze(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	job := f.jobs[0]
	f.runner.records[domain.StageBronze] = []quality.Record{{"amount": 5.0}, {"amount": -1.0}}
	f.addRule(t, job.ID, domain.QualityRule{
		Name: "amount positive", Column: "amount", Type: domain.RuleTypeRange,
		Params: domain.RuleParams{Min: func() *float64 { v := 0.0; return &v }()}, Severity: domain.SeverityWarning,
	})

	exec := f.pendingExecution(t)
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	je := f.jobExecution(t, exec.ID, job.ID)
	if je.Status != domain.JobExecutionStatusCompleted {
		t.Fatalf("status = %s, want completed", je.Status)
	}
	if je.SilverRecords == 0 {
		t.Fatal("silver should run after a warning-only bronze verdict")
	}
	res, err := f.store.ListRuleExecutions(ctx, je.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, re := range res {
		if re.Stage == domain.StageBronze && re.Blocking() {
			t.Errorf("silver populated despite blocking bronze rule %s", re.RuleID)
		}
	}
	if je.QuarantinedRecords != 0 {
		t.Errorf("warning rule quarantined %d records", je.QuarantinedRecords)
	}
	if je.ValidationResults[0].Warnings != 1 {
		t.Errorf("validation = %+v", je.ValidationResults[0])
	}
}

func TestRun_SourceCentricIsolatesFailures(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 2)
	ctx := testutil.TestContext(t)
	a, b := f.jobs[0], f.jobs[1]
	f.runner.fail[a.ID+":silver"] = errors.New("executor unavailable")

	exec := f.pendingExecution(t)
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}

	ja := f.jobExecution(t, exec.ID, a.ID)
	if ja.Status != domain.JobExecutionStatusFailed || ja.FailedStage != domain.StageSilver {
		t.Errorf("job a = %s at %q", ja.Status, ja.FailedStage)
	}
	if ja.BronzeRecords != 5 || ja.SilverRecords != 0 {
		t.Errorf("job a records = %d/%d", ja.BronzeRecords, ja.SilverRecords)
	}
	jb := f.jobExecution(t, exec.ID, b.ID)
	if jb.Status != domain.JobExecutionStatusCompleted {
		t.Errorf("job b = %s, want completed", jb.Status)
	}

	got, _ := f.store.GetExecution(ctx, exec.ID)
	if got.Status != domain.ExecutionStatusFailed {
		t.Errorf("execution = %s, want failed", got.Status)
	}
	m := domain.AggregateExecutionMetrics([]domain.JobExecution{ja, jb})
	if m.CompletedJobs != 1 || m.FailedJobs != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRun_LayerCentricBarrier(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeLayerCentric, 3)
	ctx := testutil.TestContext(t)
	blocker := f.jobs[1]
	f.runner.fail[blocker.ID+":bronze"] = errors.New("bad file")

	exec := f.pendingExecution(t)
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}

	for _, job := range f.jobs {
		je := f.jobExecution(t, exec.ID, job.ID)
		if je.Status != domain.JobExecutionStatusFailed {
			t.Errorf("job %s = %s, want failed", job.Name, je.Status)
		}
		if f.runner.called(job.ID + ":silver") {
			t.Errorf("job %s advanced past the bronze barrier", job.Name)
		}
		if job.ID == blocker.ID {
			continue
		}
		last := je.Logs[len(je.Logs)-1]
		if !strings.Contains(last, blocker.Name) || !strings.Contains(last, "bronze") {
			t.Errorf("sibling log = %q, want blocking job and stage", last)
		}
		if je.BronzeRecords != 5 {
			t.Errorf("completed bronze output undone for %s", job.Name)
		}
	}
}

func TestRun_SecondDeliveryIsNoop(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	exec := f.pendingExecution(t)

	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	jes, _ := f.store.ListJobExecutions(ctx, exec.ID)
	if len(jes) != 1 {
		t.Errorf("job executions = %d, want 1", len(jes))
	}
	if len(f.emitter.events) != 1 {
		t.Errorf("completion events = %d, want 1", len(f.emitter.events))
	}
}

func TestCancel_RunningExecution(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	job := f.jobs[0]
	f.runner.block[job.ID+":silver"] = true
	f.addRule(t, job.ID, domain.QualityRule{
		Name: "id", Column: "id", Type: domain.RuleTypeNotNull, Severity: domain.SeverityError, Stage: domain.StageSilver,
	})

	exec := f.pendingExecution(t)
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx, exec.ID) }()

	for key := range f.runner.started {
		if key == job.ID+":silver" {
			break
		}
	}
	if _, err := f.engine.Cancel(ctx, exec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := f.store.GetExecution(ctx, exec.ID)
	if got.Status != domain.ExecutionStatusCancelled {
		t.Errorf("execution = %s, want cancelled", got.Status)
	}
	je := f.jobExecution(t, exec.ID, job.ID)
	if je.Status != domain.JobExecutionStatusCancelled {
		t.Errorf("job execution = %s, want cancelled", je.Status)
	}
	if je.BronzeRecords != 5 {
		t.Error("completed bronze output must survive cancellation")
	}
	q, _ := f.store.ListQuarantineRecords(ctx, store.QuarantineFilter{JobExecutionID: je.ID})
	rs, _ := f.store.ListRuleExecutions(ctx, je.ID)
	if len(q) != 0 || len(rs) != 0 {
		t.Errorf("cancelled stage wrote %d quarantine / %d rule executions", len(q), len(rs))
	}
	wf, _ := f.store.GetWorkflow(ctx, f.workflow.ID)
	if wf.Status != domain.WorkflowStatusManual {
		t.Errorf("workflow status = %s, want manual", wf.Status)
	}
}

func TestCancel_PendingExecution(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	exec := f.pendingExecution(t)

	got, err := f.engine.Cancel(ctx, exec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ExecutionStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	jes, _ := f.store.ListJobExecutions(ctx, exec.ID)
	if len(jes) != 0 {
		t.Errorf("cancelled execution created %d job executions", len(jes))
	}
}

func TestIngest_DuplicateContentSkipped(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 2)
	ctx := testutil.TestContext(t)
	job := f.jobs[0]
	req := IngestRequest{JobID: job.ID, FileName: "orders.csv", ContentHash: "sha256:abc", InputRef: "landing/orders.csv"}

	exec, err := f.engine.Ingest(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if exec.ScopeJobID != job.ID || exec.TriggerKind != domain.TriggerKindIngest {
		t.Errorf("execution = %+v", exec)
	}
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	jes, _ := f.store.ListJobExecutions(ctx, exec.ID)
	if len(jes) != 1 || jes[0].JobID != job.ID {
		t.Fatalf("scoped run created %d job executions", len(jes))
	}

	_, err = f.engine.Ingest(ctx, req)
	var dup *domain.DuplicateContentError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateContentError", err)
	}
	if dup.Existing.ExecutionID != exec.ID || dup.Existing.Status != domain.FileStatusCompleted {
		t.Errorf("existing = %+v", dup.Existing)
	}
	execs, _ := f.store.ListExecutions(ctx, f.workflow.ID, 0, 0)
	if len(execs) != 1 {
		t.Errorf("executions = %d, want 1", len(execs))
	}

	// Same content for another job is not a duplicate.
	if _, err := f.engine.Ingest(ctx, IngestRequest{JobID: f.jobs[1].ID, FileName: "orders.csv", ContentHash: "sha256:abc"}); err != nil {
		t.Errorf("other job ingest: %v", err)
	}
}

func TestIngest_FailedFileCanBeRetried(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	job := f.jobs[0]
	f.runner.fail[job.ID+":bronze"] = errors.New("corrupt")

	req := IngestRequest{JobID: job.ID, FileName: "a.csv", ContentHash: "h1"}
	exec, err := f.engine.Ingest(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.engine.Run(ctx, exec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.Ingest(ctx, req); err != nil {
		t.Errorf("failed file should be re-ingestible: %v", err)
	}
}

func TestCancel_FromAnotherInstanceStopsRemainingStages(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 1)
	ctx := testutil.TestContext(t)
	job := f.jobs[0]
	release := make(chan struct{})
	f.runner.hold[job.ID+":bronze"] = release
	f.runner.records[domain.StageBronze] = []quality.Record{{"id": nil}, {"id": nil}}
	f.runner.records[domain.StageSilver] = []quality.Record{{"id": nil}, {"id": nil}}
	for _, st := range []domain.Stage{domain.StageBronze, domain.StageSilver} {
		f.addRule(t, job.ID, domain.QualityRule{
			Name: "id " + string(st), Column: "id", Type: domain.RuleTypeNotNull, Severity: domain.SeverityError, Stage: st,
		})
	}

	exec := f.pendingExecution(t)
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx, exec.ID) }()
	for key := range f.runner.started {
		if key == job.ID+":bronze" {
			break
		}
	}

	// A second instance sharing the store handles the cancel request.
	other := New(f.store, nil)
	if _, err := other.Cancel(ctx, exec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.runner.called(job.ID + ":silver") {
		t.Error("silver ran after the job execution was cancelled")
	}
	je := f.jobExecution(t, exec.ID, job.ID)
	if je.Status != domain.JobExecutionStatusCancelled {
		t.Errorf("job execution = %s, want cancelled", je.Status)
	}
	if je.BronzeRecords != 0 {
		t.Errorf("bronze records = %d, want 0", je.BronzeRecords)
	}
	q, _ := f.store.ListQuarantineRecords(ctx, store.QuarantineFilter{JobExecutionID: je.ID})
	rs, _ := f.store.ListRuleExecutions(ctx, je.ID)
	if len(q) != 0 || len(rs) != 0 {
		t.Errorf("cancelled job wrote %d quarantine / %d rule executions", len(q), len(rs))
	}
	got, _ := f.store.GetExecution(ctx, exec.ID)
	if got.Status != domain.ExecutionStatusCancelled {
		t.Errorf("execution = %s, want cancelled", got.Status)
	}
	if len(f.emitter.events) != 0 {
		t.Errorf("running instance emitted %d completions for an execution finalized elsewhere", len(f.emitter.events))
	}
}

// flakyJobStore fails job execution inserts after the first n.
type flakyJobStore struct {
	*memory.Store
	mu       sync.Mutex
	n        int
	inserted int
}

func (s *flakyJobStore) InsertJobExecution(ctx context.Context, je domain.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inserted >= s.n {
		return errors.New("connection reset")
	}
	s.inserted++
	return s.Store.InsertJobExecution(ctx, je)
}

func TestRun_PrepareFailureFailsCreatedJobExecutions(t *testing.T) {
	f := newFixture(t, domain.WorkflowModeSourceCentric, 2)
	ctx := testutil.TestContext(t)
	flaky := &flakyJobStore{Store: f.store, n: 1}
	eng := New(flaky, stage.New(f.runner, f.store, quality.New(f.store)))

	exec := f.pendingExecution(t)
	if err := eng.Run(ctx, exec.ID); err == nil {
		t.Fatal("expected prepare error")
	}

	jes, _ := f.store.ListJobExecutions(ctx, exec.ID)
	if len(jes) != 1 {
		t.Fatalf("job executions = %d, want 1", len(jes))
	}
	if jes[0].Status != domain.JobExecutionStatusFailed {
		t.Errorf("job execution = %s, want failed", jes[0].Status)
	}
	if last := jes[0].Logs[len(jes[0].Logs)-1]; !strings.Contains(last, "could not start") {
		t.Errorf("last log line = %q", last)
	}
	got, _ := f.store.GetExecution(ctx, exec.ID)
	if got.Status != domain.ExecutionStatusFailed {
		t.Errorf("execution = %s, want failed", got.Status)
	}
	if len(f.runner.calls) != 0 {
		t.Errorf("runner called %v", f.runner.calls)
	}
}
