package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/cron"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/resolver"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/scheduler"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store/memory"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/testutil"
)

type nopEmitter struct{}

func (nopEmitter) Emit(ctx context.Context, req domain.RunRequest) error { return nil }

type mockSync struct {
	mu     sync.Mutex
	paused []string
}

func (m *mockSync) Pause(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = append(m.paused, id)
	return nil
}

func (m *mockSync) Resume(ctx context.Context, id string) error { return nil }

type stubTimer struct{}

func (stubTimer) Stop() bool { return true }

type harness struct {
	store   *memory.Store
	sched   *scheduler.Scheduler
	sync    *mockSync
	catalog *Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.MustTime("2024-01-01T00:00:00Z"))
	st, err := memory.New(memory.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	ms := &mockSync{}
	sched := scheduler.New(scheduler.Config{TickInterval: time.Second}, st, cron.NewEvaluator(), nopEmitter{}, resolver.New(st)).
		WithClock(clock.Now).
		WithDeploySync(ms).
		WithAfterFunc(func(d time.Duration, f func()) scheduler.Timer { return stubTimer{} })
	return &harness{
		store:   st,
		sched:   sched,
		sync:    ms,
		catalog: New(st, sched).WithClock(clock.Now),
	}
}

func fileJob(workflowID, name string) domain.Job {
	return domain.Job{
		WorkflowID: workflowID,
		Name:       name,
		OrderIndex: -1,
		Type:       domain.JobTypeFileBased,
		Config: domain.JobConfig{
			Source:      domain.SourceConfig{File: &domain.FileSource{Path: "/landing/" + name, Format: "csv"}},
			Destination: domain.DestinationConfig{BronzeTable: "bronze_" + name},
		},
	}
}

func (h *harness) workflow(t *testing.T, name string) domain.Workflow {
	t.Helper()
	wf, err := h.catalog.CreateWorkflow(testutil.TestContext(t), domain.Workflow{Name: name})
	if err != nil {
		t.Fatal(err)
	}
	return wf
}

func TestCreateWorkflow_Defaults(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, "  orders ")
	if wf.Name != "orders" || wf.Mode != domain.WorkflowModeSourceCentric || wf.Status != domain.WorkflowStatusManual {
		t.Errorf("workflow = %+v", wf)
	}
	if wf.ID == "" || wf.CreatedAt.IsZero() {
		t.Error("id and created_at must be set")
	}
}

func TestCreateWorkflow_Invalid(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	for _, wf := range []domain.Workflow{{Name: ""}, {Name: "x", Mode: "diagonal"}} {
		_, err := h.catalog.CreateWorkflow(ctx, wf)
		if !domain.IsConfigurationError(err) {
			t.Errorf("CreateWorkflow(%+v) err = %v, want ConfigurationError", wf, err)
		}
	}
}

func TestCreateJob_ValidatesAndAppends(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	wf := h.workflow(t, "orders")

	first, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "a"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "b"))
	if err != nil {
		t.Fatal(err)
	}
	if first.OrderIndex != 0 || second.OrderIndex != 1 {
		t.Errorf("orders = %d, %d, want 0, 1", first.OrderIndex, second.OrderIndex)
	}
	if first.Status != domain.JobStatusConfigured {
		t.Errorf("status = %s, want configured", first.Status)
	}

	bad := fileJob(wf.ID, "c")
	bad.Type = domain.JobTypeDatabase
	if _, err := h.catalog.CreateJob(ctx, bad); !domain.IsConfigurationError(err) {
		t.Errorf("mismatched source err = %v, want ConfigurationError", err)
	}

	if _, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "a")); !errors.Is(err, store.ErrDuplicateName) {
		t.Errorf("duplicate name err = %v, want ErrDuplicateName", err)
	}

	if _, err := h.catalog.CreateJob(ctx, fileJob("missing", "z")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing workflow err = %v, want ErrNotFound", err)
	}
}

func TestCloneJob_Naming(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	wf := h.workflow(t, "orders")
	src := fileJob(wf.ID, "orders_csv")
	src.Status = domain.JobStatusActive
	job, err := h.catalog.CreateJob(ctx, src)
	if err != nil {
		t.Fatal(err)
	}

	c1, err := h.catalog.CloneJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := h.catalog.CloneJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}

	if c1.Name != "orders_csv (copy)" || c2.Name != "orders_csv (copy 2)" {
		t.Errorf("names = %q, %q", c1.Name, c2.Name)
	}
	if c1.OrderIndex != 1 || c2.OrderIndex != 2 {
		t.Errorf("orders = %d, %d, want 1, 2", c1.OrderIndex, c2.OrderIndex)
	}
	if c1.Status != domain.JobStatusConfigured {
		t.Errorf("clone status = %s, want configured", c1.Status)
	}
	if c1.Config.Source.File == job.Config.Source.File {
		t.Error("clone shares source config with original")
	}
	if c1.Config.Source.File.Path != job.Config.Source.File.Path {
		t.Errorf("clone path = %q", c1.Config.Source.File.Path)
	}
}

func TestCopyName(t *testing.T) {
	sibs := []domain.Job{{Name: "a"}, {Name: "a (copy)"}, {Name: "a (copy 2)"}, {Name: "a (copy 4)"}}
	if got := CopyName("a", sibs); got != "a (copy 3)" {
		t.Errorf("CopyName = %q, want %q", got, "a (copy 3)")
	}
	if got := CopyName("b", sibs); got != "b (copy)" {
		t.Errorf("CopyName = %q, want %q", got, "b (copy)")
	}
}

func TestCreateRule(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	wf := h.workflow(t, "orders")
	job, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "a"))
	if err != nil {
		t.Fatal(err)
	}

	rule, err := h.catalog.CreateRule(ctx, domain.QualityRule{
		JobID: job.ID, Name: "id present", Column: "order_id",
		Type: domain.RuleTypeNotNull, Severity: domain.SeverityError, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if rule.Stage != domain.StageBronze {
		t.Errorf("stage = %s, want bronze", rule.Stage)
	}

	_, err = h.catalog.CreateRule(ctx, domain.QualityRule{
		JobID: job.ID, Name: "code", Column: "code",
		Type: domain.RuleTypePattern, Params: domain.RuleParams{Pattern: "(["}, Severity: domain.SeverityWarning,
	})
	if !domain.IsConfigurationError(err) {
		t.Errorf("bad pattern err = %v, want ConfigurationError", err)
	}

	rules, err := h.catalog.ListRules(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Errorf("rules = %d, want 1", len(rules))
	}
}

func TestDeleteWorkflow_Cascade(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	up := h.workflow(t, "customers")
	down := h.workflow(t, "orders")
	job, err := h.catalog.CreateJob(ctx, fileJob(down.ID, "a"))
	if err != nil {
		t.Fatal(err)
	}

	sched, err := h.sched.CreateTrigger(ctx, domain.Trigger{
		WorkflowID: down.ID, Name: "nightly", Type: domain.TriggerTypeScheduled,
		CronExpression: "0 2 * * *", Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.sched.CreateTrigger(ctx, domain.Trigger{
		WorkflowID: down.ID, Name: "after customers", Type: domain.TriggerTypeDependency,
		DependsOnWorkflowID: up.ID, DelayMinutes: 5, Enabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = h.sched.HandleCompletion(ctx, domain.CompletionEvent{
		ExecutionID: "up-1", WorkflowID: up.ID, Status: domain.ExecutionStatusCompleted,
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := h.sched.PendingDelays(); n != 1 {
		t.Fatalf("pending delays = %d, want 1", n)
	}

	if err := h.catalog.DeleteWorkflow(ctx, down.ID); err != nil {
		t.Fatal(err)
	}

	if n := h.sched.PendingDelays(); n != 0 {
		t.Errorf("pending delays after delete = %d, want 0", n)
	}
	h.sync.mu.Lock()
	paused := append([]string(nil), h.sync.paused...)
	h.sync.mu.Unlock()
	if len(paused) != 1 || paused[0] != sched.ID {
		t.Errorf("paused = %v, want [%s]", paused, sched.ID)
	}
	if _, err := h.store.GetWorkflow(ctx, down.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("workflow err = %v, want ErrNotFound", err)
	}
	if _, err := h.store.GetJob(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job err = %v, want ErrNotFound", err)
	}
	if _, err := h.store.GetWorkflow(ctx, up.ID); err != nil {
		t.Errorf("upstream workflow should survive: %v", err)
	}
}

func TestDeleteJob_CascadesRules(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	wf := h.workflow(t, "orders")
	job, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.catalog.CreateRule(ctx, domain.QualityRule{
		JobID: job.ID, Name: "r", Column: "c", Type: domain.RuleTypeUnique, Severity: domain.SeverityInfo,
	}); err != nil {
		t.Fatal(err)
	}

	if err := h.catalog.DeleteJob(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	rules, err := h.store.ListRules(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 0 {
		t.Errorf("rules after delete = %d, want 0", len(rules))
	}
	if err := h.catalog.DeleteJob(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestCatalog_ErrorsKeepMessages(t *testing.T) {
	h := newHarness(t)
	_, err := h.catalog.CreateJob(testutil.TestContext(t), fileJob("nope", "a"))
	if err == nil || !strings.Contains(err.Error(), "workflow nope") {
		t.Errorf("err = %v, want workflow id in message", err)
	}
}

func TestUpdateRule(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	wf := h.workflow(t, "orders")
	job, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "a"))
	if err != nil {
		t.Fatal(err)
	}
	rule, err := h.catalog.CreateRule(ctx, domain.QualityRule{
		JobID: job.ID, Name: "amount", Column: "amount",
		Type: domain.RuleTypeNotNull, Severity: domain.SeverityError, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	rangeType := domain.RuleTypeRange
	lo, hi := 0.0, 1000.0
	params := domain.RuleParams{Min: &lo, Max: &hi}
	warning := domain.SeverityWarning
	got, err := h.catalog.UpdateRule(ctx, rule.ID, RulePatch{Type: &rangeType, Params: &params, Severity: &warning})
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != domain.RuleTypeRange || got.Severity != domain.SeverityWarning || got.Column != "amount" {
		t.Errorf("updated = %+v", got)
	}
	if got.ID != rule.ID || got.JobID != job.ID || !got.CreatedAt.Equal(rule.CreatedAt) {
		t.Errorf("identity changed: %+v", got)
	}

	empty := domain.Stage("")
	got, err = h.catalog.UpdateRule(ctx, rule.ID, RulePatch{Stage: &empty})
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != domain.StageBronze {
		t.Errorf("stage = %s, want bronze", got.Stage)
	}

	if _, err := h.catalog.UpdateRule(ctx, rule.ID, RulePatch{}); !domain.IsConfigurationError(err) {
		t.Errorf("empty patch err = %v, want ConfigurationError", err)
	}
	bad := domain.RuleParams{}
	if _, err := h.catalog.UpdateRule(ctx, rule.ID, RulePatch{Params: &bad}); !domain.IsConfigurationError(err) {
		t.Errorf("range without bounds err = %v, want ConfigurationError", err)
	}
	stored, err := h.catalog.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Params.Min == nil || *stored.Params.Min != 0 {
		t.Errorf("rejected patch persisted: %+v", stored.Params)
	}

	name := "x"
	if _, err := h.catalog.UpdateRule(ctx, "nope", RulePatch{Name: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing rule err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRule_SoftAndHard(t *testing.T) {
	h := newHarness(t)
	ctx := testutil.TestContext(t)
	wf := h.workflow(t, "orders")
	job, err := h.catalog.CreateJob(ctx, fileJob(wf.ID, "a"))
	if err != nil {
		t.Fatal(err)
	}
	rule, err := h.catalog.CreateRule(ctx, domain.QualityRule{
		JobID: job.ID, Name: "id present", Column: "order_id",
		Type: domain.RuleTypeNotNull, Severity: domain.SeverityError, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := h.catalog.DeleteRule(ctx, rule.ID, false); err != nil {
		t.Fatal(err)
	}
	got, err := h.catalog.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("soft-deleted rule gone: %v", err)
	}
	if got.Active {
		t.Error("soft-deleted rule still active")
	}
	active, err := h.store.ListActiveRules(ctx, job.ID, domain.StageBronze)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active rules = %d, want 0", len(active))
	}

	if err := h.catalog.DeleteRule(ctx, rule.ID, true); err != nil {
		t.Fatal(err)
	}
	if _, err := h.catalog.GetRule(ctx, rule.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("hard-deleted rule err = %v, want ErrNotFound", err)
	}
	if err := h.catalog.DeleteRule(ctx, rule.ID, true); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
