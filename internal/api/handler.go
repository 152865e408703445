package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/catalog"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/engine"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/quality"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/resolver"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/scheduler"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Store is the read side the handler serves directly.
type Store interface {
	GetExecution(ctx context.Context, id string) (domain.Execution, error)
	ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]domain.Execution, error)
	GetJobExecution(ctx context.Context, id string) (domain.JobExecution, error)
	ListJobExecutions(ctx context.Context, executionID string) ([]domain.JobExecution, error)
	ListRuleExecutions(ctx context.Context, jobExecutionID string) ([]domain.RuleExecution, error)
	ListQuarantineRecords(ctx context.Context, filter store.QuarantineFilter) ([]domain.QuarantineRecord, error)
	ReviewQuarantineRecord(ctx context.Context, id string, status domain.ReviewStatus, reviewer string, at time.Time) (domain.QuarantineRecord, error)
}

type Scheduler interface {
	TriggerManual(ctx context.Context, workflowID string) (domain.Execution, error)
	Enqueue(ctx context.Context, exec domain.Execution)
	CreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error)
	ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error)
	GetTrigger(ctx context.Context, id string) (domain.Trigger, error)
	UpdateTrigger(ctx context.Context, id string, patch scheduler.TriggerPatch) (domain.Trigger, error)
	TriggerHistory(ctx context.Context, id string, limit int) ([]domain.Execution, error)
	SetTriggerEnabled(ctx context.Context, id string, enabled bool) (domain.Trigger, error)
	DeleteTrigger(ctx context.Context, id string) error
}

type Engine interface {
	Cancel(ctx context.Context, executionID string) (domain.Execution, error)
	Ingest(ctx context.Context, req engine.IngestRequest) (domain.Execution, error)
}

type Catalog interface {
	CreateWorkflow(ctx context.Context, wf domain.Workflow) (domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	CreateJob(ctx context.Context, job domain.Job) (domain.Job, error)
	GetJob(ctx context.Context, id string) (domain.Job, error)
	DeleteJob(ctx context.Context, id string) error
	CloneJob(ctx context.Context, id string) (domain.Job, error)
	CreateRule(ctx context.Context, rule domain.QualityRule) (domain.QualityRule, error)
	GetRule(ctx context.Context, id string) (domain.QualityRule, error)
	UpdateRule(ctx context.Context, id string, patch catalog.RulePatch) (domain.QualityRule, error)
	DeleteRule(ctx context.Context, id string, hard bool) error
	ListRules(ctx context.Context, jobID string) ([]domain.QualityRule, error)
	Import(ctx context.Context, m catalog.Manifest) (catalog.ImportResult, error)
}

type DependencyGraph interface {
	Graph(ctx context.Context, workflowID string) (resolver.Graph, error)
	ValidateDependency(ctx context.Context, workflowID, upstreamID string) error
	AvailableUpstream(ctx context.Context, workflowID string) ([]resolver.Candidate, error)
	ChainNames(ctx context.Context, chain []string) []string
}

type CronPreviewer interface {
	PreviewRuns(expression, timezone string, count int, from time.Time) ([]time.Time, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store     Store
	scheduler Scheduler
	engine    Engine
	catalog   Catalog
	graph     DependencyGraph
	cron      CronPreviewer
	db        HealthChecker // optional, nil = simple health only
	now       func() time.Time
	mux       *http.ServeMux
}

func NewHandler(store Store, scheduler Scheduler, engine Engine, catalog Catalog, graph DependencyGraph, cron CronPreviewer) *Handler {
	h := &Handler{
		store:     store,
		scheduler: scheduler,
		engine:    engine,
		catalog:   catalog,
		graph:     graph,
		cron:      cron,
		now:       time.Now,
		mux:       http.NewServeMux(),
	}
	h.routes()
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /health", h.health)

	h.mux.HandleFunc("POST /workflows", h.createWorkflow)
	h.mux.HandleFunc("GET /workflows", h.listWorkflows)
	h.mux.HandleFunc("GET /workflows/{id}", h.getWorkflow)
	h.mux.HandleFunc("DELETE /workflows/{id}", h.deleteWorkflow)
	h.mux.HandleFunc("POST /manifests", h.importManifest)

	h.mux.HandleFunc("POST /workflows/{id}/jobs", h.createJob)
	h.mux.HandleFunc("GET /jobs/{id}", h.getJob)
	h.mux.HandleFunc("DELETE /jobs/{id}", h.deleteJob)
	h.mux.HandleFunc("POST /jobs/{id}/clone", h.cloneJob)
	h.mux.HandleFunc("POST /jobs/{id}/rules", h.createRule)
	h.mux.HandleFunc("GET /jobs/{id}/rules", h.listRules)
	h.mux.HandleFunc("GET /rules/{id}", h.getRule)
	h.mux.HandleFunc("PATCH /rules/{id}", h.updateRule)
	h.mux.HandleFunc("DELETE /rules/{id}", h.deleteRule)
	h.mux.HandleFunc("POST /jobs/{id}/ingest", h.ingest)

	h.mux.HandleFunc("POST /workflows/{id}/executions", h.runWorkflow)
	h.mux.HandleFunc("GET /workflows/{id}/executions", h.listExecutions)
	h.mux.HandleFunc("GET /executions/{id}", h.getExecution)
	h.mux.HandleFunc("POST /executions/{id}/cancel", h.cancelExecution)

	h.mux.HandleFunc("POST /workflows/{id}/triggers", h.createTrigger)
	h.mux.HandleFunc("GET /workflows/{id}/triggers", h.listTriggers)
	h.mux.HandleFunc("GET /triggers/{id}", h.getTrigger)
	h.mux.HandleFunc("PUT /triggers/{id}", h.updateTrigger)
	h.mux.HandleFunc("GET /triggers/{id}/history", h.triggerHistory)
	h.mux.HandleFunc("POST /triggers/{id}/enable", h.setTriggerEnabled(true))
	h.mux.HandleFunc("POST /triggers/{id}/disable", h.setTriggerEnabled(false))
	h.mux.HandleFunc("DELETE /triggers/{id}", h.deleteTrigger)
	h.mux.HandleFunc("GET /cron/preview", h.cronPreview)
	h.mux.HandleFunc("GET /workflows/{id}/dependencies", h.dependencies)
	h.mux.HandleFunc("POST /workflows/{id}/dependencies/validate", h.validateDependency)
	h.mux.HandleFunc("GET /workflows/{id}/available-upstream", h.availableUpstream)

	h.mux.HandleFunc("GET /job-executions/{id}/quality", h.jobExecutionQuality)
	h.mux.HandleFunc("GET /job-executions/{id}/quarantine", h.listQuarantine)
	h.mux.HandleFunc("POST /quarantine/{id}/review", h.reviewQuarantine)

	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wf, err := h.catalog.CreateWorkflow(r.Context(), domain.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Mode:        req.Mode,
	})
	if err != nil {
		writeDomainError(w, "create workflow", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkflowResponse(wf))
}

func (h *Handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	wfs, err := h.catalog.ListWorkflows(r.Context())
	if err != nil {
		writeDomainError(w, "list workflows", err)
		return
	}
	resp := ListWorkflowsResponse{Workflows: make([]WorkflowResponse, len(wfs))}
	for i, wf := range wfs {
		resp.Workflows[i] = toWorkflowResponse(wf)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.catalog.GetWorkflow(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get workflow", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

func (h *Handler) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteWorkflow(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, "delete workflow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) importManifest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	m, err := catalog.ParseManifest(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.catalog.Import(r.Context(), m)
	if err != nil {
		writeDomainError(w, "import manifest", err)
		return
	}
	writeJSON(w, http.StatusCreated, toImportResponse(res))
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order := -1
	if req.OrderIndex != nil {
		if *req.OrderIndex < 0 {
			writeError(w, http.StatusBadRequest, "order_index must not be negative")
			return
		}
		order = *req.OrderIndex
	}
	job, err := h.catalog.CreateJob(r.Context(), domain.Job{
		WorkflowID: r.PathValue("id"),
		Name:       req.Name,
		OrderIndex: order,
		Type:       req.Type,
		Status:     req.Status,
		Config:     req.Config,
	})
	if err != nil {
		writeDomainError(w, "create job", err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.catalog.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *Handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteJob(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, "delete job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cloneJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.catalog.CloneJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "clone job", err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rule, err := h.catalog.CreateRule(r.Context(), domain.QualityRule{
		JobID:    r.PathValue("id"),
		Name:     req.Name,
		Column:   req.Column,
		Type:     req.Type,
		Params:   req.Params,
		Severity: req.Severity,
		Stage:    req.Stage,
		Active:   req.Active == nil || *req.Active,
	})
	if err != nil {
		writeDomainError(w, "create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.catalog.ListRules(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "list rules", err)
		return
	}
	resp := ListRulesResponse{Rules: make([]RuleResponse, len(rules))}
	for i, rule := range rules {
		resp.Rules[i] = toRuleResponse(rule)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.catalog.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	var req UpdateRuleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rule, err := h.catalog.UpdateRule(r.Context(), r.PathValue("id"), catalog.RulePatch{
		Name:     req.Name,
		Column:   req.Column,
		Type:     req.Type,
		Params:   req.Params,
		Severity: req.Severity,
		Stage:    req.Stage,
		Active:   req.Active,
	})
	if err != nil {
		writeDomainError(w, "update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResponse(rule))
}

// deleteRule deactivates a rule; ?hard=true removes it.
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	if err := h.catalog.DeleteRule(r.Context(), r.PathValue("id"), hard); err != nil {
		writeDomainError(w, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ingest registers a landed file. Content already processed for the job is
// not an error: the response points at the existing file log.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateIngest(req); err != nil {
		writeDomainError(w, "ingest", err)
		return
	}
	exec, err := h.engine.Ingest(r.Context(), engine.IngestRequest{
		JobID:       r.PathValue("id"),
		FileName:    req.FileName,
		ContentHash: req.ContentHash,
		InputRef:    req.InputRef,
	})
	var dup *domain.DuplicateContentError
	if errors.As(err, &dup) {
		existing := toFileLogResponse(dup.Existing)
		writeJSON(w, http.StatusOK, IngestResponse{Duplicate: true, Existing: &existing})
		return
	}
	if err != nil {
		writeDomainError(w, "ingest", err)
		return
	}
	h.scheduler.Enqueue(r.Context(), exec)
	resp := toExecutionResponse(exec)
	writeJSON(w, http.StatusAccepted, IngestResponse{Execution: &resp})
}

func (h *Handler) runWorkflow(w http.ResponseWriter, r *http.Request) {
	exec, err := h.scheduler.TriggerManual(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "run workflow", err)
		return
	}
	writeJSON(w, http.StatusAccepted, toExecutionResponse(exec))
}

func (h *Handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	workflowID := r.PathValue("id")
	if _, err := h.catalog.GetWorkflow(r.Context(), workflowID); err != nil {
		writeDomainError(w, "list executions", err)
		return
	}

	executions, err := h.store.ListExecutions(r.Context(), workflowID, limit, offset)
	if err != nil {
		writeDomainError(w, "list executions", err)
		return
	}

	resp := ListExecutionsResponse{Executions: make([]ExecutionResponse, len(executions))}
	for i, exec := range executions {
		resp.Executions[i] = toExecutionResponse(exec)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.store.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get execution", err)
		return
	}
	h.writeExecutionDetail(w, r, http.StatusOK, exec)
}

func (h *Handler) cancelExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.engine.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "cancel execution", err)
		return
	}
	h.writeExecutionDetail(w, r, http.StatusOK, exec)
}

func (h *Handler) writeExecutionDetail(w http.ResponseWriter, r *http.Request, status int, exec domain.Execution) {
	jes, err := h.store.ListJobExecutions(r.Context(), exec.ID)
	if err != nil {
		writeDomainError(w, "list job executions", err)
		return
	}
	resp := ExecutionDetailResponse{
		ExecutionResponse: toExecutionResponse(exec),
		JobExecutions:     make([]JobExecutionResponse, len(jes)),
		Metrics:           domain.AggregateExecutionMetrics(jes),
	}
	for i, je := range jes {
		resp.JobExecutions[i] = toJobExecutionResponse(je)
	}
	writeJSON(w, status, resp)
}

func (h *Handler) createTrigger(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.scheduler.CreateTrigger(r.Context(), domain.Trigger{
		WorkflowID:          r.PathValue("id"),
		Name:                req.Name,
		Type:                req.Type,
		Enabled:             req.Enabled == nil || *req.Enabled,
		CronExpression:      req.CronExpression,
		Timezone:            req.Timezone,
		DependsOnWorkflowID: req.DependsOnWorkflowID,
		Condition:           req.Condition,
		DelayMinutes:        req.DelayMinutes,
	})
	if err != nil {
		writeDomainError(w, "create trigger", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTriggerResponse(t))
}

func (h *Handler) listTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := h.scheduler.ListTriggers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "list triggers", err)
		return
	}
	resp := ListTriggersResponse{Triggers: make([]TriggerResponse, len(triggers))}
	for i, t := range triggers {
		resp.Triggers[i] = toTriggerResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := h.scheduler.GetTrigger(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get trigger", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (h *Handler) updateTrigger(w http.ResponseWriter, r *http.Request) {
	var req UpdateTriggerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.scheduler.UpdateTrigger(r.Context(), r.PathValue("id"), scheduler.TriggerPatch{
		Name:                req.Name,
		CronExpression:      req.CronExpression,
		Timezone:            req.Timezone,
		DependsOnWorkflowID: req.DependsOnWorkflowID,
		Condition:           req.Condition,
		DelayMinutes:        req.DelayMinutes,
	})
	if err != nil {
		writeDomainError(w, "update trigger", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerResponse(t))
}

func (h *Handler) triggerHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseHistoryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	execs, err := h.scheduler.TriggerHistory(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, "trigger history", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerHistory(id, execs))
}

func (h *Handler) setTriggerEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := h.scheduler.SetTriggerEnabled(r.Context(), r.PathValue("id"), enabled)
		if err != nil {
			writeDomainError(w, "update trigger", err)
			return
		}
		writeJSON(w, http.StatusOK, toTriggerResponse(t))
	}
}

func (h *Handler) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.DeleteTrigger(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, "delete trigger", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cronPreview(w http.ResponseWriter, r *http.Request) {
	q, err := parsePreview(r)
	if err != nil {
		writeDomainError(w, "cron preview", err)
		return
	}
	runs, err := h.cron.PreviewRuns(q.expression, q.timezone, q.count, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
		return
	}
	resp := CronPreviewResponse{Expression: q.expression, Timezone: q.timezone, Runs: make([]string, len(runs))}
	for i, t := range runs {
		resp.Runs[i] = t.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) dependencies(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Graph(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get dependencies", err)
		return
	}
	if g.Upstream == nil {
		g.Upstream = []resolver.Edge{}
	}
	if g.Downstream == nil {
		g.Downstream = []resolver.Edge{}
	}
	writeJSON(w, http.StatusOK, g)
}

// validateDependency is a dry run of the checks CreateTrigger applies to a
// dependency trigger. A rejected edge is a 200 with valid=false.
func (h *Handler) validateDependency(w http.ResponseWriter, r *http.Request) {
	var req ValidateDependencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DependsOnWorkflowID == "" {
		writeError(w, http.StatusBadRequest, "depends_on_workflow_id is required")
		return
	}
	workflowID := r.PathValue("id")
	if _, err := h.catalog.GetWorkflow(r.Context(), workflowID); err != nil {
		writeDomainError(w, "validate dependency", err)
		return
	}

	err := h.graph.ValidateDependency(r.Context(), workflowID, req.DependsOnWorkflowID)
	var (
		cfgErr *domain.ConfigurationError
		cycle  *domain.CyclicDependencyError
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ValidateDependencyResponse{Valid: true})
	case errors.As(err, &cycle):
		writeJSON(w, http.StatusOK, ValidateDependencyResponse{
			Error: cycle.Error(),
			Chain: h.graph.ChainNames(r.Context(), cycle.Chain),
		})
	case errors.Is(err, store.ErrDuplicateDependency):
		writeJSON(w, http.StatusOK, ValidateDependencyResponse{Error: err.Error()})
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusNotFound, cfgErr.Reason)
	default:
		writeDomainError(w, "validate dependency", err)
	}
}

func (h *Handler) availableUpstream(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.graph.AvailableUpstream(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "available upstream", err)
		return
	}
	if candidates == nil {
		candidates = []resolver.Candidate{}
	}
	writeJSON(w, http.StatusOK, AvailableUpstreamResponse{Workflows: candidates})
}

func (h *Handler) jobExecutionQuality(w http.ResponseWriter, r *http.Request) {
	je, err := h.store.GetJobExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "get quality", err)
		return
	}
	results, err := h.store.ListRuleExecutions(r.Context(), je.ID)
	if err != nil {
		writeDomainError(w, "get quality", err)
		return
	}
	resp := QualityResponse{
		JobExecutionID: je.ID,
		Summary:        quality.Summarize(results),
		Rules:          make([]RuleExecutionResponse, len(results)),
	}
	for i, re := range results {
		resp.Rules[i] = toRuleExecutionResponse(re)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listQuarantine(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := domain.ReviewStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	je, err := h.store.GetJobExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, "list quarantine", err)
		return
	}
	records, err := h.store.ListQuarantineRecords(r.Context(), store.QuarantineFilter{
		JobExecutionID: je.ID,
		Status:         status,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		writeDomainError(w, "list quarantine", err)
		return
	}
	resp := ListQuarantineResponse{Records: make([]QuarantineRecordResponse, len(records))}
	for i, q := range records {
		resp.Records[i] = toQuarantineResponse(q)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reviewQuarantine(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateReview(req); err != nil {
		writeDomainError(w, "review quarantine", err)
		return
	}
	q, err := h.store.ReviewQuarantineRecord(r.Context(), r.PathValue("id"), req.Status, req.Reviewer, h.now().UTC())
	if err != nil {
		writeDomainError(w, "review quarantine", err)
		return
	}
	writeJSON(w, http.StatusOK, toQuarantineResponse(q))
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// decodeJSON reads a size-limited JSON body into v. Unknown fields are
// rejected. On failure it writes the response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

// writeDomainError maps service errors onto HTTP statuses. Anything not
// recognised is logged and reported as a 500 without detail.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	var (
		cfgErr *domain.ConfigurationError
		cycle  *domain.CyclicDependencyError
	)
	switch {
	case errors.As(err, &cycle):
		writeJSON(w, http.StatusConflict, CycleErrorResponse{Error: cycle.Error(), Chain: cycle.Chain})
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateDependency),
		errors.Is(err, store.ErrDuplicateName),
		errors.Is(err, store.ErrDuplicateOrder),
		errors.Is(err, store.ErrDuplicateExecution),
		errors.Is(err, store.ErrStatusTransitionDenied):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("api: %s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
