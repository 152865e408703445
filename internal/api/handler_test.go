package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    string
	}{
		{name: "defaults", wantLimit: DefaultLimit},
		{name: "custom", query: "limit=50&offset=100", wantLimit: 50, wantOffset: 100},
		{name: "at max", query: "limit=1000", wantLimit: MaxLimit},
		{name: "zero limit means default", query: "limit=0", wantLimit: DefaultLimit},
		{name: "exceeds max", query: "limit=2000", wantErr: "limit exceeds maximum of 1000"},
		{name: "negative limit", query: "limit=-1", wantErr: "limit"},
		{name: "negative offset", query: "offset=-1", wantErr: "offset"},
		{name: "invalid limit", query: "limit=abc", wantErr: "limit"},
		{name: "invalid offset", query: "offset=xyz", wantErr: "offset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/executions?"+tt.query, nil)
			limit, offset, err := parsePagination(req)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"configuration", &domain.ConfigurationError{Field: "name", Reason: "required"}, http.StatusBadRequest, "name: required"},
		{"wrapped configuration", fmt.Errorf("job x: %w", &domain.ConfigurationError{Field: "source", Reason: "missing"}), http.StatusBadRequest, "source: missing"},
		{"not found", fmt.Errorf("workflow wf-9: %w", store.ErrNotFound), http.StatusNotFound, "not found"},
		{"duplicate dependency", store.ErrDuplicateDependency, http.StatusConflict, store.ErrDuplicateDependency.Error()},
		{"duplicate name", store.ErrDuplicateName, http.StatusConflict, store.ErrDuplicateName.Error()},
		{"transition denied", store.ErrStatusTransitionDenied, http.StatusConflict, store.ErrStatusTransitionDenied.Error()},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "failed to get workflow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeDomainError(w, "get workflow", tt.err)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(resp.Error, tt.body) {
				t.Errorf("error = %q, want it to contain %q", resp.Error, tt.body)
			}
			if tt.status == http.StatusInternalServerError && strings.Contains(resp.Error, "connection reset") {
				t.Errorf("internal error detail leaked: %q", resp.Error)
			}
		})
	}
}

func TestWriteDomainError_CycleCarriesChain(t *testing.T) {
	w := httptest.NewRecorder()
	writeDomainError(w, "create trigger", &domain.CyclicDependencyError{
		WorkflowID: "a",
		UpstreamID: "c",
		Chain:      []string{"c", "b", "a"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	var resp CycleErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if strings.Join(resp.Chain, ",") != "c,b,a" {
		t.Errorf("chain = %v", resp.Chain)
	}
	if !strings.Contains(resp.Error, "cyclic dependency") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		ok     bool
		status int
	}{
		{"valid", `{"name":"orders","mode":"layer_centric"}`, true, http.StatusOK},
		{"malformed", `{"name":`, false, http.StatusBadRequest},
		{"unknown field", `{"name":"orders","schedule":"daily"}`, false, http.StatusBadRequest},
		{"empty", ``, false, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/workflows", strings.NewReader(tt.body))
			var req CreateWorkflowRequest
			if got := decodeJSON(w, r, &req); got != tt.ok {
				t.Fatalf("decodeJSON = %t, want %t", got, tt.ok)
			}
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.ok && (req.Name != "orders" || req.Mode != domain.WorkflowModeLayerCentric) {
				t.Errorf("decoded = %+v", req)
			}
		})
	}
}
