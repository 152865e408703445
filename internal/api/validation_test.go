package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/cron"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

func TestValidateIngest(t *testing.T) {
	tests := []struct {
		name  string
		req   IngestRequest
		field string
	}{
		{"valid", IngestRequest{FileName: "orders.csv", ContentHash: "sha256:ab12"}, ""},
		{"missing file name", IngestRequest{ContentHash: "sha256:ab12"}, "file_name"},
		{"blank file name", IngestRequest{FileName: "  ", ContentHash: "sha256:ab12"}, "file_name"},
		{"missing hash", IngestRequest{FileName: "orders.csv"}, "content_hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIngest(tt.req)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			ce, ok := err.(*domain.ConfigurationError)
			if !ok {
				t.Fatalf("expected *ConfigurationError, got %T (%v)", err, err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, want %q", ce.Field, tt.field)
			}
		})
	}
}

func TestValidateReview(t *testing.T) {
	tests := []struct {
		name  string
		req   ReviewRequest
		field string
	}{
		{"approved", ReviewRequest{Status: domain.ReviewStatusApproved, Reviewer: "dana"}, ""},
		{"rejected", ReviewRequest{Status: domain.ReviewStatusRejected, Reviewer: "dana"}, ""},
		{"fixed", ReviewRequest{Status: domain.ReviewStatusFixed, Reviewer: "dana"}, ""},
		{"back to quarantined", ReviewRequest{Status: domain.ReviewStatusQuarantined, Reviewer: "dana"}, "status"},
		{"unknown status", ReviewRequest{Status: "ignored", Reviewer: "dana"}, "status"},
		{"no reviewer", ReviewRequest{Status: domain.ReviewStatusApproved}, "reviewer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateReview(tt.req)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			ce, ok := err.(*domain.ConfigurationError)
			if !ok || ce.Field != tt.field {
				t.Fatalf("expected configuration error on %q, got %v", tt.field, err)
			}
		})
	}
}

func TestParsePreview(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    previewQuery
		wantErr string
	}{
		{
			name:  "defaults",
			query: "expression=*/15+*+*+*+*",
			want:  previewQuery{expression: "*/15 * * * *", timezone: "UTC", count: DefaultPreviewCount},
		},
		{
			name:  "explicit",
			query: "expression=0+6+*+*+1&timezone=America/New_York&count=3",
			want:  previewQuery{expression: "0 6 * * 1", timezone: "America/New_York", count: 3},
		},
		{name: "missing expression", query: "count=3", wantErr: "expression"},
		{name: "count zero", query: "expression=@daily&count=0", wantErr: "count"},
		{name: "count too large", query: "expression=@daily&count=101", wantErr: "count"},
		{name: "count not a number", query: "expression=@daily&count=many", wantErr: "count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/cron/preview?"+tt.query, nil)
			got, err := parsePreview(r)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParsePreview_MaxCountAccepted(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/cron/preview?expression=@hourly&count=100", nil)
	got, err := parsePreview(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.count != cron.MaxPreview {
		t.Errorf("count = %d, want %d", got.count, cron.MaxPreview)
	}
}
