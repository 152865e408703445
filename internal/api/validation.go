package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/cron"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/scheduler"
)

// DefaultPreviewCount is used when /cron/preview omits count.
const DefaultPreviewCount = 5

func validateIngest(req IngestRequest) error {
	if strings.TrimSpace(req.FileName) == "" {
		return &domain.ConfigurationError{Field: "file_name", Reason: "required"}
	}
	if strings.TrimSpace(req.ContentHash) == "" {
		return &domain.ConfigurationError{Field: "content_hash", Reason: "required"}
	}
	return nil
}

// validateReview accepts only reviewer decisions; records start out
// quarantined and cannot be put back.
func validateReview(req ReviewRequest) error {
	if !req.Status.Valid() || req.Status == domain.ReviewStatusQuarantined {
		return &domain.ConfigurationError{
			Field:  "status",
			Reason: fmt.Sprintf("must be approved, rejected or fixed, got %q", req.Status),
		}
	}
	if strings.TrimSpace(req.Reviewer) == "" {
		return &domain.ConfigurationError{Field: "reviewer", Reason: "required"}
	}
	return nil
}

type previewQuery struct {
	expression string
	timezone   string
	count      int
}

func parsePreview(r *http.Request) (previewQuery, error) {
	q := r.URL.Query()
	p := previewQuery{
		expression: strings.TrimSpace(q.Get("expression")),
		timezone:   q.Get("timezone"),
		count:      DefaultPreviewCount,
	}
	if p.expression == "" {
		return previewQuery{}, &domain.ConfigurationError{Field: "expression", Reason: "required"}
	}
	if p.timezone == "" {
		p.timezone = "UTC"
	}
	if s := q.Get("count"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > cron.MaxPreview {
			return previewQuery{}, &domain.ConfigurationError{
				Field:  "count",
				Reason: fmt.Sprintf("must be between 1 and %d", cron.MaxPreview),
			}
		}
		p.count = n
	}
	return p, nil
}

// parsePagination extracts and validates limit/offset query parameters.
// A missing or zero limit means DefaultLimit; a missing offset means 0.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	q := r.URL.Query()

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", s)
		}
		if n > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if n > 0 {
			limit = n
		}
	}

	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", s)
		}
		offset = n
	}

	return limit, offset, nil
}

// parseHistoryLimit reads ?limit for trigger history. Missing means the
// scheduler default; values above the maximum are capped, not rejected.
func parseHistoryLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return scheduler.DefaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", s)
	}
	if n > scheduler.MaxHistoryLimit {
		n = scheduler.MaxHistoryLimit
	}
	return n, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
