// Package quality evaluates data-quality rules against stage output and
// quarantines offending records.
package quality

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

const (
	DefaultSampleSize = 10
	DefaultBatchSize  = 500
)

// BatchReader streams stage output. Next returns io.EOF after the last batch.
type BatchReader interface {
	Next(ctx context.Context) ([]Record, error)
}

type Store interface {
	InsertRuleExecution(ctx context.Context, re domain.RuleExecution) error
	InsertQuarantineRecords(ctx context.Context, records []domain.QuarantineRecord) error
}

// MetricsSink records gate outcomes. All methods must be non-blocking.
type MetricsSink interface {
	RuleEvaluated(stage domain.Stage, severity domain.Severity, status domain.RuleStatus)
	RecordsQuarantined(stage domain.Stage, count int)
}

type Input struct {
	JobExecutionID string
	Stage          domain.Stage
	Rules          []domain.QualityRule
}

// Verdict is the outcome of one gate run. A blocking verdict stops the
// job from advancing past the stage.
type Verdict struct {
	Stage          domain.Stage
	RuleExecutions []domain.RuleExecution
	Errors         int
	Warnings       int
	Infos          int
	Quarantined    int64
}

// Blocking reports whether any error-severity rule failed or errored.
func (v Verdict) Blocking() bool {
	return v.Errors > 0
}

// BlockingRules returns the ids of the rules that block the stage.
func (v Verdict) BlockingRules() []string {
	var ids []string
	for _, re := range v.RuleExecutions {
		if re.Blocking() {
			ids = append(ids, re.RuleID)
		}
	}
	return ids
}

// Validation converts the verdict to the summary stored on the job execution.
func (v Verdict) Validation() domain.StageValidation {
	sv := domain.StageValidation{
		Stage:       v.Stage,
		Passed:      !v.Blocking(),
		Errors:      v.Errors,
		Warnings:    v.Warnings,
		Infos:       v.Infos,
		Quarantined: v.Quarantined,
	}
	for _, re := range v.RuleExecutions {
		sv.RuleExecutionIDs = append(sv.RuleExecutionIDs, re.ID)
	}
	return sv
}

type Gate struct {
	store      Store
	sampleSize int
	batchSize  int
	now        func() time.Time
	metrics    MetricsSink // optional, nil = disabled
}

func New(store Store) *Gate {
	return &Gate{
		store:      store,
		sampleSize: DefaultSampleSize,
		batchSize:  DefaultBatchSize,
		now:        time.Now,
	}
}

// WithSampleSize sets how many offending records a RuleExecution keeps.
func (g *Gate) WithSampleSize(n int) *Gate {
	if n > 0 {
		g.sampleSize = n
	}
	return g
}

// WithBatchSize sets the quarantine insert batch size.
func (g *Gate) WithBatchSize(n int) *Gate {
	if n > 0 {
		g.batchSize = n
	}
	return g
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func (g *Gate) WithMetrics(sink MetricsSink) *Gate {
	g.metrics = sink
	return g
}

// Evaluate runs every rule over the stream in a single pass, persists one
// RuleExecution per rule and quarantines the offenders of failed
// error-severity rules. Rules for other stages are ignored.
func (g *Gate) Evaluate(ctx context.Context, in Input, reader BatchReader) (Verdict, error) {
	verdict := Verdict{Stage: in.Stage}

	var evals []*evaluator
	for _, rule := range in.Rules {
		if !rule.Active || rule.Stage != in.Stage {
			continue
		}
		evals = append(evals, newEvaluator(rule, g.sampleSize))
	}
	if len(evals) == 0 {
		return verdict, nil
	}

	if reader != nil {
		for {
			batch, err := reader.Next(ctx)
			for _, rec := range batch {
				for _, e := range evals {
					e.observe(rec)
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return verdict, fmt.Errorf("read %s output: %w", in.Stage, err)
			}
			if err := ctx.Err(); err != nil {
				return verdict, err
			}
		}
	}

	executedAt := g.now().UTC()
	for _, e := range evals {
		re := domain.RuleExecution{
			ID:             uuid.NewString(),
			RuleID:         e.rule.ID,
			RuleName:       e.rule.Name,
			JobExecutionID: in.JobExecutionID,
			Stage:          in.Stage,
			Column:         e.rule.Column,
			Severity:       e.rule.Severity,
			ExecutedAt:     executedAt,
		}
		e.result(&re)

		if err := g.store.InsertRuleExecution(ctx, re); err != nil {
			return verdict, fmt.Errorf("store rule execution %s: %w", e.rule.ID, err)
		}
		if g.metrics != nil {
			g.metrics.RuleEvaluated(in.Stage, re.Severity, re.Status)
		}

		switch {
		case re.Blocking():
			verdict.Errors++
		case re.Status == domain.RuleStatusPassed:
		case re.Severity == domain.SeverityWarning:
			verdict.Warnings++
		case re.Severity == domain.SeverityInfo:
			verdict.Infos++
		}

		if re.Severity == domain.SeverityError && re.Status == domain.RuleStatusFailed {
			n, err := g.quarantine(ctx, re, e.offenders)
			verdict.Quarantined += n
			if err != nil {
				return verdict, err
			}
		}
		verdict.RuleExecutions = append(verdict.RuleExecutions, re)
	}

	if verdict.Blocking() {
		log.Printf("quality: job_execution=%s stage=%s blocked by %d rule(s)", in.JobExecutionID, in.Stage, verdict.Errors)
	}
	return verdict, nil
}

func (g *Gate) quarantine(ctx context.Context, re domain.RuleExecution, offenders []json.RawMessage) (int64, error) {
	var written int64
	limit := int(re.RecordsFailed)
	if len(offenders) < limit {
		limit = len(offenders)
	}
	for start := 0; start < limit; start += g.batchSize {
		end := start + g.batchSize
		if end > limit {
			end = limit
		}
		batch := make([]domain.QuarantineRecord, 0, end-start)
		for _, payload := range offenders[start:end] {
			batch = append(batch, domain.QuarantineRecord{
				ID:              uuid.NewString(),
				RuleID:          re.RuleID,
				RuleExecutionID: re.ID,
				JobExecutionID:  re.JobExecutionID,
				Payload:         payload,
				Reason:          fmt.Sprintf("%s: %s", re.RuleName, re.ErrorMessage),
				Status:          domain.ReviewStatusQuarantined,
				CreatedAt:       re.ExecutedAt,
			})
		}
		if err := g.store.InsertQuarantineRecords(ctx, batch); err != nil {
			return written, fmt.Errorf("quarantine rule execution %s: %w", re.ID, err)
		}
		written += int64(len(batch))
		if g.metrics != nil {
			g.metrics.RecordsQuarantined(re.Stage, len(batch))
		}
	}
	return written, nil
}
