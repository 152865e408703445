package memory

import (
	"encoding/json"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// Objects stored in memdb must never be mutated in place, so every value
// crossing the store boundary is copied.

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyJob(j domain.Job) domain.Job {
	j.Config = j.Config.Clone()
	return j
}

func copyTrigger(t domain.Trigger) domain.Trigger {
	t.NextRunAt = copyTime(t.NextRunAt)
	t.LastRunAt = copyTime(t.LastRunAt)
	return t
}

func copyExecution(e domain.Execution) domain.Execution {
	e.StartedAt = copyTime(e.StartedAt)
	e.CompletedAt = copyTime(e.CompletedAt)
	return e
}

func copyJobExecution(je domain.JobExecution) domain.JobExecution {
	je.StartedAt = copyTime(je.StartedAt)
	je.CompletedAt = copyTime(je.CompletedAt)
	je.Logs = append([]string(nil), je.Logs...)
	if je.ValidationResults != nil {
		vr := make([]domain.StageValidation, len(je.ValidationResults))
		for i, v := range je.ValidationResults {
			v.RuleExecutionIDs = append([]string(nil), v.RuleExecutionIDs...)
			vr[i] = v
		}
		je.ValidationResults = vr
	}
	return je
}

func copyRule(r domain.QualityRule) domain.QualityRule {
	r.Params.AllowedValues = append([]any(nil), r.Params.AllowedValues...)
	if r.Params.Min != nil {
		v := *r.Params.Min
		r.Params.Min = &v
	}
	if r.Params.Max != nil {
		v := *r.Params.Max
		r.Params.Max = &v
	}
	return r
}

func copyRuleExecution(re domain.RuleExecution) domain.RuleExecution {
	if re.FailedSample != nil {
		sample := make([]json.RawMessage, len(re.FailedSample))
		for i, raw := range re.FailedSample {
			sample[i] = append(json.RawMessage(nil), raw...)
		}
		re.FailedSample = sample
	}
	return re
}

func copyQuarantine(q domain.QuarantineRecord) domain.QuarantineRecord {
	q.Payload = append(json.RawMessage(nil), q.Payload...)
	q.ReviewedAt = copyTime(q.ReviewedAt)
	return q
}

func copyFile(f domain.FileProcessingLog) domain.FileProcessingLog {
	f.CompletedAt = copyTime(f.CompletedAt)
	return f
}
