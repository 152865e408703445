package quality

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// Record is one row of stage output keyed by column name.
type Record map[string]any

// evaluator holds the running state of one rule across all batches.
type evaluator struct {
	rule domain.QualityRule

	check func(value any, present bool) bool

	// compileErr is set when params cannot be used; the rule reports
	// status error without scanning.
	compileErr string

	checked    int64
	failed     int64
	columnSeen bool

	// offenders keeps every failing record for error-severity rules and
	// only the sample for the rest.
	offenders []json.RawMessage
	keepAll   bool
	sampleMax int
	encodeErr error

	// unique state, keyed by type and value.
	seen map[string]*firstSeen
}

type firstSeen struct {
	payload json.RawMessage
	flagged bool
}

func newEvaluator(rule domain.QualityRule, sampleMax int) *evaluator {
	e := &evaluator{
		rule:      rule,
		keepAll:   rule.Severity == domain.SeverityError,
		sampleMax: sampleMax,
	}
	switch rule.Type {
	case domain.RuleTypeNotNull:
		e.check = func(v any, present bool) bool { return present && v != nil }
	case domain.RuleTypeUnique:
		e.seen = make(map[string]*firstSeen)
	case domain.RuleTypeRange:
		if rule.Params.Min == nil && rule.Params.Max == nil {
			e.compileErr = "range rule requires min or max"
			break
		}
		e.check = skipNull(func(v any) bool {
			f, ok := toFloat(v)
			if !ok {
				return false
			}
			if rule.Params.Min != nil && f < *rule.Params.Min {
				return false
			}
			return rule.Params.Max == nil || f <= *rule.Params.Max
		})
	case domain.RuleTypePattern:
		if rule.Params.Pattern == "" {
			e.compileErr = "no pattern specified"
			break
		}
		re, err := regexp.Compile(rule.Params.Pattern)
		if err != nil {
			e.compileErr = fmt.Sprintf("invalid pattern: %v", err)
			break
		}
		e.check = skipNull(func(v any) bool { return re.MatchString(stringify(v)) })
	case domain.RuleTypeEnum:
		if len(rule.Params.AllowedValues) == 0 {
			e.compileErr = "no allowed values specified"
			break
		}
		allowed := make(map[string]struct{}, len(rule.Params.AllowedValues))
		for _, a := range rule.Params.AllowedValues {
			allowed[stringify(a)] = struct{}{}
		}
		e.check = skipNull(func(v any) bool {
			_, ok := allowed[stringify(v)]
			return ok
		})
	case domain.RuleTypeCustom:
		e.compileErr = "custom rule expressions are not supported"
	default:
		e.compileErr = fmt.Sprintf("unknown rule type %q", rule.Type)
	}
	return e
}

func skipNull(fn func(any) bool) func(any, bool) bool {
	return func(v any, present bool) bool {
		if !present || v == nil {
			return true
		}
		return fn(v)
	}
}

func (e *evaluator) observe(rec Record) {
	if e.compileErr != "" {
		return
	}
	e.checked++
	v, present := rec[e.rule.Column]
	if present {
		e.columnSeen = true
	}
	if e.seen != nil {
		e.observeUnique(rec, v, present)
		return
	}
	if !e.check(v, present) {
		e.fail(rec)
	}
}

// observeUnique flags every occurrence of a repeated non-null value. The
// first occurrence is counted when its first duplicate shows up.
func (e *evaluator) observeUnique(rec Record, v any, present bool) {
	if !present || v == nil {
		return
	}
	key := uniqueKey(v)
	prev, ok := e.seen[key]
	if !ok {
		payload, err := json.Marshal(rec)
		if err != nil {
			e.encodeErr = err
		}
		e.seen[key] = &firstSeen{payload: payload}
		return
	}
	if !prev.flagged {
		prev.flagged = true
		e.failed++
		e.keep(prev.payload)
	}
	e.fail(rec)
}

func (e *evaluator) fail(rec Record) {
	e.failed++
	if !e.keepAll && len(e.offenders) >= e.sampleMax {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		e.encodeErr = err
		return
	}
	e.keep(payload)
}

func (e *evaluator) keep(payload json.RawMessage) {
	if payload == nil {
		return
	}
	if !e.keepAll && len(e.offenders) >= e.sampleMax {
		return
	}
	e.offenders = append(e.offenders, payload)
}

// result fills the counters of re from the evaluator state.
func (e *evaluator) result(re *domain.RuleExecution) {
	re.RecordsChecked = e.checked
	switch {
	case e.compileErr != "":
		re.Status = domain.RuleStatusError
		re.ErrorMessage = e.compileErr
		re.RecordsChecked = 0
	case e.checked > 0 && !e.columnSeen:
		re.Status = domain.RuleStatusError
		re.ErrorMessage = fmt.Sprintf("column %q not found", e.rule.Column)
	case e.encodeErr != nil:
		re.Status = domain.RuleStatusError
		re.ErrorMessage = fmt.Sprintf("encode offending record: %v", e.encodeErr)
	case e.failed > 0:
		re.Status = domain.RuleStatusFailed
		re.RecordsFailed = e.failed
		re.ErrorMessage = e.failureMessage()
	default:
		re.Status = domain.RuleStatusPassed
	}
	if re.Status != domain.RuleStatusError {
		re.RecordsPassed = re.RecordsChecked - re.RecordsFailed
	}
	re.PassPercentage = passPercentage(re)
	n := len(e.offenders)
	if n > e.sampleMax {
		n = e.sampleMax
	}
	if re.Status == domain.RuleStatusFailed && n > 0 {
		re.FailedSample = append([]json.RawMessage(nil), e.offenders[:n]...)
	}
}

func (e *evaluator) failureMessage() string {
	p := e.rule.Params
	switch e.rule.Type {
	case domain.RuleTypeNotNull:
		return fmt.Sprintf("%d null values found", e.failed)
	case domain.RuleTypeUnique:
		return fmt.Sprintf("%d duplicate values found", e.failed)
	case domain.RuleTypeRange:
		return fmt.Sprintf("%d values out of range [%s, %s]", e.failed, bound(p.Min), bound(p.Max))
	case domain.RuleTypePattern:
		return fmt.Sprintf("%d values do not match pattern", e.failed)
	case domain.RuleTypeEnum:
		return fmt.Sprintf("%d values not in allowed list", e.failed)
	}
	return fmt.Sprintf("%d records failed", e.failed)
}

func bound(f *float64) string {
	if f == nil {
		return "none"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func passPercentage(re *domain.RuleExecution) float64 {
	if re.Status == domain.RuleStatusError {
		return 0
	}
	if re.RecordsChecked == 0 {
		return 100
	}
	return round2(float64(re.RecordsPassed) / float64(re.RecordsChecked) * 100)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// uniqueKey identifies a value for the unique rule. Numbers compare by
// value, so 7 and 7.0 collide while integers beyond float precision do not.
func uniqueKey(v any) string {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return "num:" + strconv.FormatInt(i, 10)
		}
		if f, err := n.Float64(); err == nil {
			return numKey(f)
		}
		return "num:" + n.String()
	}
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		f, _ := toFloat(v)
		return numKey(f)
	}
	return fmt.Sprintf("%T:%v", v, v)
}

func numKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "num:" + strconv.FormatInt(int64(f), 10)
	}
	return "num:" + strconv.FormatFloat(f, 'g', -1, 64)
}

// ValidateRule checks a rule at creation. The same parameter checks that
// make a stored rule evaluate to error status reject it here up front.
func ValidateRule(rule domain.QualityRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return &domain.ConfigurationError{Field: "name", Reason: "required"}
	}
	if rule.Type != domain.RuleTypeCustom && strings.TrimSpace(rule.Column) == "" {
		return &domain.ConfigurationError{Field: "column", Reason: "required"}
	}
	if !rule.Severity.Valid() {
		return &domain.ConfigurationError{Field: "severity", Reason: fmt.Sprintf("unknown severity %q", rule.Severity)}
	}
	if rule.Stage != "" && !rule.Stage.Valid() {
		return &domain.ConfigurationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", rule.Stage)}
	}
	if rule.Type == domain.RuleTypeCustom {
		if strings.TrimSpace(rule.Params.Expression) == "" {
			return &domain.ConfigurationError{Field: "params.expression", Reason: "custom rule requires an expression"}
		}
		return nil
	}
	if e := newEvaluator(rule, 0); e.compileErr != "" {
		return &domain.ConfigurationError{Field: "params", Reason: e.compileErr}
	}
	return nil
}
