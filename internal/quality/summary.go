package quality

import (
	"math"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// Summary aggregates the rule executions of one job execution.
type Summary struct {
	TotalRules     int     `json:"total_rules"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	Errored        int     `json:"errored"`
	RecordsChecked int64   `json:"records_checked"`
	RecordsFailed  int64   `json:"records_failed"`
	OverallScore   float64 `json:"overall_quality_score"`
}

// Summarize computes counts and the overall score, the unweighted mean of
// pass percentages rounded to an integer. No rule executions scores 100.
func Summarize(results []domain.RuleExecution) Summary {
	s := Summary{TotalRules: len(results), OverallScore: 100}
	if len(results) == 0 {
		return s
	}
	var total float64
	for _, re := range results {
		switch re.Status {
		case domain.RuleStatusPassed:
			s.Passed++
		case domain.RuleStatusFailed:
			s.Failed++
		case domain.RuleStatusError:
			s.Errored++
		}
		s.RecordsChecked += re.RecordsChecked
		s.RecordsFailed += re.RecordsFailed
		total += re.PassPercentage
	}
	s.OverallScore = math.Round(total / float64(len(results)))
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
