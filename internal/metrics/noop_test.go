package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// None of these may panic.
	s := NewNoopSink()

	s.TickStarted()
	s.TickCompleted(100*time.Millisecond, 5, nil)
	s.ExecutionCreated(domain.TriggerKindScheduled)
	s.DependencyDelayArmed()
	s.ExternalSyncFailed("pause")

	s.RunDispatched("success", time.Second)
	s.RunsInFlightIncr()
	s.RunsInFlightDecr()

	s.BufferSizeUpdate("runs", 10)
	s.BufferCapacitySet("runs", 100)
	s.BufferSaturationUpdate("runs", 0.1)
	s.EmitError("completions")

	s.ExecutionFinished(domain.ExecutionStatusFailed, time.Minute)
	s.JobExecutionFinished(domain.JobExecutionStatusCompleted)
	s.ExecutionsInFlightIncr()
	s.ExecutionsInFlightDecr()

	s.StageCompleted(domain.StageBronze, "blocked", time.Second)
	s.StageRetried(domain.StageSilver)
	s.RuleEvaluated(domain.StageBronze, domain.SeverityError, domain.RuleStatusFailed)
	s.RecordsQuarantined(domain.StageBronze, 12)
	s.TransformRequestCompleted("run", 0, errors.New("dial tcp"), time.Second)

	s.PendingReemitted(2)
	s.StuckJobExecutionsFailed(1)

	s.LeaderStatusChanged(true)
	s.LeaderAcquired()
	s.LeaderLost("shutdown")
}
