package metrics

import (
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// NoopSink discards everything. Used when metrics are disabled.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickStarted()                                                              {}
func (n *NoopSink) TickCompleted(d time.Duration, created int, err error)                     {}
func (n *NoopSink) ExecutionCreated(kind domain.TriggerKind)                                  {}
func (n *NoopSink) DependencyDelayArmed()                                                     {}
func (n *NoopSink) ExternalSyncFailed(op string)                                              {}
func (n *NoopSink) RunDispatched(outcome string, d time.Duration)                             {}
func (n *NoopSink) RunsInFlightIncr()                                                         {}
func (n *NoopSink) RunsInFlightDecr()                                                         {}
func (n *NoopSink) BufferSizeUpdate(bus string, size int)                                     {}
func (n *NoopSink) BufferCapacitySet(bus string, capacity int)                                {}
func (n *NoopSink) BufferSaturationUpdate(bus string, saturation float64)                     {}
func (n *NoopSink) EmitError(bus string)                                                      {}
func (n *NoopSink) ExecutionFinished(s domain.ExecutionStatus, d time.Duration)               {}
func (n *NoopSink) JobExecutionFinished(s domain.JobExecutionStatus)                          {}
func (n *NoopSink) ExecutionsInFlightIncr()                                                   {}
func (n *NoopSink) ExecutionsInFlightDecr()                                                   {}
func (n *NoopSink) StageCompleted(st domain.Stage, outcome string, d time.Duration)           {}
func (n *NoopSink) StageRetried(st domain.Stage)                                              {}
func (n *NoopSink) RuleEvaluated(st domain.Stage, sev domain.Severity, s domain.RuleStatus)   {}
func (n *NoopSink) RecordsQuarantined(st domain.Stage, count int)                             {}
func (n *NoopSink) TransformRequestCompleted(op string, code int, err error, d time.Duration) {}
func (n *NoopSink) PendingReemitted(count int)                                                {}
func (n *NoopSink) StuckJobExecutionsFailed(count int)                                        {}
func (n *NoopSink) LeaderStatusChanged(isLeader bool)                                         {}
func (n *NoopSink) LeaderAcquired()                                                           {}
func (n *NoopSink) LeaderLost(reason string)                                                  {}
