package metrics

import (
	"strings"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

// Sink is the union of the metric interfaces declared by the scheduler,
// dispatcher, event buses, engine, stage executor, quality gate, transform
// client, reconciler and leader elector.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
type Sink interface {
	// Scheduler
	TickStarted()
	TickCompleted(duration time.Duration, executionsCreated int, err error)
	ExecutionCreated(kind domain.TriggerKind)
	DependencyDelayArmed()
	ExternalSyncFailed(op string)

	// Dispatcher
	RunDispatched(outcome string, duration time.Duration)
	RunsInFlightIncr()
	RunsInFlightDecr()

	// Event buses, labelled by bus name
	BufferSizeUpdate(bus string, size int)
	BufferCapacitySet(bus string, capacity int)
	BufferSaturationUpdate(bus string, saturation float64)
	EmitError(bus string)

	// Engine
	ExecutionFinished(status domain.ExecutionStatus, duration time.Duration)
	JobExecutionFinished(status domain.JobExecutionStatus)
	ExecutionsInFlightIncr()
	ExecutionsInFlightDecr()

	// Stages and quality
	StageCompleted(stage domain.Stage, outcome string, duration time.Duration)
	StageRetried(stage domain.Stage)
	RuleEvaluated(stage domain.Stage, severity domain.Severity, status domain.RuleStatus)
	RecordsQuarantined(stage domain.Stage, count int)

	// Transformation executor
	TransformRequestCompleted(op string, statusCode int, err error, duration time.Duration)

	// Reconciler
	PendingReemitted(count int)
	StuckJobExecutionsFailed(count int)

	// Leader election
	LeaderStatusChanged(isLeader bool)
	LeaderAcquired()
	LeaderLost(reason string)
}

// StatusClass values for transform request metrics.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
			return StatusClassTimeout
		case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
			strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "dial"):
			return StatusClassConnectionError
		default:
			return StatusClassOtherError
		}
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
