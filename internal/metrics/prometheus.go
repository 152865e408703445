package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

var durationBuckets = []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900}

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler
	ticksTotal             prometheus.Counter
	tickErrorsTotal        prometheus.Counter
	tickDuration           prometheus.Histogram
	executionsCreatedTotal *prometheus.CounterVec
	delaysArmedTotal       prometheus.Counter
	syncFailuresTotal      *prometheus.CounterVec

	// Dispatcher
	runsDispatchedTotal *prometheus.CounterVec
	runDuration         prometheus.Histogram
	runsInFlight        prometheus.Gauge

	// Event buses
	bufferSize       *prometheus.GaugeVec
	bufferCapacity   *prometheus.GaugeVec
	bufferSaturation *prometheus.GaugeVec
	emitErrorsTotal  *prometheus.CounterVec

	// Engine
	executionsFinishedTotal    *prometheus.CounterVec
	executionDuration          prometheus.Histogram
	jobExecutionsFinishedTotal *prometheus.CounterVec
	executionsInFlight         prometheus.Gauge

	// Stages and quality
	stagesTotal       *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	stageRetriesTotal *prometheus.CounterVec
	rulesTotal        *prometheus.CounterVec
	quarantinedTotal  *prometheus.CounterVec
	transformTotal    *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec

	// Reconciler
	reemittedTotal   prometheus.Counter
	stuckFailedTotal prometheus.Counter

	// Leader election
	isLeader            prometheus.Gauge
	leaderAcquiredTotal prometheus.Counter
	leaderLostTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates and registers every FlowForge collector on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initDispatcherMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initEngineMetrics(reg)
	s.initStageMetrics(reg)
	s.initBackgroundMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowforge_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowforge_scheduler_tick_errors_total",
		Help: "Total number of scheduler tick errors.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowforge_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.executionsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_scheduler_executions_created_total",
		Help: "Total number of executions created, by trigger kind.",
	}, []string{"kind"})
	s.delaysArmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowforge_scheduler_dependency_delays_armed_total",
		Help: "Total number of delayed dependency runs armed.",
	})
	s.syncFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_scheduler_deploy_sync_failures_total",
		Help: "Total number of failed deployment pause/resume calls.",
	}, []string{"op"})

	s.register(reg, s.ticksTotal, "flowforge_scheduler_ticks_total")
	s.register(reg, s.tickErrorsTotal, "flowforge_scheduler_tick_errors_total")
	s.register(reg, s.tickDuration, "flowforge_scheduler_tick_duration_seconds")
	s.register(reg, s.executionsCreatedTotal, "flowforge_scheduler_executions_created_total")
	s.register(reg, s.delaysArmedTotal, "flowforge_scheduler_dependency_delays_armed_total")
	s.register(reg, s.syncFailuresTotal, "flowforge_scheduler_deploy_sync_failures_total")
}

func (s *PrometheusSink) initDispatcherMetrics(reg prometheus.Registerer) {
	s.runsDispatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_dispatcher_runs_total",
		Help: "Total number of run requests handled, by outcome.",
	}, []string{"outcome"})
	s.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowforge_dispatcher_run_duration_seconds",
		Help:    "Time spent running one execution in seconds.",
		Buckets: durationBuckets,
	})
	s.runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowforge_dispatcher_runs_in_flight",
		Help: "Number of run requests currently being processed.",
	})

	s.register(reg, s.runsDispatchedTotal, "flowforge_dispatcher_runs_total")
	s.register(reg, s.runDuration, "flowforge_dispatcher_run_duration_seconds")
	s.register(reg, s.runsInFlight, "flowforge_dispatcher_runs_in_flight")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowforge_eventbus_buffer_size",
		Help: "Current number of events in the bus buffer.",
	}, []string{"bus"})
	s.bufferCapacity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowforge_eventbus_buffer_capacity",
		Help: "Configured capacity of the bus buffer.",
	}, []string{"bus"})
	s.bufferSaturation = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flowforge_eventbus_buffer_saturation",
		Help: "Buffer size divided by capacity (0.0 to 1.0).",
	}, []string{"bus"})
	s.emitErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full or cancelled).",
	}, []string{"bus"})

	s.register(reg, s.bufferSize, "flowforge_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "flowforge_eventbus_buffer_capacity")
	s.register(reg, s.bufferSaturation, "flowforge_eventbus_buffer_saturation")
	s.register(reg, s.emitErrorsTotal, "flowforge_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initEngineMetrics(reg prometheus.Registerer) {
	s.executionsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_engine_executions_finished_total",
		Help: "Total number of executions that reached a terminal status.",
	}, []string{"status"})
	s.executionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowforge_engine_execution_duration_seconds",
		Help:    "Execution wall time from claim to terminal status in seconds.",
		Buckets: durationBuckets,
	})
	s.jobExecutionsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_engine_job_executions_finished_total",
		Help: "Total number of job executions that reached a terminal status.",
	}, []string{"status"})
	s.executionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowforge_engine_executions_in_flight",
		Help: "Number of executions currently running.",
	})

	s.register(reg, s.executionsFinishedTotal, "flowforge_engine_executions_finished_total")
	s.register(reg, s.executionDuration, "flowforge_engine_execution_duration_seconds")
	s.register(reg, s.jobExecutionsFinishedTotal, "flowforge_engine_job_executions_finished_total")
	s.register(reg, s.executionsInFlight, "flowforge_engine_executions_in_flight")
}

func (s *PrometheusSink) initStageMetrics(reg prometheus.Registerer) {
	s.stagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_stage_runs_total",
		Help: "Total number of stage runs, by stage and outcome.",
	}, []string{"stage", "outcome"})
	s.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowforge_stage_duration_seconds",
		Help:    "Stage duration including quality gate in seconds.",
		Buckets: durationBuckets,
	}, []string{"stage"})
	s.stageRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_stage_retries_total",
		Help: "Total number of automatic stage retries.",
	}, []string{"stage"})
	s.rulesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_quality_rules_evaluated_total",
		Help: "Total number of quality rule evaluations.",
	}, []string{"stage", "severity", "status"})
	s.quarantinedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_quality_records_quarantined_total",
		Help: "Total number of records written to quarantine.",
	}, []string{"stage"})
	s.transformTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_transform_requests_total",
		Help: "Total number of transformation executor requests.",
	}, []string{"op", "status_class"})
	s.transformDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowforge_transform_request_duration_seconds",
		Help:    "Transformation executor request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	s.register(reg, s.stagesTotal, "flowforge_stage_runs_total")
	s.register(reg, s.stageDuration, "flowforge_stage_duration_seconds")
	s.register(reg, s.stageRetriesTotal, "flowforge_stage_retries_total")
	s.register(reg, s.rulesTotal, "flowforge_quality_rules_evaluated_total")
	s.register(reg, s.quarantinedTotal, "flowforge_quality_records_quarantined_total")
	s.register(reg, s.transformTotal, "flowforge_transform_requests_total")
	s.register(reg, s.transformDuration, "flowforge_transform_request_duration_seconds")
}

func (s *PrometheusSink) initBackgroundMetrics(reg prometheus.Registerer) {
	s.reemittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowforge_reconciler_pending_reemitted_total",
		Help: "Total number of pending executions re-emitted by the reconciler.",
	})
	s.stuckFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowforge_reconciler_stuck_job_executions_failed_total",
		Help: "Total number of stuck job executions failed by the reconciler.",
	})
	s.isLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "flowforge_leader_is_leader",
		Help: "1 while this instance holds the scheduler lock.",
	})
	s.leaderAcquiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flowforge_leader_acquired_total",
		Help: "Total number of times leadership was acquired.",
	})
	s.leaderLostTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flowforge_leader_lost_total",
		Help: "Total number of times leadership was lost, by reason.",
	}, []string{"reason"})

	s.register(reg, s.reemittedTotal, "flowforge_reconciler_pending_reemitted_total")
	s.register(reg, s.stuckFailedTotal, "flowforge_reconciler_stuck_job_executions_failed_total")
	s.register(reg, s.isLeader, "flowforge_leader_is_leader")
	s.register(reg, s.leaderAcquiredTotal, "flowforge_leader_acquired_total")
	s.register(reg, s.leaderLostTotal, "flowforge_leader_lost_total")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler

func (s *PrometheusSink) TickStarted() {
	s.ticksTotal.Inc()
}

func (s *PrometheusSink) TickCompleted(duration time.Duration, executionsCreated int, err error) {
	s.tickDuration.Observe(duration.Seconds())
	if err != nil {
		s.tickErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) ExecutionCreated(kind domain.TriggerKind) {
	s.executionsCreatedTotal.WithLabelValues(string(kind)).Inc()
}

func (s *PrometheusSink) DependencyDelayArmed() {
	s.delaysArmedTotal.Inc()
}

func (s *PrometheusSink) ExternalSyncFailed(op string) {
	s.syncFailuresTotal.WithLabelValues(op).Inc()
}

// Dispatcher

func (s *PrometheusSink) RunDispatched(outcome string, duration time.Duration) {
	s.runsDispatchedTotal.WithLabelValues(outcome).Inc()
	s.runDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) RunsInFlightIncr() {
	s.runsInFlight.Inc()
}

func (s *PrometheusSink) RunsInFlightDecr() {
	s.runsInFlight.Dec()
}

// Event buses

func (s *PrometheusSink) BufferSizeUpdate(bus string, size int) {
	s.bufferSize.WithLabelValues(bus).Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(bus string, capacity int) {
	s.bufferCapacity.WithLabelValues(bus).Set(float64(capacity))
}

func (s *PrometheusSink) BufferSaturationUpdate(bus string, saturation float64) {
	s.bufferSaturation.WithLabelValues(bus).Set(saturation)
}

func (s *PrometheusSink) EmitError(bus string) {
	s.emitErrorsTotal.WithLabelValues(bus).Inc()
}

// Engine

func (s *PrometheusSink) ExecutionFinished(status domain.ExecutionStatus, duration time.Duration) {
	s.executionsFinishedTotal.WithLabelValues(string(status)).Inc()
	if duration > 0 {
		s.executionDuration.Observe(duration.Seconds())
	}
}

func (s *PrometheusSink) JobExecutionFinished(status domain.JobExecutionStatus) {
	s.jobExecutionsFinishedTotal.WithLabelValues(string(status)).Inc()
}

func (s *PrometheusSink) ExecutionsInFlightIncr() {
	s.executionsInFlight.Inc()
}

func (s *PrometheusSink) ExecutionsInFlightDecr() {
	s.executionsInFlight.Dec()
}

// Stages and quality

func (s *PrometheusSink) StageCompleted(stage domain.Stage, outcome string, duration time.Duration) {
	s.stagesTotal.WithLabelValues(string(stage), outcome).Inc()
	s.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
}

func (s *PrometheusSink) StageRetried(stage domain.Stage) {
	s.stageRetriesTotal.WithLabelValues(string(stage)).Inc()
}

func (s *PrometheusSink) RuleEvaluated(stage domain.Stage, severity domain.Severity, status domain.RuleStatus) {
	s.rulesTotal.WithLabelValues(string(stage), string(severity), string(status)).Inc()
}

func (s *PrometheusSink) RecordsQuarantined(stage domain.Stage, count int) {
	s.quarantinedTotal.WithLabelValues(string(stage)).Add(float64(count))
}

func (s *PrometheusSink) TransformRequestCompleted(op string, statusCode int, err error, duration time.Duration) {
	s.transformTotal.WithLabelValues(op, ClassifyStatus(statusCode, err)).Inc()
	s.transformDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// Reconciler

func (s *PrometheusSink) PendingReemitted(count int) {
	s.reemittedTotal.Add(float64(count))
}

func (s *PrometheusSink) StuckJobExecutionsFailed(count int) {
	s.stuckFailedTotal.Add(float64(count))
}

// Leader election

func (s *PrometheusSink) LeaderStatusChanged(isLeader bool) {
	v := 0.0
	if isLeader {
		v = 1
	}
	s.isLeader.Set(v)
}

func (s *PrometheusSink) LeaderAcquired() {
	s.leaderAcquiredTotal.Inc()
}

func (s *PrometheusSink) LeaderLost(reason string) {
	s.leaderLostTotal.WithLabelValues(reason).Inc()
}
