// Package dispatcher feeds run requests from the run bus to the engine
// through a fixed pool of workers.
package dispatcher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
)

const (
	DefaultWorkers = 4
	// DefaultDrainTimeout bounds how long shutdown waits for in-flight runs.
	DefaultDrainTimeout = 30 * time.Second
)

// Outcome labels for the RunDispatched metric.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Engine runs one pending execution to completion. Implementations must
// skip executions that are no longer pending.
type Engine interface {
	Run(ctx context.Context, executionID string) error
}

// MetricsSink records dispatcher metrics. All methods must be non-blocking.
type MetricsSink interface {
	RunDispatched(outcome string, duration time.Duration)
	RunsInFlightIncr()
	RunsInFlightDecr()
}

type Dispatcher struct {
	engine       Engine
	workers      int
	drainTimeout time.Duration
	metrics      MetricsSink // optional, nil = disabled
}

func New(engine Engine) *Dispatcher {
	return &Dispatcher{
		engine:       engine,
		workers:      DefaultWorkers,
		drainTimeout: DefaultDrainTimeout,
	}
}

func (d *Dispatcher) WithWorkers(n int) *Dispatcher {
	if n > 0 {
		d.workers = n
	}
	return d
}

func (d *Dispatcher) WithDrainTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.drainTimeout = timeout
	}
	return d
}

func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// Run consumes ch until ctx is cancelled or ch is closed. On cancellation
// the workers drain buffered requests; runs still going after the drain
// timeout are cancelled.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.RunRequest) {
	// Runs outlive ctx so shutdown can finish in-flight work.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	log.Printf("dispatcher: started, workers=%d", d.workers)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx, runCtx, ch)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("dispatcher: run channel closed")
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(d.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		log.Println("dispatcher: drain complete")
	case <-timer.C:
		log.Printf("dispatcher: drain timeout after %s, cancelling in-flight runs", d.drainTimeout)
		cancelRuns()
		<-done
	}
}

func (d *Dispatcher) worker(ctx, runCtx context.Context, ch <-chan domain.RunRequest) {
	for {
		select {
		case <-ctx.Done():
			d.drain(runCtx, ch)
			return
		case req, ok := <-ch:
			if !ok {
				return
			}
			d.Dispatch(runCtx, req)
		}
	}
}

// drain processes requests already buffered when shutdown began.
func (d *Dispatcher) drain(ctx context.Context, ch <-chan domain.RunRequest) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case req, ok := <-ch:
			if !ok {
				return
			}
			d.Dispatch(ctx, req)
		default:
			return
		}
	}
}

// Dispatch runs one request. Engine errors are logged; the reconciler
// recovers executions left pending or stuck.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.RunRequest) {
	if d.metrics != nil {
		d.metrics.RunsInFlightIncr()
		defer d.metrics.RunsInFlightDecr()
	}

	start := time.Now()
	err := d.engine.Run(ctx, req.ExecutionID)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
		log.Printf("dispatcher: execution=%s workflow=%s error: %v", req.ExecutionID, req.WorkflowID, err)
	}
	if d.metrics != nil {
		d.metrics.RunDispatched(outcome, time.Since(start))
	}
}
