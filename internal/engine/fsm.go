package engine

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/qmuntal/stateless"

	"github.com/sandeepvarmac/FlowForge-sub003/internal/domain"
	"github.com/sandeepvarmac/FlowForge-sub003/internal/store"
)

// Job execution states. Stage states mean the stage is in progress.
const (
	statePending   = "pending"
	stateBronze    = "bronze"
	stateSilver    = "silver"
	stateGold      = "gold"
	stateCompleted = "completed"
	stateFailed    = "failed"
	stateCancelled = "cancelled"
)

const (
	triggerAdvance  = "advance"
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerCancel   = "cancel"
)

// errJobClosed means the stored job execution reached a terminal state
// outside this run, for example a cancel handled by another instance.
var errJobClosed = errors.New("job execution already terminal")

// jobRun drives one JobExecution. Only the goroutine running the job fires
// its machine, except after a layer barrier when the job is idle.
type jobRun struct {
	engine *Engine
	exec   domain.Execution
	job    domain.Job
	jeID   string

	// input is the ref the next stage reads from.
	input string

	// closed is set once the stored row is terminal and this run stopped
	// driving it. The stored outcome stands.
	closed bool

	fsm *stateless.StateMachine
}

func (e *Engine) newJobRun(exec domain.Execution, job domain.Job, jeID string) *jobRun {
	jr := &jobRun{engine: e, exec: exec, job: job, jeID: jeID, input: exec.InputRef}

	fsm := stateless.NewStateMachine(statePending)
	fsm.Configure(statePending).
		Permit(triggerAdvance, stateBronze).
		Permit(triggerFail, stateFailed).
		Permit(triggerCancel, stateCancelled)

	fsm.Configure(stateBronze).
		OnEntry(jr.onStage).
		Permit(triggerAdvance, stateSilver).
		Permit(triggerFail, stateFailed).
		Permit(triggerCancel, stateCancelled)

	fsm.Configure(stateSilver).
		OnEntry(jr.onStage).
		Permit(triggerAdvance, stateGold).
		Permit(triggerFail, stateFailed).
		Permit(triggerCancel, stateCancelled)

	fsm.Configure(stateGold).
		OnEntry(jr.onStage).
		Permit(triggerComplete, stateCompleted).
		Permit(triggerFail, stateFailed).
		Permit(triggerCancel, stateCancelled)

	fsm.Configure(stateCompleted).OnEntry(jr.onCompleted)
	fsm.Configure(stateFailed).OnEntry(jr.onFailed)
	fsm.Configure(stateCancelled).OnEntry(jr.onCancelled)

	jr.fsm = fsm
	return jr
}

func (jr *jobRun) state() string {
	return jr.fsm.MustState().(string)
}

func (jr *jobRun) done() bool {
	if jr.closed {
		return true
	}
	switch jr.state() {
	case stateCompleted, stateFailed, stateCancelled:
		return true
	}
	return false
}

func (jr *jobRun) stage() domain.Stage {
	switch s := jr.state(); s {
	case stateBronze, stateSilver, stateGold:
		return domain.Stage(s)
	}
	return ""
}

// update applies mutate unless the job execution is already terminal.
// A terminal row returns errJobClosed.
func (jr *jobRun) update(ctx context.Context, mutate func(*domain.JobExecution)) error {
	_, err := jr.engine.store.UpdateJobExecution(ctx, jr.jeID, func(je *domain.JobExecution) error {
		if je.Status.Terminal() {
			return store.ErrStatusTransitionDenied
		}
		mutate(je)
		return nil
	})
	if errors.Is(err, store.ErrStatusTransitionDenied) {
		return errJobClosed
	}
	return err
}

// checkOpen returns errJobClosed once the stored row is terminal.
func (jr *jobRun) checkOpen(ctx context.Context) error {
	je, err := jr.engine.store.GetJobExecution(ctx, jr.jeID)
	if err != nil {
		return fmt.Errorf("load job execution %s: %w", jr.jeID, err)
	}
	if je.Status.Terminal() {
		return errJobClosed
	}
	return nil
}

// detach stops driving a job whose row was closed elsewhere.
func (jr *jobRun) detach(stage domain.Stage) {
	if jr.closed {
		return
	}
	jr.closed = true
	log.Printf("engine: execution=%s job=%s closed outside this run at stage=%s, stopping", jr.exec.ID, jr.job.ID, stage)
}

// settle records the outcome of a terminal entry action. A row closed
// elsewhere keeps its stored status and is not counted again.
func (jr *jobRun) settle(status domain.JobExecutionStatus, err error) error {
	if errors.Is(err, errJobClosed) {
		jr.detach(jr.stage())
		return nil
	}
	if err == nil {
		jr.engine.jobFinished(status)
	}
	return err
}

func (jr *jobRun) onStage(ctx context.Context, _ ...any) error {
	stage := jr.stage()
	now := jr.engine.now()
	return jr.update(ctx, func(je *domain.JobExecution) {
		je.Status = domain.JobExecutionStatusRunning
		je.CurrentStage = stage
		if je.StartedAt == nil {
			je.StartedAt = &now
		}
		je.Logf(now, fmt.Sprintf("stage %s started", stage))
	})
}

func (jr *jobRun) onCompleted(ctx context.Context, _ ...any) error {
	now := jr.engine.now()
	err := jr.update(ctx, func(je *domain.JobExecution) {
		je.Status = domain.JobExecutionStatusCompleted
		je.CompletedAt = &now
		je.Logf(now, "job completed")
	})
	return jr.settle(domain.JobExecutionStatusCompleted, err)
}

// onFailed expects the failing stage and a reason.
func (jr *jobRun) onFailed(ctx context.Context, args ...any) error {
	var stage domain.Stage
	reason := "job failed"
	if len(args) > 0 {
		stage, _ = args[0].(domain.Stage)
	}
	if len(args) > 1 {
		reason, _ = args[1].(string)
	}
	now := jr.engine.now()
	log.Printf("engine: execution=%s job=%s failed at stage=%s: %s", jr.exec.ID, jr.job.ID, stage, reason)
	err := jr.update(ctx, func(je *domain.JobExecution) {
		je.Status = domain.JobExecutionStatusFailed
		je.FailedStage = stage
		je.CompletedAt = &now
		je.Logf(now, reason)
	})
	return jr.settle(domain.JobExecutionStatusFailed, err)
}

func (jr *jobRun) onCancelled(ctx context.Context, _ ...any) error {
	now := jr.engine.now()
	err := jr.update(ctx, func(je *domain.JobExecution) {
		je.Status = domain.JobExecutionStatusCancelled
		je.CompletedAt = &now
		je.Logf(now, "job cancelled")
	})
	return jr.settle(domain.JobExecutionStatusCancelled, err)
}

// fail moves the job to failed. Persistence runs detached from ctx so a
// cancelled run still records the outcome.
func (jr *jobRun) fail(ctx context.Context, stage domain.Stage, reason string) {
	if jr.done() {
		return
	}
	if err := jr.fsm.FireCtx(context.WithoutCancel(ctx), triggerFail, stage, reason); err != nil {
		log.Printf("engine: job_execution=%s fail: %v", jr.jeID, err)
	}
}

func (jr *jobRun) cancel(ctx context.Context) {
	if jr.done() {
		return
	}
	if err := jr.fsm.FireCtx(context.WithoutCancel(ctx), triggerCancel); err != nil {
		log.Printf("engine: job_execution=%s cancel: %v", jr.jeID, err)
	}
}

func (jr *jobRun) complete(ctx context.Context) {
	if jr.done() {
		return
	}
	if err := jr.fsm.FireCtx(context.WithoutCancel(ctx), triggerComplete); err != nil {
		log.Printf("engine: job_execution=%s complete: %v", jr.jeID, err)
	}
}
