package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/cloudlaunch/internal/jobs"
	"github.com/seantiz/cloudlaunch/internal/model"
)

// SlotReleaser frees the caller's concurrency reservation when a job
// finishes. Satisfied by guard.ConcurrencyGuard.
type SlotReleaser interface {
	Release(caller string)
}

// WorkFunc is one unit of asynchronous cloud work. It reports progress line
// by line through log and returns the provisioned state (provision) or nil
// (deploy/destroy). It must be safe to invoke from a non-request goroutine.
type WorkFunc func(log func(line string)) (*model.VMState, error)

// Engine executes accepted jobs off the caller's path.
type Engine struct {
	store  *jobs.Store
	slots  SlotReleaser
	logger *slog.Logger
	wg     sync.WaitGroup
	broker *LogBroker

	// OnFinish, when set, observes every job's terminal status. Set it
	// before the first Launch.
	OnFinish func(operation, status string)
}

// NewEngine creates a new job execution engine.
func NewEngine(store *jobs.Store, slots SlotReleaser, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		slots:  slots,
		logger: logger,
		broker: NewLogBroker(),
	}
}

// Broker returns the engine's log broker for streaming-session subscription.
func (e *Engine) Broker() *LogBroker {
	return e.broker
}

// Launch creates a pending job record and starts execution of work in a
// goroutine that outlives the triggering request. The job is returned
// immediately; the caller never blocks on work completing. The caller must
// already hold a concurrency reservation, which the runner releases when the
// job finishes.
func (e *Engine) Launch(operation, caller string, work WorkFunc) *model.Job {
	job := e.store.Create(operation, caller)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(job, work)
	}()
	return job
}

// Wait blocks until all in-flight job goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// run drives the job lifecycle: pending, running, then succeeded or failed.
func (e *Engine) run(job *model.Job, work WorkFunc) {
	// End-of-stream marker before releasing the slot: a session may still be
	// draining this relay when the next job is admitted.
	defer func() {
		e.broker.Close(job.ID())
		e.slots.Release(job.Caller())
	}()

	if err := job.Start(); err != nil {
		e.logger.Error("failed to transition to running", "job_id", job.ID(), "error", err)
		return
	}

	// Dual-write: the record's log history feeds GET /jobs/{id} polling, the
	// broker feeds live sessions. The runner is the only writer, so both see
	// lines in the same order.
	logLine := func(line string) {
		job.AppendLog(line)
		e.broker.Publish(job.ID(), line)
	}

	result, err := invoke(work, logLine)
	if err != nil {
		if ferr := job.Fail(err.Error()); ferr != nil {
			e.logger.Error("failed to record job failure", "job_id", job.ID(), "error", ferr)
		}
		e.logger.Info("job failed", "job_id", job.ID(), "operation", job.Operation(), "error", err)
		if e.OnFinish != nil {
			e.OnFinish(job.Operation(), model.StatusFailed)
		}
		return
	}

	if serr := job.Succeed(result); serr != nil {
		e.logger.Error("failed to record job success", "job_id", job.ID(), "error", serr)
		return
	}
	e.logger.Info("job succeeded", "job_id", job.ID(), "operation", job.Operation())
	if e.OnFinish != nil {
		e.OnFinish(job.Operation(), model.StatusSucceeded)
	}
}

// invoke calls work, converting a panic into an error so that no fault
// escapes the runner goroutine.
func invoke(work WorkFunc, log func(string)) (result *model.VMState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return work(log)
}
