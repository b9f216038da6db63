// Package expiry implements the auto-destroy safeguard: a cancellable
// one-shot timer armed after a successful provision that tears the VM down
// when the TTL elapses, so an abandoned VM self-destructs.
package expiry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/cloudlaunch/internal/model"
)

// TeardownFunc destroys the provisioned resources described by state,
// reporting progress through log. It must be idempotent with respect to
// partial completion.
type TeardownFunc func(state *model.VMState, log func(line string)) error

// Timer is a single-slot registry for the pending auto-destroy task. At
// most one timer is armed at a time; cancellation and firing race through a
// compare-and-clear on the slot, so exactly one of them wins.
type Timer struct {
	mu      sync.Mutex
	pending *time.Timer

	releaseBudget func()
	logger        *slog.Logger
}

// NewTimer creates an expiry timer. releaseBudget is invoked after a
// successful automatic teardown to free the provision budget slot.
func NewTimer(releaseBudget func(), logger *slog.Logger) *Timer {
	return &Timer{
		releaseBudget: releaseBudget,
		logger:        logger,
	}
}

// Schedule arms a one-shot auto-destroy, delay from now. It reports false
// without arming when delay is zero or negative (feature disabled) or when a timer is
// already pending.
func (t *Timer) Schedule(delay time.Duration, state *model.VMState, teardown TeardownFunc, log func(string)) bool {
	if delay <= 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending != nil {
		return false
	}

	var tm *time.Timer
	tm = time.AfterFunc(delay, func() {
		t.fire(tm, delay, state, teardown, log)
	})
	t.pending = tm

	log(fmt.Sprintf("This VM will be destroyed automatically in %s. Destroy it manually before then to cancel the timer.", delay))
	return true
}

// fire runs the teardown, but only if the slot still holds tm. A
// concurrent Cancel clears the slot first and wins.
func (t *Timer) fire(tm *time.Timer, delay time.Duration, state *model.VMState, teardown TeardownFunc, log func(string)) {
	t.mu.Lock()
	if t.pending != tm {
		t.mu.Unlock()
		return
	}
	t.pending = nil
	t.mu.Unlock()

	log(fmt.Sprintf("Auto-destroy triggered (ttl=%s). Tearing down VM.", delay))
	if err := teardown(state, log); err != nil {
		// The budget reservation stays held: automatic retry of a destructive
		// operation is unsafe, so a failed teardown needs an operator.
		log(fmt.Sprintf("Auto-destroy failed: %v", err))
		t.logger.Error("auto-destroy failed", "vm_name", state.VMName, "error", err)
		return
	}

	t.releaseBudget()
	log("Auto-destroy complete: all resources deleted, provision slot freed.")
	t.logger.Info("auto-destroy complete", "vm_name", state.VMName)
}

// Cancel stops the pending auto-destroy. It reports true when a timer was
// armed. Clearing the slot is what wins the race with a callback that has
// already fired: fire finds the slot changed and gives up, so the teardown
// is suppressed even when Stop reports the timer expired.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return false
	}
	t.pending.Stop()
	t.pending = nil
	return true
}

// Armed reports whether an auto-destroy is currently pending.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}
