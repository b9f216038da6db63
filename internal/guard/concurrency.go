package guard

import (
	"errors"
	"sync"
)

// ErrServerBusy is returned when the global running-job cap is reached.
var ErrServerBusy = errors.New("server is busy: maximum concurrent jobs already running")

// ErrCallerBusy is returned when the caller's own running-job cap is reached.
var ErrCallerBusy = errors.New("you already have a running job; wait for it to complete")

// ConcurrencyGuard bounds how many jobs may run at once, globally and per
// caller. Reserve and Release are atomic with respect to each other: two
// concurrent reservations can never both succeed when only one slot remains.
type ConcurrencyGuard struct {
	mu         sync.Mutex
	maxGlobal  int
	maxPerCall int
	global     int
	perCaller  map[string]int
}

// NewConcurrencyGuard creates a guard with the given global and per-caller
// running-job maxima.
func NewConcurrencyGuard(maxGlobal, maxPerCaller int) *ConcurrencyGuard {
	return &ConcurrencyGuard{
		maxGlobal:  maxGlobal,
		maxPerCall: maxPerCaller,
		perCaller:  make(map[string]int),
	}
}

// Reserve atomically checks both bounds and takes a slot for the caller.
// On rejection no counter is mutated.
func (g *ConcurrencyGuard) Reserve(caller string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.global >= g.maxGlobal {
		return ErrServerBusy
	}
	if g.perCaller[caller] >= g.maxPerCall {
		return ErrCallerBusy
	}
	g.global++
	g.perCaller[caller]++
	return nil
}

// Release frees the caller's slot. Counters are clamped at zero to defend
// against double release.
func (g *ConcurrencyGuard) Release(caller string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.global > 0 {
		g.global--
	}
	if g.perCaller[caller] > 0 {
		g.perCaller[caller]--
	}
}

// Running returns a snapshot of the global running count.
func (g *ConcurrencyGuard) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.global
}

// MaxGlobal returns the configured global cap, for rejection messages.
func (g *ConcurrencyGuard) MaxGlobal() int { return g.maxGlobal }
