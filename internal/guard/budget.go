package guard

import (
	"errors"
	"sync"
)

// ErrBudgetExhausted is returned when the active-VM cap is reached. The
// caller must destroy an existing VM before provisioning a new one.
var ErrBudgetExhausted = errors.New("provision budget full: destroy an existing VM first, then provision a new one")

// BudgetGuard caps the number of actively provisioned VMs. It tracks a
// resource, not a thread: a slot is taken at provision admission and freed
// only by a successful teardown (manual or auto), never by job completion,
// since a successful provision increases the held resource.
type BudgetGuard struct {
	mu       sync.Mutex
	cap      int // 0 disables the cap
	active   int
	lifetime int // monotone, never decremented
}

// BudgetUsage is a snapshot of budget counters for quota reporting.
type BudgetUsage struct {
	Active   int
	Lifetime int
	Cap      int
}

// NewBudgetGuard creates a budget guard. A cap of zero disables it.
func NewBudgetGuard(cap int) *BudgetGuard {
	return &BudgetGuard{cap: cap}
}

// Reserve takes one active-VM slot and bumps the lifetime total.
func (g *BudgetGuard) Reserve() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cap == 0 {
		g.lifetime++
		return nil
	}
	if g.active >= g.cap {
		return ErrBudgetExhausted
	}
	g.active++
	g.lifetime++
	return nil
}

// Release frees one active-VM slot, clamped at zero. Called after every
// successful destroy.
func (g *BudgetGuard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active > 0 {
		g.active--
	}
}

// Reset zeroes the active counter and returns the old value. Emergency
// escape hatch for when resources were deleted out of band and the counter
// is stuck; it does not touch any cloud resource.
func (g *BudgetGuard) Reset() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.active
	g.active = 0
	return old
}

// Usage returns a snapshot of the budget counters.
func (g *BudgetGuard) Usage() BudgetUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return BudgetUsage{Active: g.active, Lifetime: g.lifetime, Cap: g.cap}
}
