package guard

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestConcurrencyReserveRelease(t *testing.T) {
	g := NewConcurrencyGuard(1, 1)

	if err := g.Reserve("1.1.1.1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := g.Reserve("2.2.2.2"); !errors.Is(err, ErrServerBusy) {
		t.Fatalf("err = %v, want ErrServerBusy", err)
	}

	g.Release("1.1.1.1")
	if err := g.Reserve("2.2.2.2"); err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
}

func TestConcurrencyPerCallerCap(t *testing.T) {
	g := NewConcurrencyGuard(10, 1)

	if err := g.Reserve("1.1.1.1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := g.Reserve("1.1.1.1"); !errors.Is(err, ErrCallerBusy) {
		t.Fatalf("err = %v, want ErrCallerBusy", err)
	}
	// Another caller still fits under the global cap.
	if err := g.Reserve("2.2.2.2"); err != nil {
		t.Fatalf("Reserve other caller: %v", err)
	}
}

func TestConcurrencyRejectionMutatesNothing(t *testing.T) {
	g := NewConcurrencyGuard(1, 1)

	if err := g.Reserve("1.1.1.1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	for i := 0; i < 5; i++ {
		g.Reserve("2.2.2.2")
	}
	if got := g.Running(); got != 1 {
		t.Errorf("Running() = %d after rejections, want 1", got)
	}
}

func TestConcurrencyDoubleReleaseClamped(t *testing.T) {
	g := NewConcurrencyGuard(2, 2)

	g.Reserve("1.1.1.1")
	g.Release("1.1.1.1")
	g.Release("1.1.1.1") // double release must not go negative

	if got := g.Running(); got != 0 {
		t.Errorf("Running() = %d, want 0", got)
	}
	// Both slots must still be usable.
	if err := g.Reserve("1.1.1.1"); err != nil {
		t.Fatalf("Reserve 1: %v", err)
	}
	if err := g.Reserve("2.2.2.2"); err != nil {
		t.Fatalf("Reserve 2: %v", err)
	}
}

func TestConcurrencyBoundUnderContention(t *testing.T) {
	const maxGlobal = 4
	g := NewConcurrencyGuard(maxGlobal, maxGlobal)

	var inFlight, peak, failures atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := string(rune('a' + i%8))
			if err := g.Reserve(caller); err != nil {
				failures.Add(1)
				return
			}
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			inFlight.Add(-1)
			g.Release(caller)
		}(i)
	}
	wg.Wait()

	if p := peak.Load(); p > maxGlobal {
		t.Errorf("peak in-flight = %d, want ≤ %d", p, maxGlobal)
	}
	if got := g.Running(); got != 0 {
		t.Errorf("Running() = %d after all releases, want 0", got)
	}
}

func TestConcurrencyExactlyOneWinsLastSlot(t *testing.T) {
	g := NewConcurrencyGuard(1, 1)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			caller := []string{"1.1.1.1", "2.2.2.2"}[i]
			if err := g.Reserve(caller); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("wins = %d, want exactly 1", wins.Load())
	}
}
