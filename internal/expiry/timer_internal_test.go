package expiry

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

// A timer whose callback already fired reports false from Stop. Cancel must
// still claim the slot and report true: clearing the slot is what makes the
// in-flight fire give up its teardown.
func TestCancelClaimsSlotAfterTimerExpires(t *testing.T) {
	tm := NewTimer(func() {}, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	fired := make(chan struct{})
	expired := time.AfterFunc(time.Nanosecond, func() { close(fired) })
	<-fired

	tm.mu.Lock()
	tm.pending = expired
	tm.mu.Unlock()

	if !tm.Cancel() {
		t.Error("Cancel must report true while the slot is held, even if the timer expired")
	}
	if tm.Armed() {
		t.Error("slot still held after Cancel")
	}
}
