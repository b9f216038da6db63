package model

import (
	"regexp"
	"testing"
)

// crockfordBase32 matches valid ULID strings (26 chars, Crockford Base32 alphabet).
var crockfordBase32 = regexp.MustCompile(`^[0123456789ABCDEFGHJKMNPQRSTVWXYZ]{26}$`)

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	if !crockfordBase32.MatchString(id) {
		t.Errorf("NewID() = %q, does not match Crockford Base32 ULID format", id)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("NewID() produced duplicate: %s", id)
		}
		seen[id] = true
	}
}

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusFailed, true},
		{StatusPending, StatusSucceeded, false},
		{StatusPending, StatusFailed, false},
		{StatusSucceeded, StatusRunning, false},
		{StatusSucceeded, StatusFailed, false},
		{StatusFailed, StatusRunning, false},
		{StatusFailed, StatusSucceeded, false},
		{StatusRunning, StatusPending, false},
	}
	for _, tt := range tests {
		if got := ValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("ValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobLifecycleHappyPath(t *testing.T) {
	j := NewJob(OpProvision, "1.2.3.4")

	if j.Status() != StatusPending {
		t.Fatalf("initial status = %q, want pending", j.Status())
	}
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if j.Status() != StatusRunning {
		t.Fatalf("status = %q, want running", j.Status())
	}

	state := &VMState{VMName: "demo-vm", PublicIP: "1.2.3.4"}
	if err := j.Succeed(state); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	v := j.Snapshot()
	if v.Status != StatusSucceeded {
		t.Errorf("status = %q, want succeeded", v.Status)
	}
	if v.Result == nil || v.Result.PublicIP != "1.2.3.4" {
		t.Errorf("result = %+v, want public_ip 1.2.3.4", v.Result)
	}
	if v.Error != "" {
		t.Errorf("error = %q, want empty on success", v.Error)
	}
}

func TestJobTerminalStatusIsFinal(t *testing.T) {
	j := NewJob(OpDeploy, "1.2.3.4")
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.Fail("ssh timed out"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	if err := j.Start(); err == nil {
		t.Error("Start after failed should be rejected")
	}
	if err := j.Succeed(nil); err == nil {
		t.Error("Succeed after failed should be rejected")
	}

	v := j.Snapshot()
	if v.Error != "ssh timed out" {
		t.Errorf("error = %q, want %q", v.Error, "ssh timed out")
	}
	if v.Result != nil {
		t.Errorf("result = %+v, want nil on failure", v.Result)
	}
}

func TestJobCannotSkipRunning(t *testing.T) {
	j := NewJob(OpDestroy, "1.2.3.4")
	if err := j.Succeed(nil); err == nil {
		t.Error("pending to succeeded should be rejected")
	}
	if err := j.Fail("boom"); err == nil {
		t.Error("pending to failed should be rejected")
	}
}

func TestJobLogsOrderAndIsolation(t *testing.T) {
	j := NewJob(OpProvision, "1.2.3.4")
	lines := []string{"creating resource group", "creating vnet", "creating vm"}
	for _, l := range lines {
		j.AppendLog(l)
	}

	got := j.Logs()
	if len(got) != len(lines) {
		t.Fatalf("got %d lines, want %d", len(got), len(lines))
	}
	for i, l := range got {
		if l != lines[i] {
			t.Errorf("line[%d] = %q, want %q", i, l, lines[i])
		}
	}

	// Mutating the returned slice must not affect the record.
	got[0] = "tampered"
	if j.Logs()[0] != lines[0] {
		t.Error("Logs() must return a copy")
	}
}

func TestJobMessage(t *testing.T) {
	j := NewJob(OpProvision, "1.2.3.4")
	if msg := j.Snapshot().Message; msg != "provision job queued." {
		t.Errorf("pending message = %q", msg)
	}
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := j.Fail("quota exceeded"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if msg := j.Snapshot().Message; msg != "provision failed: quota exceeded" {
		t.Errorf("failed message = %q", msg)
	}
}
