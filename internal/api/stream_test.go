package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seantiz/cloudlaunch/internal/config"
	"github.com/seantiz/cloudlaunch/internal/model"
)

// wsURL converts the test server's http:// base URL to ws://.
func (e *testEnv) wsURL(jobID string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/" + jobID
}

// collectFrames dials the stream and reads frames until done or the server
// closes the connection. It returns the frames plus the close code if the
// server closed first.
func collectFrames(t *testing.T, url string) ([]frame, int) {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	defer conn.Close()

	var frames []frame
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				return frames, ce.Code
			}
			t.Fatalf("read frame: %v (got %d frames)", err, len(frames))
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame %q: %v", data, err)
		}
		frames = append(frames, f)
		if f.Type == "done" {
			return frames, 0
		}
	}
}

func frameTypes(frames []frame) []string {
	types := make([]string, len(frames))
	for i, f := range frames {
		types[i] = f.Type
	}
	return types
}

func logLines(frames []frame) []string {
	var lines []string
	for _, f := range frames {
		if f.Type == "log" {
			lines = append(lines, f.Data.(string))
		}
	}
	return lines
}

func TestStreamUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	frames, code := collectFrames(t, env.wsURL("does-not-exist"))
	if len(frames) != 1 || frames[0].Type != "error" {
		t.Fatalf("frames = %v, want single error frame", frameTypes(frames))
	}
	if msg := frames[0].Data.(string); !strings.Contains(msg, "does-not-exist") {
		t.Errorf("error data = %q", msg)
	}
	if code != closeUnknownJob {
		t.Errorf("close code = %d, want %d", code, closeUnknownJob)
	}
}

func TestStreamLateJoinReplaysHistory(t *testing.T) {
	env := newTestEnv(t)

	var job jobResponse
	env.postJSON(t, "/provision", map[string]string{"vm_name": "replayed-vm"}, &job)
	view := env.waitForJob(t, job.JobID)
	if view.Status != model.StatusSucceeded {
		t.Fatalf("status = %q", view.Status)
	}

	frames, _ := collectFrames(t, env.wsURL(job.JobID))
	types := frameTypes(frames)

	// Full history, one status, the result, then done. No attach-time status
	// for an already-finished job, so status appears exactly once.
	lines := logLines(frames)
	if len(lines) != len(view.Logs) {
		t.Fatalf("replayed %d lines, record has %d", len(lines), len(view.Logs))
	}
	for i, line := range lines {
		if line != view.Logs[i] {
			t.Errorf("line %d = %q, want %q", i, line, view.Logs[i])
		}
	}

	var statusCount int
	for _, f := range frames {
		if f.Type == "status" {
			statusCount++
			if f.Data != model.StatusSucceeded {
				t.Errorf("status frame = %v, want succeeded", f.Data)
			}
		}
	}
	if statusCount != 1 {
		t.Errorf("status frames = %d, want 1", statusCount)
	}

	if types[len(types)-1] != "done" {
		t.Errorf("last frame = %q, want done", types[len(types)-1])
	}
	if types[len(types)-2] != "result" {
		t.Errorf("second-to-last frame = %q, want result", types[len(types)-2])
	}

	result, ok := frames[len(frames)-2].Data.(map[string]any)
	if !ok || result["public_ip"] == "" {
		t.Errorf("result frame data = %v", frames[len(frames)-2].Data)
	}
}

func TestStreamLiveNoDuplication(t *testing.T) {
	env := newTestEnv(t)
	env.sim.StepDelay = 20 * time.Millisecond

	var job jobResponse
	env.postJSON(t, "/provision", map[string]string{"vm_name": "live-vm"}, &job)

	// Attach while the job is mid-flight.
	frames, _ := collectFrames(t, env.wsURL(job.JobID))
	view := env.waitForJob(t, job.JobID)

	lines := logLines(frames)
	if len(lines) != len(view.Logs) {
		t.Fatalf("streamed %d lines, record has %d: no line may be lost or duplicated", len(lines), len(view.Logs))
	}
	for i, line := range lines {
		if line != view.Logs[i] {
			t.Errorf("line %d = %q, want %q", i, line, view.Logs[i])
		}
	}

	types := frameTypes(frames)
	if types[0] != "status" {
		t.Errorf("first frame = %q, want attach-time status", types[0])
	}
	if types[len(types)-1] != "done" {
		t.Errorf("last frame = %q, want done", types[len(types)-1])
	}

	var final string
	for _, f := range frames {
		if f.Type == "status" {
			final = f.Data.(string)
		}
	}
	if final != model.StatusSucceeded {
		t.Errorf("final status frame = %q, want succeeded", final)
	}
}

func TestStreamFailedJobEmitsError(t *testing.T) {
	env := newTestEnv(t, withProvider("boom", failingProvider{}))

	var job jobResponse
	env.postJSON(t, "/provision", map[string]string{"provider": "boom"}, &job)
	env.waitForJob(t, job.JobID)

	frames, _ := collectFrames(t, env.wsURL(job.JobID))
	types := frameTypes(frames)

	want := []string{"status", "error", "done"}
	if len(types) < 3 {
		t.Fatalf("frames = %v", types)
	}
	tail := types[len(types)-3:]
	for i, w := range want {
		if tail[i] != w {
			t.Fatalf("terminal sequence = %v, want %v", tail, want)
		}
	}

	for _, f := range frames {
		if f.Type == "status" && f.Data != model.StatusFailed {
			t.Errorf("status frame = %v, want failed", f.Data)
		}
		if f.Type == "result" {
			t.Error("failed job must not emit a result frame")
		}
	}
}

func TestStreamTwoSessionsIndependent(t *testing.T) {
	env := newTestEnv(t)
	env.sim.StepDelay = 20 * time.Millisecond

	var job jobResponse
	env.postJSON(t, "/provision", map[string]string{"vm_name": "shared-vm"}, &job)

	// Two sessions tail the same job concurrently; each must see the full
	// stream regardless of the other.
	results := make(chan []string, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(job.JobID), nil)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			var lines []string
			for {
				conn.SetReadDeadline(time.Now().Add(10 * time.Second))
				_, data, err := conn.ReadMessage()
				if err != nil {
					errs <- err
					return
				}
				var f frame
				if err := json.Unmarshal(data, &f); err != nil {
					errs <- err
					return
				}
				if f.Type == "log" {
					lines = append(lines, f.Data.(string))
				}
				if f.Type == "done" {
					results <- lines
					return
				}
			}
		}()
	}

	var sessions [][]string
	for len(sessions) < 2 {
		select {
		case lines := <-results:
			sessions = append(sessions, lines)
		case err := <-errs:
			t.Fatalf("session failed: %v", err)
		case <-time.After(15 * time.Second):
			t.Fatal("sessions did not finish")
		}
	}
	view := env.waitForJob(t, job.JobID)

	for n, lines := range sessions {
		if len(lines) != len(view.Logs) {
			t.Fatalf("session %d saw %d lines, record has %d", n, len(lines), len(view.Logs))
		}
		for i := range view.Logs {
			if lines[i] != view.Logs[i] {
				t.Fatalf("session %d diverged at line %d", n, i)
			}
		}
	}
}

func TestStreamAttachBeforeRunReportsRunning(t *testing.T) {
	env := newTestEnv(t)
	// A job created directly in the store has no runner yet, so its record
	// still says pending when the session attaches.
	job := env.srv.deps.Jobs.Create(model.OpProvision, "test")

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(job.ID()), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if f.Type != "status" || f.Data != model.StatusRunning {
		t.Errorf("first frame = %s %v, want running status", f.Type, f.Data)
	}

	// Release the session goroutine before the server shuts down.
	env.srv.deps.Engine.Broker().Close(job.ID())
}

func TestStreamHeartbeat(t *testing.T) {
	env := newTestEnv(t, withConfig(func(c *config.Config) {
		c.StreamHeartbeat = time.Second
	}))
	// A job created directly in the store never produces output, so the
	// session has nothing to send but heartbeats.
	job := env.srv.deps.Jobs.Create(model.OpDeploy, "test")

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(job.ID()), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sawPing := false
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && !sawPing {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if f.Type == "ping" {
			sawPing = true
		}
	}
	if !sawPing {
		t.Fatal("no ping frame within the heartbeat window")
	}

	// Release the session goroutine before the server shuts down.
	env.srv.deps.Engine.Broker().Close(job.ID())
}
