package engine

import (
	"context"
	"sync"
	"time"
)

// LogBroker relays per-job log output from the runner to any number of
// streaming sessions. Each topic is an append-only line buffer; every
// session holds its own cursor into it, so history replay and live tailing
// come from a single source and independent readers never interfere with
// each other's position or disconnects.
//
// Closed topics are retained so that sessions attaching after a job
// finishes still replay the full history. Each retained topic is bounded by
// the job's log volume, which is acceptable for the expected job count.
type LogBroker struct {
	mu     sync.Mutex
	topics map[string]*logTopic
}

type logTopic struct {
	mu     sync.Mutex
	cond   *sync.Cond
	lines  []string
	closed bool
}

func newLogTopic() *logTopic {
	t := &logTopic{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// NewLogBroker creates a new log broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{
		topics: make(map[string]*logTopic),
	}
}

func (b *LogBroker) topic(jobID string) *logTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok {
		t = newLogTopic()
		b.topics[jobID] = t
	}
	return t
}

// Publish appends one line to the job's relay and wakes all waiting readers.
// Lines published after Close are dropped.
func (b *LogBroker) Publish(jobID, line string) {
	t := b.topic(jobID)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.lines = append(t.lines, line)
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Close marks the end of the job's stream. It is called exactly once by the
// runner, after the final status transition; calling it again is a no-op.
func (b *LogBroker) Close(jobID string) {
	t := b.topic(jobID)
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cond.Broadcast()
}

// Next blocks until the job's relay holds lines beyond cursor, the relay is
// closed, the bounded wait elapses, or ctx is cancelled. It returns any new
// lines in emission order and whether the relay is closed. An empty result
// with closed=false means the wait timed out; the caller may heartbeat and
// retry. Cancellation returns ctx's error.
func (b *LogBroker) Next(ctx context.Context, jobID string, cursor int, wait time.Duration) ([]string, bool, error) {
	t := b.topic(jobID)

	deadline := time.Now().Add(wait)
	timer := time.AfterFunc(wait, t.cond.Broadcast)
	defer timer.Stop()
	stop := context.AfterFunc(ctx, t.cond.Broadcast)
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.lines) <= cursor && !t.closed && ctx.Err() == nil && time.Now().Before(deadline) {
		t.cond.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var lines []string
	if cursor < len(t.lines) {
		lines = make([]string, len(t.lines)-cursor)
		copy(lines, t.lines[cursor:])
	}
	return lines, t.closed, nil
}
