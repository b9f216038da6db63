package model

import (
	"fmt"
	"sync"
	"time"
)

// Job status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Operation labels.
const (
	OpProvision = "provision"
	OpDeploy    = "deploy"
	OpDestroy   = "destroy"
)

// validTransitions maps each status to the set of statuses it may transition to.
// Succeeded and failed are terminal; pending may never jump straight to a
// terminal state.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusSucceeded: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether the given status is a terminal state.
func Terminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}

// Job represents one asynchronous cloud operation. The runner goroutine is
// the sole mutator; readers (list, detail, streaming replay) take snapshots
// through the accessor methods. The mutex guarantees atomic visibility of
// each field update; a reader may miss the very latest line but never sees
// a torn or reordered record.
type Job struct {
	id        string
	operation string
	caller    string
	createdAt time.Time

	mu     sync.Mutex
	status string
	logs   []string
	result *VMState
	errMsg string
}

// NewJob creates a pending job for the given operation and caller identity.
func NewJob(operation, caller string) *Job {
	return &Job{
		id:        NewID(),
		operation: operation,
		caller:    caller,
		createdAt: time.Now().UTC(),
		status:    StatusPending,
	}
}

// ID returns the job's identity, stable for its lifetime.
func (j *Job) ID() string { return j.id }

// Operation returns the job's operation label.
func (j *Job) Operation() string { return j.operation }

// Caller returns the identity of the client that created the job. It is used
// to release the correct concurrency slot on completion.
func (j *Job) Caller() string { return j.caller }

// CreatedAt returns the creation timestamp used for newest-first listing.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// Status returns the current lifecycle status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Start transitions the job from pending to running.
func (j *Job) Start() error {
	return j.transition(StatusRunning)
}

// Succeed transitions the job to succeeded and stores the result. The result
// is nil for deploy/destroy operations and the provisioned state for provision.
func (j *Job) Succeed(result *VMState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !ValidTransition(j.status, StatusSucceeded) {
		return fmt.Errorf("invalid status transition %s to %s", j.status, StatusSucceeded)
	}
	j.result = result
	j.status = StatusSucceeded
	return nil
}

// Fail transitions the job to failed and stores the error message.
func (j *Job) Fail(msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !ValidTransition(j.status, StatusFailed) {
		return fmt.Errorf("invalid status transition %s to %s", j.status, StatusFailed)
	}
	j.errMsg = msg
	j.status = StatusFailed
	return nil
}

func (j *Job) transition(to string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !ValidTransition(j.status, to) {
		return fmt.Errorf("invalid status transition %s to %s", j.status, to)
	}
	j.status = to
	return nil
}

// AppendLog appends one emitted line to the job's log history. Lines are
// never reordered or truncated.
func (j *Job) AppendLog(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, line)
}

// Logs returns a copy of all log lines emitted so far, in emission order.
func (j *Job) Logs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.logs))
	copy(out, j.logs)
	return out
}

// JobView is a consistent point-in-time snapshot of a job, safe to serialise
// while the runner keeps mutating the live record.
type JobView struct {
	ID        string    `json:"job_id"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Logs      []string  `json:"logs"`
	Error     string    `json:"error,omitempty"`
	Result    *VMState  `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot returns a consistent view of the job under a single lock
// acquisition.
func (j *Job) Snapshot() JobView {
	j.mu.Lock()
	defer j.mu.Unlock()

	logs := make([]string, len(j.logs))
	copy(logs, j.logs)

	return JobView{
		ID:        j.id,
		Operation: j.operation,
		Status:    j.status,
		Message:   j.message(),
		Logs:      logs,
		Error:     j.errMsg,
		Result:    j.result,
		CreatedAt: j.createdAt,
	}
}

// message must be called with the mutex held.
func (j *Job) message() string {
	switch j.status {
	case StatusPending:
		return fmt.Sprintf("%s job queued.", j.operation)
	case StatusRunning:
		return fmt.Sprintf("%s is running.", j.operation)
	case StatusSucceeded:
		return fmt.Sprintf("%s completed successfully.", j.operation)
	case StatusFailed:
		return fmt.Sprintf("%s failed: %s", j.operation, j.errMsg)
	default:
		return j.operation
	}
}
