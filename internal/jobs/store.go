// Package jobs provides the in-memory store of all accepted jobs. Jobs are
// ephemeral: one server process owns every in-flight job and nothing is
// persisted across restarts.
package jobs

import (
	"errors"
	"sort"
	"sync"

	"github.com/seantiz/cloudlaunch/internal/model"
)

// ErrNotFound is returned when a job is not found.
var ErrNotFound = errors.New("job not found")

// Store is a mutex-guarded registry of jobs keyed by ID. It is safe for
// concurrent creation and lookup from many callers.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*model.Job),
	}
}

// Create allocates a pending job for the given operation and caller,
// registers it, and returns it. IDs are ULIDs and never collide.
func (s *Store) Create(operation, caller string) *model.Job {
	job := model.NewJob(operation, caller)
	s.mu.Lock()
	s.jobs[job.ID()] = job
	s.mu.Unlock()
	return job
}

// Get returns the job with the given ID.
func (s *Store) Get(id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns all jobs, newest creation first.
func (s *Store) List() []*model.Job {
	s.mu.RLock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().After(out[j].CreatedAt())
		}
		// ULIDs are time-ordered and monotonic within a millisecond, so
		// the ID breaks creation-time ties deterministically.
		return out[i].ID() > out[j].ID()
	})
	return out
}
