package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/cloudlaunch/internal/jobs"
	"github.com/seantiz/cloudlaunch/internal/model"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Jobs.List()
	views := make([]model.JobView, 0, len(all))
	for _, j := range all {
		views = append(views, j.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")

	job, err := s.deps.Jobs.Get(id)
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("Job '%s' not found.", id))
		return
	}
	if err != nil {
		s.logger.Error("get job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, job.Snapshot())
}
