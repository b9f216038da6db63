package api

import (
	"net/http"

	"github.com/seantiz/cloudlaunch/internal/audit"
)

const auditListLimit = 100

// quotaResponse reports the state of every admission guard, so a visitor
// can see why a request might be refused before making it.
type quotaResponse struct {
	ActiveVMs          int  `json:"active_vms"`
	LifetimeVMs        int  `json:"lifetime_vms"`
	MaxActiveVMs       int  `json:"max_active_vms"`
	RunningJobs        int  `json:"running_jobs"`
	MaxRunningJobs     int  `json:"max_running_jobs"`
	KeyUsesSpent       int  `json:"key_uses_spent"`
	KeyUseLimit        int  `json:"key_use_limit"`
	AutoDestroyMinutes int  `json:"auto_destroy_minutes"`
	AutoDestroyArmed   bool `json:"auto_destroy_armed"`
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	budget := s.deps.Budget.Usage()
	keys := s.deps.Keys.Usage()

	s.writeJSON(w, http.StatusOK, quotaResponse{
		ActiveVMs:          budget.Active,
		LifetimeVMs:        budget.Lifetime,
		MaxActiveVMs:       budget.Cap,
		RunningJobs:        s.deps.Concurrency.Running(),
		MaxRunningJobs:     s.deps.Concurrency.MaxGlobal(),
		KeyUsesSpent:       keys.Used,
		KeyUseLimit:        keys.Limit,
		AutoDestroyMinutes: int(s.cfg.AutoDestroyTTL.Minutes()),
		AutoDestroyArmed:   s.deps.Expiry.Armed(),
	})
}

// handleQuotaReset zeroes the active-VM counter. Escape hatch for when
// resources were deleted out of band and the budget is stuck; it touches no
// cloud resource.
func (s *Server) handleQuotaReset(w http.ResponseWriter, r *http.Request) {
	caller := callerIP(r)
	freed := s.deps.Budget.Reset()
	s.auditAppend(r.Context(), "quota_reset", caller, "")
	s.logger.Info("quota reset", "caller", caller, "freed", freed)

	s.writeJSON(w, http.StatusOK, map[string]int{"freed_slots": freed})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	events, err := s.deps.Audit.Recent(r.Context(), auditListLimit)
	if err != nil {
		s.logger.Error("list audit events", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	s.writeJSON(w, http.StatusOK, events)
}
