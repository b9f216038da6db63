package api

import "net/http"

// handleHealthz is the liveness probe used by load balancers and container
// health checks.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
