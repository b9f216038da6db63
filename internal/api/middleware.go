package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/seantiz/cloudlaunch/internal/guard"
)

// rateLimitMiddleware applies the per-IP token buckets to every request.
// POSTs draw from the much smaller write bucket.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := callerIP(r)

		allowed := true
		limit := s.deps.Rate.ReadRPM()
		class := "read"
		if r.Method == http.MethodPost {
			allowed = s.deps.Rate.AllowWrite(caller)
			limit = s.deps.Rate.WriteRPM()
			class = "write"
		} else {
			allowed = s.deps.Rate.AllowRead(caller)
		}

		if !allowed {
			admissionRejections.WithLabelValues("rate").Inc()
			s.auditAppend(r.Context(), "rate_limited", caller, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			s.writeError(w, http.StatusTooManyRequests, fmt.Sprintf(
				"Rate limit exceeded. %s operations are limited to %d per minute per IP.",
				class, limit,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAPIKey gates mutating endpoints behind the shared X-API-Key
// credential.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.deps.Keys.Authorize(r.Header.Get("X-API-Key"))
		switch {
		case errors.Is(err, guard.ErrKeyUnset):
			admissionRejections.WithLabelValues("key").Inc()
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		case errors.Is(err, guard.ErrKeyInvalid):
			admissionRejections.WithLabelValues("key").Inc()
			s.auditAppend(r.Context(), "auth_fail", callerIP(r), r.URL.Path)
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		case errors.Is(err, guard.ErrKeyExhausted):
			admissionRejections.WithLabelValues("key").Inc()
			s.writeError(w, http.StatusForbidden, err.Error())
			return
		case err != nil:
			s.writeError(w, http.StatusInternalServerError, "authorization failed")
			return
		}

		next.ServeHTTP(w, r)
	})
}
