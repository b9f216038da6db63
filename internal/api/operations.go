package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/seantiz/cloudlaunch/internal/guard"
	"github.com/seantiz/cloudlaunch/internal/model"
	"github.com/seantiz/cloudlaunch/internal/provider"
	"github.com/seantiz/cloudlaunch/internal/state"
)

const maxBodySize = 1 << 20 // 1 MB

const noStateMessage = "No infrastructure state found. Run POST /provision first."

// provisionRequest is the JSON body for POST /provision.
type provisionRequest struct {
	Provider      string `json:"provider"`
	VMName        string `json:"vm_name"`
	Location      string `json:"location"`
	ResourceGroup string `json:"resource_group"`
	AdminUsername string `json:"admin_username"`
	SSHKeyPath    string `json:"ssh_key_path"`
}

func (r *provisionRequest) applyDefaults(defaultProvider string) {
	if r.Provider == "" {
		r.Provider = defaultProvider
	}
	if r.VMName == "" {
		r.VMName = "cloudlaunch-vm"
	}
	if r.Location == "" {
		r.Location = "southeastasia"
	}
	if r.ResourceGroup == "" {
		r.ResourceGroup = "cloudlaunch-rg"
	}
	if r.AdminUsername == "" {
		r.AdminUsername = "azureuser"
	}
	if r.SSHKeyPath == "" {
		r.SSHKeyPath = "~/.ssh/id_rsa.pub"
	}
}

// operationRequest is the JSON body for POST /deploy and POST /destroy.
type operationRequest struct {
	Provider string `json:"provider"`
}

// jobResponse is the 202 acknowledgement for every async operation.
type jobResponse struct {
	JobID     string `json:"job_id"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

func newJobResponse(v model.JobView) jobResponse {
	return jobResponse{
		JobID:     v.ID,
		Operation: v.Operation,
		Status:    v.Status,
		Message:   v.Message,
	}
}

// planResponse wraps the resource preview for GET /plan.
type planResponse struct {
	Provider  string               `json:"provider"`
	Location  string               `json:"location"`
	VMSize    string               `json:"vm_size"`
	Resources []model.PlanResource `json:"resources"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := provisionRequest{
		Provider:      q.Get("provider"),
		VMName:        q.Get("vm_name"),
		Location:      q.Get("location"),
		ResourceGroup: q.Get("resource_group"),
		AdminUsername: q.Get("admin_username"),
	}
	req.applyDefaults(s.cfg.Provider)

	prov, err := s.deps.Registry.Resolve(req.Provider)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resources := prov.Plan(model.ProvisionConfig{
		Provider:      req.Provider,
		ResourceGroup: req.ResourceGroup,
		Location:      req.Location,
		VMName:        req.VMName,
		AdminUsername: req.AdminUsername,
	})

	s.writeJSON(w, http.StatusOK, planResponse{
		Provider:  req.Provider,
		Location:  req.Location,
		VMSize:    "Standard_B1s",
		Resources: resources,
	})
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.applyDefaults(s.cfg.Provider)

	prov, err := s.deps.Registry.Resolve(req.Provider)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller := callerIP(r)

	// Wallet guard first. The slot is freed only by a successful destroy.
	if err := s.deps.Budget.Reserve(); err != nil {
		admissionRejections.WithLabelValues("budget").Inc()
		s.auditAppend(r.Context(), "budget_exceeded", caller, "")
		s.writeError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := s.reserveSlot(w, r, caller); err != nil {
		// The budget reservation must not leak when admission fails later.
		s.deps.Budget.Release()
		return
	}

	cfg := model.ProvisionConfig{
		Provider:      req.Provider,
		ResourceGroup: req.ResourceGroup,
		Location:      req.Location,
		VMName:        req.VMName,
		AdminUsername: req.AdminUsername,
		SSHKeyPath:    req.SSHKeyPath,
	}

	s.auditAppend(r.Context(), model.OpProvision, caller, "vm="+cfg.VMName)

	job := s.deps.Engine.Launch(model.OpProvision, caller, func(log func(string)) (*model.VMState, error) {
		vmState, err := prov.Provision(context.Background(), cfg, log)
		if err != nil {
			return nil, err
		}
		if err := s.deps.State.Save(vmState); err != nil {
			return nil, fmt.Errorf("persist state: %w", err)
		}
		s.armAutoDestroy(prov, vmState, log)
		return vmState, nil
	})

	s.writeJSON(w, http.StatusAccepted, newJobResponse(job.Snapshot()))
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	vmState, prov, ok := s.loadStateAndProvider(w, req.Provider)
	if !ok {
		return
	}

	caller := callerIP(r)
	if err := s.reserveSlot(w, r, caller); err != nil {
		return
	}

	s.auditAppend(r.Context(), model.OpDeploy, caller, "vm="+vmState.VMName)

	job := s.deps.Engine.Launch(model.OpDeploy, caller, func(log func(string)) (*model.VMState, error) {
		return nil, prov.Deploy(context.Background(), vmState, log)
	})

	s.writeJSON(w, http.StatusAccepted, newJobResponse(job.Snapshot()))
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	var req operationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	vmState, prov, ok := s.loadStateAndProvider(w, req.Provider)
	if !ok {
		return
	}

	caller := callerIP(r)
	if err := s.reserveSlot(w, r, caller); err != nil {
		return
	}

	// A manual destroy supersedes the pending auto-destroy.
	if s.deps.Expiry.Cancel() {
		s.auditAppend(r.Context(), "auto_destroy_cancelled", caller, "manual destroy")
	}

	s.auditAppend(r.Context(), model.OpDestroy, caller, "vm="+vmState.VMName)

	job := s.deps.Engine.Launch(model.OpDestroy, caller, func(log func(string)) (*model.VMState, error) {
		if err := prov.Destroy(context.Background(), vmState, log); err != nil {
			return nil, err
		}
		if err := s.deps.State.Clear(); err != nil {
			log(fmt.Sprintf("Warning: could not remove state file: %v", err))
		}
		s.deps.Budget.Release()
		return nil, nil
	})

	s.writeJSON(w, http.StatusAccepted, newJobResponse(job.Snapshot()))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")

	vmState, prov, ok := s.loadStateAndProvider(w, providerName)
	if !ok {
		return
	}

	status, err := prov.Status(r.Context(), vmState)
	if err != nil {
		s.logger.Error("provider status", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

// loadStateAndProvider resolves the shared precondition of deploy, destroy
// and status: saved state must exist and the provider must be registered.
// It writes the error response itself and reports ok=false on failure.
func (s *Server) loadStateAndProvider(w http.ResponseWriter, providerName string) (*model.VMState, provider.Provider, bool) {
	vmState, err := s.deps.State.Load()
	if errors.Is(err, state.ErrNoState) {
		s.writeError(w, http.StatusNotFound, noStateMessage)
		return nil, nil, false
	}
	if err != nil {
		s.logger.Error("load state", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load state")
		return nil, nil, false
	}

	if providerName == "" {
		providerName = vmState.Provider
	}
	if providerName == "" {
		providerName = s.cfg.Provider
	}
	prov, err := s.deps.Registry.Resolve(providerName)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}

	return vmState, prov, true
}

// reserveSlot takes a concurrency reservation for the caller, writing the
// 429 response on rejection. The engine releases the slot when the job
// finishes.
func (s *Server) reserveSlot(w http.ResponseWriter, r *http.Request, caller string) error {
	err := s.deps.Concurrency.Reserve(caller)
	if err == nil {
		return nil
	}

	admissionRejections.WithLabelValues("concurrency").Inc()
	w.Header().Set("Retry-After", "30")
	switch {
	case errors.Is(err, guard.ErrServerBusy):
		s.writeError(w, http.StatusTooManyRequests, fmt.Sprintf(
			"Server is busy (max %d concurrent jobs). Try again shortly.",
			s.deps.Concurrency.MaxGlobal(),
		))
	case errors.Is(err, guard.ErrCallerBusy):
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		s.writeError(w, http.StatusTooManyRequests, err.Error())
	}
	return err
}

// armAutoDestroy schedules the TTL teardown after a successful provision.
// Runs on the job goroutine; log feeds the provision job's record.
func (s *Server) armAutoDestroy(prov provider.Provider, vmState *model.VMState, log func(string)) {
	if s.cfg.AutoDestroyTTL <= 0 {
		return
	}

	armed := s.deps.Expiry.Schedule(s.cfg.AutoDestroyTTL, vmState, func(st *model.VMState, tlog func(string)) error {
		if err := prov.Destroy(context.Background(), st, tlog); err != nil {
			return err
		}
		if err := s.deps.State.Clear(); err != nil {
			s.logger.Error("clear state after auto-destroy", "error", err)
		}
		s.auditAppend(context.Background(), "auto_destroy", "system", "ttl="+s.cfg.AutoDestroyTTL.String())
		return nil
	}, log)

	if !armed {
		log("Warning: an auto-destroy timer is already pending; this VM will not expire on its own.")
		return
	}
	s.auditAppend(context.Background(), "auto_destroy_armed", "system", "ttl="+s.cfg.AutoDestroyTTL.String())
}
