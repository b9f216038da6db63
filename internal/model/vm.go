package model

import "time"

// VM power state constants reported by providers.
const (
	VMStateRunning     = "running"
	VMStateStopped     = "stopped"
	VMStateDeallocated = "deallocated"
	VMStateUnknown     = "unknown"
)

// ProvisionConfig carries all inputs needed to provision a VM on any cloud.
// Provider-specific details live in the concrete provider, not here.
type ProvisionConfig struct {
	Provider      string `json:"provider"`
	ResourceGroup string `json:"resource_group"`
	Location      string `json:"location"`
	VMName        string `json:"vm_name"`
	AdminUsername string `json:"admin_username"`
	SSHKeyPath    string `json:"ssh_key_path"`
}

// VMState is the durable record of a provisioned stack, returned by a
// successful provision job and consumed by deploy, destroy, and status.
type VMState struct {
	Provider      string    `json:"provider"`
	VMName        string    `json:"vm_name"`
	PublicIP      string    `json:"public_ip"`
	AdminUsername string    `json:"admin_username"`
	Location      string    `json:"location"`
	ResourceGroup string    `json:"resource_group"`
	ProvisionedAt time.Time `json:"provisioned_at"`
}

// VMStatus is the normalised live status returned by any provider's Status.
// The API always returns the same shape regardless of cloud.
type VMStatus struct {
	VMName       string `json:"vm_name"`
	Provider     string `json:"provider"`
	State        string `json:"state"`
	PublicIP     string `json:"public_ip,omitempty"`
	Location     string `json:"location"`
	VMSize       string `json:"vm_size"`
	OSDiskSizeGB int    `json:"os_disk_size_gb,omitempty"`
}

// PlanResource is one row in the plan preview returned by GET /plan.
type PlanResource struct {
	Resource string `json:"resource"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Detail   string `json:"detail"`
}
