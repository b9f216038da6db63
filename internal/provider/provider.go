// Package provider abstracts the cloud that VMs are provisioned on. Each
// provider implements the full lifecycle (provision, deploy, status,
// destroy) and streams progress through a per-line log callback.
package provider

import (
	"context"

	"github.com/seantiz/cloudlaunch/internal/model"
)

// Provider is the interface that all cloud providers must implement.
type Provider interface {
	// Provision creates the VM and its surrounding resources described by
	// cfg and returns the resulting state. Progress lines go to log.
	Provision(ctx context.Context, cfg model.ProvisionConfig, log func(line string)) (*model.VMState, error)

	// Deploy installs and starts the application on the provisioned VM.
	Deploy(ctx context.Context, state *model.VMState, log func(line string)) error

	// Destroy deletes every resource belonging to the VM. It must be
	// idempotent: destroying already-deleted resources succeeds.
	Destroy(ctx context.Context, state *model.VMState, log func(line string)) error

	// Status reports the current power state of the VM.
	Status(ctx context.Context, state *model.VMState) (*model.VMStatus, error)

	// Plan previews the resources a provision with cfg would create,
	// without creating anything.
	Plan(cfg model.ProvisionConfig) []model.PlanResource
}
