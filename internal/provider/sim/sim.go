// Package sim implements an in-memory provider that walks the full
// provisioning sequence with realistic progress output but touches no real
// cloud. It is the default provider for local development and tests.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/seantiz/cloudlaunch/internal/model"
	"github.com/seantiz/cloudlaunch/internal/provider"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*Provider)(nil)

// Provider simulates a cloud. StepDelay controls how long each
// provisioning step takes, so tests can attach a log stream mid-flight.
type Provider struct {
	StepDelay time.Duration

	mu        sync.Mutex
	destroyed map[string]bool
}

// New creates a simulated provider with the given per-step delay.
func New(stepDelay time.Duration) *Provider {
	return &Provider{
		StepDelay: stepDelay,
		destroyed: make(map[string]bool),
	}
}

// step sleeps for the configured delay unless ctx is done first.
func (p *Provider) step(ctx context.Context) error {
	if p.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(p.StepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeIP derives a stable public IP from the VM name so repeated runs with
// the same config resolve to the same address.
func fakeIP(vmName string) string {
	h := fnv.New32a()
	h.Write([]byte(vmName))
	v := h.Sum32()
	return fmt.Sprintf("203.0.113.%d", v%254+1)
}

// Provision walks the resource creation sequence and returns the resulting
// VM state.
func (p *Provider) Provision(ctx context.Context, cfg model.ProvisionConfig, log func(string)) (*model.VMState, error) {
	steps := []string{
		fmt.Sprintf("Resource Group '%s' ready.", cfg.ResourceGroup),
		fmt.Sprintf("Virtual Network '%s-vnet' ready.", cfg.VMName),
		"Subnet 'default' ready.",
		fmt.Sprintf("Public IP '%s-ip' -> %s", cfg.VMName, fakeIP(cfg.VMName)),
		fmt.Sprintf("NSG '%s-nsg' ready (SSH + HTTP rules).", cfg.VMName),
		fmt.Sprintf("NIC '%s-nic' ready.", cfg.VMName),
		fmt.Sprintf("Virtual Machine '%s' provisioned successfully.", cfg.VMName),
	}
	for _, s := range steps {
		if err := p.step(ctx); err != nil {
			return nil, err
		}
		log(s)
	}

	ip := fakeIP(cfg.VMName)
	log(fmt.Sprintf("Provisioning complete! VM reachable at %s", ip))

	p.mu.Lock()
	delete(p.destroyed, cfg.ResourceGroup)
	p.mu.Unlock()

	return &model.VMState{
		Provider:      "sim",
		VMName:        cfg.VMName,
		PublicIP:      ip,
		AdminUsername: cfg.AdminUsername,
		Location:      cfg.Location,
		ResourceGroup: cfg.ResourceGroup,
		ProvisionedAt: time.Now().UTC(),
	}, nil
}

// Deploy simulates pushing and starting the application on the VM.
func (p *Provider) Deploy(ctx context.Context, state *model.VMState, log func(string)) error {
	steps := []string{
		fmt.Sprintf("Waiting for SSH on %s:22...", state.PublicIP),
		fmt.Sprintf("SSH connected to %s@%s", state.AdminUsername, state.PublicIP),
		"Waiting for Docker daemon (cloud-init)...",
		"Docker ready.",
		"App files uploaded via SFTP.",
		"Image built, container started.",
	}
	for _, s := range steps {
		if err := p.step(ctx); err != nil {
			return err
		}
		log(s)
	}
	log(fmt.Sprintf("Deployment complete! View at: http://%s", state.PublicIP))
	return nil
}

// Destroy deletes the simulated resource group. Destroying it twice is not
// an error.
func (p *Provider) Destroy(ctx context.Context, state *model.VMState, log func(string)) error {
	if err := p.step(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	already := p.destroyed[state.ResourceGroup]
	p.destroyed[state.ResourceGroup] = true
	p.mu.Unlock()

	if already {
		log(fmt.Sprintf("Resource group '%s' already deleted. Nothing to do.", state.ResourceGroup))
		return nil
	}

	log(fmt.Sprintf("Deleting resource group '%s'...", state.ResourceGroup))
	if err := p.step(ctx); err != nil {
		return err
	}
	log(fmt.Sprintf("Resource group '%s' deleted.", state.ResourceGroup))
	return nil
}

// Status reports the simulated power state.
func (p *Provider) Status(ctx context.Context, state *model.VMState) (*model.VMStatus, error) {
	p.mu.Lock()
	destroyed := p.destroyed[state.ResourceGroup]
	p.mu.Unlock()

	power := model.VMStateRunning
	if destroyed {
		power = model.VMStateDeallocated
	}
	return &model.VMStatus{
		VMName:   state.VMName,
		Provider: "sim",
		State:    power,
		PublicIP: state.PublicIP,
		Location: state.Location,
		VMSize:   "Standard_B1s",
	}, nil
}

// Plan previews the resources a provision would create.
func (p *Provider) Plan(cfg model.ProvisionConfig) []model.PlanResource {
	return []model.PlanResource{
		{Resource: "resource_group", Name: cfg.ResourceGroup, Type: "Microsoft.Resources/resourceGroups", Detail: cfg.Location},
		{Resource: "virtual_network", Name: cfg.VMName + "-vnet", Type: "Microsoft.Network/virtualNetworks", Detail: "10.0.0.0/16"},
		{Resource: "subnet", Name: "default", Type: "Microsoft.Network/virtualNetworks/subnets", Detail: "10.0.0.0/24"},
		{Resource: "public_ip", Name: cfg.VMName + "-ip", Type: "Microsoft.Network/publicIPAddresses", Detail: "static"},
		{Resource: "nsg", Name: cfg.VMName + "-nsg", Type: "Microsoft.Network/networkSecurityGroups", Detail: "allow 22, 80"},
		{Resource: "nic", Name: cfg.VMName + "-nic", Type: "Microsoft.Network/networkInterfaces", Detail: ""},
		{Resource: "virtual_machine", Name: cfg.VMName, Type: "Microsoft.Compute/virtualMachines", Detail: "Standard_B1s"},
	}
}
