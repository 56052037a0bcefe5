package domain

import (
	"context"
	"fmt"
	"time"
)

// PowerState is the power status of a domain as last observed.
type PowerState int

const (
	PowerUnknown PowerState = iota
	PowerRunning
	PowerHalted
	// PowerTransient covers starting, pausing and shutting down.
	PowerTransient
)

func (s PowerState) String() string {
	switch s {
	case PowerRunning:
		return "Running"
	case PowerHalted:
		return "Halted"
	case PowerTransient:
		return "Transient"
	default:
		return "Unknown"
	}
}

// Class is the kind of domain. It is fixed at creation time.
type Class string

const (
	// ClassApp domains boot from a copy of their template's root volume.
	ClassApp Class = "AppVM"
	// ClassDisp domains are throwaway AppVMs.
	ClassDisp Class = "DispVM"
	// ClassTemplate domains own a root volume that AppVMs are based on.
	ClassTemplate Class = "TemplateVM"
	// ClassStandalone domains own their root volume outright.
	ClassStandalone Class = "StandaloneVM"
)

// ParseClass validates a class name.
func ParseClass(s string) (Class, error) {
	switch c := Class(s); c {
	case ClassApp, ClassDisp, ClassTemplate, ClassStandalone:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown class %q", ErrInvalidValue, s)
}

// TemplateBased reports whether domains of this class derive their root
// volume from a template.
func (c Class) TemplateBased() bool {
	return c == ClassApp || c == ClassDisp
}

// Directory is the authority on which domains exist.
type Directory interface {
	// Lookup returns the named domain or an error wrapping ErrNotFound.
	Lookup(ctx context.Context, name string) (Domain, error)

	Exists(ctx context.Context, name string) (bool, error)

	List(ctx context.Context) ([]Domain, error)

	// Create defines a new, halted domain.
	Create(ctx context.Context, class Class, name, label string) (Domain, error)

	// Remove undefines a halted domain and deletes its volumes.
	Remove(ctx context.Context, name string) error
}

// Power is the lifecycle half of a Domain.
type Power interface {
	PowerState(ctx context.Context) (PowerState, error)
	IsRunning(ctx context.Context) (bool, error)

	// Start boots the domain. Starting a running domain is a no-op.
	Start(ctx context.Context) error

	// Shutdown requests a graceful shutdown and returns without waiting.
	Shutdown(ctx context.Context) error

	// Kill stops the domain immediately.
	Kill(ctx context.Context) error

	// RunPrivileged runs a shell command as root inside the domain and
	// returns its exit status.
	RunPrivileged(ctx context.Context, command string) (int, error)

	// StartTime is when the domain was last started. Zero if it never was.
	StartTime(ctx context.Context) (time.Time, error)
}

// Settings is the configuration half of a Domain. Setters cover exactly the
// attributes a reconciliation may change.
type Settings interface {
	// Property returns the normalized string form of a readable attribute.
	Property(ctx context.Context, attr string) (string, error)

	SetAutostart(ctx context.Context, on bool) error
	SetKernel(ctx context.Context, kernel string) error
	SetLabel(ctx context.Context, label string) error
	SetMaxMem(ctx context.Context, mib int) error
	SetMemory(ctx context.Context, mib int) error
	SetProvidesNetwork(ctx context.Context, on bool) error
	SetTemplate(ctx context.Context, template string) error
	SetVCPUs(ctx context.Context, n int) error
	SetVirtMode(ctx context.Context, mode string) error

	// SetNetVM points the domain at a network domain. Empty clears it.
	SetNetVM(ctx context.Context, netvm string) error
}

// Domain is a live handle to one virtual machine.
type Domain interface {
	Power
	Settings

	Name() string
	Class(ctx context.Context) (Class, error)

	// ConnectedClients returns the domains whose netvm is this domain.
	ConnectedClients(ctx context.Context) ([]Domain, error)

	Volumes(ctx context.Context) ([]Volume, error)

	Tags(ctx context.Context) ([]string, error)
	SetTags(ctx context.Context, tags []string) error

	// Feature returns a free-form feature flag and whether it is set.
	Feature(ctx context.Context, key string) (string, bool, error)
	SetFeature(ctx context.Context, key, value string) error
}

// Volume is a storage volume attached to a domain.
type Volume interface {
	Name() string

	// IsOutdated reports whether the volume's source changed after the
	// domain last started.
	IsOutdated(ctx context.Context) (bool, error)
}
