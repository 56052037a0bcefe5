package libvirt

import (
	"context"
	"io"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/hexagon/internal/metadata"
	"github.com/jbweber/hexagon/internal/storage"
)

// libvirtClient is the set of domain calls the directory makes.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	metadata.Client

	DomainLookupByName(Name string) (libvirt.Domain, error)
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error

	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
	DomainGetAutostart(Dom libvirt.Domain) (int32, error)
	DomainSetAutostart(Dom libvirt.Domain, Autostart int32) error
	DomainCreate(Dom libvirt.Domain) error
	DomainShutdown(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error

	QEMUDomainAgentCommand(Dom libvirt.Domain, Cmd string, Timeout int32, Flags uint32) (libvirt.OptString, error)
}

// storageManager is the set of volume operations the directory needs.
//
// In production, this is satisfied by *storage.Manager.
type storageManager interface {
	EnsureDefaultPool(ctx context.Context) error
	VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error)
	CreateVolume(ctx context.Context, poolName string, spec storage.VolumeSpec) error
	WriteVolumeData(ctx context.Context, poolName, volumeName string, r io.Reader, length uint64) error
	ReplaceOverlay(ctx context.Context, poolName, name, backing string) error
	DeleteVolumesWithPrefix(ctx context.Context, poolName, prefix string) (int, error)
	VolumeTimestamps(ctx context.Context, poolName, volumeName string) (*storage.Timestamps, error)
}
