package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the set of libvirt storage calls the Manager makes.
// *libvirt.Libvirt satisfies it.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolGetXMLDesc(Vol libvirt.StorageVol, Flags uint32) (string, error)
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// Manager creates, inspects and deletes pools and volumes.
type Manager struct {
	client LibvirtClient

	// owner resolves the uid/gid new volumes and pools are owned by.
	owner func() (uid, gid string, err error)
}

// NewManager creates a storage manager.
func NewManager(client LibvirtClient) *Manager {
	return &Manager{
		client: client,
		owner:  GetQEMUUserGroup,
	}
}

// EnsureDefaultPool makes sure the hexagon pool exists and is running.
func (m *Manager) EnsureDefaultPool(ctx context.Context) error {
	if err := m.EnsurePool(ctx, DefaultPool, PoolTypeDir, DefaultPoolPath); err != nil {
		return fmt.Errorf("failed to ensure %s pool: %w", DefaultPool, err)
	}
	return nil
}

func (m *Manager) permissions() (uid, gid string) {
	// The fallback ids are still returned alongside the error.
	uid, gid, _ = m.owner()
	return uid, gid
}
