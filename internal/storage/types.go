package storage

import (
	"fmt"
	"time"
)

// PoolType is the libvirt storage pool backend.
type PoolType string

const (
	PoolTypeDir PoolType = "dir"
)

// VolumeType is the role a volume plays for its domain.
type VolumeType string

const (
	// VolumeTypeRoot is a root volume owned by a template or standalone domain.
	VolumeTypeRoot VolumeType = "root"
	// VolumeTypeRootSnap is a throwaway overlay on a template's root volume.
	VolumeTypeRootSnap VolumeType = "root-snap"
	// VolumeTypePrivate holds a domain's persistent data.
	VolumeTypePrivate   VolumeType = "private"
	VolumeTypeCloudInit VolumeType = "cloudinit"
)

// VolumeFormat is the on-disk format of a volume.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw"
)

// VolumeSpec describes a volume to create.
type VolumeSpec struct {
	Name       string
	Type       VolumeType
	Format     VolumeFormat
	CapacityGB uint64

	// CapacityBytes sizes small volumes exactly. It wins over CapacityGB.
	CapacityBytes uint64

	// BackingVolume names a qcow2 volume in the same pool to overlay.
	BackingVolume string
}

// Validate checks that a volume can be created from v.
func (v *VolumeSpec) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("volume name is required")
	}
	if v.Type == "" {
		return fmt.Errorf("volume type is required")
	}
	switch v.Format {
	case VolumeFormatQCOW2, VolumeFormatRaw:
	case "":
		return fmt.Errorf("volume format is required")
	default:
		return fmt.Errorf("invalid volume format: %s (must be qcow2 or raw)", v.Format)
	}
	if v.CapacityGB == 0 && v.CapacityBytes == 0 && v.Type != VolumeTypeCloudInit && v.BackingVolume == "" {
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	if v.BackingVolume != "" && v.Format != VolumeFormatQCOW2 {
		return fmt.Errorf("backing volumes are only supported for qcow2 format")
	}
	return nil
}

// PoolInfo describes a storage pool.
type PoolInfo struct {
	Name       string
	Type       PoolType
	Path       string
	UUID       string
	State      string
	Capacity   uint64
	Allocation uint64
	Available  uint64
}

const bytesPerGiB = 1024 * 1024 * 1024

func (p *PoolInfo) CapacityGB() float64 {
	return float64(p.Capacity) / bytesPerGiB
}

func (p *PoolInfo) AllocationGB() float64 {
	return float64(p.Allocation) / bytesPerGiB
}

func (p *PoolInfo) AvailableGB() float64 {
	return float64(p.Available) / bytesPerGiB
}

// VolumeInfo describes a storage volume.
type VolumeInfo struct {
	Name       string
	Path       string
	Pool       string
	Capacity   uint64
	Allocation uint64
}

func (v *VolumeInfo) CapacityGB() float64 {
	return float64(v.Capacity) / bytesPerGiB
}

// Timestamps are a volume's file times as reported by libvirt.
type Timestamps struct {
	Accessed time.Time
	Modified time.Time
	Changed  time.Time
}

// Default pool configuration.
const (
	DefaultPool     = "hexagon"
	DefaultPoolPath = "/var/lib/libvirt/images/hexagon"

	// DefaultRootSizeGB sizes root volumes that are not imported.
	DefaultRootSizeGB = 20

	// DefaultPrivateSizeGB sizes private volumes.
	DefaultPrivateSizeGB = 10
)
