package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

const (
	// GuestAgentChannel is the virtio-serial port qemu-guest-agent listens on.
	GuestAgentChannel = "org.qemu.guest_agent.0"

	// DefaultNetwork is the libvirt network new domains are attached to.
	DefaultNetwork = "default"

	// New domain sizing.
	DefaultVCPUs     = 2
	DefaultMemoryMiB = 400
	DefaultMaxMemMiB = 4000
)

// DomainSpec is everything needed to define a new domain.
type DomainSpec struct {
	Name      string
	UUID      string
	VCPUs     uint
	MemoryMiB uint
	MaxMemMiB uint

	Pool            string
	RootVolume      string
	PrivateVolume   string
	CloudInitVolume string
}

// GenerateDomainXML renders the libvirt definition of a new domain.
func GenerateDomainXML(spec DomainSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("domain name is required")
	}
	if spec.MemoryMiB > spec.MaxMemMiB {
		return "", fmt.Errorf("memory %d MiB exceeds maxmem %d MiB", spec.MemoryMiB, spec.MaxMemMiB)
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		UUID: spec.UUID,
		Memory: &libvirtxml.DomainMemory{
			Value: spec.MaxMemMiB,
			Unit:  "MiB",
		},
		CurrentMemory: &libvirtxml.DomainCurrentMemory{
			Value: spec.MemoryMiB,
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     spec.VCPUs,
		},
		OS: &libvirtxml.DomainOS{
			Firmware: "efi",
			Type: &libvirtxml.DomainOSType{
				Arch: "x86_64",
				Type: "hvm",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-model",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: &libvirtxml.DomainDeviceList{
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{Device: "/dev/urandom"},
					},
				},
			},
			Interfaces: []libvirtxml.DomainInterface{
				{
					Source: &libvirtxml.DomainInterfaceSource{
						Network: &libvirtxml.DomainInterfaceSourceNetwork{Network: DefaultNetwork},
					},
					Model: &libvirtxml.DomainInterfaceModel{Type: "virtio"},
				},
			},
			Channels: []libvirtxml.DomainChannel{
				{
					Source: &libvirtxml.DomainChardevSource{
						UNIX: &libvirtxml.DomainChardevSourceUNIX{Mode: "bind"},
					},
					Target: &libvirtxml.DomainChannelTarget{
						VirtIO: &libvirtxml.DomainChannelTargetVirtIO{Name: GuestAgentChannel},
					},
				},
			},
		},
	}

	domain.Devices.Disks = append(domain.Devices.Disks,
		volumeDisk(spec.Pool, spec.RootVolume, "vda", &libvirtxml.DomainDeviceBoot{Order: 1}),
		volumeDisk(spec.Pool, spec.PrivateVolume, "vdb", nil),
	)

	if spec.CloudInitVolume != "" {
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{Name: "qemu", Type: "raw"},
			Source: &libvirtxml.DomainDiskSource{
				Volume: &libvirtxml.DomainDiskSourceVolume{Pool: spec.Pool, Volume: spec.CloudInitVolume},
			},
			Target:   &libvirtxml.DomainDiskTarget{Dev: "sda", Bus: "sata"},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		})
	}

	port := uint(0)
	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{Pty: &libvirtxml.DomainChardevSourcePty{}},
			Target: &libvirtxml.DomainSerialTarget{Port: &port},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{Pty: &libvirtxml.DomainChardevSourcePty{}},
			Target: &libvirtxml.DomainConsoleTarget{Type: "serial", Port: &port},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}
	return xml, nil
}

func volumeDisk(pool, volume, dev string, boot *libvirtxml.DomainDeviceBoot) libvirtxml.DomainDisk {
	return libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  "qcow2",
			Cache: "none",
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{Pool: pool, Volume: volume},
		},
		Target: &libvirtxml.DomainDiskTarget{Dev: dev, Bus: "virtio"},
		Boot:   boot,
	}
}

// toMiB converts a libvirt memory amount to MiB. libvirt defaults to KiB.
func toMiB(value uint, unit string) (int, error) {
	v := uint64(value)
	switch unit {
	case "b", "bytes":
		return int(v / (1 << 20)), nil
	case "", "k", "KiB":
		return int(v / 1024), nil
	case "KB":
		return int(v * 1000 / (1 << 20)), nil
	case "M", "MiB":
		return int(v), nil
	case "MB":
		return int(v * 1000 * 1000 / (1 << 20)), nil
	case "G", "GiB":
		return int(v * 1024), nil
	case "GB":
		return int(v * 1000 * 1000 * 1000 / (1 << 20)), nil
	}
	return 0, fmt.Errorf("unknown memory unit %q", unit)
}

func memoryMiB(def *libvirtxml.Domain) (int, error) {
	if def.Memory == nil {
		return 0, nil
	}
	return toMiB(def.Memory.Value, def.Memory.Unit)
}

func currentMemoryMiB(def *libvirtxml.Domain) (int, error) {
	if def.CurrentMemory == nil {
		return memoryMiB(def)
	}
	return toMiB(def.CurrentMemory.Value, def.CurrentMemory.Unit)
}
