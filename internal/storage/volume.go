package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateVolume creates a volume in the pool.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid volume spec: %w", err)
	}

	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}

	backingPath := ""
	if spec.BackingVolume != "" {
		backingPath, err = m.GetVolumePath(ctx, poolName, spec.BackingVolume)
		if err != nil {
			return fmt.Errorf("failed to get backing volume path: %w", err)
		}
	}

	uid, gid := m.permissions()
	volumeXML, err := generateVolumeXML(spec, backingPath, uid, gid)
	if err != nil {
		return fmt.Errorf("failed to generate volume XML: %w", err)
	}

	if _, err := m.client.StorageVolCreateXML(pool, volumeXML, 0); err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	return nil
}

// DeleteVolume deletes a volume from the pool.
func (m *Manager) DeleteVolume(_ context.Context, poolName, volumeName string) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}
	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume: %w", err)
	}
	return nil
}

// ReplaceOverlay deletes name if it exists and creates it again as a fresh
// qcow2 overlay on backing.
func (m *Manager) ReplaceOverlay(ctx context.Context, poolName, name, backing string) error {
	exists, err := m.VolumeExists(ctx, poolName, name)
	if err != nil {
		return err
	}
	if exists {
		if err := m.DeleteVolume(ctx, poolName, name); err != nil {
			return fmt.Errorf("failed to drop old overlay: %w", err)
		}
	}
	return m.CreateVolume(ctx, poolName, VolumeSpec{
		Name:          name,
		Type:          VolumeTypeRootSnap,
		Format:        VolumeFormatQCOW2,
		BackingVolume: backing,
	})
}

// ListVolumes lists the volumes of a pool. Volumes whose details cannot be
// read are skipped.
func (m *Manager) ListVolumes(_ context.Context, poolName string) ([]VolumeInfo, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}

	volumes, _, err := m.client.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes: %w", err)
	}

	var infos []VolumeInfo
	for _, vol := range volumes {
		path, err := m.client.StorageVolGetPath(vol)
		if err != nil {
			continue
		}
		_, capacity, allocation, err := m.client.StorageVolGetInfo(vol)
		if err != nil {
			continue
		}
		infos = append(infos, VolumeInfo{
			Name:       vol.Name,
			Path:       path,
			Pool:       poolName,
			Capacity:   capacity,
			Allocation: allocation,
		})
	}
	return infos, nil
}

// DeleteVolumesWithPrefix deletes every volume in the pool whose name starts
// with prefix. It keeps going past failures and returns how many volumes
// were deleted along with the last error.
func (m *Manager) DeleteVolumesWithPrefix(ctx context.Context, poolName, prefix string) (int, error) {
	volumes, err := m.ListVolumes(ctx, poolName)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var lastErr error
	for _, vol := range volumes {
		if !strings.HasPrefix(vol.Name, prefix) {
			continue
		}
		if err := m.DeleteVolume(ctx, poolName, vol.Name); err != nil {
			lastErr = fmt.Errorf("failed to delete %s: %w", vol.Name, err)
			continue
		}
		deleted++
	}
	return deleted, lastErr
}

// GetVolumePath returns the file path of a volume.
func (m *Manager) GetVolumePath(_ context.Context, poolName, volumeName string) (string, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return "", fmt.Errorf("pool not found: %w", err)
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return "", fmt.Errorf("volume not found: %w", err)
	}
	path, err := m.client.StorageVolGetPath(vol)
	if err != nil {
		return "", fmt.Errorf("failed to get volume path: %w", err)
	}
	return path, nil
}

// WriteVolumeData uploads length bytes from r into the volume.
func (m *Manager) WriteVolumeData(_ context.Context, poolName, volumeName string, r io.Reader, length uint64) error {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return fmt.Errorf("pool not found: %w", err)
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return fmt.Errorf("volume not found: %w", err)
	}
	if err := m.client.StorageVolUpload(vol, r, 0, length, 0); err != nil {
		return fmt.Errorf("failed to upload data to volume: %w", err)
	}
	return nil
}

// VolumeExists reports whether the volume exists. A lookup failure counts as
// absent; a missing pool is an error.
func (m *Manager) VolumeExists(_ context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return false, fmt.Errorf("pool not found: %w", err)
	}
	if _, err := m.client.StorageVolLookupByName(pool, volumeName); err != nil {
		return false, nil
	}
	return true, nil
}

// VolumeTimestamps returns the file times of a volume.
func (m *Manager) VolumeTimestamps(_ context.Context, poolName, volumeName string) (*Timestamps, error) {
	pool, err := m.client.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, fmt.Errorf("pool not found: %w", err)
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return nil, fmt.Errorf("volume not found: %w", err)
	}
	xmlDesc, err := m.client.StorageVolGetXMLDesc(vol, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get volume XML: %w", err)
	}

	var def libvirtxml.StorageVolume
	if err := def.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("failed to parse volume XML: %w", err)
	}
	if def.Target == nil || def.Target.Timestamps == nil {
		return nil, fmt.Errorf("volume %s reports no timestamps", volumeName)
	}

	ts := def.Target.Timestamps
	out := &Timestamps{}
	if out.Accessed, err = parseTimestamp(ts.Atime); err != nil {
		return nil, err
	}
	if out.Modified, err = parseTimestamp(ts.Mtime); err != nil {
		return nil, err
	}
	if out.Changed, err = parseTimestamp(ts.Ctime); err != nil {
		return nil, err
	}
	return out, nil
}

// parseTimestamp reads libvirt's "seconds.nanoseconds" form. Empty is zero.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	secPart, fracPart, _ := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}

	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		fracPart += strings.Repeat("0", 9-len(fracPart))
		nsec, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	return time.Unix(sec, nsec), nil
}

func generateVolumeXML(spec VolumeSpec, backingPath, uid, gid string) (string, error) {
	capacity := spec.CapacityGB * bytesPerGiB
	if spec.CapacityBytes > 0 {
		capacity = spec.CapacityBytes
	}

	vol := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: capacity,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(spec.Format),
			},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: uid,
				Group: gid,
				Mode:  "0644",
			},
		},
	}

	// An overlay inherits the backing volume's size.
	if backingPath != "" {
		vol.BackingStore = &libvirtxml.StorageVolumeBackingStore{
			Path: backingPath,
			Format: &libvirtxml.StorageVolumeTargetFormat{
				Type: string(VolumeFormatQCOW2),
			},
		}
		if capacity == 0 {
			vol.Capacity = nil
		}
	}

	out, err := vol.Marshal()
	if err != nil {
		return "", err
	}
	return stripXMLHeader(out), nil
}
