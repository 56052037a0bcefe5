package storage

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ImportImage replaces the volume named volumeName with the contents of the
// image file at filePath. The format is taken from the file's magic bytes.
// The rewritten volume gets a new modification time, which is how domains
// built on it learn they are outdated.
func (m *Manager) ImportImage(ctx context.Context, poolName, filePath, volumeName string) (VolumeFormat, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat image file: %w", err)
	}

	format, err := DetectImageFormat(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind image file: %w", err)
	}

	exists, err := m.VolumeExists(ctx, poolName, volumeName)
	if err != nil {
		return "", err
	}
	if exists {
		if err := m.DeleteVolume(ctx, poolName, volumeName); err != nil {
			return "", fmt.Errorf("failed to replace volume: %w", err)
		}
	}

	spec := VolumeSpec{
		Name:       volumeName,
		Type:       VolumeTypeRoot,
		Format:     format,
		CapacityGB: uint64(info.Size()/bytesPerGiB) + 1,
	}
	if err := m.CreateVolume(ctx, poolName, spec); err != nil {
		return "", fmt.Errorf("failed to create image volume: %w", err)
	}

	if err := m.WriteVolumeData(ctx, poolName, volumeName, f, uint64(info.Size())); err != nil {
		_ = m.DeleteVolume(ctx, poolName, volumeName)
		return "", fmt.Errorf("failed to upload image data: %w", err)
	}

	if err := m.RefreshPool(ctx, poolName); err != nil {
		return format, err
	}
	return format, nil
}
