package storage

import (
	"bytes"
	"fmt"
	"io"
)

var (
	// qcow2Magic opens every QCOW2 header: "QFI" followed by 0xfb.
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature ends the first sector of MBR disks and of the protective
	// MBR on GPT disks.
	mbrSignature = []byte{0x55, 0xaa}
)

const mbrSignatureOffset = 510

// DetectImageFormat identifies a bootable disk image by its magic bytes. It
// accepts QCOW2 images and raw images carrying a boot sector signature, and
// rejects anything else.
func DetectImageFormat(r io.ReadSeeker) (VolumeFormat, error) {
	magic := make([]byte, len(qcow2Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}
	if bytes.Equal(magic, qcow2Magic) {
		return VolumeFormatQCOW2, nil
	}

	if _, err := r.Seek(mbrSignatureOffset, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to boot sector signature: %w", err)
	}
	sig := make([]byte, len(mbrSignature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sig, mbrSignature) {
		return VolumeFormatRaw, nil
	}

	return "", fmt.Errorf("unsupported or invalid image: not qcow2 and missing boot sector signature (0x55aa at offset 510)")
}
