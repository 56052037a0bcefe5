// Package storage manages the libvirt storage pool that holds domain volumes.
//
// Every volume lives in a single directory pool (DefaultPool). Volume names
// come from the naming package and are prefixed with the owning domain's
// name, so a domain's volumes can be removed with DeleteVolumesWithPrefix.
//
// Template-based domains boot from a throwaway qcow2 overlay on their
// template's root volume. ReplaceOverlay rebuilds that overlay before each
// start so the domain always sees the template's current root. The root
// volume's modification time, read through VolumeTimestamps, is what marks
// a running domain as outdated.
//
// ImportImage loads a QCOW2 or raw image file into a template's root volume.
// Formats are detected from magic bytes rather than file extensions.
package storage
