// Package naming holds the naming rules for domains and the libvirt
// volumes that belong to them.
//
// Every volume of a domain is named "<domain>_<role>.<ext>". Domain names
// cannot contain an underscore, so "<domain>_" is an unambiguous prefix for
// all of a domain's volumes.
package naming

import (
	"fmt"
	"regexp"
)

// MaxNameLength bounds domain names.
const MaxNameLength = 31

var namePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9.-]*$`)

// ValidateName checks that name can be used as a domain name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("domain name is required")
	case len(name) > MaxNameLength:
		return fmt.Errorf("domain name %q is longer than %d characters", name, MaxNameLength)
	case !namePattern.MatchString(name):
		return fmt.Errorf("domain name %q must start with a letter and contain only letters, digits, '.' and '-'", name)
	}
	return nil
}

// VolumePrefix returns the prefix shared by all of a domain's volumes.
func VolumePrefix(name string) string {
	return name + "_"
}

// VolumeNameRoot returns the root volume of a template or standalone domain.
// Format: {name}_root.qcow2
func VolumeNameRoot(name string) string {
	return fmt.Sprintf("%s_root.qcow2", name)
}

// VolumeNameRootSnap returns the overlay a template-based domain boots from.
// Format: {name}_root-snap.qcow2
func VolumeNameRootSnap(name string) string {
	return fmt.Sprintf("%s_root-snap.qcow2", name)
}

// VolumeNamePrivate returns a domain's private data volume.
// Format: {name}_private.qcow2
func VolumeNamePrivate(name string) string {
	return fmt.Sprintf("%s_private.qcow2", name)
}

// VolumeNameCloudInit returns a domain's cloud-init seed ISO.
// Format: {name}_cloudinit.iso
func VolumeNameCloudInit(name string) string {
	return fmt.Sprintf("%s_cloudinit.iso", name)
}
