// Package domain defines the Domain Control Interface: the contract between
// hexagon's reconciliation core and whatever actually runs the virtual
// machines.
//
// The core (internal/vm, internal/batch) only ever talks to a Directory and
// the Domain values it hands out. The libvirt implementation lives in
// internal/libvirt; tests use in-memory fakes.
//
// Attributes:
//
// Every configurable attribute has a fixed Kind (see KindOf). Desired values
// are carried as typed Values so that a malformed value is rejected when the
// desired configuration is built, not halfway through a reconciliation:
//
//	v, err := domain.ParseValue(domain.AttrVCPUs, "4")
//	if err != nil {
//	    return err // wraps ErrInvalidValue or ErrUnsupportedAttribute
//	}
//	fmt.Println(v) // "4"
//
// Errors:
//
// Failures are reported with the sentinel errors in errors.go (match with
// errors.Is) or a *PlatformError wrapping the underlying hypervisor failure
// (match with errors.As).
package domain
