package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the named domain does not exist.
	ErrNotFound = errors.New("domain not found")

	// ErrUnsupportedAttribute means the attribute is outside the closed set
	// a reconciliation may read or write.
	ErrUnsupportedAttribute = errors.New("unsupported attribute")

	// ErrTemplateNotFound means a domain references a template that does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidValue means a value does not fit the attribute's kind.
	ErrInvalidValue = errors.New("invalid attribute value")

	// ErrClassChange means the desired class differs from an existing
	// domain's class. Only a rebuild can change it.
	ErrClassChange = errors.New("class of an existing domain cannot change without a rebuild")
)

// NotFound returns an error wrapping ErrNotFound for the named domain.
func NotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// PlatformError wraps a failure reported by the hypervisor layer.
type PlatformError struct {
	Op     string
	Domain string
	Err    error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Domain, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Platform wraps err in a *PlatformError unless it is nil or already
// classified.
func Platform(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PlatformError
	if errors.As(err, &pe) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrUnsupportedAttribute) ||
		errors.Is(err, ErrInvalidValue) {
		return err
	}
	return &PlatformError{Op: op, Domain: name, Err: err}
}
