package vm

import (
	"context"
	"fmt"

	"github.com/jbweber/hexagon/internal/domain"
)

// Handle refers to a domain by name whether or not it exists yet. It binds
// to the live domain lazily and must not be shared between goroutines.
type Handle struct {
	name string
	dir  domain.Directory
	dom  domain.Domain
}

// NewHandle returns an unbound handle for name.
func NewHandle(dir domain.Directory, name string) *Handle {
	return &Handle{name: name, dir: dir}
}

func (h *Handle) Name() string {
	return h.name
}

// Exists asks the directory whether the domain exists right now.
func (h *Handle) Exists(ctx context.Context) (bool, error) {
	ok, err := h.dir.Exists(ctx, h.name)
	if err != nil {
		return false, domain.Platform("look up", h.name, err)
	}
	if !ok {
		h.dom = nil
	}
	return ok, nil
}

// Domain returns the live domain, binding the handle on first use.
func (h *Handle) Domain(ctx context.Context) (domain.Domain, error) {
	if h.dom != nil {
		return h.dom, nil
	}
	d, err := h.dir.Lookup(ctx, h.name)
	if err != nil {
		return nil, domain.Platform("look up", h.name, err)
	}
	h.dom = d
	return d, nil
}

// Refresh drops the bound domain and looks it up again. Use after anything
// that may replace the domain, such as a rebuild.
func (h *Handle) Refresh(ctx context.Context) error {
	h.dom = nil
	ok, err := h.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := h.Domain(ctx); err != nil {
		return fmt.Errorf("failed to refresh handle: %w", err)
	}
	return nil
}

func (h *Handle) bind(d domain.Domain) {
	h.dom = d
}
