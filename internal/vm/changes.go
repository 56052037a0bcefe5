package vm

import (
	"context"
	"fmt"

	"github.com/jbweber/hexagon/internal/config"
	"github.com/jbweber/hexagon/internal/domain"
)

// rebootAttributes only take effect after a power-cycle.
var rebootAttributes = map[string]bool{
	domain.AttrLabel:    true,
	domain.AttrTemplate: true,
	domain.AttrVCPUs:    true,
	domain.AttrVirtMode: true,
	domain.AttrKernel:   true,
}

// Change is one attribute whose live value differs from the desired one.
type Change struct {
	Attribute      string
	Old            string
	New            domain.Value
	RebootRequired bool
}

// NewChange builds a Change, flagging it reboot-required when the attribute
// needs a power-cycle or force is set.
func NewChange(attr, old string, v domain.Value, force bool) Change {
	return Change{
		Attribute:      attr,
		Old:            old,
		New:            v,
		RebootRequired: force || rebootAttributes[attr],
	}
}

func (c Change) String() string {
	old := c.Old
	if old == "" {
		old = "<unset>"
	}
	s := fmt.Sprintf("%s: %s -> %s", c.Attribute, old, c.New)
	if c.RebootRequired {
		s += " (reboot)"
	}
	return s
}

type setter struct {
	kind domain.Kind
	set  func(ctx context.Context, d domain.Domain, v domain.Value) error
}

// setters is the complete set of attributes Apply may write.
var setters = map[string]setter{
	domain.AttrAutostart: {domain.KindBool, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetAutostart(ctx, v.AsBool())
	}},
	domain.AttrKernel: {domain.KindString, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetKernel(ctx, v.AsString())
	}},
	domain.AttrLabel: {domain.KindString, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetLabel(ctx, v.AsString())
	}},
	domain.AttrMaxMem: {domain.KindInt, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetMaxMem(ctx, v.AsInt())
	}},
	domain.AttrMemory: {domain.KindInt, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetMemory(ctx, v.AsInt())
	}},
	domain.AttrProvidesNetwork: {domain.KindBool, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetProvidesNetwork(ctx, v.AsBool())
	}},
	domain.AttrTemplate: {domain.KindDomainRef, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetTemplate(ctx, v.AsRef())
	}},
	domain.AttrVCPUs: {domain.KindInt, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetVCPUs(ctx, v.AsInt())
	}},
	domain.AttrVirtMode: {domain.KindString, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetVirtMode(ctx, v.AsString())
	}},
	domain.AttrNetVM: {domain.KindDomainRef, func(ctx context.Context, d domain.Domain, v domain.Value) error {
		return d.SetNetVM(ctx, v.AsRef())
	}},
}

// Settable reports whether Apply can write attr.
func Settable(attr string) bool {
	_, ok := setters[attr]
	return ok
}

// Apply writes the new value to d. Attributes outside the settable set fail
// with domain.ErrUnsupportedAttribute before anything is touched.
func (c Change) Apply(ctx context.Context, d domain.Domain) error {
	s, ok := setters[c.Attribute]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAttribute, c.Attribute)
	}
	if c.New.Kind() != s.kind {
		return fmt.Errorf("%w: %s expects %s, got %s", domain.ErrInvalidValue, c.Attribute, s.kind, c.New.Kind())
	}
	return domain.Platform("set "+c.Attribute+" on", d.Name(), s.set(ctx, d, c.New))
}

// ComputeChangeSet lists the attributes of desired that differ from the
// domain behind h, in desired's order. Values are compared in their
// normalized string form. If the domain does not exist every attribute
// differs. The class attribute is never part of the result.
//
// ComputeChangeSet only reads.
func ComputeChangeSet(ctx context.Context, h *Handle, desired config.Desired) ([]Change, error) {
	exists, err := h.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return fullChangeSet(desired), nil
	}

	d, err := h.Domain(ctx)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, e := range desired.Entries() {
		if e.Key == domain.AttrClass {
			continue
		}
		current, err := d.Property(ctx, e.Key)
		if err != nil {
			return nil, domain.Platform("read "+e.Key+" of", h.Name(), err)
		}
		if current != e.Value.String() {
			changes = append(changes, NewChange(e.Key, current, e.Value, false))
		}
	}
	return changes, nil
}

// fullChangeSet treats every desired attribute as differing.
func fullChangeSet(desired config.Desired) []Change {
	var changes []Change
	for _, e := range desired.Entries() {
		if e.Key == domain.AttrClass {
			continue
		}
		changes = append(changes, NewChange(e.Key, "", e.Value, false))
	}
	return changes
}

// ForceReboot returns a copy of changes with every change reboot-required.
func ForceReboot(changes []Change) []Change {
	out := make([]Change, len(changes))
	for i, c := range changes {
		c.RebootRequired = true
		out[i] = c
	}
	return out
}

// RebootRequired reports whether any change needs a power-cycle.
func RebootRequired(changes []Change) bool {
	for _, c := range changes {
		if c.RebootRequired {
			return true
		}
	}
	return false
}
