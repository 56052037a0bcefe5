// Package selector picks the domains a command acts on.
package selector

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/vm"
)

// PropertyFilter matches domains whose attribute equals Value, or differs
// from it when Negate is set.
type PropertyFilter struct {
	Attribute string
	Value     string
	Negate    bool
}

// ParsePropertyFilter parses "attr=value" or "attr=!value". The value is
// normalized the same way desired configuration is, so vcpus=02 matches a
// domain with two vcpus.
func ParsePropertyFilter(s string) (PropertyFilter, error) {
	attr, raw, ok := strings.Cut(s, "=")
	if !ok || attr == "" {
		return PropertyFilter{}, fmt.Errorf("%w: property filter %q must be attr=value", domain.ErrInvalidValue, s)
	}
	f := PropertyFilter{Attribute: attr}
	if rest, neg := strings.CutPrefix(raw, "!"); neg {
		f.Negate = true
		raw = rest
	}
	v, err := domain.ParseValue(attr, raw)
	if err != nil {
		return PropertyFilter{}, err
	}
	f.Value = v.String()
	return f, nil
}

func (f PropertyFilter) String() string {
	if f.Negate {
		return f.Attribute + "=!" + f.Value
	}
	return f.Attribute + "=" + f.Value
}

// Criteria narrow a set of domains. Every set criterion must match.
type Criteria struct {
	// Names restricts the selection to these domains. Each must exist.
	Names []string

	// Tags lists tags a domain must all carry.
	Tags []string

	// Template selects domains based on this template.
	Template string

	// Updatable selects domains flagged with pending package updates.
	Updatable bool

	// Outdated selects running domains whose template changed since they
	// started.
	Outdated bool

	Properties []PropertyFilter
}

// Select returns the domains of dir matching c, in name order, or in the
// order of c.Names when names are given.
func Select(ctx context.Context, dir domain.Directory, c Criteria) ([]domain.Domain, error) {
	candidates, err := candidates(ctx, dir, c.Names)
	if err != nil {
		return nil, err
	}

	var out []domain.Domain
	for _, d := range candidates {
		ok, err := c.Match(ctx, d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func candidates(ctx context.Context, dir domain.Directory, names []string) ([]domain.Domain, error) {
	if len(names) == 0 {
		all, err := dir.List(ctx)
		if err != nil {
			return nil, domain.Platform("list", "domains", err)
		}
		return all, nil
	}

	out := make([]domain.Domain, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		d, err := dir.Lookup(ctx, name)
		if err != nil {
			return nil, domain.Platform("look up", name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Match reports whether d satisfies every criterion except Names. Cheap
// checks run first; outdated detection reads volume timestamps and runs
// last.
func (c Criteria) Match(ctx context.Context, d domain.Domain) (bool, error) {
	if len(c.Tags) > 0 {
		tags, err := d.Tags(ctx)
		if err != nil {
			return false, domain.Platform("read tags of", d.Name(), err)
		}
		for _, t := range c.Tags {
			if !slices.Contains(tags, t) {
				return false, nil
			}
		}
	}

	if c.Template != "" {
		class, err := d.Class(ctx)
		if err != nil {
			return false, domain.Platform("read class of", d.Name(), err)
		}
		if !class.TemplateBased() {
			return false, nil
		}
		tmpl, err := d.Property(ctx, domain.AttrTemplate)
		if err != nil {
			return false, domain.Platform("read template of", d.Name(), err)
		}
		if tmpl != c.Template {
			return false, nil
		}
	}

	for _, f := range c.Properties {
		got, err := d.Property(ctx, f.Attribute)
		if err != nil {
			return false, domain.Platform("read "+f.Attribute+" of", d.Name(), err)
		}
		if (got == f.Value) == f.Negate {
			return false, nil
		}
	}

	if c.Updatable {
		ok, err := vm.Updatable(ctx, d)
		if err != nil || !ok {
			return false, err
		}
	}

	if c.Outdated {
		ok, err := vm.IsOutdated(ctx, d)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// SplitTags splits a comma-separated tag list, dropping empty entries.
func SplitTags(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
