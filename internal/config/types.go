// Package config holds the desired configuration of domains: the built-in
// defaults, and the YAML file operators declare their domains in.
package config

import (
	"fmt"

	"github.com/jbweber/hexagon/internal/domain"
)

// Built-in defaults applied beneath every domain's configuration.
const (
	DefaultClass           = domain.ClassApp
	DefaultTemplate        = "fedora-42"
	DefaultLabel           = "blue"
	DefaultVCPUs           = 2
	DefaultAutostart       = false
	DefaultProvidesNetwork = false
)

// Entry is one desired attribute.
type Entry struct {
	Key   string
	Value domain.Value
}

// Desired is the desired configuration of one domain. Keys keep the order
// they were first set in. The zero value is empty; use Defaults to start from
// the built-in defaults.
type Desired struct {
	entries []Entry
}

// Defaults returns the built-in default configuration.
func Defaults() Desired {
	return Desired{entries: []Entry{
		{Key: domain.AttrClass, Value: domain.StringValue(string(DefaultClass))},
		{Key: domain.AttrAutostart, Value: domain.BoolValue(DefaultAutostart)},
		{Key: domain.AttrTemplate, Value: domain.RefValue(DefaultTemplate)},
		{Key: domain.AttrNetVM, Value: domain.RefValue("")},
		{Key: domain.AttrLabel, Value: domain.StringValue(DefaultLabel)},
		{Key: domain.AttrProvidesNetwork, Value: domain.BoolValue(DefaultProvidesNetwork)},
		{Key: domain.AttrVCPUs, Value: domain.IntValue(DefaultVCPUs)},
	}}
}

// With returns a copy of d with key set to v. An existing key keeps its
// position.
func (d Desired) With(key string, v domain.Value) Desired {
	out := Desired{entries: make([]Entry, 0, len(d.entries)+1)}
	replaced := false
	for _, e := range d.entries {
		if e.Key == key {
			e.Value = v
			replaced = true
		}
		out.entries = append(out.entries, e)
	}
	if !replaced {
		out.entries = append(out.entries, Entry{Key: key, Value: v})
	}
	return out
}

// Set parses raw for key and returns a copy of d with it applied.
func (d Desired) Set(key, raw string) (Desired, error) {
	v, err := domain.ParseValue(key, raw)
	if err != nil {
		return Desired{}, err
	}
	return d.With(key, v), nil
}

// Merge returns d overlaid with every entry of other, in other's order.
func (d Desired) Merge(other Desired) Desired {
	out := d
	for _, e := range other.entries {
		out = out.With(e.Key, e.Value)
	}
	return out
}

// Get returns the value for key.
func (d Desired) Get(key string) (domain.Value, bool) {
	for _, e := range d.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return domain.Value{}, false
}

// Entries returns the entries in order.
func (d Desired) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

func (d Desired) Len() int {
	return len(d.entries)
}

// Class returns the desired class, or DefaultClass when unset.
func (d Desired) Class() domain.Class {
	if v, ok := d.Get(domain.AttrClass); ok {
		if c, err := domain.ParseClass(v.AsString()); err == nil {
			return c
		}
	}
	return DefaultClass
}

func (d Desired) Autostart() bool {
	v, ok := d.Get(domain.AttrAutostart)
	return ok && v.AsBool()
}

// Label returns the desired label, or DefaultLabel when unset.
func (d Desired) Label() string {
	if v, ok := d.Get(domain.AttrLabel); ok && v.AsString() != "" {
		return v.AsString()
	}
	return DefaultLabel
}

func (d Desired) String() string {
	s := "{"
	for i, e := range d.entries {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s: %s", e.Key, e.Value)
	}
	return s + "}"
}
