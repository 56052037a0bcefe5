package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Attribute names.
const (
	AttrAutostart       = "autostart"
	AttrClass           = "class"
	AttrKernel          = "kernel"
	AttrLabel           = "label"
	AttrMaxMem          = "maxmem"
	AttrMemory          = "memory"
	AttrNetVM           = "netvm"
	AttrProvidesNetwork = "provides_network"
	AttrTemplate        = "template"
	AttrVCPUs           = "vcpus"
	AttrVirtMode        = "virt_mode"
)

// Virtualization modes accepted for virt_mode.
const (
	VirtModeHVM = "hvm"
	VirtModePV  = "pv"
	VirtModePVH = "pvh"
)

// Kind is the type of an attribute value.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindInt
	// KindDomainRef names another domain. The empty name means none.
	KindDomainRef
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDomainRef:
		return "domain"
	default:
		return "string"
	}
}

var attributeKinds = map[string]Kind{
	AttrAutostart:       KindBool,
	AttrClass:           KindString,
	AttrKernel:          KindString,
	AttrLabel:           KindString,
	AttrMaxMem:          KindInt,
	AttrMemory:          KindInt,
	AttrNetVM:           KindDomainRef,
	AttrProvidesNetwork: KindBool,
	AttrTemplate:        KindDomainRef,
	AttrVCPUs:           KindInt,
	AttrVirtMode:        KindString,
}

// KindOf returns the kind of a known attribute.
func KindOf(attr string) (Kind, error) {
	k, ok := attributeKinds[attr]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedAttribute, attr)
	}
	return k, nil
}

// Value is a typed attribute value.
type Value struct {
	kind Kind
	s    string
	b    bool
	i    int
}

func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, b: b} }
func IntValue(i int) Value       { return Value{kind: KindInt, i: i} }

// RefValue references a domain by name. "" and "none" mean no domain.
func RefValue(name string) Value {
	if strings.EqualFold(name, "none") {
		name = ""
	}
	return Value{kind: KindDomainRef, s: name}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsString() string { return v.s }
func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int       { return v.i }
func (v Value) AsRef() string    { return v.s }

// String returns the normalized form used when comparing against a live
// domain's Property.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.Itoa(v.i)
	default:
		return v.s
	}
}

// ParseValue converts a raw string into the kind required by attr.
func ParseValue(attr, raw string) (Value, error) {
	kind, err := KindOf(attr)
	if err != nil {
		return Value{}, err
	}
	raw = strings.TrimSpace(raw)

	switch kind {
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidValue, attr, raw)
		}
		return BoolValue(b), nil
	case KindInt:
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 {
			return Value{}, fmt.Errorf("%w: %s=%q is not a non-negative integer", ErrInvalidValue, attr, raw)
		}
		return IntValue(i), nil
	case KindDomainRef:
		return RefValue(raw), nil
	}

	if err := validateString(attr, raw); err != nil {
		return Value{}, err
	}
	return StringValue(raw), nil
}

// ValueOf converts a decoded YAML scalar into the kind required by attr.
func ValueOf(attr string, raw any) (Value, error) {
	kind, err := KindOf(attr)
	if err != nil {
		return Value{}, err
	}

	switch r := raw.(type) {
	case nil:
		if kind == KindDomainRef {
			return RefValue(""), nil
		}
		return Value{}, fmt.Errorf("%w: %s may not be empty", ErrInvalidValue, attr)
	case bool:
		if kind != KindBool {
			return Value{}, fmt.Errorf("%w: %s expects %s, got boolean", ErrInvalidValue, attr, kind)
		}
		return BoolValue(r), nil
	case int:
		if kind != KindInt {
			return Value{}, fmt.Errorf("%w: %s expects %s, got integer", ErrInvalidValue, attr, kind)
		}
		if r < 0 {
			return Value{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, attr)
		}
		return IntValue(r), nil
	case string:
		return ParseValue(attr, r)
	}
	return Value{}, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidValue, attr, raw)
}

func validateString(attr, s string) error {
	switch attr {
	case AttrClass:
		_, err := ParseClass(s)
		return err
	case AttrVirtMode:
		switch s {
		case VirtModeHVM, VirtModePV, VirtModePVH:
			return nil
		}
		return fmt.Errorf("%w: virt_mode must be one of hvm, pv, pvh, got %q", ErrInvalidValue, s)
	case AttrLabel:
		if s == "" {
			return fmt.Errorf("%w: label may not be empty", ErrInvalidValue)
		}
	}
	return nil
}
