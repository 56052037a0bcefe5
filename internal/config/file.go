package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/hexagon/internal/domain"
)

const (
	// DefaultPath is where the desired configuration is read from unless
	// overridden.
	DefaultPath = "/etc/hexagon/domains.yaml"

	// DefaultsKey is the reserved entry merged beneath every domain.
	DefaultsKey = "_defaults"
)

// File is a parsed desired-configuration file:
//
//	_defaults:
//	  template: fedora-42
//	  netvm: sys-firewall
//	work:
//	  label: blue
//	  vcpus: 4
//	sys-firewall:
//	  provides_network: true
//	  autostart: true
type File struct {
	defaults Desired
	names    []string
	domains  map[string]Desired
}

// LoadFromFile loads a desired-configuration file.
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return f, nil
}

// Parse parses a desired-configuration document.
func Parse(data []byte) (*File, error) {
	f := &File{
		defaults: Defaults(),
		domains:  make(map[string]Desired),
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return f, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping of domain names", root.Line)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value
		if name == "" {
			return nil, fmt.Errorf("line %d: empty domain name", keyNode.Line)
		}

		desired, err := parseDomain(valueNode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		if name == DefaultsKey {
			f.defaults = f.defaults.Merge(desired)
			continue
		}
		if _, dup := f.domains[name]; dup {
			return nil, fmt.Errorf("line %d: domain %s declared twice", keyNode.Line, name)
		}
		f.names = append(f.names, name)
		f.domains[name] = desired
	}

	return f, nil
}

func parseDomain(node *yaml.Node) (Desired, error) {
	var d Desired
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return d, nil
	}
	if node.Kind != yaml.MappingNode {
		return d, fmt.Errorf("line %d: expected a mapping of attributes", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if valueNode.Kind != yaml.ScalarNode {
			return d, fmt.Errorf("line %d: %s must be a scalar", valueNode.Line, keyNode.Value)
		}

		var raw any
		if err := valueNode.Decode(&raw); err != nil {
			return d, fmt.Errorf("line %d: %w", valueNode.Line, err)
		}

		v, err := domain.ValueOf(keyNode.Value, raw)
		if err != nil {
			return d, fmt.Errorf("line %d: %w", valueNode.Line, err)
		}
		if _, dup := d.Get(keyNode.Value); dup {
			return d, fmt.Errorf("line %d: %s set twice", keyNode.Line, keyNode.Value)
		}
		d = d.With(keyNode.Value, v)
	}
	return d, nil
}

// Names returns the declared domain names in file order.
func (f *File) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Has reports whether name is declared in the file.
func (f *File) Has(name string) bool {
	_, ok := f.domains[name]
	return ok
}

// Defaults returns the built-in defaults merged with the _defaults entry.
func (f *File) Defaults() Desired {
	return f.defaults
}

// Desired returns the full desired configuration for name. Undeclared names
// get the defaults.
func (f *File) Desired(name string) Desired {
	return f.defaults.Merge(f.domains[name])
}
