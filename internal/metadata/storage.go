// Package metadata keeps the domain properties libvirt has no native field
// for. They are stored as YAML inside a custom metadata element of the
// domain XML, so they live and die with the domain definition.
package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/digitalocean/go-libvirt"
	"gopkg.in/yaml.v3"
)

const (
	// Namespace is the XML namespace of the hexagon metadata element.
	Namespace = "http://hexagon.jbweber.github.io/v1"

	// Key is the namespace prefix libvirt writes the element under.
	Key = "hexagon"
)

// Client is the subset of libvirt calls needed to read and write metadata.
type Client interface {
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)
}

// Properties are the hexagon-only attributes of a domain.
type Properties struct {
	Class           string            `yaml:"class,omitempty"`
	Label           string            `yaml:"label,omitempty"`
	Template        string            `yaml:"template,omitempty"`
	NetVM           string            `yaml:"netvm,omitempty"`
	ProvidesNetwork bool              `yaml:"provides_network,omitempty"`
	VirtMode        string            `yaml:"virt_mode,omitempty"`
	Tags            []string          `yaml:"tags,omitempty"`
	Features        map[string]string `yaml:"features,omitempty"`
	StartTime       time.Time         `yaml:"start_time,omitempty"`
}

// Clone returns a deep copy.
func (p *Properties) Clone() *Properties {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	c.Features = maps.Clone(p.Features)
	return &c
}

// element is the XML wrapper around the YAML payload.
type element struct {
	XMLName xml.Name `xml:"properties"`
	Xmlns   string   `xml:"xmlns,attr"`
	YAML    string   `xml:",chardata"`
}

// Store replaces the domain's hexagon metadata with props.
func Store(c Client, dom libvirt.Domain, props *Properties) error {
	yamlData, err := yaml.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to marshal properties to YAML: %w", err)
	}

	xmlData, err := xml.Marshal(element{Xmlns: Namespace, YAML: string(yamlData)})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata to XML: %w", err)
	}

	err = c.DomainSetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{string(xmlData)},
		libvirt.OptString{Key},
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to set libvirt domain metadata: %w", err)
	}
	return nil
}

// Load returns the domain's hexagon metadata. A domain without any returns
// empty Properties.
func Load(c Client, dom libvirt.Domain) (*Properties, error) {
	xmlStr, err := c.DomainGetMetadata(
		dom,
		int32(libvirt.DomainMetadataElement),
		libvirt.OptString{Namespace},
		libvirt.DomainAffectConfig,
	)
	if err != nil {
		if isNoMetadata(err) {
			return &Properties{}, nil
		}
		return nil, fmt.Errorf("failed to get libvirt domain metadata: %w", err)
	}

	var el element
	if err := xml.Unmarshal([]byte(xmlStr), &el); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata XML: %w", err)
	}

	props := &Properties{}
	if err := yaml.Unmarshal([]byte(el.YAML), props); err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties from YAML: %w", err)
	}
	return props, nil
}

// Update loads the metadata, applies fn and stores the result.
func Update(c Client, dom libvirt.Domain, fn func(*Properties)) error {
	props, err := Load(c, dom)
	if err != nil {
		return err
	}
	fn(props)
	return Store(c, dom, props)
}

func isNoMetadata(err error) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(libvirt.ErrNoDomainMetadata)
}
