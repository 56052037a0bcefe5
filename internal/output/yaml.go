package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats domains as YAML.
type YAMLFormatter struct{}

// FormatDomain formats a single domain as YAML.
func (f *YAMLFormatter) FormatDomain(info *DomainInfo) (string, error) {
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to YAML: %w", err)
	}
	return string(data), nil
}

// FormatDomainList formats domains as a YAML stream, one document each.
func (f *YAMLFormatter) FormatDomainList(infos []*DomainInfo) (string, error) {
	var buf bytes.Buffer
	for i, info := range infos {
		data, err := yaml.Marshal(info)
		if err != nil {
			return "", fmt.Errorf("failed to marshal domain %s to YAML: %w", info.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}
