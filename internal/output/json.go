package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats domains as JSON.
type JSONFormatter struct{}

// FormatDomain formats a single domain as a JSON object.
func (f *JSONFormatter) FormatDomain(info *DomainInfo) (string, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatDomainList formats domains as a JSON array.
func (f *JSONFormatter) FormatDomainList(infos []*DomainInfo) (string, error) {
	if len(infos) == 0 {
		return "[]\n", nil
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal domains to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
