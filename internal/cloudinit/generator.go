// Package cloudinit builds the NoCloud seed ISO attached to new domains.
//
// The seed sets the hostname and installs and enables qemu-guest-agent,
// which is how hexagon runs commands inside a domain.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const guestAgentPackage = "qemu-guest-agent"

// UserData is the cloud-config user-data document.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname string     `yaml:"hostname"`
	Packages []string   `yaml:"packages,omitempty"`
	RunCmd   [][]string `yaml:"runcmd,omitempty"`
	Output   *Output    `yaml:"output,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the NoCloud meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// GenerateUserData returns the user-data file, including its "#cloud-config"
// header, for a domain called name.
func GenerateUserData(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("domain name cannot be empty")
	}

	userData := UserData{
		Hostname: name,
		Packages: []string{guestAgentPackage},
		RunCmd: [][]string{
			{"systemctl", "enable", "--now", guestAgentPackage},
		},
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	out, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}
	return "#cloud-config\n" + string(out), nil
}

// GenerateMetaData returns the meta-data file. The instance-id is the domain
// name, so a domain removed and created again under the same name is not
// treated as a first boot.
func GenerateMetaData(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("domain name cannot be empty")
	}

	out, err := yaml.Marshal(&MetaData{InstanceID: name, LocalHostname: name})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}
	return string(out), nil
}
