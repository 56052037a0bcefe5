package cloudinit

import (
	"slices"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestGenerateUserData(t *testing.T) {
	content, err := GenerateUserData("work")
	if err != nil {
		t.Fatalf("GenerateUserData() error = %v", err)
	}
	if !strings.HasPrefix(content, "#cloud-config\n") {
		t.Fatal("user-data must start with '#cloud-config'")
	}

	var userData UserData
	if err := yaml.Unmarshal([]byte(strings.TrimPrefix(content, "#cloud-config\n")), &userData); err != nil {
		t.Fatalf("failed to parse user-data YAML: %v", err)
	}
	if userData.Hostname != "work" {
		t.Errorf("hostname = %q, want work", userData.Hostname)
	}
	if !slices.Contains(userData.Packages, "qemu-guest-agent") {
		t.Errorf("packages = %v, want qemu-guest-agent", userData.Packages)
	}
	if len(userData.RunCmd) != 1 || !slices.Equal(userData.RunCmd[0], []string{"systemctl", "enable", "--now", "qemu-guest-agent"}) {
		t.Errorf("runcmd = %v", userData.RunCmd)
	}
}

func TestGenerateMetaData(t *testing.T) {
	content, err := GenerateMetaData("work")
	if err != nil {
		t.Fatalf("GenerateMetaData() error = %v", err)
	}

	var metaData MetaData
	if err := yaml.Unmarshal([]byte(content), &metaData); err != nil {
		t.Fatalf("failed to parse meta-data YAML: %v", err)
	}
	if metaData.InstanceID != "work" || metaData.LocalHostname != "work" {
		t.Errorf("meta-data = %+v", metaData)
	}
}

func TestGenerate_EmptyName(t *testing.T) {
	if _, err := GenerateUserData(""); err == nil {
		t.Error("GenerateUserData(\"\") error = nil")
	}
	if _, err := GenerateMetaData(""); err == nil {
		t.Error("GenerateMetaData(\"\") error = nil")
	}
}
