package cloudinit

import (
	"bytes"
	"io"
	"testing"

	"github.com/kdomanski/iso9660"
)

func TestGenerateISO(t *testing.T) {
	isoBytes, err := GenerateISO("work")
	if err != nil {
		t.Fatalf("GenerateISO() error = %v", err)
	}

	img, err := iso9660.OpenImage(bytes.NewReader(isoBytes))
	if err != nil {
		t.Fatalf("failed to open ISO image: %v", err)
	}

	label, err := img.Label()
	if err != nil {
		t.Fatalf("failed to get volume label: %v", err)
	}
	if label != VolumeLabel {
		t.Errorf("label = %q, want %q", label, VolumeLabel)
	}

	root, err := img.RootDir()
	if err != nil {
		t.Fatalf("failed to get root directory: %v", err)
	}
	children, err := root.GetChildren()
	if err != nil {
		t.Fatalf("failed to get children: %v", err)
	}
	if len(children) != 2 {
		t.Errorf("ISO contains %d files, want 2", len(children))
	}

	want := map[string]func(string) (string, error){
		"user-data": GenerateUserData,
		"meta-data": GenerateMetaData,
	}
	for _, child := range children {
		gen, ok := want[child.Name()]
		if !ok {
			t.Errorf("unexpected file %q", child.Name())
			continue
		}
		content, err := io.ReadAll(child.Reader())
		if err != nil {
			t.Fatalf("failed to read %s: %v", child.Name(), err)
		}
		expected, _ := gen("work")
		if string(content) != expected {
			t.Errorf("%s content mismatch:\ngot:\n%s\nwant:\n%s", child.Name(), content, expected)
		}
		delete(want, child.Name())
	}
	for name := range want {
		t.Errorf("required file %q not found in ISO", name)
	}
}

func TestGenerateISO_EmptyName(t *testing.T) {
	if _, err := GenerateISO(""); err == nil {
		t.Error("GenerateISO(\"\") error = nil")
	}
}
