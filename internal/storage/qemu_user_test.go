package storage

import (
	"errors"
	"os/user"
	"strings"
	"testing"
)

func TestParseQEMUConf(t *testing.T) {
	tests := []struct {
		name      string
		conf      string
		wantUser  string
		wantGroup string
	}{
		{"double quotes", "user = \"qemu\"\ngroup = \"kvm\"\n", "qemu", "kvm"},
		{"single quotes", "user = 'libvirt-qemu'\ngroup = 'kvm'\n", "libvirt-qemu", "kvm"},
		{"commented out", "#user = \"root\"\n# group = \"root\"\n", "", ""},
		{"unrelated keys", "user_namespace = 1\ngroups = \"x\"\nuser=\"qemu\"\n", "qemu", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, g := parseQEMUConf(strings.NewReader(tt.conf))
			if u != tt.wantUser || g != tt.wantGroup {
				t.Errorf("parseQEMUConf() = %q, %q, want %q, %q", u, g, tt.wantUser, tt.wantGroup)
			}
		})
	}
}

func TestResolveQEMUUserGroup(t *testing.T) {
	users := map[string]*user.User{
		"qemu":       {Uid: "107", Gid: "107"},
		"hypervisor": {Uid: "900", Gid: "900"},
	}
	groups := map[string]*user.Group{"kvm": {Gid: "36"}}
	lookupUser := func(name string) (*user.User, error) {
		if u, ok := users[name]; ok {
			return u, nil
		}
		return nil, errors.New("unknown user")
	}
	lookupGroup := func(name string) (*user.Group, error) {
		if g, ok := groups[name]; ok {
			return g, nil
		}
		return nil, errors.New("unknown group")
	}
	noUsers := func(string) (*user.User, error) { return nil, errors.New("unknown user") }

	tests := []struct {
		name       string
		user       string
		group      string
		lookupUser func(string) (*user.User, error)
		wantUID    string
		wantGID    string
		wantErr    bool
	}{
		{"configured user and group", "hypervisor", "kvm", lookupUser, "900", "36", false},
		{"configured user unknown group", "hypervisor", "wheel", lookupUser, "900", "900", false},
		{"configured user missing", "ghost", "", lookupUser, "107", "107", false},
		{"nothing configured", "", "", lookupUser, "107", "107", false},
		{"fallback", "", "", noUsers, "107", "107", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, gid, err := resolveQEMUUserGroup(tt.user, tt.group, tt.lookupUser, lookupGroup)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if uid != tt.wantUID || gid != tt.wantGID {
				t.Errorf("got %s/%s, want %s/%s", uid, gid, tt.wantUID, tt.wantGID)
			}
		})
	}
}

func TestGetQEMUUserGroup(t *testing.T) {
	uid, gid, err := GetQEMUUserGroup()
	if uid == "" || gid == "" {
		t.Fatalf("GetQEMUUserGroup() = %q, %q, %v; want ids even on error", uid, gid, err)
	}

	// Cached.
	uid2, gid2, err2 := GetQEMUUserGroup()
	if uid2 != uid || gid2 != gid || (err2 == nil) != (err == nil) {
		t.Errorf("second call = %q, %q, %v; want %q, %q, %v", uid2, gid2, err2, uid, gid, err)
	}
}
