package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	libvirtxml "libvirt.org/go/libvirtxml"
)

func TestManager_EnsurePool(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*mockLibvirtClient)
		wantCalls []string
	}{
		{
			name:  "creates missing pool",
			setup: func(*mockLibvirtClient) {},
			wantCalls: []string{
				"define hexagon",
				"build hexagon",
				"start hexagon",
				"autostart hexagon=1",
			},
		},
		{
			name: "leaves existing pool alone",
			setup: func(m *mockLibvirtClient) {
				m.addPool(DefaultPool, DefaultPoolPath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockLibvirtClient()
			tt.setup(client)
			mgr := newTestManager(client)

			if err := mgr.EnsureDefaultPool(context.Background()); err != nil {
				t.Fatalf("EnsureDefaultPool() error = %v", err)
			}
			if !slices.Equal(client.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", client.calls, tt.wantCalls)
			}
			if _, err := client.StoragePoolLookupByName(DefaultPool); err != nil {
				t.Errorf("pool missing after EnsureDefaultPool(): %v", err)
			}
		})
	}
}

func TestManager_CreatePool_UndefinesOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockLibvirtClient)
	}{
		{"build fails", func(m *mockLibvirtClient) { m.buildErr = errors.New("mkdir denied") }},
		{"start fails", func(m *mockLibvirtClient) { m.createErr = errors.New("start denied") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockLibvirtClient()
			tt.setup(client)
			mgr := newTestManager(client)

			err := mgr.CreatePool(context.Background(), "p", PoolTypeDir, "/tmp/p")
			if err == nil {
				t.Fatal("CreatePool() error = nil, want error")
			}
			if !slices.Contains(client.calls, "undefine p") {
				t.Errorf("pool was not undefined, calls = %v", client.calls)
			}
			if _, err := client.StoragePoolLookupByName("p"); err == nil {
				t.Error("pool still defined after failed create")
			}
		})
	}
}

func TestManager_CreatePool_UnsupportedType(t *testing.T) {
	mgr := newTestManager(newMockLibvirtClient())
	err := mgr.CreatePool(context.Background(), "p", PoolType("logical"), "/dev/vg")
	if err == nil || !strings.Contains(err.Error(), "unsupported pool type") {
		t.Errorf("CreatePool() error = %v, want unsupported pool type", err)
	}
}

func TestManager_GetPoolInfo(t *testing.T) {
	client := newMockLibvirtClient()
	client.addPool(DefaultPool, DefaultPoolPath)
	mgr := newTestManager(client)

	info, err := mgr.GetPoolInfo(context.Background(), DefaultPool)
	if err != nil {
		t.Fatalf("GetPoolInfo() error = %v", err)
	}
	if info.Path != DefaultPoolPath {
		t.Errorf("Path = %q, want %q", info.Path, DefaultPoolPath)
	}
	if info.Type != PoolTypeDir {
		t.Errorf("Type = %q, want dir", info.Type)
	}
	if info.State != "running" {
		t.Errorf("State = %q, want running", info.State)
	}
	if info.CapacityGB() != 100 || info.AvailableGB() != 60 || info.AllocationGB() != 40 {
		t.Errorf("sizes = %v/%v/%v GB", info.CapacityGB(), info.AllocationGB(), info.AvailableGB())
	}
	if info.UUID == "" {
		t.Error("UUID is empty")
	}
}

func TestManager_GetPoolInfo_Missing(t *testing.T) {
	mgr := newTestManager(newMockLibvirtClient())
	if _, err := mgr.GetPoolInfo(context.Background(), "nope"); err == nil {
		t.Error("GetPoolInfo() error = nil, want error")
	}
}

func TestGenerateDirPoolXML(t *testing.T) {
	out, err := generateDirPoolXML("hexagon", "/srv/hexagon", "107", "36")
	if err != nil {
		t.Fatalf("generateDirPoolXML() error = %v", err)
	}
	if strings.HasPrefix(out, "<?xml") {
		t.Error("XML header was not stripped")
	}

	var def libvirtxml.StoragePool
	if err := def.Unmarshal(out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if def.Type != "dir" || def.Name != "hexagon" {
		t.Errorf("pool = %s/%s, want dir/hexagon", def.Type, def.Name)
	}
	perms := def.Target.Permissions
	if perms.Owner != "107" || perms.Group != "36" || perms.Mode != "0755" {
		t.Errorf("permissions = %+v", perms)
	}
}
