package storage

import (
	"fmt"
	"io"
	"sync"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockLibvirtClient is an in-memory LibvirtClient. Pools and volumes are
// created from the XML the Manager generates, which is kept for assertions.
type mockLibvirtClient struct {
	mu      sync.Mutex
	pools   map[string]*mockPool
	volumes map[string]map[string]*mockVolume

	buildErr  error
	createErr error
	uploadErr error

	calls []string
}

type mockPool struct {
	name      string
	state     libvirt.StoragePoolState
	capacity  uint64
	allocated uint64
	available uint64
	xml       string
	refreshes int
}

type mockVolume struct {
	name      string
	path      string
	capacity  uint64
	allocated uint64
	xml       string
	mtime     string
	data      []byte
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		pools:   make(map[string]*mockPool),
		volumes: make(map[string]map[string]*mockVolume),
	}
}

// addPool registers a running pool directly, bypassing define/build/start.
func (m *mockLibvirtClient) addPool(name, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	xml, _ := (&libvirtxml.StoragePool{
		Type:   "dir",
		Name:   name,
		Target: &libvirtxml.StoragePoolTarget{Path: path},
	}).Marshal()
	m.pools[name] = &mockPool{
		name:      name,
		state:     libvirt.StoragePoolRunning,
		capacity:  100 * bytesPerGiB,
		allocated: 40 * bytesPerGiB,
		available: 60 * bytesPerGiB,
		xml:       xml,
	}
	m.volumes[name] = make(map[string]*mockVolume)
}

// addVolume registers a volume directly.
func (m *mockLibvirtClient) addVolume(pool, name, mtime string) *mockVolume {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := &mockVolume{
		name:     name,
		path:     "/pool/" + pool + "/" + name,
		capacity: 20 * bytesPerGiB,
		mtime:    mtime,
	}
	m.volumes[pool][name] = v
	return v
}

func (m *mockLibvirtClient) volume(pool, name string) *mockVolume {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumes[pool][name]
}

func (m *mockLibvirtClient) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool not found: %s", name)
	}
	return libvirt.StoragePool{Name: name, UUID: libvirt.UUID{1, 2, 3, 4}}, nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string, _ uint32) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var def libvirtxml.StoragePool
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StoragePool{}, err
	}
	if _, ok := m.pools[def.Name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", def.Name)
	}
	m.record("define %s", def.Name)
	m.pools[def.Name] = &mockPool{name: def.Name, state: libvirt.StoragePoolInactive, xml: xml}
	m.volumes[def.Name] = make(map[string]*mockVolume)
	return libvirt.StoragePool{Name: def.Name}, nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool, _ libvirt.StoragePoolCreateFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("start %s", pool.Name)
	if m.createErr != nil {
		return m.createErr
	}
	m.pools[pool.Name].state = libvirt.StoragePoolRunning
	return nil
}

func (m *mockLibvirtClient) StoragePoolBuild(pool libvirt.StoragePool, _ libvirt.StoragePoolBuildFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("build %s", pool.Name)
	return m.buildErr
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("autostart %s=%d", pool.Name, autostart)
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("undefine %s", pool.Name)
	delete(m.pools, pool.Name)
	delete(m.volumes, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[pool.Name]
	if !ok {
		return 0, 0, 0, 0, fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	return uint8(p.state), p.capacity, p.allocated, p.available, nil
}

func (m *mockLibvirtClient) StoragePoolGetXMLDesc(pool libvirt.StoragePool, _ libvirt.StorageXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pools[pool.Name].xml, nil
}

func (m *mockLibvirtClient) StoragePoolListAllVolumes(pool libvirt.StoragePool, _ int32, _ uint32) ([]libvirt.StorageVol, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []libvirt.StorageVol
	for name := range m.volumes[pool.Name] {
		out = append(out, libvirt.StorageVol{Pool: pool.Name, Name: name})
	}
	return out, uint32(len(out)), nil
}

func (m *mockLibvirtClient) StoragePoolRefresh(pool libvirt.StoragePool, _ uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[pool.Name].refreshes++
	return nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[pool.Name][name]; !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume not found: %s", name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, _ libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var def libvirtxml.StorageVolume
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StorageVol{}, err
	}
	vols := m.volumes[pool.Name]
	if _, ok := vols[def.Name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", def.Name)
	}
	m.record("create-vol %s", def.Name)
	v := &mockVolume{name: def.Name, path: "/pool/" + pool.Name + "/" + def.Name, xml: xml}
	if def.Capacity != nil {
		v.capacity = def.Capacity.Value
	}
	vols[def.Name] = v
	return libvirt.StorageVol{Pool: pool.Name, Name: def.Name}, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, _ libvirt.StorageVolDeleteFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.volumes[vol.Pool][vol.Name]; !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	m.record("delete-vol %s", vol.Name)
	delete(m.volumes[vol.Pool], vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumes[vol.Pool][vol.Name].path, nil
}

func (m *mockLibvirtClient) StorageVolGetInfo(vol libvirt.StorageVol) (int8, uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.volumes[vol.Pool][vol.Name]
	return 0, v.capacity, v.allocated, nil
}

func (m *mockLibvirtClient) StorageVolGetXMLDesc(vol libvirt.StorageVol, _ uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.volumes[vol.Pool][vol.Name]
	def := &libvirtxml.StorageVolume{
		Name:   v.name,
		Target: &libvirtxml.StorageVolumeTarget{Path: v.path},
	}
	if v.mtime != "" {
		def.Target.Timestamps = &libvirtxml.StorageVolumeTargetTimestamps{
			Atime: v.mtime,
			Mtime: v.mtime,
			Ctime: v.mtime,
		}
	}
	return def.Marshal()
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, r io.Reader, _ uint64, length uint64, _ libvirt.StorageVolUploadFlags) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.volumes[vol.Pool][vol.Name]
	v.data = data
	v.allocated = uint64(len(data))
	return nil
}

func newTestManager(client LibvirtClient) *Manager {
	return &Manager{
		client: client,
		owner:  func() (string, string, error) { return "107", "36", nil },
	}
}
