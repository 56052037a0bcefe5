package libvirt

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/hexagon/internal/metadata"
	"github.com/jbweber/hexagon/internal/storage"
)

// fakeDomain is one domain held by mockLibvirtClient.
type fakeDomain struct {
	dom       libvirt.Domain
	xml       string
	state     libvirt.DomainState
	autostart int32
	metadata  string
}

// mockLibvirtClient is an in-memory libvirtd. Domain definitions round-trip
// through libvirtxml so XML edits are observable.
type mockLibvirtClient struct {
	mu      sync.Mutex
	domains map[string]*fakeDomain

	agentFunc      func(cmd string) (string, error)
	defineErr      error
	createErr      error
	setMetadataErr error
	destroyErr     error

	calls []string
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{domains: map[string]*fakeDomain{}}
}

func (m *mockLibvirtClient) record(format string, args ...any) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls.
func (m *mockLibvirtClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// addDomain defines a domain from raw XML with the given state and
// metadata properties. props may be nil.
func (m *mockLibvirtClient) addDomain(xml string, state libvirt.DomainState, props *metadata.Properties) {
	var def libvirtxml.Domain
	if err := def.Unmarshal(xml); err != nil {
		panic(err)
	}
	fd := &fakeDomain{dom: libvirt.Domain{Name: def.Name}, xml: xml, state: state}
	m.mu.Lock()
	m.domains[def.Name] = fd
	m.mu.Unlock()
	if props != nil {
		if err := metadata.Store(m, fd.dom, props); err != nil {
			panic(err)
		}
	}
}

func (m *mockLibvirtClient) get(name string) *fakeDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.domains[name]
}

func (m *mockLibvirtClient) lookup(dom libvirt.Domain) (*fakeDomain, error) {
	fd, ok := m.domains[dom.Name]
	if !ok {
		return nil, libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "domain not found: " + dom.Name}
	}
	return fd, nil
}

func (m *mockLibvirtClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd, err := m.lookup(libvirt.Domain{Name: name})
	if err != nil {
		return libvirt.Domain{}, err
	}
	return fd.dom, nil
}

func (m *mockLibvirtClient) ConnectListAllDomains(_ int32, _ libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []libvirt.Domain
	for _, fd := range m.domains {
		out = append(out, fd.dom)
	}
	return out, uint32(len(out)), nil
}

func (m *mockLibvirtClient) DomainDefineXML(xml string) (libvirt.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defineErr != nil {
		return libvirt.Domain{}, m.defineErr
	}
	var def libvirtxml.Domain
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, err
	}
	m.record("define %s", def.Name)
	if fd, ok := m.domains[def.Name]; ok {
		fd.xml = xml
		return fd.dom, nil
	}
	fd := &fakeDomain{dom: libvirt.Domain{Name: def.Name}, xml: xml, state: libvirt.DomainShutoff}
	m.domains[def.Name] = fd
	return fd.dom, nil
}

func (m *mockLibvirtClient) DomainGetXMLDesc(dom libvirt.Domain, _ libvirt.DomainXMLFlags) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd, err := m.lookup(dom)
	if err != nil {
		return "", err
	}
	return fd.xml, nil
}

func (m *mockLibvirtClient) DomainUndefineFlags(dom libvirt.Domain, _ libvirt.DomainUndefineFlagsValues) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(dom); err != nil {
		return err
	}
	m.record("undefine %s", dom.Name)
	delete(m.domains, dom.Name)
	return nil
}

func (m *mockLibvirtClient) DomainGetState(dom libvirt.Domain, _ uint32) (int32, int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd, err := m.lookup(dom)
	if err != nil {
		return 0, 0, err
	}
	return int32(fd.state), 0, nil
}

func (m *mockLibvirtClient) DomainGetAutostart(dom libvirt.Domain) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd, err := m.lookup(dom)
	if err != nil {
		return 0, err
	}
	return fd.autostart, nil
}

func (m *mockLibvirtClient) DomainSetAutostart(dom libvirt.Domain, autostart int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd, err := m.lookup(dom)
	if err != nil {
		return err
	}
	fd.autostart = autostart
	return nil
}

func (m *mockLibvirtClient) DomainCreate(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create %s", dom.Name)
	if m.createErr != nil {
		return m.createErr
	}
	fd, err := m.lookup(dom)
	if err != nil {
		return err
	}
	fd.state = libvirt.DomainRunning
	return nil
}

func (m *mockLibvirtClient) DomainShutdown(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("shutdown %s", dom.Name)
	fd, err := m.lookup(dom)
	if err != nil {
		return err
	}
	fd.state = libvirt.DomainShutdown
	return nil
}

func (m *mockLibvirtClient) DomainDestroy(dom libvirt.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("destroy %s", dom.Name)
	if m.destroyErr != nil {
		return m.destroyErr
	}
	fd, err := m.lookup(dom)
	if err != nil {
		return err
	}
	fd.state = libvirt.DomainShutoff
	return nil
}

func (m *mockLibvirtClient) DomainSetMetadata(dom libvirt.Domain, _ int32, md libvirt.OptString, _ libvirt.OptString, _ libvirt.OptString, _ libvirt.DomainModificationImpact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setMetadataErr != nil {
		return m.setMetadataErr
	}
	fd, err := m.lookup(dom)
	if err != nil {
		return err
	}
	fd.metadata = md[0]
	return nil
}

func (m *mockLibvirtClient) DomainGetMetadata(dom libvirt.Domain, _ int32, _ libvirt.OptString, _ libvirt.DomainModificationImpact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fd, err := m.lookup(dom)
	if err != nil {
		return "", err
	}
	if fd.metadata == "" {
		return "", libvirt.Error{Code: uint32(libvirt.ErrNoDomainMetadata), Message: "metadata not found"}
	}
	return fd.metadata, nil
}

func (m *mockLibvirtClient) QEMUDomainAgentCommand(_ libvirt.Domain, cmd string, _ int32, _ uint32) (libvirt.OptString, error) {
	if m.agentFunc == nil {
		return nil, fmt.Errorf("guest agent is not connected")
	}
	out, err := m.agentFunc(cmd)
	if err != nil {
		return nil, err
	}
	return libvirt.OptString{out}, nil
}

// mockStorage tracks volumes by name in a single pool.
type mockStorage struct {
	mu         sync.Mutex
	volumes    map[string]bool
	modified   map[string]time.Time
	createErr  map[string]error
	overlayErr error

	calls []string
}

func newMockStorage() *mockStorage {
	return &mockStorage{
		volumes:   map[string]bool{},
		modified:  map[string]time.Time{},
		createErr: map[string]error{},
	}
}

func (s *mockStorage) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *mockStorage) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *mockStorage) has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumes[name]
}

func (s *mockStorage) EnsureDefaultPool(context.Context) error {
	return nil
}

func (s *mockStorage) VolumeExists(_ context.Context, _, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumes[name], nil
}

func (s *mockStorage) CreateVolume(_ context.Context, _ string, spec storage.VolumeSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create %s", spec.Name)
	if err := s.createErr[spec.Name]; err != nil {
		return err
	}
	s.volumes[spec.Name] = true
	return nil
}

func (s *mockStorage) WriteVolumeData(_ context.Context, _, name string, r io.Reader, length uint64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("write %s %d/%d", name, len(data), length)
	return nil
}

func (s *mockStorage) ReplaceOverlay(_ context.Context, _, name, backing string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("overlay %s on %s", name, backing)
	if s.overlayErr != nil {
		return s.overlayErr
	}
	s.volumes[name] = true
	return nil
}

func (s *mockStorage) DeleteVolumesWithPrefix(_ context.Context, _, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete %s*", prefix)
	n := 0
	for name := range s.volumes {
		if strings.HasPrefix(name, prefix) {
			delete(s.volumes, name)
			n++
		}
	}
	return n, nil
}

func (s *mockStorage) VolumeTimestamps(_ context.Context, _, name string) (*storage.Timestamps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.volumes[name] {
		return nil, fmt.Errorf("volume not found: %s", name)
	}
	return &storage.Timestamps{Modified: s.modified[name]}, nil
}

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestDirectory(api *mockLibvirtClient, sm *mockStorage) *Directory {
	d := newDirectory(api, sm, logr.Discard())
	d.now = func() time.Time { return testNow }
	d.AgentPollInterval = time.Millisecond
	d.AgentTimeout = time.Second
	return d
}

// domainXML returns a minimal definition.
func domainXML(name string) string {
	return `<domain type="kvm"><name>` + name + `</name>` +
		`<memory unit="KiB">4096000</memory><currentMemory unit="KiB">409600</currentMemory>` +
		`<vcpu placement="static">2</vcpu><os><type arch="x86_64">hvm</type></os></domain>`
}
