package vm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/jbweber/hexagon/internal/domain"
)

// mockDomain is an in-memory domain.Domain. Mutating calls are recorded in
// calls so tests can assert on ordering and on their absence.
type mockDomain struct {
	mu sync.Mutex

	name      string
	class     domain.Class
	state     domain.PowerState
	props     map[string]string
	clients   []*mockDomain
	volumes   []domain.Volume
	tags      []string
	features  map[string]string
	startTime time.Time

	// Configurable behavior
	shutdownFunc      func(d *mockDomain) error
	killFunc          func(d *mockDomain) error
	startFunc         func(d *mockDomain) error
	runPrivilegedFunc func(d *mockDomain, cmd string) (int, error)
	setErrors         map[string]error

	// Call tracking
	calls      []string
	stateCalls int
}

// newMockDomain creates a halted AppVM with the properties a freshly
// created domain reports.
func newMockDomain(name string) *mockDomain {
	m := &mockDomain{
		name:  name,
		class: domain.ClassApp,
		state: domain.PowerHalted,
		props: map[string]string{
			domain.AttrAutostart:       "false",
			domain.AttrKernel:          "",
			domain.AttrLabel:           "red",
			domain.AttrMaxMem:          "4000",
			domain.AttrMemory:          "400",
			domain.AttrNetVM:           "",
			domain.AttrProvidesNetwork: "false",
			domain.AttrTemplate:        "",
			domain.AttrVCPUs:           "2",
			domain.AttrVirtMode:        "hvm",
		},
		features:  map[string]string{},
		setErrors: map[string]error{},
	}

	// Default: shutdown halts the domain straight away
	m.shutdownFunc = func(d *mockDomain) error {
		d.state = domain.PowerHalted
		return nil
	}

	// Default: kill halts the domain
	m.killFunc = func(d *mockDomain) error {
		d.state = domain.PowerHalted
		return nil
	}

	// Default: start succeeds
	m.startFunc = func(d *mockDomain) error {
		d.state = domain.PowerRunning
		d.startTime = time.Now()
		return nil
	}

	// Default: poweroff halts the domain and the connection drops
	m.runPrivilegedFunc = func(d *mockDomain, cmd string) (int, error) {
		if cmd == PoweroffCommand {
			d.state = domain.PowerHalted
			return 0, errors.New("connection closed")
		}
		return 0, nil
	}

	return m
}

func (m *mockDomain) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockDomain) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockDomain) hasCall(call string) bool {
	for _, c := range m.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (m *mockDomain) Name() string { return m.name }

func (m *mockDomain) Class(context.Context) (domain.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.class, nil
}

func (m *mockDomain) Property(_ context.Context, attr string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if attr == domain.AttrClass {
		return string(m.class), nil
	}
	v, ok := m.props[attr]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedAttribute, attr)
	}
	return v, nil
}

func (m *mockDomain) set(attr, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set " + attr + "=" + value)
	if err := m.setErrors[attr]; err != nil {
		return err
	}
	m.props[attr] = value
	return nil
}

func (m *mockDomain) SetAutostart(_ context.Context, on bool) error {
	return m.set(domain.AttrAutostart, strconv.FormatBool(on))
}
func (m *mockDomain) SetKernel(_ context.Context, k string) error {
	return m.set(domain.AttrKernel, k)
}
func (m *mockDomain) SetLabel(_ context.Context, l string) error {
	return m.set(domain.AttrLabel, l)
}
func (m *mockDomain) SetMaxMem(_ context.Context, n int) error {
	return m.set(domain.AttrMaxMem, strconv.Itoa(n))
}
func (m *mockDomain) SetMemory(_ context.Context, n int) error {
	return m.set(domain.AttrMemory, strconv.Itoa(n))
}
func (m *mockDomain) SetProvidesNetwork(_ context.Context, on bool) error {
	return m.set(domain.AttrProvidesNetwork, strconv.FormatBool(on))
}
func (m *mockDomain) SetTemplate(_ context.Context, t string) error {
	return m.set(domain.AttrTemplate, t)
}
func (m *mockDomain) SetVCPUs(_ context.Context, n int) error {
	return m.set(domain.AttrVCPUs, strconv.Itoa(n))
}
func (m *mockDomain) SetVirtMode(_ context.Context, mode string) error {
	return m.set(domain.AttrVirtMode, mode)
}
func (m *mockDomain) SetNetVM(_ context.Context, n string) error {
	return m.set(domain.AttrNetVM, n)
}

func (m *mockDomain) PowerState(context.Context) (domain.PowerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateCalls++
	return m.state, nil
}

func (m *mockDomain) IsRunning(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == domain.PowerRunning, nil
}

func (m *mockDomain) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("start")
	return m.startFunc(m)
}

func (m *mockDomain) Shutdown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("shutdown")
	return m.shutdownFunc(m)
}

func (m *mockDomain) Kill(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("kill")
	return m.killFunc(m)
}

func (m *mockDomain) RunPrivileged(_ context.Context, cmd string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("run " + cmd)
	return m.runPrivilegedFunc(m, cmd)
}

func (m *mockDomain) StartTime(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime, nil
}

func (m *mockDomain) ConnectedClients(context.Context) ([]domain.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Domain, 0, len(m.clients))
	for _, c := range m.clients {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockDomain) Volumes(context.Context) ([]domain.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumes, nil
}

func (m *mockDomain) Tags(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tags, nil
}

func (m *mockDomain) SetTags(_ context.Context, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set tags")
	m.tags = tags
	return nil
}

func (m *mockDomain) Feature(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.features[key]
	return v, ok, nil
}

func (m *mockDomain) SetFeature(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set feature " + key + "=" + value)
	m.features[key] = value
	return nil
}

// mockVolume is a volume with a fixed outdated answer.
type mockVolume struct {
	name     string
	outdated bool
	err      error
}

func (v *mockVolume) Name() string                             { return v.name }
func (v *mockVolume) IsOutdated(context.Context) (bool, error) { return v.outdated, v.err }

// mockDirectory is an in-memory domain.Directory.
type mockDirectory struct {
	mu      sync.Mutex
	domains map[string]*mockDomain
	order   []string

	// Configurable behavior
	createFunc func(class domain.Class, name, label string) (*mockDomain, error)
	removeErr  error

	// Call tracking
	createCalls []string
	removeCalls []string
}

func newMockDirectory(domains ...*mockDomain) *mockDirectory {
	dir := &mockDirectory{domains: make(map[string]*mockDomain)}
	for _, d := range domains {
		dir.add(d)
	}

	// Default: create defines a halted domain with fresh defaults
	dir.createFunc = func(class domain.Class, name, label string) (*mockDomain, error) {
		d := newMockDomain(name)
		d.class = class
		d.props[domain.AttrLabel] = label
		return d, nil
	}
	return dir
}

func (dir *mockDirectory) add(d *mockDomain) {
	if _, seen := dir.domains[d.name]; !seen && !slices.Contains(dir.order, d.name) {
		dir.order = append(dir.order, d.name)
	}
	dir.domains[d.name] = d
}

func (dir *mockDirectory) Lookup(_ context.Context, name string) (domain.Domain, error) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	d, ok := dir.domains[name]
	if !ok {
		return nil, domain.NotFound(name)
	}
	return d, nil
}

func (dir *mockDirectory) Exists(_ context.Context, name string) (bool, error) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	_, ok := dir.domains[name]
	return ok, nil
}

func (dir *mockDirectory) List(context.Context) ([]domain.Domain, error) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	var out []domain.Domain
	for _, name := range dir.order {
		if d, ok := dir.domains[name]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (dir *mockDirectory) Create(_ context.Context, class domain.Class, name, label string) (domain.Domain, error) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.createCalls = append(dir.createCalls, fmt.Sprintf("%s/%s/%s", class, name, label))
	if _, ok := dir.domains[name]; ok {
		return nil, fmt.Errorf("domain %s already exists", name)
	}
	d, err := dir.createFunc(class, name, label)
	if err != nil {
		return nil, err
	}
	dir.add(d)
	return d, nil
}

func (dir *mockDirectory) Remove(_ context.Context, name string) error {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.removeCalls = append(dir.removeCalls, name)
	if dir.removeErr != nil {
		return dir.removeErr
	}
	if _, ok := dir.domains[name]; !ok {
		return domain.NotFound(name)
	}
	delete(dir.domains, name)
	return nil
}

// mockMetrics counts recorder events.
type mockMetrics struct {
	mu          sync.Mutex
	reconciles  map[string]int
	changes     map[string]int
	escalations map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		reconciles:  map[string]int{},
		changes:     map[string]int{},
		escalations: map[string]int{},
	}
}

func (m *mockMetrics) ReconcileFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciles[outcome]++
}

func (m *mockMetrics) ChangeApplied(attr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes[attr]++
}

func (m *mockMetrics) HaltEscalated(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations[kind]++
}
