package libvirt

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/metadata"
	"github.com/jbweber/hexagon/internal/naming"
)

// Machine is a libvirt domain seen through domain.Domain. Attributes with a
// native libvirt field live in the domain XML; the rest live in hexagon
// metadata.
type Machine struct {
	dir *Directory
	dom libvirt.Domain
}

var _ domain.Domain = (*Machine)(nil)

func (m *Machine) Name() string {
	return m.dom.Name
}

func (m *Machine) properties() (*metadata.Properties, error) {
	return metadata.Load(m.dir.api, m.dom)
}

func (m *Machine) updateProperties(fn func(*metadata.Properties)) error {
	return metadata.Update(m.dir.api, m.dom, fn)
}

// Class returns the stored class. Domains hexagon did not create are
// standalone.
func (m *Machine) Class(_ context.Context) (domain.Class, error) {
	props, err := m.properties()
	if err != nil {
		return "", err
	}
	return classOf(props)
}

func classOf(props *metadata.Properties) (domain.Class, error) {
	if props.Class == "" {
		return domain.ClassStandalone, nil
	}
	return domain.ParseClass(props.Class)
}

func (m *Machine) definition() (*libvirtxml.Domain, error) {
	xml, err := m.dir.api.DomainGetXMLDesc(m.dom, libvirt.DomainXMLInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to get domain XML: %w", err)
	}
	def := &libvirtxml.Domain{}
	if err := def.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	return def, nil
}

// redefine edits the persistent definition. Running domains pick the
// change up on their next start.
func (m *Machine) redefine(edit func(*libvirtxml.Domain)) error {
	def, err := m.definition()
	if err != nil {
		return err
	}
	edit(def)
	xml, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal domain XML: %w", err)
	}
	if _, err := m.dir.api.DomainDefineXML(xml); err != nil {
		return fmt.Errorf("failed to redefine domain: %w", err)
	}
	return nil
}

// Property returns the normalized string form of attr.
func (m *Machine) Property(ctx context.Context, attr string) (string, error) {
	switch attr {
	case domain.AttrAutostart:
		on, err := m.dir.api.DomainGetAutostart(m.dom)
		if err != nil {
			return "", fmt.Errorf("failed to get autostart: %w", err)
		}
		return strconv.FormatBool(on == 1), nil

	case domain.AttrClass:
		c, err := m.Class(ctx)
		return string(c), err

	case domain.AttrKernel, domain.AttrMaxMem, domain.AttrMemory, domain.AttrVCPUs:
		def, err := m.definition()
		if err != nil {
			return "", err
		}
		return xmlProperty(def, attr)

	case domain.AttrLabel, domain.AttrNetVM, domain.AttrProvidesNetwork, domain.AttrTemplate, domain.AttrVirtMode:
		props, err := m.properties()
		if err != nil {
			return "", err
		}
		return metadataProperty(props, attr), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedAttribute, attr)
}

func xmlProperty(def *libvirtxml.Domain, attr string) (string, error) {
	switch attr {
	case domain.AttrKernel:
		if def.OS == nil {
			return "", nil
		}
		return def.OS.Kernel, nil
	case domain.AttrMaxMem:
		mib, err := memoryMiB(def)
		return strconv.Itoa(mib), err
	case domain.AttrMemory:
		mib, err := currentMemoryMiB(def)
		return strconv.Itoa(mib), err
	case domain.AttrVCPUs:
		if def.VCPU == nil {
			return "1", nil
		}
		return strconv.FormatUint(uint64(def.VCPU.Value), 10), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedAttribute, attr)
}

func metadataProperty(props *metadata.Properties, attr string) string {
	switch attr {
	case domain.AttrLabel:
		return props.Label
	case domain.AttrNetVM:
		return props.NetVM
	case domain.AttrProvidesNetwork:
		return strconv.FormatBool(props.ProvidesNetwork)
	case domain.AttrTemplate:
		return props.Template
	case domain.AttrVirtMode:
		if props.VirtMode == "" {
			return domain.VirtModeHVM
		}
		return props.VirtMode
	}
	return ""
}

func (m *Machine) SetAutostart(_ context.Context, on bool) error {
	var v int32
	if on {
		v = 1
	}
	if err := m.dir.api.DomainSetAutostart(m.dom, v); err != nil {
		return fmt.Errorf("failed to set autostart: %w", err)
	}
	return nil
}

func (m *Machine) SetKernel(_ context.Context, kernel string) error {
	return m.redefine(func(def *libvirtxml.Domain) {
		if def.OS == nil {
			def.OS = &libvirtxml.DomainOS{}
		}
		def.OS.Kernel = kernel
	})
}

func (m *Machine) SetMaxMem(_ context.Context, mib int) error {
	if mib <= 0 {
		return fmt.Errorf("%w: maxmem must be positive", domain.ErrInvalidValue)
	}
	return m.redefine(func(def *libvirtxml.Domain) {
		def.Memory = &libvirtxml.DomainMemory{Value: uint(mib), Unit: "MiB"}
	})
}

func (m *Machine) SetMemory(_ context.Context, mib int) error {
	if mib <= 0 {
		return fmt.Errorf("%w: memory must be positive", domain.ErrInvalidValue)
	}
	return m.redefine(func(def *libvirtxml.Domain) {
		def.CurrentMemory = &libvirtxml.DomainCurrentMemory{Value: uint(mib), Unit: "MiB"}
	})
}

func (m *Machine) SetVCPUs(_ context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: vcpus must be positive", domain.ErrInvalidValue)
	}
	return m.redefine(func(def *libvirtxml.Domain) {
		placement := "static"
		if def.VCPU != nil && def.VCPU.Placement != "" {
			placement = def.VCPU.Placement
		}
		def.VCPU = &libvirtxml.DomainVCPU{Placement: placement, Value: uint(n)}
	})
}

func (m *Machine) SetLabel(_ context.Context, label string) error {
	return m.updateProperties(func(p *metadata.Properties) { p.Label = label })
}

func (m *Machine) SetProvidesNetwork(_ context.Context, on bool) error {
	return m.updateProperties(func(p *metadata.Properties) { p.ProvidesNetwork = on })
}

// SetVirtMode records the virtualization mode. KVM domains always run as
// hvm; other modes are kept for bookkeeping only.
func (m *Machine) SetVirtMode(_ context.Context, mode string) error {
	return m.updateProperties(func(p *metadata.Properties) { p.VirtMode = mode })
}

// SetTemplate points the domain at a template, which must be an existing
// TemplateVM. Its root volume is only required when the domain starts.
func (m *Machine) SetTemplate(_ context.Context, template string) error {
	if template != "" {
		if err := m.dir.checkTemplate(template); err != nil {
			return err
		}
	}
	return m.updateProperties(func(p *metadata.Properties) { p.Template = template })
}

// SetNetVM points the domain at a network domain, which must exist.
func (m *Machine) SetNetVM(_ context.Context, netvm string) error {
	if netvm == m.Name() {
		return fmt.Errorf("%w: %s cannot be its own netvm", domain.ErrInvalidValue, netvm)
	}
	if netvm != "" {
		if _, err := m.dir.lookup(netvm); err != nil {
			return err
		}
	}
	return m.updateProperties(func(p *metadata.Properties) { p.NetVM = netvm })
}

// PowerState maps the libvirt state onto domain.PowerState.
func (d *Directory) checkTemplate(name string) error {
	t, err := d.lookup(name)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrTemplateNotFound, name)
	}
	if err != nil {
		return err
	}
	props, err := t.properties()
	if err != nil {
		return err
	}
	class, err := classOf(props)
	if err != nil {
		return err
	}
	if class != domain.ClassTemplate {
		return fmt.Errorf("%w: %s is a %s", domain.ErrTemplateNotFound, name, class)
	}
	return nil
}

func (m *Machine) PowerState(_ context.Context) (domain.PowerState, error) {
	state, _, err := m.dir.api.DomainGetState(m.dom, 0)
	if err != nil {
		return domain.PowerUnknown, fmt.Errorf("failed to get domain state: %w", err)
	}
	return powerState(libvirt.DomainState(state)), nil
}

func powerState(s libvirt.DomainState) domain.PowerState {
	switch s {
	case libvirt.DomainRunning:
		return domain.PowerRunning
	case libvirt.DomainShutoff, libvirt.DomainCrashed:
		return domain.PowerHalted
	case libvirt.DomainPaused, libvirt.DomainBlocked, libvirt.DomainShutdown, libvirt.DomainPmsuspended:
		return domain.PowerTransient
	}
	return domain.PowerUnknown
}

func (m *Machine) IsRunning(ctx context.Context) (bool, error) {
	state, err := m.PowerState(ctx)
	if err != nil {
		return false, err
	}
	return state == domain.PowerRunning, nil
}

// Start boots the domain. Its netvm is started first, and template-based
// domains get a fresh root overlay on their template's root volume.
func (m *Machine) Start(ctx context.Context) error {
	return m.start(ctx, map[string]bool{})
}

func (m *Machine) start(ctx context.Context, seen map[string]bool) error {
	if seen[m.Name()] {
		return fmt.Errorf("netvm loop through %s", m.Name())
	}
	seen[m.Name()] = true

	state, err := m.PowerState(ctx)
	if err != nil {
		return err
	}
	if state != domain.PowerHalted {
		return nil
	}

	props, err := m.properties()
	if err != nil {
		return err
	}
	class, err := classOf(props)
	if err != nil {
		return err
	}
	log := m.dir.log.WithValues("domain", m.Name())

	if class.TemplateBased() {
		if err := m.prepareRoot(ctx, props.Template); err != nil {
			return err
		}
	}

	if props.NetVM != "" {
		netvm, err := m.dir.lookup(props.NetVM)
		if err != nil {
			return fmt.Errorf("failed to find netvm: %w", err)
		}
		log.V(1).Info("Starting netvm", "netvm", props.NetVM)
		if err := netvm.start(ctx, seen); err != nil {
			return fmt.Errorf("failed to start netvm %s: %w", props.NetVM, err)
		}
	}

	if err := m.updateProperties(func(p *metadata.Properties) { p.StartTime = m.dir.now() }); err != nil {
		return err
	}
	if err := m.dir.api.DomainCreate(m.dom); err != nil {
		return fmt.Errorf("failed to start domain: %w", err)
	}
	log.V(1).Info("Domain started")
	return nil
}

func (m *Machine) prepareRoot(ctx context.Context, template string) error {
	if template == "" {
		return fmt.Errorf("%w: %s has no template", domain.ErrTemplateNotFound, m.Name())
	}
	root := naming.VolumeNameRoot(template)
	ok, err := m.dir.storage.VolumeExists(ctx, m.dir.pool, root)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s has no root volume", domain.ErrTemplateNotFound, template)
	}
	if err := m.dir.storage.ReplaceOverlay(ctx, m.dir.pool, naming.VolumeNameRootSnap(m.Name()), root); err != nil {
		return fmt.Errorf("failed to prepare root volume: %w", err)
	}
	return nil
}

func (m *Machine) Shutdown(_ context.Context) error {
	if err := m.dir.api.DomainShutdown(m.dom); err != nil {
		return fmt.Errorf("failed to shut down domain: %w", err)
	}
	return nil
}

func (m *Machine) Kill(_ context.Context) error {
	if err := m.dir.api.DomainDestroy(m.dom); err != nil {
		return fmt.Errorf("failed to destroy domain: %w", err)
	}
	return nil
}

func (m *Machine) RunPrivileged(ctx context.Context, command string) (int, error) {
	return m.dir.guestExec(ctx, m.dom, command)
}

func (m *Machine) StartTime(_ context.Context) (time.Time, error) {
	props, err := m.properties()
	if err != nil {
		return time.Time{}, err
	}
	return props.StartTime, nil
}

// ConnectedClients returns the domains whose netvm is this domain.
func (m *Machine) ConnectedClients(_ context.Context) ([]domain.Domain, error) {
	all, err := m.dir.machines()
	if err != nil {
		return nil, err
	}
	var clients []domain.Domain
	for _, other := range all {
		if other.Name() == m.Name() {
			continue
		}
		props, err := other.properties()
		if err != nil {
			return nil, fmt.Errorf("failed to read properties of %s: %w", other.Name(), err)
		}
		if props.NetVM == m.Name() {
			clients = append(clients, other)
		}
	}
	return clients, nil
}

func (m *Machine) Volumes(_ context.Context) ([]domain.Volume, error) {
	props, err := m.properties()
	if err != nil {
		return nil, err
	}
	class, err := classOf(props)
	if err != nil {
		return nil, err
	}

	name := m.Name()
	if !class.TemplateBased() {
		return []domain.Volume{
			ownedVolume(naming.VolumeNameRoot(name)),
			ownedVolume(naming.VolumeNamePrivate(name)),
		}, nil
	}
	return []domain.Volume{
		&snapshotVolume{
			name:       naming.VolumeNameRootSnap(name),
			source:     naming.VolumeNameRoot(props.Template),
			startedAt:  props.StartTime,
			exists:     m.dir.storage.VolumeExists,
			timestamps: m.dir.storage.VolumeTimestamps,
			pool:       m.dir.pool,
		},
		ownedVolume(naming.VolumeNamePrivate(name)),
	}, nil
}

func (m *Machine) Tags(_ context.Context) ([]string, error) {
	props, err := m.properties()
	if err != nil {
		return nil, err
	}
	return props.Tags, nil
}

// SetTags replaces the tag set. Duplicates are dropped and the result is
// stored sorted.
func (m *Machine) SetTags(_ context.Context, tags []string) error {
	sorted := slices.Clone(tags)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return m.updateProperties(func(p *metadata.Properties) { p.Tags = sorted })
}

func (m *Machine) Feature(_ context.Context, key string) (string, bool, error) {
	props, err := m.properties()
	if err != nil {
		return "", false, err
	}
	v, ok := props.Features[key]
	return v, ok, nil
}

func (m *Machine) SetFeature(_ context.Context, key, value string) error {
	return m.updateProperties(func(p *metadata.Properties) {
		features := maps.Clone(p.Features)
		if features == nil {
			features = map[string]string{}
		}
		features[key] = value
		p.Features = features
	})
}
