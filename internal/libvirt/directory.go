package libvirt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jbweber/hexagon/internal/cloudinit"
	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/metadata"
	"github.com/jbweber/hexagon/internal/naming"
	"github.com/jbweber/hexagon/internal/storage"
)

// Directory implements domain.Directory on a libvirt connection. All
// volumes live in one storage pool.
type Directory struct {
	api     libvirtClient
	storage storageManager
	pool    string
	log     logr.Logger
	now     func() time.Time

	// AgentPollInterval and AgentTimeout bound how long RunPrivileged
	// waits for a guest command to finish.
	AgentPollInterval time.Duration
	AgentTimeout      time.Duration
}

var _ domain.Directory = (*Directory)(nil)

// NewDirectory returns a directory backed by l, keeping volumes in the
// default hexagon pool.
func NewDirectory(l *libvirt.Libvirt, logger logr.Logger) *Directory {
	return newDirectory(l, storage.NewManager(l), logger)
}

func newDirectory(api libvirtClient, sm storageManager, logger logr.Logger) *Directory {
	return &Directory{
		api:               api,
		storage:           sm,
		pool:              storage.DefaultPool,
		log:               logger,
		now:               time.Now,
		AgentPollInterval: time.Second,
		AgentTimeout:      30 * time.Minute,
	}
}

// Lookup returns the named domain, or an error wrapping domain.ErrNotFound.
func (d *Directory) Lookup(_ context.Context, name string) (domain.Domain, error) {
	return d.lookup(name)
}

func (d *Directory) lookup(name string) (*Machine, error) {
	dom, err := d.api.DomainLookupByName(name)
	if err != nil {
		if libvirt.IsNotFound(err) {
			return nil, domain.NotFound(name)
		}
		return nil, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	return &Machine{dir: d, dom: dom}, nil
}

func (d *Directory) Exists(ctx context.Context, name string) (bool, error) {
	_, err := d.lookup(name)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns every defined domain, sorted by name.
func (d *Directory) List(_ context.Context) ([]domain.Domain, error) {
	machines, err := d.machines()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Domain, len(machines))
	for i, m := range machines {
		out[i] = m
	}
	return out, nil
}

func (d *Directory) machines() ([]*Machine, error) {
	doms, _, err := d.api.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	slices.SortFunc(doms, func(a, b libvirt.Domain) int { return strings.Compare(a.Name, b.Name) })

	out := make([]*Machine, len(doms))
	for i, dom := range doms {
		out[i] = &Machine{dir: d, dom: dom}
	}
	return out, nil
}

// Create defines a new halted domain with its private volume and cloud-init
// seed. Template and standalone domains also get an empty root volume;
// template-based domains get their root overlay on every start. Anything
// created before a failure is removed again.
func (d *Directory) Create(ctx context.Context, class domain.Class, name, label string) (dom domain.Domain, err error) {
	log := d.log.WithValues("domain", name, "class", class)

	if err := naming.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidValue, err)
	}
	if _, err := domain.ParseClass(string(class)); err != nil {
		return nil, err
	}
	exists, err := d.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("domain %s already exists", name)
	}

	if err := d.storage.EnsureDefaultPool(ctx); err != nil {
		return nil, err
	}

	var defined *libvirt.Domain
	defer func() {
		if err != nil {
			d.cleanup(log, name, defined)
		}
	}()

	rootVolume := naming.VolumeNameRootSnap(name)
	if !class.TemplateBased() {
		rootVolume = naming.VolumeNameRoot(name)
		log.V(1).Info("Creating root volume", "volume", rootVolume)
		if err = d.storage.CreateVolume(ctx, d.pool, storage.VolumeSpec{
			Name:       rootVolume,
			Type:       storage.VolumeTypeRoot,
			Format:     storage.VolumeFormatQCOW2,
			CapacityGB: storage.DefaultRootSizeGB,
		}); err != nil {
			return nil, fmt.Errorf("failed to create root volume: %w", err)
		}
	}

	privateVolume := naming.VolumeNamePrivate(name)
	log.V(1).Info("Creating private volume", "volume", privateVolume)
	if err = d.storage.CreateVolume(ctx, d.pool, storage.VolumeSpec{
		Name:       privateVolume,
		Type:       storage.VolumeTypePrivate,
		Format:     storage.VolumeFormatQCOW2,
		CapacityGB: storage.DefaultPrivateSizeGB,
	}); err != nil {
		return nil, fmt.Errorf("failed to create private volume: %w", err)
	}

	cloudInitVolume := naming.VolumeNameCloudInit(name)
	if err = d.writeSeed(ctx, name, cloudInitVolume); err != nil {
		return nil, err
	}

	xml, err := GenerateDomainXML(DomainSpec{
		Name:            name,
		UUID:            uuid.New().String(),
		VCPUs:           DefaultVCPUs,
		MemoryMiB:       DefaultMemoryMiB,
		MaxMemMiB:       DefaultMaxMemMiB,
		Pool:            d.pool,
		RootVolume:      rootVolume,
		PrivateVolume:   privateVolume,
		CloudInitVolume: cloudInitVolume,
	})
	if err != nil {
		return nil, err
	}

	log.V(1).Info("Defining domain")
	ldom, err := d.api.DomainDefineXML(xml)
	if err != nil {
		return nil, fmt.Errorf("failed to define domain: %w", err)
	}
	defined = &ldom

	if err = metadata.Store(d.api, ldom, &metadata.Properties{
		Class:    string(class),
		Label:    label,
		VirtMode: domain.VirtModeHVM,
	}); err != nil {
		return nil, err
	}

	log.Info("Domain created")
	return &Machine{dir: d, dom: ldom}, nil
}

func (d *Directory) writeSeed(ctx context.Context, name, volume string) error {
	iso, err := cloudinit.GenerateISO(name)
	if err != nil {
		return fmt.Errorf("failed to generate cloud-init ISO: %w", err)
	}
	if err := d.storage.CreateVolume(ctx, d.pool, storage.VolumeSpec{
		Name:          volume,
		Type:          storage.VolumeTypeCloudInit,
		Format:        storage.VolumeFormatRaw,
		CapacityBytes: uint64(len(iso)),
	}); err != nil {
		return fmt.Errorf("failed to create cloud-init volume: %w", err)
	}
	if err := d.storage.WriteVolumeData(ctx, d.pool, volume, bytes.NewReader(iso), uint64(len(iso))); err != nil {
		return fmt.Errorf("failed to write cloud-init ISO: %w", err)
	}
	return nil
}

// cleanup undoes a partial Create. It is best-effort and only logs.
func (d *Directory) cleanup(log logr.Logger, name string, defined *libvirt.Domain) {
	log.Info("Cleaning up after failed create")
	if defined != nil {
		if err := d.api.DomainUndefineFlags(*defined, libvirt.DomainUndefineNvram); err != nil {
			log.Error(err, "Failed to undefine domain")
		}
	}
	// Cleanup must run even when the create was cancelled.
	if _, err := d.storage.DeleteVolumesWithPrefix(context.Background(), d.pool, naming.VolumePrefix(name)); err != nil {
		log.Error(err, "Failed to delete volumes")
	}
}

// Remove undefines the named domain, forcing it off first if needed, and
// deletes all of its volumes.
func (d *Directory) Remove(ctx context.Context, name string) error {
	log := d.log.WithValues("domain", name)

	m, err := d.lookup(name)
	if err != nil {
		return err
	}

	state, err := m.PowerState(ctx)
	if err != nil {
		return err
	}
	if state != domain.PowerHalted {
		log.Info("Forcing domain off before removal", "state", state)
		if err := d.api.DomainDestroy(m.dom); err != nil {
			return fmt.Errorf("failed to destroy domain: %w", err)
		}
	}

	if err := d.api.DomainUndefineFlags(m.dom, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine domain: %w", err)
	}

	n, err := d.storage.DeleteVolumesWithPrefix(ctx, d.pool, naming.VolumePrefix(name))
	if err != nil {
		return fmt.Errorf("domain undefined but failed to delete volumes: %w", err)
	}
	log.Info("Domain removed", "volumes", n)
	return nil
}
