package selector

import (
	"context"
	"sort"
	"time"

	"github.com/jbweber/hexagon/internal/domain"
)

type fakeVolume struct {
	name     string
	outdated bool
}

func (v fakeVolume) Name() string                             { return v.name }
func (v fakeVolume) IsOutdated(context.Context) (bool, error) { return v.outdated, nil }

// fakeDomain implements the reads selection makes. Anything else panics
// through the nil embedded interface.
type fakeDomain struct {
	domain.Domain
	name     string
	class    domain.Class
	running  bool
	props    map[string]string
	tags     []string
	features map[string]string
	volumes  []domain.Volume
}

func (f *fakeDomain) Name() string { return f.name }

func (f *fakeDomain) Class(context.Context) (domain.Class, error) { return f.class, nil }

func (f *fakeDomain) IsRunning(context.Context) (bool, error) { return f.running, nil }

func (f *fakeDomain) Property(_ context.Context, attr string) (string, error) {
	if _, err := domain.KindOf(attr); err != nil {
		return "", err
	}
	return f.props[attr], nil
}

func (f *fakeDomain) Tags(context.Context) ([]string, error) { return f.tags, nil }

func (f *fakeDomain) Feature(_ context.Context, key string) (string, bool, error) {
	v, ok := f.features[key]
	return v, ok, nil
}

func (f *fakeDomain) Volumes(context.Context) ([]domain.Volume, error) { return f.volumes, nil }

func (f *fakeDomain) StartTime(context.Context) (time.Time, error) { return time.Time{}, nil }

type fakeDirectory struct {
	domain.Directory
	domains map[string]*fakeDomain
}

func newFakeDirectory(doms ...*fakeDomain) *fakeDirectory {
	d := &fakeDirectory{domains: map[string]*fakeDomain{}}
	for _, dom := range doms {
		d.domains[dom.name] = dom
	}
	return d
}

func (d *fakeDirectory) Lookup(_ context.Context, name string) (domain.Domain, error) {
	dom, ok := d.domains[name]
	if !ok {
		return nil, domain.NotFound(name)
	}
	return dom, nil
}

func (d *fakeDirectory) List(context.Context) ([]domain.Domain, error) {
	var names []string
	for name := range d.domains {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]domain.Domain, len(names))
	for i, name := range names {
		out[i] = d.domains[name]
	}
	return out, nil
}
