package output

import (
	"context"
	"strconv"
	"time"

	"github.com/jbweber/hexagon/internal/domain"
)

// DomainInfo is one row of a domain listing.
type DomainInfo struct {
	Name      string     `json:"name" yaml:"name"`
	State     string     `json:"state" yaml:"state"`
	Class     string     `json:"class" yaml:"class"`
	Label     string     `json:"label,omitempty" yaml:"label,omitempty"`
	Template  string     `json:"template,omitempty" yaml:"template,omitempty"`
	NetVM     string     `json:"netvm,omitempty" yaml:"netvm,omitempty"`
	VCPUs     int        `json:"vcpus" yaml:"vcpus"`
	MemoryMiB int        `json:"memoryMiB" yaml:"memoryMiB"`
	Autostart bool       `json:"autostart" yaml:"autostart"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`
}

// Describe reads the listing row for d.
func Describe(ctx context.Context, d domain.Domain) (*DomainInfo, error) {
	info := &DomainInfo{Name: d.Name()}

	state, err := d.PowerState(ctx)
	if err != nil {
		return nil, err
	}
	info.State = state.String()

	class, err := d.Class(ctx)
	if err != nil {
		return nil, err
	}
	info.Class = string(class)

	props := make(map[string]string)
	for _, attr := range []string{
		domain.AttrLabel, domain.AttrNetVM, domain.AttrVCPUs,
		domain.AttrMemory, domain.AttrAutostart, domain.AttrTemplate,
	} {
		if attr == domain.AttrTemplate && !class.TemplateBased() {
			continue
		}
		v, err := d.Property(ctx, attr)
		if err != nil {
			return nil, err
		}
		props[attr] = v
	}
	info.Label = props[domain.AttrLabel]
	info.Template = props[domain.AttrTemplate]
	info.NetVM = props[domain.AttrNetVM]
	info.VCPUs, _ = strconv.Atoi(props[domain.AttrVCPUs])
	info.MemoryMiB, _ = strconv.Atoi(props[domain.AttrMemory])
	info.Autostart = props[domain.AttrAutostart] == "true"

	if info.Tags, err = d.Tags(ctx); err != nil {
		return nil, err
	}

	if state == domain.PowerRunning {
		started, err := d.StartTime(ctx)
		if err != nil {
			return nil, err
		}
		if !started.IsZero() {
			info.StartTime = &started
		}
	}
	return info, nil
}
