package vm

import (
	"context"

	"github.com/jbweber/hexagon/internal/domain"
)

// IsOutdated reports whether d runs on a root volume older than its
// template's. Only running template-derived domains can be outdated.
func IsOutdated(ctx context.Context, d domain.Domain) (bool, error) {
	class, err := d.Class(ctx)
	if err != nil {
		return false, domain.Platform("read class of", d.Name(), err)
	}
	if !class.TemplateBased() {
		return false, nil
	}

	running, err := d.IsRunning(ctx)
	if err != nil {
		return false, domain.Platform("check state of", d.Name(), err)
	}
	if !running {
		return false, nil
	}

	volumes, err := d.Volumes(ctx)
	if err != nil {
		return false, domain.Platform("list volumes of", d.Name(), err)
	}
	for _, v := range volumes {
		outdated, err := v.IsOutdated(ctx)
		if err != nil {
			return false, domain.Platform("check volume "+v.Name()+" of", d.Name(), err)
		}
		if outdated {
			return true, nil
		}
	}
	return false, nil
}
