package libvirt

import (
	"context"
	"time"

	"github.com/jbweber/hexagon/internal/storage"
)

// ownedVolume belongs to its domain alone and is never outdated.
type ownedVolume string

func (v ownedVolume) Name() string { return string(v) }

func (ownedVolume) IsOutdated(context.Context) (bool, error) { return false, nil }

// snapshotVolume is a root overlay taken from a template's root volume
// when the domain started.
type snapshotVolume struct {
	name       string
	source     string
	pool       string
	startedAt  time.Time
	exists     func(ctx context.Context, pool, volume string) (bool, error)
	timestamps func(ctx context.Context, pool, volume string) (*storage.Timestamps, error)
}

func (v *snapshotVolume) Name() string { return v.name }

// IsOutdated reports whether the template's root volume was written after
// the domain started. A domain with no recorded start was not started by
// hexagon, so its overlay's origin is unknown and it counts as outdated. So
// does an overlay whose template root volume is gone.
func (v *snapshotVolume) IsOutdated(ctx context.Context) (bool, error) {
	found, err := v.exists(ctx, v.pool, v.source)
	if err != nil {
		return false, err
	}
	if !found || v.startedAt.IsZero() {
		return true, nil
	}
	ts, err := v.timestamps(ctx, v.pool, v.source)
	if err != nil {
		return false, err
	}
	return ts.Modified.After(v.startedAt), nil
}
