package vm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/jbweber/hexagon/internal/domain"
)

const (
	// FeatureUpdatesAvailable is set to "1" on domains with pending
	// package updates.
	FeatureUpdatesAvailable = "updates-available"

	// DefaultUpdateCommand upgrades packages with whichever package manager
	// the domain has.
	DefaultUpdateCommand = `if command -v dnf >/dev/null 2>&1; then dnf -y upgrade --refresh; ` +
		`else apt-get -qq update && DEBIAN_FRONTEND=noninteractive apt-get -y dist-upgrade; fi`

	// DefaultCheckCommand exits 100 when updates are pending, 0 when not.
	DefaultCheckCommand = `if command -v dnf >/dev/null 2>&1; then dnf -q check-update >/dev/null; ` +
		`else apt-get -qq update && apt-get -s dist-upgrade | grep -q '^Inst' && exit 100 || exit 0; fi`

	checkExitUpdatesAvailable = 100
)

// Updater installs package updates inside domains.
type Updater struct {
	Power         *PowerController
	Logger        logr.Logger
	UpdateCommand string
	CheckCommand  string
}

func (u *Updater) updateCommand() string {
	if u.UpdateCommand == "" {
		return DefaultUpdateCommand
	}
	return u.UpdateCommand
}

func (u *Updater) checkCommand() string {
	if u.CheckCommand == "" {
		return DefaultCheckCommand
	}
	return u.CheckCommand
}

// Updatable reports whether d has pending updates flagged.
func Updatable(ctx context.Context, d domain.Domain) (bool, error) {
	v, ok, err := d.Feature(ctx, FeatureUpdatesAvailable)
	if err != nil {
		return false, domain.Platform("read features of", d.Name(), err)
	}
	return ok && v == "1", nil
}

// Update runs the update command inside d when updates are flagged or force
// is set. A halted domain is started for the update and halted afterwards.
// It reports whether an update ran.
func (u *Updater) Update(ctx context.Context, d domain.Domain, force bool) (updated bool, err error) {
	log := u.Logger.WithValues("domain", d.Name())

	if !force {
		pending, err := Updatable(ctx, d)
		if err != nil {
			return false, err
		}
		if !pending {
			log.V(1).Info("No updates flagged, skipping")
			return false, nil
		}
	}

	wasRunning, err := d.IsRunning(ctx)
	if err != nil {
		return false, domain.Platform("check state of", d.Name(), err)
	}
	if !wasRunning {
		if err := u.Power.Start(ctx, d); err != nil {
			return false, err
		}
		defer func() {
			if haltErr := u.Power.EnsureHalted(ctx, d, true); haltErr != nil {
				err = errors.Join(err, haltErr)
			}
		}()
	}

	log.Info("Updating domain")
	code, err := d.RunPrivileged(ctx, u.updateCommand())
	if err != nil {
		return false, domain.Platform("run update in", d.Name(), err)
	}
	if code != 0 {
		return false, fmt.Errorf("update of %s exited with status %d", d.Name(), code)
	}

	if err := d.SetFeature(ctx, FeatureUpdatesAvailable, "0"); err != nil {
		return true, domain.Platform("clear update flag of", d.Name(), err)
	}
	log.Info("Domain updated")
	return true, nil
}

// Check asks a running domain whether updates are pending and records the
// answer in the updates-available feature. Halted domains are skipped.
func (u *Updater) Check(ctx context.Context, d domain.Domain) (pending bool, err error) {
	running, err := d.IsRunning(ctx)
	if err != nil {
		return false, domain.Platform("check state of", d.Name(), err)
	}
	if !running {
		return Updatable(ctx, d)
	}

	code, err := d.RunPrivileged(ctx, u.checkCommand())
	if err != nil {
		return false, domain.Platform("check updates in", d.Name(), err)
	}

	switch code {
	case 0:
		pending = false
	case checkExitUpdatesAvailable:
		pending = true
	default:
		return false, fmt.Errorf("update check of %s exited with status %d", d.Name(), code)
	}

	flag := "0"
	if pending {
		flag = "1"
	}
	if err := d.SetFeature(ctx, FeatureUpdatesAvailable, flag); err != nil {
		return pending, domain.Platform("set update flag of", d.Name(), err)
	}
	return pending, nil
}

// Uptime returns how long d has been running, or zero if it is halted.
func Uptime(ctx context.Context, d domain.Domain, now time.Time) (time.Duration, error) {
	running, err := d.IsRunning(ctx)
	if err != nil {
		return 0, domain.Platform("check state of", d.Name(), err)
	}
	if !running {
		return 0, nil
	}

	started, err := d.StartTime(ctx)
	if err != nil {
		return 0, domain.Platform("read start time of", d.Name(), err)
	}
	if started.IsZero() || started.After(now) {
		return 0, nil
	}
	return now.Sub(started), nil
}
