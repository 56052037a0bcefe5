package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/jbweber/hexagon/internal/config"
	"github.com/jbweber/hexagon/internal/domain"
)

// DefaultSettleDelay is the pause between removing a domain and creating it
// again during a rebuild.
const DefaultSettleDelay = time.Second

// ReconcileOptions tune a single pass.
type ReconcileOptions struct {
	// Rebuild destroys and recreates an existing domain.
	Rebuild bool

	// ForceReboot power-cycles the domain for any change.
	ForceReboot bool
}

// Report describes what a pass did.
type Report struct {
	Domain  string
	Changes []Change
	Created bool
	Rebuilt bool
	Halted  bool
	Started bool
}

// Rebooted reports whether the domain was halted and started again.
func (r *Report) Rebooted() bool {
	return r.Halted && r.Started
}

// Plan is what a pass would do, computed without side effects.
type Plan struct {
	Domain        string
	Exists        bool
	Changes       []Change
	Outdated      bool
	RebootNeeded  bool
	ClassMismatch bool
}

// Reconciler drives domains to their desired configuration.
type Reconciler struct {
	Dir         domain.Directory
	Power       *PowerController
	Logger      logr.Logger
	SettleDelay time.Duration
	Metrics     MetricsRecorder
}

func (r *Reconciler) power() *PowerController {
	if r.Power != nil {
		return r.Power
	}
	return &PowerController{Logger: r.Logger, Metrics: r.Metrics}
}

func (r *Reconciler) settleDelay() time.Duration {
	if r.SettleDelay <= 0 {
		return DefaultSettleDelay
	}
	return r.SettleDelay
}

// Reconcile runs one pass for the domain behind h. Any failure aborts the
// pass and is returned; the report covers what happened up to that point.
func (r *Reconciler) Reconcile(ctx context.Context, h *Handle, desired config.Desired, opts ReconcileOptions) (*Report, error) {
	report, err := r.reconcile(ctx, h, desired, opts)
	metrics := metricsOrNoop(r.Metrics)
	if err != nil {
		metrics.ReconcileFinished("failure")
		return report, fmt.Errorf("failed to reconcile %s: %w", h.Name(), err)
	}
	metrics.ReconcileFinished("success")
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, h *Handle, desired config.Desired, opts ReconcileOptions) (*Report, error) {
	log := r.Logger.WithValues("domain", h.Name())
	report := &Report{Domain: h.Name()}

	// Step 1: change set
	changes, err := ComputeChangeSet(ctx, h, desired)
	if err != nil {
		return report, err
	}
	if opts.ForceReboot {
		changes = ForceReboot(changes)
	}
	report.Changes = changes

	// Step 2: create
	exists, err := h.Exists(ctx)
	if err != nil {
		return report, err
	}
	var d domain.Domain
	if !exists {
		log.Info("Creating domain", "class", desired.Class(), "label", desired.Label())
		d, err = r.Dir.Create(ctx, desired.Class(), h.Name(), desired.Label())
		if err != nil {
			return report, domain.Platform("create", h.Name(), err)
		}
		h.bind(d)
		report.Created = true
	} else {
		d, err = h.Domain(ctx)
		if err != nil {
			return report, err
		}
	}

	// Step 3: rebuild
	rebuild := opts.Rebuild && !report.Created
	if !report.Created && !rebuild {
		class, err := d.Class(ctx)
		if err != nil {
			return report, domain.Platform("read class of", h.Name(), err)
		}
		if class != desired.Class() {
			return report, fmt.Errorf("%w: %s is %s, desired %s", domain.ErrClassChange, h.Name(), class, desired.Class())
		}
	}

	// Step 4: reboot needed
	outdated, err := IsOutdated(ctx, d)
	if err != nil {
		return report, err
	}
	needReboot := outdated || RebootRequired(changes)

	// Step 5
	wasRunning, err := d.IsRunning(ctx)
	if err != nil {
		return report, domain.Platform("check state of", h.Name(), err)
	}

	// Step 6: halt
	if (needReboot || rebuild) && wasRunning {
		log.Info("Halting domain", "outdated", outdated, "rebuild", rebuild)
		if err := r.power().EnsureHalted(ctx, d, true); err != nil {
			return report, err
		}
		report.Halted = true
	}

	// Step 7: rebuild
	if rebuild {
		d, err = r.rebuild(ctx, log, h, desired)
		if err != nil {
			return report, err
		}
		report.Rebuilt = true
		changes = fullChangeSet(desired)
		if opts.ForceReboot {
			changes = ForceReboot(changes)
		}
		report.Changes = changes
	}

	// Step 8: apply
	metrics := metricsOrNoop(r.Metrics)
	for _, c := range changes {
		log.Info("Applying change", "attribute", c.Attribute, "from", c.Old, "to", c.New.String())
		if err := c.Apply(ctx, d); err != nil {
			return report, err
		}
		metrics.ChangeApplied(c.Attribute)
	}

	// Step 9: power
	if desired.Autostart() || wasRunning {
		running, err := d.IsRunning(ctx)
		if err != nil {
			return report, domain.Platform("check state of", h.Name(), err)
		}
		if !running {
			log.Info("Starting domain", "autostart", desired.Autostart(), "wasRunning", wasRunning)
			if err := domain.Platform("start", h.Name(), d.Start(ctx)); err != nil {
				return report, err
			}
			report.Started = true
		}
	} else {
		running, err := d.IsRunning(ctx)
		if err != nil {
			return report, domain.Platform("check state of", h.Name(), err)
		}
		if running {
			if err := r.power().EnsureHalted(ctx, d, true); err != nil {
				return report, err
			}
			report.Halted = true
		}
	}

	// Step 10
	if err := h.Refresh(ctx); err != nil {
		return report, err
	}

	if len(changes) == 0 && !report.Created && !report.Halted && !report.Started {
		log.V(1).Info("Domain already up to date")
	}
	return report, nil
}

func (r *Reconciler) rebuild(ctx context.Context, log logr.Logger, h *Handle, desired config.Desired) (domain.Domain, error) {
	log.Info("Removing domain for rebuild")
	if err := r.Dir.Remove(ctx, h.Name()); err != nil {
		return nil, domain.Platform("remove", h.Name(), err)
	}

	time.Sleep(r.settleDelay())

	log.Info("Recreating domain", "class", desired.Class())
	d, err := r.Dir.Create(ctx, desired.Class(), h.Name(), desired.Label())
	if err != nil {
		return nil, domain.Platform("create", h.Name(), err)
	}
	h.bind(d)
	return d, nil
}

// Plan computes what Reconcile would do without changing anything.
func (r *Reconciler) Plan(ctx context.Context, h *Handle, desired config.Desired, opts ReconcileOptions) (*Plan, error) {
	plan := &Plan{Domain: h.Name()}

	changes, err := ComputeChangeSet(ctx, h, desired)
	if err != nil {
		return nil, err
	}
	if opts.ForceReboot {
		changes = ForceReboot(changes)
	}
	plan.Changes = changes

	plan.Exists, err = h.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !plan.Exists {
		return plan, nil
	}

	d, err := h.Domain(ctx)
	if err != nil {
		return nil, err
	}
	class, err := d.Class(ctx)
	if err != nil {
		return nil, domain.Platform("read class of", h.Name(), err)
	}
	plan.ClassMismatch = class != desired.Class()

	plan.Outdated, err = IsOutdated(ctx, d)
	if err != nil {
		return nil, err
	}
	plan.RebootNeeded = plan.Outdated || RebootRequired(changes)
	return plan, nil
}
