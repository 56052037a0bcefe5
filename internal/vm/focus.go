package vm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/util/retry"

	"github.com/jbweber/hexagon/internal/batch"
	"github.com/jbweber/hexagon/internal/domain"
)

// DefaultKeepTag marks domains that Focus leaves running.
const DefaultKeepTag = "cli"

// DefaultFocusBackoff bounds how often Focus retries failed halts.
var DefaultFocusBackoff = wait.Backoff{
	Steps:    3,
	Duration: 2 * time.Second,
	Factor:   2.0,
	Jitter:   0.1,
}

// FocusOptions select what Focus leaves alone.
type FocusOptions struct {
	// Allow lists domains to leave running.
	Allow []string

	// KeepTags lists tags whose domains are left running. Defaults to
	// DefaultKeepTag.
	KeepTags []string

	Backoff     wait.Backoff
	Concurrency int
}

// FocusResult lists what Focus did.
type FocusResult struct {
	Started []string
	Halted  []string
}

// FocusPlan lists what Focus would do.
type FocusPlan struct {
	// Start holds halted autostart domains.
	Start []domain.Domain

	// Halt holds running domains that are neither autostart, allowed nor
	// tagged with a keep tag.
	Halt []domain.Domain
}

// PlanFocus decides which domains Focus starts and halts. It only reads.
func PlanFocus(ctx context.Context, dir domain.Directory, opts FocusOptions) (*FocusPlan, error) {
	keepTags := opts.KeepTags
	if len(keepTags) == 0 {
		keepTags = []string{DefaultKeepTag}
	}

	domains, err := dir.List(ctx)
	if err != nil {
		return nil, domain.Platform("list", "domains", err)
	}

	plan := &FocusPlan{}
	for _, d := range domains {
		running, err := d.IsRunning(ctx)
		if err != nil {
			return nil, domain.Platform("check state of", d.Name(), err)
		}

		autostart, err := d.Property(ctx, domain.AttrAutostart)
		if err != nil {
			return nil, domain.Platform("read autostart of", d.Name(), err)
		}
		if autostart == "true" {
			if !running {
				plan.Start = append(plan.Start, d)
			}
			continue
		}

		if !running || slices.Contains(opts.Allow, d.Name()) {
			continue
		}
		tags, err := d.Tags(ctx)
		if err != nil {
			return nil, domain.Platform("read tags of", d.Name(), err)
		}
		if slices.ContainsFunc(tags, func(t string) bool { return slices.Contains(keepTags, t) }) {
			continue
		}
		plan.Halt = append(plan.Halt, d)
	}
	return plan, nil
}

// Focus starts every autostart domain and halts every other running domain
// that is neither allowed nor tagged with a keep tag. Halts that fail are
// retried, only for the domains that failed, until the backoff runs out.
func (p *PowerController) Focus(ctx context.Context, dir domain.Directory, opts FocusOptions) (*FocusResult, error) {
	backoff := opts.Backoff
	if backoff.Steps == 0 {
		backoff = DefaultFocusBackoff
	}

	plan, err := PlanFocus(ctx, dir, opts)
	if err != nil {
		return nil, err
	}

	result := &FocusResult{}
	var startErrs []error
	for _, d := range plan.Start {
		if err := p.Start(ctx, d); err != nil {
			startErrs = append(startErrs, err)
			continue
		}
		result.Started = append(result.Started, d.Name())
	}

	byName := make(map[string]domain.Domain, len(plan.Halt))
	toHalt := make([]string, 0, len(plan.Halt))
	for _, d := range plan.Halt {
		byName[d.Name()] = d
		toHalt = append(toHalt, d.Name())
	}

	pending := toHalt
	haltErr := retry.OnError(backoff, func(error) bool { return true }, func() error {
		summary := batch.Run(ctx, pending, opts.Concurrency, func(ctx context.Context, name string) error {
			return p.EnsureHalted(ctx, byName[name], true)
		})
		for _, r := range summary.Results {
			if r.Outcome == batch.Success {
				result.Halted = append(result.Halted, r.Target)
			}
		}
		pending = summary.Failures()
		if len(pending) > 0 {
			p.Logger.Info("Some domains failed to halt", "domains", pending)
		}
		return summary.Err()
	})

	if haltErr != nil || len(startErrs) > 0 {
		return result, fmt.Errorf("focus incomplete: %w", errors.Join(append(startErrs, haltErr)...))
	}
	return result, nil
}
