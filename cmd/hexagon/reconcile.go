package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/hexagon/internal/batch"
	"github.com/jbweber/hexagon/internal/config"
	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/vm"
)

var (
	reconcileTemplate    string
	reconcileNetVM       string
	reconcileLabel       string
	reconcileProperties  []string
	reconcileRebuild     bool
	reconcileForceReboot bool
	reconcileConcurrency int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [vms...]",
	Short: "Bring domains in line with their declared configuration",
	Long: `Reconcile creates missing domains, applies changed attributes and
power-cycles domains whose changes need a reboot.

With no names, every domain declared in the configuration file is
reconciled. --template, --netvm, --label and --property override the file
for this run.

Example:
  hexagon reconcile work --property vcpus=4 --label red`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := loadConfigFile(configPath)
		if err != nil {
			return err
		}
		overrides, err := reconcileOverrides()
		if err != nil {
			return err
		}

		targets := batch.Dedupe(args)
		if len(targets) == 0 {
			targets = file.Names()
		}
		if len(targets) == 0 {
			return fmt.Errorf("no domains given and none declared in %s", configPath)
		}

		desired := make(map[string]config.Desired, len(targets))
		for _, name := range targets {
			desired[name] = file.Desired(name).Merge(overrides)
		}
		opts := vm.ReconcileOptions{Rebuild: reconcileRebuild, ForceReboot: reconcileForceReboot}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		r := s.reconciler()
		w := cmd.OutOrStdout()

		if dryRun {
			return planAll(ctx, w, r, s.dir, targets, desired, opts)
		}

		concurrency := concurrencyFor(reconcileConcurrency, batch.DefaultWriteConcurrency)
		return s.run(ctx, w, "reconcile", targets, concurrency, func(ctx context.Context, name string) error {
			report, err := r.Reconcile(ctx, vm.NewHandle(s.dir, name), desired[name], opts)
			if report != nil {
				logger.V(1).Info("Reconciled", "domain", name, "changes", len(report.Changes),
					"created", report.Created, "rebuilt", report.Rebuilt, "rebooted", report.Rebooted())
			}
			return err
		})
	},
}

func init() {
	flags := reconcileCmd.Flags()
	flags.StringVar(&reconcileTemplate, "template", "", "template to set (shortcut for --property template=)")
	flags.StringVar(&reconcileNetVM, "netvm", "", "netvm to set (shortcut for --property netvm=)")
	flags.StringVar(&reconcileLabel, "label", "", "label to set (shortcut for --property label=)")
	flags.StringArrayVar(&reconcileProperties, "property", nil, "attribute to set, e.g. vcpus=4 (repeatable)")
	flags.BoolVar(&reconcileRebuild, "rebuild", false, "destroy and recreate existing domains")
	flags.BoolVar(&reconcileForceReboot, "force-reboot", false, "power-cycle domains for any change")
	flags.IntVar(&reconcileConcurrency, "max-concurrency", batch.DefaultWriteConcurrency, "domains to reconcile in parallel")
}

// loadConfigFile reads the desired configuration. A missing file is an
// empty configuration.
func loadConfigFile(path string) (*config.File, error) {
	f, err := config.LoadFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.V(1).Info("No configuration file, using defaults", "path", path)
		return config.Parse(nil)
	}
	return f, err
}

// reconcileOverrides turns --property and the shortcut flags into a
// Desired. Shortcuts win over --property.
func reconcileOverrides() (config.Desired, error) {
	var d config.Desired
	for _, p := range reconcileProperties {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return d, fmt.Errorf("%w: property %q must be attr=value", domain.ErrInvalidValue, p)
		}
		var err error
		if d, err = d.Set(key, raw); err != nil {
			return d, err
		}
	}
	for _, alias := range []struct{ key, value string }{
		{domain.AttrTemplate, reconcileTemplate},
		{domain.AttrNetVM, reconcileNetVM},
		{domain.AttrLabel, reconcileLabel},
	} {
		if alias.value == "" {
			continue
		}
		var err error
		if d, err = d.Set(alias.key, alias.value); err != nil {
			return d, err
		}
	}
	return d, nil
}

func planAll(ctx context.Context, w io.Writer, r *vm.Reconciler, dir domain.Directory, targets []string, desired map[string]config.Desired, opts vm.ReconcileOptions) error {
	for _, name := range targets {
		plan, err := r.Plan(ctx, vm.NewHandle(dir, name), desired[name], opts)
		if err != nil {
			return fmt.Errorf("failed to plan %s: %w", name, err)
		}
		printPlan(w, plan, opts)
	}
	return nil
}

func printPlan(w io.Writer, plan *vm.Plan, opts vm.ReconcileOptions) {
	var notes []string
	switch {
	case !plan.Exists:
		notes = append(notes, "create")
	case opts.Rebuild:
		notes = append(notes, "rebuild")
	case plan.ClassMismatch:
		notes = append(notes, "class differs, needs --rebuild")
	}
	if plan.Outdated {
		notes = append(notes, "outdated")
	}
	if plan.RebootNeeded {
		notes = append(notes, "reboot")
	}
	if len(plan.Changes) == 0 && len(notes) == 0 {
		notes = append(notes, "up to date")
	}

	_, _ = fmt.Fprintf(w, "%s: %s\n", plan.Domain, strings.Join(notes, ", "))
	for _, c := range plan.Changes {
		_, _ = fmt.Fprintf(w, "  %s\n", c)
	}
}
