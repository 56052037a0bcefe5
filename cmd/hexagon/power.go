package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/hexagon/internal/batch"
	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/selector"
	"github.com/jbweber/hexagon/internal/vm"
)

var (
	rebootOutdated bool
	focusKeepTags  []string
)

var rebootCmd = &cobra.Command{
	Use:   "reboot [vms...]",
	Short: "Reboot domains",
	Long: `Reboot halts each domain, killing it if it does not halt in time, and
starts it again. Template-based domains come back on a fresh copy of their
template's root volume.

--outdated limits the reboot to running domains whose template changed
since they started; with no names it considers every domain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !rebootOutdated {
			return fmt.Errorf("name the domains to reboot or pass --outdated")
		}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		doms, err := selector.Select(ctx, s.dir, selector.Criteria{Names: args, Outdated: rebootOutdated})
		if err != nil {
			return err
		}
		targets := names(doms)
		if dryRun {
			printTargets(cmd.OutOrStdout(), "reboot", targets)
			return nil
		}

		byName := indexDomains(doms)
		return s.run(ctx, cmd.OutOrStdout(), "reboot", targets, batch.DefaultWriteConcurrency, func(ctx context.Context, name string) error {
			return s.power.Reboot(ctx, byName[name])
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start <vm>...",
	Short: "Ensure domains are running",
	Long: `Start boots each named domain that is not already running, starting its
netvm first. Every name must exist before anything is started.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return powerEach(cmd, "start", args, func(ctx context.Context, s *session, d domain.Domain) error {
			return s.power.Start(ctx, d)
		})
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <vm>...",
	Short: "Ensure domains are halted",
	Long: `Shutdown halts each named domain and waits for it to stop, killing it if
it does not halt in time. Domains with running clients are powered off from
inside. Every name must exist before anything is halted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return powerEach(cmd, "shutdown", args, func(ctx context.Context, s *session, d domain.Domain) error {
			return s.power.EnsureHalted(ctx, d, true)
		})
	},
}

func powerEach(cmd *cobra.Command, command string, args []string, fn func(context.Context, *session, domain.Domain) error) error {
	targets := batch.Dedupe(args)

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	byName, err := s.lookupAll(ctx, targets)
	if err != nil {
		return err
	}
	if dryRun {
		printTargets(cmd.OutOrStdout(), command, targets)
		return nil
	}
	return s.run(ctx, cmd.OutOrStdout(), command, targets, batch.DefaultWriteConcurrency, func(ctx context.Context, name string) error {
		return fn(ctx, s, byName[name])
	})
}

var focusCmd = &cobra.Command{
	Use:   "focus [allow...]",
	Short: "Halt everything that is not essential",
	Long: `Focus starts every autostart domain and halts every other running domain,
except the ones named and the ones carrying a keep tag (default "cli").
Halts that fail are retried a few times.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		opts := vm.FocusOptions{
			Allow:       args,
			KeepTags:    focusKeepTags,
			Concurrency: batch.DefaultWriteConcurrency,
		}
		w := cmd.OutOrStdout()

		if dryRun {
			plan, err := vm.PlanFocus(ctx, s.dir, opts)
			if err != nil {
				return err
			}
			printTargets(w, "start", names(plan.Start))
			printTargets(w, "halt", names(plan.Halt))
			return nil
		}

		result, err := s.power.Focus(ctx, s.dir, opts)
		if result != nil {
			for _, name := range result.Started {
				_, _ = fmt.Fprintf(w, "%s started %s\n", okMark, name)
			}
			for _, name := range result.Halted {
				_, _ = fmt.Fprintf(w, "%s halted %s\n", okMark, name)
			}
		}
		return err
	},
}

var uptimeCmd = &cobra.Command{
	Use:   "uptime <vm>",
	Short: "Show how long a domain has been running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := s.dir.Lookup(ctx, args[0])
		if err != nil {
			return err
		}
		up, err := vm.Uptime(ctx, d, time.Now())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d.Name(), formatUptime(up))
		return nil
	},
}

func init() {
	rebootCmd.Flags().BoolVar(&rebootOutdated, "outdated", false, "only reboot domains whose template changed since they started")
	focusCmd.Flags().StringSliceVar(&focusKeepTags, "keep-tag", []string{vm.DefaultKeepTag}, "tags of domains to leave running")
}

func formatUptime(d time.Duration) string {
	if d == 0 {
		return "halted"
	}
	return d.Truncate(time.Second).String()
}

func indexDomains(doms []domain.Domain) map[string]domain.Domain {
	out := make(map[string]domain.Domain, len(doms))
	for _, d := range doms {
		out[d.Name()] = d
	}
	return out
}
