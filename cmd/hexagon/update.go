package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jbweber/hexagon/internal/batch"
	"github.com/jbweber/hexagon/internal/selector"
)

var (
	updateForce       bool
	updateCheck       bool
	updateConcurrency int
)

var updateCmd = &cobra.Command{
	Use:   "update [vms...]",
	Short: "Install package updates inside domains",
	Long: `Update runs the package manager inside each domain through the guest
agent. Halted domains are started for the update and halted afterwards.

With no names, domains flagged with updates-available=1 are updated. Named
domains without the flag are skipped unless --force is given.

--check asks running domains whether updates are pending and records the
answer in the updates-available flag instead of updating.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		criteria := selector.Criteria{Names: args}
		if len(args) == 0 && !updateCheck && !updateForce {
			criteria.Updatable = true
		}
		doms, err := selector.Select(ctx, s.dir, criteria)
		if err != nil {
			return err
		}
		targets := names(doms)
		byName := indexDomains(doms)
		w := cmd.OutOrStdout()

		if dryRun {
			verb := "update"
			if updateCheck {
				verb = "check"
			}
			printTargets(w, verb, targets)
			return nil
		}

		u := s.updater()
		concurrency := concurrencyFor(updateConcurrency, batch.DefaultUpdateConcurrency)

		if updateCheck {
			return s.run(ctx, w, "update-check", targets, concurrency, func(ctx context.Context, name string) error {
				pending, err := u.Check(ctx, byName[name])
				if err != nil {
					return err
				}
				logger.Info("Checked for updates", "domain", name, "pending", pending)
				return nil
			})
		}

		return s.run(ctx, w, "update", targets, concurrency, func(ctx context.Context, name string) error {
			updated, err := u.Update(ctx, byName[name], updateForce)
			if err != nil {
				return err
			}
			if !updated {
				logger.Info("No updates pending", "domain", name)
			}
			return nil
		})
	},
}

func init() {
	flags := updateCmd.Flags()
	flags.BoolVar(&updateForce, "force", false, "update even when no updates are flagged")
	flags.BoolVar(&updateCheck, "check", false, "only check for pending updates")
	flags.IntVar(&updateConcurrency, "max-concurrency", batch.DefaultUpdateConcurrency, "domains to update in parallel")
}
