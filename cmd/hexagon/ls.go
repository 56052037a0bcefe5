package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/hexagon/internal/batch"
	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/output"
	"github.com/jbweber/hexagon/internal/selector"
)

var (
	lsTags       string
	lsTemplate   string
	lsUpdatable  bool
	lsOutdated   bool
	lsProperties []string
	outputFormat string
	noHeaders    bool
)

var lsCmd = &cobra.Command{
	Use:   "ls [vms...]",
	Short: "List domains",
	Long: `List domains, optionally narrowed by tags, template, pending updates,
outdated root volumes or attribute values.

Property filters take the form attr=value, or attr=!value to exclude.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   One YAML document per domain
  -o json   JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		criteria, err := lsCriteria(args)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		doms, err := selector.Select(ctx, s.dir, criteria)
		if err != nil {
			return err
		}

		infos, err := describeAll(ctx, doms, batch.DefaultReadConcurrency)
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}
		result, err := formatter.FormatDomainList(infos)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), result)
		return nil
	},
}

func init() {
	flags := lsCmd.Flags()
	flags.StringVar(&lsTags, "tags", "", "only domains carrying all of these comma-separated tags")
	flags.StringVar(&lsTemplate, "template", "", "only domains based on this template")
	flags.BoolVar(&lsUpdatable, "updatable", false, "only domains with package updates pending")
	flags.BoolVar(&lsOutdated, "outdated", false, "only running domains whose template changed since they started")
	flags.StringArrayVar(&lsProperties, "property", nil, "only domains matching attr=value or attr=!value (repeatable)")
	flags.StringVarP(&outputFormat, "output", "o", "table", "output format (table, yaml, json)")
	flags.BoolVar(&noHeaders, "no-headers", false, "omit the table header")
}

func lsCriteria(args []string) (selector.Criteria, error) {
	c := selector.Criteria{
		Names:     args,
		Tags:      selector.SplitTags(lsTags),
		Template:  lsTemplate,
		Updatable: lsUpdatable,
		Outdated:  lsOutdated,
	}
	for _, p := range lsProperties {
		f, err := selector.ParsePropertyFilter(p)
		if err != nil {
			return c, err
		}
		c.Properties = append(c.Properties, f)
	}
	return c, nil
}

// describeAll reads listing rows in parallel. Rows keep the order of doms.
func describeAll(ctx context.Context, doms []domain.Domain, concurrency int) ([]*output.DomainInfo, error) {
	infos := make([]*output.DomainInfo, len(doms))
	index := make(map[string]int, len(doms))
	for i, d := range doms {
		index[d.Name()] = i
	}

	summary := batch.Run(ctx, names(doms), concurrency, func(ctx context.Context, name string) error {
		i := index[name]
		info, err := output.Describe(ctx, doms[i])
		if err != nil {
			return err
		}
		infos[i] = info
		return nil
	})
	if err := summary.Err(); err != nil {
		return nil, fmt.Errorf("failed to describe domains: %w", err)
	}
	return infos, nil
}
