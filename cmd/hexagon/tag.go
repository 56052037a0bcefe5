package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage domain tags",
}

var tagAddCmd = &cobra.Command{
	Use:   "add <vm> <tag>...",
	Short: "Add tags to a domain",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTags(cmd, args[0], func(tags []string) []string {
			return append(tags, args[1:]...)
		})
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <vm> <tag>...",
	Short: "Remove tags from a domain",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editTags(cmd, args[0], func(tags []string) []string {
			return slices.DeleteFunc(tags, func(t string) bool { return slices.Contains(args[1:], t) })
		})
	},
}

func init() {
	tagCmd.AddCommand(tagAddCmd)
	tagCmd.AddCommand(tagRmCmd)
}

func editTags(cmd *cobra.Command, name string, edit func([]string) []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := s.dir.Lookup(ctx, name)
	if err != nil {
		return err
	}
	tags, err := d.Tags(ctx)
	if err != nil {
		return err
	}
	tags = edit(slices.Clone(tags))

	if dryRun {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Would set tags of %s to %v\n", name, tags)
		return nil
	}
	if err := d.SetTags(ctx, tags); err != nil {
		return fmt.Errorf("failed to set tags of %s: %w", name, err)
	}
	if tags, err = d.Tags(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %v\n", okMark, name, tags)
	return nil
}
