package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jbweber/hexagon/internal/naming"
	"github.com/jbweber/hexagon/internal/storage"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Manage storage",
	Long:  `View the hexagon storage pool and import template images into it.`,
}

func init() {
	storageCmd.AddCommand(storageStatusCmd)
	storageCmd.AddCommand(storageImportCmd)
}

var storageStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show storage status overview",
	Long: `Display capacity and usage of the hexagon pool followed by the volumes
it holds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		mgr := storage.NewManager(s.client.Libvirt())
		pool, err := mgr.GetPoolInfo(ctx, storage.DefaultPool)
		if err != nil {
			return err
		}
		volumes, err := mgr.ListVolumes(ctx, storage.DefaultPool)
		if err != nil {
			return err
		}

		printPoolStatus(cmd.OutOrStdout(), pool, volumes)
		return nil
	},
}

func printPoolStatus(w io.Writer, pool *storage.PoolInfo, volumes []storage.VolumeInfo) {
	usage := 0.0
	if pool.Capacity > 0 {
		usage = float64(pool.Allocation) / float64(pool.Capacity) * 100
	}

	_, _ = fmt.Fprintln(w, "Storage Overview")
	_, _ = fmt.Fprintln(w, strings.Repeat("=", 60))
	_, _ = fmt.Fprintf(w, "Pool:       %s (%s)\n", pool.Name, pool.State)
	_, _ = fmt.Fprintf(w, "Path:       %s\n", pool.Path)
	_, _ = fmt.Fprintf(w, "Volumes:    %d total\n", len(volumes))
	_, _ = fmt.Fprintf(w, "Capacity:   %.2f GB\n", pool.CapacityGB())
	_, _ = fmt.Fprintf(w, "Allocated:  %.2f GB\n", pool.AllocationGB())
	_, _ = fmt.Fprintf(w, "Available:  %.2f GB\n", pool.AvailableGB())
	_, _ = fmt.Fprintf(w, "Usage:      %.1f%%\n", usage)

	if len(volumes) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options = table.OptionsNoBordersAndSeparators
	t.AppendHeader(table.Row{"VOLUME", "CAPACITY", "ALLOCATED"})
	for _, v := range volumes {
		t.AppendRow(table.Row{
			v.Name,
			fmt.Sprintf("%.1fGB", v.CapacityGB()),
			fmt.Sprintf("%.1fGB", float64(v.Allocation)/(1024*1024*1024)),
		})
	}
	t.Render()
}

var storageImportCmd = &cobra.Command{
	Use:   "import <template> <image>",
	Short: "Import a qcow2 image as a template's root volume",
	Long: `Import replaces the root volume of a template with a qcow2 disk image.
Domains built on the template pick up the new image on their next reboot.

Raw images are refused because domains overlay the template root as qcow2.
Convert them first:

  qemu-img convert -O qcow2 image.raw image.qcow2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		template, imagePath := args[0], args[1]
		if err := naming.ValidateName(template); err != nil {
			return err
		}
		if err := checkImportable(imagePath); err != nil {
			return err
		}

		volume := naming.VolumeNameRoot(template)
		if dryRun {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Would import %s as %s\n", imagePath, volume)
			return nil
		}

		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		mgr := storage.NewManager(s.client.Libvirt())
		if err := mgr.EnsureDefaultPool(ctx); err != nil {
			return err
		}
		format, err := mgr.ImportImage(ctx, storage.DefaultPool, imagePath, volume)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %s (%s) as %s\n", okMark, imagePath, format, volume)
		return nil
	},
}

// checkImportable accepts only qcow2 images.
func checkImportable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image file: %w", err)
	}
	defer func() { _ = f.Close() }()

	format, err := storage.DetectImageFormat(f)
	if err != nil {
		return err
	}
	if format != storage.VolumeFormatQCOW2 {
		return fmt.Errorf("%s is a %s image; convert it with: qemu-img convert -O qcow2 %s <out.qcow2>", path, format, path)
	}
	return nil
}
