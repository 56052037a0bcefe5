package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(w, "Testing libvirt connection...")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		_, _ = fmt.Fprintf(w, "%s Connected to libvirt daemon\n", okMark)

		if err := s.client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		info, err := s.client.Info()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s Libvirt version: %s\n", okMark, info.LibVersion)
		_, _ = fmt.Fprintf(w, "%s Hypervisor hostname: %s\n", okMark, info.Hostname)

		uri, err := s.client.Libvirt().ConnectGetUri()
		if err != nil {
			return fmt.Errorf("failed to get connection URI: %w", err)
		}
		_, _ = fmt.Fprintf(w, "%s Connection URI: %s\n", okMark, uri)

		doms, err := s.dir.List(cmd.Context())
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s Domains: %d\n", okMark, len(doms))
		return nil
	},
}
