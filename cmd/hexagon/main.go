package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/jbweber/hexagon/internal/config"
	"github.com/jbweber/hexagon/internal/libvirt"
	"github.com/jbweber/hexagon/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags.
var (
	configPath  string
	socketPath  string
	dryRun      bool
	logLevel    string
	logFormat   string
	metricsFile string
)

var logger = logr.Discard()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hexagon",
	Short: "Hexagon - declarative management of libvirt domains",
	Long: `Hexagon keeps the virtual machines on a libvirt host in line with a
declared configuration.

Domains are declared in a YAML file (default /etc/hexagon/domains.yaml).
Hexagon creates missing domains, applies changed settings, and power-cycles
domains when a change needs it. Commands act on many domains in parallel and
report a result per domain.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		format, err := logging.ParseFormat(logFormat)
		if err != nil {
			return err
		}
		logger = logging.Setup(logging.Options{
			Level:  level,
			Format: format,
			Writer: cmd.ErrOrStderr(),
		})
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", config.DefaultPath, "desired configuration file")
	flags.StringVar(&socketPath, "socket", libvirt.DefaultSocket, "libvirt daemon socket")
	flags.BoolVar(&dryRun, "dry-run", false, "show what would be done without doing it")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile when done")

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(uptimeCmd)
	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(storageCmd)
}
