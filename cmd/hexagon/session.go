package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/jbweber/hexagon/internal/batch"
	"github.com/jbweber/hexagon/internal/domain"
	"github.com/jbweber/hexagon/internal/libvirt"
	"github.com/jbweber/hexagon/internal/metrics"
	"github.com/jbweber/hexagon/internal/vm"
)

// session is one connection to libvirt and the components built on it.
type session struct {
	client  *libvirt.Client
	dir     domain.Directory
	power   *vm.PowerController
	metrics *metrics.Recorder
}

func openSession(ctx context.Context) (*session, error) {
	client, err := libvirt.ConnectWithContext(ctx, socketPath, libvirt.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	s := &session{
		client: client,
		dir:    libvirt.NewDirectory(client.Libvirt(), logger),
	}
	if metricsFile != "" {
		s.metrics = metrics.New()
	}
	s.power = &vm.PowerController{Logger: logger, Metrics: s.metrics}
	return s, nil
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

func (s *session) reconciler() *vm.Reconciler {
	return &vm.Reconciler{Dir: s.dir, Power: s.power, Logger: logger, Metrics: s.metrics}
}

func (s *session) updater() *vm.Updater {
	return &vm.Updater{Power: s.power, Logger: logger}
}

// run applies action to every target and prints one line per target plus a
// summary. The returned error is non-nil iff a target failed.
func (s *session) run(ctx context.Context, w io.Writer, command string, targets []string, concurrency int, action batch.Action) error {
	started := time.Now()
	summary := batch.Run(ctx, targets, concurrency, action)
	printSummary(w, summary)

	if s.metrics != nil {
		s.metrics.BatchFinished(command, summary, time.Since(started), time.Now())
		if err := s.metrics.WriteToTextfile(metricsFile); err != nil {
			logger.Error(err, "Failed to write metrics")
		}
	}
	return summary.Err()
}

// lookupAll resolves every name before anything is done to any of them.
func (s *session) lookupAll(ctx context.Context, names []string) (map[string]domain.Domain, error) {
	out := make(map[string]domain.Domain, len(names))
	for _, name := range names {
		d, err := s.dir.Lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	return out, nil
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
)

func printSummary(w io.Writer, summary batch.Summary) {
	for _, r := range summary.Results {
		if r.Outcome == batch.Success {
			_, _ = fmt.Fprintf(w, "%s %s\n", okMark, r.Target)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s %s: %v\n", failMark, r.Target, r.Err)
	}
	if len(summary.Results) == 0 {
		_, _ = fmt.Fprintln(w, "Nothing to do")
		return
	}
	ok := len(summary.Results) - summary.Failed
	line := fmt.Sprintf("%d succeeded, %d failed", ok, summary.Failed)
	if summary.Failed > 0 {
		line = color.RedString(line)
	}
	_, _ = fmt.Fprintln(w, line)
}

func printTargets(w io.Writer, verb string, targets []string) {
	_, _ = fmt.Fprintf(w, "Would %s %d domain(s):\n", verb, len(targets))
	for _, t := range targets {
		_, _ = fmt.Fprintf(w, "  %s\n", t)
	}
}

func names(doms []domain.Domain) []string {
	out := make([]string, len(doms))
	for i, d := range doms {
		out[i] = d.Name()
	}
	return out
}

// concurrencyFor returns flagValue if set, else fallback.
func concurrencyFor(flagValue, fallback int) int {
	if flagValue > 0 {
		return flagValue
	}
	return fallback
}
