package vm

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/jbweber/hexagon/internal/domain"
)

const (
	// DefaultHaltPollInterval is how often a halting domain is checked.
	DefaultHaltPollInterval = 5 * time.Second

	// DefaultHaltTimeout is how long a domain gets to halt before it is killed.
	DefaultHaltTimeout = 30 * time.Second

	// PoweroffCommand is run inside domains that cannot take a shutdown
	// request because running clients depend on them.
	PoweroffCommand = "poweroff"
)

// PowerController stops and starts domains.
type PowerController struct {
	Logger       logr.Logger
	PollInterval time.Duration
	Timeout      time.Duration
	Metrics      MetricsRecorder
}

func (p *PowerController) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return DefaultHaltPollInterval
	}
	return p.PollInterval
}

func (p *PowerController) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultHaltTimeout
	}
	return p.Timeout
}

// EnsureHalted brings a running domain down. With block set it returns only
// once the domain is halted, killing it if it has not halted within the
// timeout. Without block it only requests the halt.
//
// The sequence does not observe ctx cancellation once started.
func (p *PowerController) EnsureHalted(ctx context.Context, d domain.Domain, block bool) error {
	ctx = context.WithoutCancel(ctx)
	log := p.Logger.WithValues("domain", d.Name())
	metrics := metricsOrNoop(p.Metrics)

	running, err := d.IsRunning(ctx)
	if err != nil {
		return domain.Platform("check state of", d.Name(), err)
	}
	if !running {
		log.V(1).Info("Domain already halted")
		return nil
	}

	client, err := p.runningClient(ctx, log, d)
	if err != nil {
		return err
	}

	requested := true
	if client != nil {
		p.powerOff(ctx, log, d, client)
	} else {
		log.Info("Requesting shutdown")
		if err := d.Shutdown(ctx); err != nil {
			if !block {
				return domain.Platform("shut down", d.Name(), err)
			}
			log.Error(err, "Shutdown request failed")
			requested = false
		}
	}
	if !block {
		return nil
	}

	if requested {
		log.Info("Waiting for domain to halt", "timeout", p.timeout())
		err := wait.PollUntilContextTimeout(ctx, p.pollInterval(), p.timeout(), true, func(ctx context.Context) (bool, error) {
			state, err := d.PowerState(ctx)
			if err != nil {
				log.Error(err, "Failed to check power state")
				return false, nil
			}
			return state == domain.PowerHalted, nil
		})
		if err == nil {
			log.Info("Domain halted")
			return nil
		}
		log.Info("Domain did not halt in time")
	}

	// Check one more time before killing.
	state, err := d.PowerState(ctx)
	if err != nil {
		log.Error(err, "Failed to check state before kill")
	} else if state == domain.PowerHalted {
		return nil
	}

	log.Info("Killing domain")
	metrics.HaltEscalated("kill")
	if err := d.Kill(ctx); err != nil {
		return domain.Platform("kill", d.Name(), err)
	}
	return nil
}

// runningClient returns a running domain whose netvm is d, or nil.
func (p *PowerController) runningClient(ctx context.Context, log logr.Logger, d domain.Domain) (domain.Domain, error) {
	clients, err := d.ConnectedClients(ctx)
	if err != nil {
		return nil, domain.Platform("list clients of", d.Name(), err)
	}
	for _, c := range clients {
		running, err := c.IsRunning(ctx)
		if err != nil {
			log.Error(err, "Failed to check client state", "client", c.Name())
			continue
		}
		if running {
			return c, nil
		}
	}
	return nil, nil
}

// powerOff halts d from inside. Its result is only logged.
func (p *PowerController) powerOff(ctx context.Context, log logr.Logger, d, client domain.Domain) {
	log.Info("Domain has running clients, powering off from inside", "client", client.Name())
	metricsOrNoop(p.Metrics).HaltEscalated("poweroff")
	// The connection usually drops before an exit status comes back.
	code, err := d.RunPrivileged(ctx, PoweroffCommand)
	if err != nil {
		log.V(1).Info("Poweroff command returned an error", "error", err.Error())
	} else if code != 0 {
		log.V(1).Info("Poweroff command exited non-zero", "exitCode", code)
	}
}

// Start boots d unless it is already running.
func (p *PowerController) Start(ctx context.Context, d domain.Domain) error {
	running, err := d.IsRunning(ctx)
	if err != nil {
		return domain.Platform("check state of", d.Name(), err)
	}
	if running {
		p.Logger.V(1).Info("Domain already running", "domain", d.Name())
		return nil
	}

	p.Logger.Info("Starting domain", "domain", d.Name())
	return domain.Platform("start", d.Name(), d.Start(ctx))
}

// Reboot halts d, killing it if needed, and starts it again.
func (p *PowerController) Reboot(ctx context.Context, d domain.Domain) error {
	if err := p.EnsureHalted(ctx, d, true); err != nil {
		return err
	}
	return p.Start(ctx, d)
}
