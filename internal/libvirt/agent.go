package libvirt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"k8s.io/apimachinery/pkg/util/wait"
)

// agentCommandTimeout is how long libvirt waits, in seconds, for the guest
// agent to answer a single request.
const agentCommandTimeout int32 = 10

type agentRequest struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
}

type guestExecArgs struct {
	Path          string   `json:"path"`
	Arg           []string `json:"arg,omitempty"`
	CaptureOutput bool     `json:"capture-output"`
}

type guestExecStatusArgs struct {
	PID int `json:"pid"`
}

type guestExecResult struct {
	Return struct {
		PID int `json:"pid"`
	} `json:"return"`
}

type guestExecStatusResult struct {
	Return struct {
		Exited   bool `json:"exited"`
		ExitCode int  `json:"exitcode"`
		Signal   int  `json:"signal"`
	} `json:"return"`
}

// agentCall sends one guest agent request and decodes its reply into out.
func (d *Directory) agentCall(dom libvirt.Domain, req agentRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", req.Execute, err)
	}
	reply, err := d.api.QEMUDomainAgentCommand(dom, string(body), agentCommandTimeout, 0)
	if err != nil {
		return fmt.Errorf("guest agent %s failed: %w", req.Execute, err)
	}
	if len(reply) == 0 {
		return fmt.Errorf("guest agent %s returned nothing", req.Execute)
	}
	if err := json.Unmarshal([]byte(reply[0]), out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", req.Execute, err)
	}
	return nil
}

// guestExec runs command through /bin/sh in the guest as root and waits for
// it to exit. A command killed by a signal reports 128+signal.
func (d *Directory) guestExec(ctx context.Context, dom libvirt.Domain, command string) (int, error) {
	log := d.log.WithValues("domain", dom.Name)

	var started guestExecResult
	err := d.agentCall(dom, agentRequest{
		Execute: "guest-exec",
		Arguments: guestExecArgs{
			Path:          "/bin/sh",
			Arg:           []string{"-c", command},
			CaptureOutput: true,
		},
	}, &started)
	if err != nil {
		return -1, err
	}
	pid := started.Return.PID
	log.V(1).Info("Guest command started", "pid", pid)

	var status guestExecStatusResult
	err = wait.PollUntilContextTimeout(ctx, d.AgentPollInterval, d.AgentTimeout, true, func(context.Context) (bool, error) {
		if err := d.agentCall(dom, agentRequest{
			Execute:   "guest-exec-status",
			Arguments: guestExecStatusArgs{PID: pid},
		}, &status); err != nil {
			return false, err
		}
		return status.Return.Exited, nil
	})
	if err != nil {
		return -1, fmt.Errorf("failed waiting for guest command %d: %w", pid, err)
	}

	if status.Return.Signal != 0 {
		return 128 + status.Return.Signal, nil
	}
	return status.Return.ExitCode, nil
}
