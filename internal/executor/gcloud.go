package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/fieldway/fleet-provisioner/internal/inventory"
	"github.com/fieldway/fleet-provisioner/internal/logging"
)

// Gcloud runs the remote command through the local `gcloud compute ssh`
// binary. This is the default transport.
type Gcloud struct {
	log *logging.Logger
}

// NewGcloud creates the gcloud shell-out transport.
func NewGcloud(log *logging.Logger) *Gcloud {
	return &Gcloud{log: log}
}

func (g *Gcloud) Name() string { return "gcloud" }

// Start launches `gcloud compute ssh` against the host with the remote
// command as a single --command argument.
func (g *Gcloud) Start(ctx context.Context, host inventory.HostIdentity, command string) (Handle, error) {
	args := []string{
		"compute", "ssh", host.Name,
		"--project", host.Project,
		"--zone", host.Zone,
		"--quiet",
		"--strict-host-key-checking=no",
		"--ssh-flag", "-o ConnectTimeout=20",
		"--command", command,
	}
	g.log.Debug("starting gcloud ssh", "host", host.String())

	cmd := exec.CommandContext(ctx, "gcloud", args...)
	buf := &lockedBuffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start gcloud ssh for %s: %w", host, err)
	}

	h := &procHandle{cmd: cmd, buf: buf, done: make(chan struct{})}
	go func() {
		h.exit = exitCode(cmd.Wait())
		close(h.done)
	}()
	return h, nil
}

// procHandle wraps a local child process as a Handle.
type procHandle struct {
	cmd  *exec.Cmd
	buf  *lockedBuffer
	done chan struct{}
	exit int
}

func (h *procHandle) Wait() int {
	<-h.done
	return h.exit
}

func (h *procHandle) CollectOutput(timeout time.Duration) ([]byte, bool) {
	select {
	case <-h.done:
		return h.buf.Bytes(), false
	case <-time.After(timeout):
		// The local process is killed; the remote command may keep running.
		if h.cmd.Process != nil {
			h.cmd.Process.Kill()
		}
		<-h.done
		return h.buf.Bytes(), true
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
