// Package task drives one host through command construction, transport
// retries, and result classification.
package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldway/fleet-provisioner/internal/agents"
	"github.com/fieldway/fleet-provisioner/internal/clock"
	"github.com/fieldway/fleet-provisioner/internal/executor"
	"github.com/fieldway/fleet-provisioner/internal/inventory"
	"github.com/fieldway/fleet-provisioner/internal/logging"
	"github.com/fieldway/fleet-provisioner/internal/metrics"
)

// DefaultCollectTimeout bounds how long a task waits for the remote
// command's output once it has exited zero.
const DefaultCollectTimeout = 600 * time.Second

// TransportError reports that every transport attempt for a host exhausted
// without a zero exit. It is scoped to that host only.
type TransportError struct {
	Host     string
	Attempts int
	LogFile  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("host %s: command failed after %d retries; see log file for more details: %s",
		e.Host, e.Attempts, e.LogFile)
}

// Task is the per-host unit of work. Its mutable fields are owned by the
// worker running it and must not be touched by other workers until the
// orchestrator has consumed its completion.
type Task struct {
	Host  inventory.HostIdentity
	Rules inventory.AgentRuleSet

	// LogFile is where this host's captured output lands.
	LogFile string
	// AgentResults maps each requested agent type to whether its success
	// marker was found. Populated by WaitForCompletion.
	AgentResults map[inventory.AgentType]bool

	status Status
	output string
	err    error
	handle executor.Handle

	maxRetries     int
	collectTimeout time.Duration
	exec           executor.Executor
	catalog        agents.Catalog
	clock          clock.Clock
	log            *logging.Logger
}

// Params configures a Task.
type Params struct {
	LogDir     string
	MaxRetries int
	// CollectTimeout defaults to DefaultCollectTimeout when zero.
	CollectTimeout time.Duration
	// Skip pre-sets the task to Skipped; it will perform no transport call.
	Skip     bool
	Executor executor.Executor
	Catalog  agents.Catalog
	Clock    clock.Clock
	Log      *logging.Logger
}

// New creates a Task for one validated host.
func New(host inventory.HostIdentity, rules inventory.AgentRuleSet, p Params) *Task {
	status := StatusPending
	if p.Skip {
		status = StatusSkipped
	}
	timeout := p.CollectTimeout
	if timeout == 0 {
		timeout = DefaultCollectTimeout
	}
	return &Task{
		Host:           host,
		Rules:          rules,
		LogFile:        filepath.Join(p.LogDir, host.Filename()+".log"),
		status:         status,
		maxRetries:     p.MaxRetries,
		collectTimeout: timeout,
		exec:           p.Executor,
		catalog:        p.Catalog,
		clock:          p.Clock,
		log:            p.Log,
	}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status { return t.status }

// Output returns the captured combined output, available after
// WaitForCompletion.
func (t *Task) Output() string { return t.output }

// Err returns the transport error that failed the task, if any.
func (t *Task) Err() error { return t.err }

// Run dispatches the remote command, driving the retry loop until an
// attempt exits zero or the retry budget is exhausted. A task created
// Skipped returns immediately without touching the transport.
func (t *Task) Run(ctx context.Context) {
	if t.status == StatusSkipped {
		return
	}
	if err := t.transition(StatusRunning); err != nil {
		t.log.Error("refusing to run task", "error", err)
		return
	}
	t.log.Info("processing host", "host", t.Host.String())

	handle, err := t.startOperation(ctx)
	if err != nil {
		t.log.Error("transport failed", "host", t.Host.String(), "error", err)
		t.err = err
		if terr := t.transition(StatusFailure); terr != nil {
			t.log.Error("status update failed", "error", terr)
		}
		return
	}
	t.handle = handle
}

// startOperation attempts the transport up to maxRetries times, backing off
// 2^attempt seconds between attempts.
func (t *Task) startOperation(ctx context.Context) (executor.Handle, error) {
	command := t.catalog.BuildCommand(t.Rules)

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		handle, err := t.exec.Start(ctx, t.Host, command)
		if err != nil {
			t.log.Warn("failed to start remote command",
				"host", t.Host.String(), "attempt", attempt+1, "error", err)
		} else if code := handle.Wait(); code == 0 {
			return handle, nil
		} else {
			t.log.Warn("remote command failed",
				"host", t.Host.String(), "attempt", attempt+1, "exit_code", code)
		}

		if attempt < t.maxRetries-1 {
			metrics.TransportRetries.Inc()
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-t.clock.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, &TransportError{Host: t.Host.String(), Attempts: t.maxRetries, LogFile: t.LogFile}
}

// WaitForCompletion collects the remote output (bounded by the collect
// timeout), writes the host's log file, and classifies per-agent success.
// The host is Success only if every requested agent's marker is present;
// partial success is still Failure.
func (t *Task) WaitForCompletion() {
	if t.status == StatusSkipped || t.handle == nil {
		return
	}

	out, timedOut := t.handle.CollectOutput(t.collectTimeout)
	if timedOut {
		t.log.Warn("output collection timed out, operation terminated",
			"host", t.Host.String(), "timeout", t.collectTimeout)
	}
	t.output = string(out)
	t.writeLogFile()

	t.AgentResults = make(map[inventory.AgentType]bool, len(t.Rules))
	allOK := true
	for _, typ := range t.Rules.Types() {
		marker := "\n" + t.catalog.SuccessMarker(typ) + "\n"
		ok := strings.Contains(t.output, marker)
		t.AgentResults[typ] = ok
		allOK = allOK && ok
	}

	next := StatusFailure
	if allOK {
		next = StatusSuccess
	}
	if err := t.transition(next); err != nil {
		t.log.Error("status update failed", "error", err)
	}
}

// writeLogFile persists the captured output. The first line names the
// agents being installed; the rest is the full combined output.
func (t *Task) writeLogFile() {
	header := fmt.Sprintf("Installing %s\n", strings.Join(t.Rules.SortedTypeNames(), ","))
	if err := os.WriteFile(t.LogFile, []byte(header+t.output), 0o644); err != nil {
		t.log.Error("failed to write host log file", "path", t.LogFile, "error", err)
	}
}
