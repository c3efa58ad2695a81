package executor

import (
	"context"
	"sync"
	"time"

	"github.com/fieldway/fleet-provisioner/internal/inventory"
)

// Simulated satisfies the transport contract without any network activity.
// It backs --dry-run and the test suite. Every start is recorded so tests
// can assert invocation counts and the exact command sent to each host.
type Simulated struct {
	// ExitCode is what every started operation reports from Wait.
	ExitCode int
	// Output is the canned combined output returned by CollectOutput.
	Output string

	mu     sync.Mutex
	starts []StartRecord
}

// StartRecord captures one Start invocation.
type StartRecord struct {
	Host    inventory.HostIdentity
	Command string
}

// NewSimulated returns a simulated transport that reports success with a
// fixed transcript.
func NewSimulated() *Simulated {
	return &Simulated{Output: "[simulated] provisioning transcript"}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Start(ctx context.Context, host inventory.HostIdentity, command string) (Handle, error) {
	s.mu.Lock()
	s.starts = append(s.starts, StartRecord{Host: host, Command: command})
	s.mu.Unlock()
	return &simHandle{exit: s.ExitCode, output: []byte(s.Output)}, nil
}

// StartCount returns how many operations were started.
func (s *Simulated) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.starts)
}

// Starts returns a copy of all recorded Start invocations.
func (s *Simulated) Starts() []StartRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StartRecord, len(s.starts))
	copy(out, s.starts)
	return out
}

type simHandle struct {
	exit   int
	output []byte
}

func (h *simHandle) Wait() int { return h.exit }

func (h *simHandle) CollectOutput(timeout time.Duration) ([]byte, bool) {
	return h.output, false
}
