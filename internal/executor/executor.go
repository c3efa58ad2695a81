// Package executor abstracts running a command on a remote host. The
// provisioning core only depends on this interface and never branches on
// which transport is behind it.
package executor

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/fieldway/fleet-provisioner/internal/inventory"
)

// Handle is one started remote operation.
type Handle interface {
	// Wait blocks until the operation exits and returns its exit code.
	Wait() int
	// CollectOutput blocks up to timeout for the operation to finish, then
	// returns the combined output captured so far. The bool reports whether
	// the timeout fired, in which case the operation was forcibly stopped
	// and the output may be partial.
	CollectOutput(timeout time.Duration) ([]byte, bool)
}

// Executor starts a named command on a named host.
type Executor interface {
	Start(ctx context.Context, host inventory.HostIdentity, command string) (Handle, error)
	Name() string
}

// lockedBuffer is a mutex-guarded output buffer shared between the process
// goroutine and CollectOutput callers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}
