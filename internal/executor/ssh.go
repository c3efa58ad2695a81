package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/fieldway/fleet-provisioner/internal/inventory"
	"github.com/fieldway/fleet-provisioner/internal/logging"
)

const sshDialTimeout = 20 * time.Second

// SSH runs the remote command over a direct SSH connection, for
// environments without the gcloud binary. The host's instance name must be
// resolvable as an SSH hostname.
type SSH struct {
	user     string
	keyPath  string
	password string
	port     int
	log      *logging.Logger
}

// NewSSH creates the direct SSH transport. Auth prefers the key file when
// given, falling back to password auth.
func NewSSH(user, keyPath, password string, port int, log *logging.Logger) *SSH {
	if port <= 0 {
		port = 22
	}
	return &SSH{user: user, keyPath: keyPath, password: password, port: port, log: log}
}

func (s *SSH) Name() string { return "ssh" }

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.keyPath != "" {
		keyData, err := os.ReadFile(s.keyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.password != "" {
		auth = append(auth, ssh.Password(s.password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh transport needs --ssh-key or a password")
	}
	return &ssh.ClientConfig{
		User:            s.user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	}, nil
}

// Start dials the host, opens a session, and starts the command. The
// returned handle owns the connection and closes it once the command exits
// or output collection gives up on it.
func (s *SSH) Start(ctx context.Context, host inventory.HostIdentity, command string) (Handle, error) {
	cfg, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(host.Name, strconv.Itoa(s.port))
	s.log.Debug("dialing ssh", "host", host.String(), "addr", addr)
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open session on %s: %w", addr, err)
	}

	buf := &lockedBuffer{}
	session.Stdout = buf
	session.Stderr = buf
	if err := session.Start(command); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("start command on %s: %w", addr, err)
	}

	h := &sshHandle{client: client, session: session, buf: buf, done: make(chan struct{})}
	go func() {
		h.exit = sshExitCode(session.Wait())
		session.Close()
		client.Close()
		close(h.done)
	}()
	return h, nil
}

// sshHandle wraps a running SSH session as a Handle.
type sshHandle struct {
	client  *ssh.Client
	session *ssh.Session
	buf     *lockedBuffer
	done    chan struct{}
	exit    int

	closeOnce sync.Once
}

func (h *sshHandle) Wait() int {
	<-h.done
	return h.exit
}

func (h *sshHandle) CollectOutput(timeout time.Duration) ([]byte, bool) {
	select {
	case <-h.done:
		return h.buf.Bytes(), false
	case <-time.After(timeout):
		// Tearing down the connection unblocks session.Wait. The remote
		// command may keep running on the host.
		h.closeOnce.Do(func() { h.client.Close() })
		<-h.done
		return h.buf.Bytes(), true
	}
}

func sshExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}
