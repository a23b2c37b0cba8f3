// Package ssh implements the transport.Transport contract over an
// interactive SSH shell channel, authenticated with a username and
// password.
package ssh

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rechermann/puttygo/transport"
)

// dialTimeout bounds the initial TCP+handshake phase of Connect.
const dialTimeout = 10 * time.Second

// ptyTerm, ptyCols and ptyRows are the default PTY parameters requested
// for the remote shell, per spec.md §4.1.
const (
	ptyTerm = "xterm"
	ptyCols = 80
	ptyRows = 24
)

// Transport drives one SSH session: TCP dial, password auth, PTY
// request, and an interactive shell. Read and write operate on the
// session channel's raw stream.
type Transport struct {
	cfg transport.SSHConfig

	mu        sync.Mutex
	client    *ssh.Client
	session   *ssh.Session
	stdin     io.WriteCloser
	stdout    io.Reader
	connected bool
}

// New constructs a Transport for cfg. Connect must be called before any
// Read or Write.
func New(cfg transport.SSHConfig) *Transport {
	return &Transport{cfg: cfg}
}

// Connect dials the host, authenticates, requests a PTY, and starts a
// shell. On any failure the transport is left disconnected and any
// partially-opened resources are released.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	clientCfg := &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(t.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(t.cfg.Host, fmt.Sprintf("%d", t.cfg.Port))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Errorf("ssh: dial %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("ssh: open session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := session.RequestPty(ptyTerm, ptyRows, ptyCols, modes); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("ssh: request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("ssh: stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("ssh: stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("ssh: start shell: %w", err)
	}

	t.client = client
	t.session = session
	t.stdin = stdin
	t.stdout = stdout
	t.connected = true
	return nil
}

// Disconnect closes the session and the underlying client. Idempotent.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}
	var err error
	if t.session != nil {
		err = t.session.Close()
	}
	if t.client != nil {
		if cerr := t.client.Close(); err == nil {
			err = cerr
		}
	}
	t.session = nil
	t.client = nil
	t.stdin = nil
	t.stdout = nil
	t.connected = false
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Read reads from the shell channel's stdout stream. The SSH channel
// has no notion of a read timeout, so Read simply blocks until at
// least one byte arrives or the channel closes; the worker's dedicated
// reader goroutine is what keeps a blocked Read from stalling control
// events for the rest of the connection.
func (t *Transport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	stdout := t.stdout
	t.mu.Unlock()
	if stdout == nil {
		return 0, errors.New("ssh: read before connect")
	}
	n, err := stdout.Read(buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Write blocks until buf has been fully written to the shell's stdin.
func (t *Transport) Write(buf []byte) error {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return errors.New("ssh: write before connect")
	}
	_, err := stdin.Write(buf)
	return err
}

// IsConnected reports whether Connect has succeeded and Disconnect has
// not yet been called.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}
