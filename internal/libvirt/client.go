package libvirt

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket"
	"github.com/digitalocean/go-libvirt/socket/dialers"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/jbweber/herd/internal/errdefs"
	"github.com/jbweber/herd/internal/storage"
)

// Transport selects how a session reaches libvirtd.
type Transport string

const (
	// TransportSSH tunnels to the remote libvirt socket over SSH.
	TransportSSH Transport = "ssh"
	// TransportUnix uses a libvirt socket on the local machine.
	TransportUnix Transport = "unix"
)

const (
	DefaultSocket  = "/var/run/libvirt/libvirt-sock"
	DefaultSSHPort = 22
	DefaultTimeout = 10 * time.Second
)

// Options configure a Connector.
type Options struct {
	Transport Transport

	// SSH transport.
	Host            string
	Port            int
	Username        string
	Password        string
	KeyFile         string
	KnownHosts      string
	InsecureHostKey bool

	// Socket is the libvirt socket path, on the remote host for ssh.
	Socket  string
	Timeout time.Duration

	// Pool is the storage pool disk volumes are created in.
	Pool string
}

func (o Options) withDefaults() Options {
	if o.Transport == "" {
		o.Transport = TransportSSH
	}
	if o.Port == 0 {
		o.Port = DefaultSSHPort
	}
	if o.Socket == "" {
		o.Socket = DefaultSocket
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Connector opens sessions against one libvirt daemon.
type Connector struct {
	opts   Options
	logger *zap.Logger
}

// NewConnector returns a Connector for opts. Unset options take their defaults.
func NewConnector(opts Options, logger *zap.Logger) *Connector {
	return &Connector{
		opts:   opts.withDefaults(),
		logger: logger.With(zap.String("component", "libvirt")),
	}
}

// Target describes the daemon the connector dials, for logs and errors.
func (c *Connector) Target() string {
	if c.opts.Transport == TransportUnix {
		return "unix://" + c.opts.Socket
	}
	return fmt.Sprintf("ssh://%s@%s:%d%s", c.opts.Username, c.opts.Host, c.opts.Port, c.opts.Socket)
}

// closingDialer is a socket.Dialer that owns resources beyond the libvirt
// connection itself.
type closingDialer interface {
	socket.Dialer
	Close() error
}

// Connect dials the daemon and opens qemu:///system. The returned Session
// must be closed by the caller. Any failure is an errdefs.ConnectionError.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	target := c.Target()

	dialer, err := c.dialer()
	if err != nil {
		return nil, &errdefs.ConnectionError{Target: target, Err: err}
	}

	type result struct {
		l   *libvirt.Libvirt
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		l := libvirt.NewWithDialer(dialer)
		if err := l.ConnectToURI(libvirt.QEMUSystem); err != nil {
			resultCh <- result{err: err}
			return
		}
		resultCh <- result{l: l}
	}()

	var res result
	select {
	case <-ctx.Done():
		// Release the connection if the dial completes after we gave up.
		go func() {
			if r := <-resultCh; r.l != nil {
				_ = r.l.Disconnect()
			}
			closeDialer(dialer)
		}()
		return nil, &errdefs.ConnectionError{Target: target, Err: fmt.Errorf("connection cancelled: %w", ctx.Err())}
	case res = <-resultCh:
	}

	if res.err != nil {
		closeDialer(dialer)
		return nil, &errdefs.ConnectionError{Target: target, Err: res.err}
	}

	c.logger.Debug("connected to libvirt", zap.String("target", target))

	l := res.l
	closer := func() error {
		err := l.Disconnect()
		closeDialer(dialer)
		if err != nil {
			return fmt.Errorf("failed to disconnect from libvirt: %w", err)
		}
		return nil
	}

	return newSession(l, storage.NewManager(l), c.opts.Pool, closer, c.logger), nil
}

func (c *Connector) dialer() (socket.Dialer, error) {
	switch c.opts.Transport {
	case TransportUnix:
		return dialers.NewLocal(
			dialers.WithSocket(c.opts.Socket),
			dialers.WithLocalTimeout(c.opts.Timeout),
		), nil
	case TransportSSH:
		cfg, err := c.sshConfig()
		if err != nil {
			return nil, err
		}
		return &sshDialer{
			addr:   net.JoinHostPort(c.opts.Host, fmt.Sprint(c.opts.Port)),
			config: cfg,
			socket: c.opts.Socket,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", c.opts.Transport)
	}
}

func (c *Connector) sshConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	if c.opts.KeyFile != "" {
		keyPath, err := expandHome(c.opts.KeyFile)
		if err != nil {
			return nil, err
		}
		keyBytes, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.opts.Password != "" {
		auth = append(auth, ssh.Password(c.opts.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH credentials: set a password or a private key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.opts.InsecureHostKey {
		c.logger.Warn("SSH host key verification disabled", zap.String("host", c.opts.Host))
	} else {
		path := c.opts.KnownHosts
		if path == "" {
			path = "~/.ssh/known_hosts"
		}
		path, err := expandHome(path)
		if err != nil {
			return nil, err
		}
		hostKeyCallback, err = knownhosts.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts %s: %w", path, err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.opts.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.Timeout,
	}, nil
}

// sshDialer opens an SSH connection and forwards to the remote libvirt socket.
type sshDialer struct {
	addr   string
	config *ssh.ClientConfig
	socket string

	mu     sync.Mutex
	client *ssh.Client
}

// Dial implements socket.Dialer.
func (d *sshDialer) Dial() (net.Conn, error) {
	client, err := ssh.Dial("tcp", d.addr, d.config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.addr, err)
	}

	conn, err := client.Dial("unix", d.socket)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach %s on %s: %w", d.socket, d.addr, err)
	}

	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
	return conn, nil
}

// Close closes the SSH connection. It is safe to call more than once.
func (d *sshDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

func closeDialer(d socket.Dialer) {
	if cd, ok := d.(closingDialer); ok {
		_ = cd.Close()
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
