// Package dsn normalizes the three shapes a channel can be configured from
// — a URL string, a bare port number, or an explicit option struct — into one
// canonical Config, and derives the DSN string servers use as their default
// identity.
//
// Grounded on the original implementation's RpcChannel constructor
// (original_source/alar/rpc/channel.py), which accepts the same three input
// shapes; Go's static typing replaces the dynamic type-switch with three
// constructor functions.
package dsn

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Scheme identifies the transport.
type Scheme string

const (
	WS     Scheme = "ws"
	WSS    Scheme = "wss"
	WSUnix Scheme = "ws+unix"
)

// Config is the normalized channel configuration (spec.md §3 ChannelConfig).
type Config struct {
	Scheme   Scheme
	Host     string
	Port     int
	Path     string
	ID       string
	Secret   string
	Codec    string // always "JSON" in this implementation
	TLS      bool
	MaxDelay int // milliseconds
	Timeout  int // milliseconds, client-only
	ServerID string
}

const (
	defaultHost     = "localhost"
	defaultPort     = 80
	defaultPath     = "/"
	defaultMaxDelay = 5000
	defaultTimeout  = 5000
)

func defaults() Config {
	return Config{
		Scheme:   WS,
		Host:     defaultHost,
		Port:     defaultPort,
		Path:     defaultPath,
		Codec:    "JSON",
		MaxDelay: defaultMaxDelay,
		Timeout:  defaultTimeout,
	}
}

// FromPort builds a Config for a bare TCP port on the given host (host
// defaults to "localhost" when empty), mirroring the `options: int` case of
// the original constructor.
func FromPort(port int, host string) (*Config, error) {
	c := defaults()
	c.Scheme = WS
	if host != "" {
		c.Host = host
	}
	c.Port = port
	return finish(&c)
}

// FromURL parses a URL-shaped channel address. Absolute paths (starting
// with "/") and any string not prefixed "ws:" or "wss:" are treated as a
// unix-domain socket path, synthesized into a ws+unix:// URL first — exactly
// as the original RpcChannel constructor does, so that `app.Connect("/tmp/x.sock")`
// and `app.Connect("./relative.sock")` both work.
func FromURL(raw string) (*Config, error) {
	c := defaults()

	isAbsPath := strings.HasPrefix(raw, "/")
	if !strings.HasPrefix(raw, "ws:") && !strings.HasPrefix(raw, "wss:") {
		base := "ws+unix://localhost:80"
		if !isAbsPath {
			base += "/"
		}
		raw = base + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("dsn: invalid url %q: %w", raw, err)
	}

	isUnix := u.Scheme == string(WSUnix)
	c.Scheme = Scheme(u.Scheme)

	q := u.Query()
	if v := q.Get("id"); v != "" {
		c.ID = v
	}
	if v := q.Get("secret"); v != "" {
		c.Secret = v
	}
	if v := q.Get("codec"); v != "" {
		c.Codec = v
	}

	if isUnix {
		c.Host = ""
		c.Port = 0

		switch {
		case isAbsPath:
			c.Path = u.Path
		case u.Path != "/" && u.Path != "":
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("dsn: resolve cwd for relative ipc path: %w", err)
			}
			c.Path = filepath.Join(cwd, u.Path)
		default:
			return nil, fmt.Errorf("dsn: %w", errIPCRequiresPath)
		}
	} else {
		if u.Hostname() != "" {
			c.Host = u.Hostname()
		}
		if u.Port() != "" {
			fmt.Sscanf(u.Port(), "%d", &c.Port)
		}
		if u.Path != "" {
			c.Path = u.Path
		}
	}

	return finish(&c)
}

// FromOptions applies explicit overrides on top of the defaults, mirroring
// the `options: dict` case.
func FromOptions(opts Config) (*Config, error) {
	c := defaults()
	if opts.Scheme != "" {
		c.Scheme = opts.Scheme
	}
	if opts.Host != "" {
		c.Host = opts.Host
	}
	if opts.Port != 0 {
		c.Port = opts.Port
	}
	if opts.Path != "" {
		c.Path = opts.Path
	}
	c.ID = opts.ID
	c.Secret = opts.Secret
	if opts.Codec != "" {
		c.Codec = opts.Codec
	}
	c.TLS = opts.TLS
	if opts.MaxDelay != 0 {
		c.MaxDelay = opts.MaxDelay
	}
	if opts.Timeout != 0 {
		c.Timeout = opts.Timeout
	}
	c.ServerID = opts.ServerID
	return finish(&c)
}

var errIPCRequiresPath = fmt.Errorf("IPC requires a pathname")

func finish(c *Config) (*Config, error) {
	if c.Scheme == WSUnix && runtime.GOOS == "windows" {
		return nil, fmt.Errorf("dsn: IPC on Windows is currently not supported")
	}
	if c.Codec != "JSON" {
		return nil, fmt.Errorf("dsn: only 'JSON' is supported by this implementation, got %q", c.Codec)
	}
	if c.Scheme == WSS && !c.TLS {
		return nil, fmt.Errorf("dsn: 'tls' must be provided for 'wss' scheme")
	}
	return c, nil
}

// DSN derives the canonical server-identity string: "ipc:<path>" for a
// unix-domain socket, "rpc://<host>:<port>" otherwise.
func (c *Config) DSN() string {
	if c.Scheme == WSUnix {
		return "ipc:" + c.Path
	}
	return fmt.Sprintf("rpc://%s:%d", c.Host, c.Port)
}
