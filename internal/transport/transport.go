// Package transport owns the connection to one cluster server: dialing,
// the login handshake and line framing.
package transport

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Conn yields cleaned protocol lines.
type Conn interface {
	// NextLine blocks until a complete line arrives. timeout > 0 bounds the
	// wait and yields errors.ErrStalled on expiry. Sources where silence is
	// normal, such as a followed file, may ignore it.
	NextLine(timeout time.Duration) (string, error)
	Close() error
}

// Dialer opens a fresh Conn, handshake included.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DefaultPrompts are the login prompt substrings printed by the supported
// cluster flavors.
var DefaultPrompts = PromptMatcher{
	"login:",
	"please enter your call",
	"enter your callsign",
	"callsign:",
}

// PromptMatcher matches a login prompt by case-insensitive substring.
type PromptMatcher []string

// Match reports whether line contains one of the prompts.
func (m PromptMatcher) Match(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range m {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Config describes one server endpoint and its handshake.
type Config struct {
	Host string
	Port int
	// Login is the callsign written once the prompt shows up. An empty
	// Login skips the handshake.
	Login   string
	Prompts PromptMatcher
	// LoginGrace is how long to wait for a prompt before sending the login
	// anyway.
	LoginGrace  time.Duration
	DialTimeout time.Duration
	Logger      *zap.SugaredLogger
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if len(c.Prompts) == 0 {
		c.Prompts = DefaultPrompts
	}
	if c.LoginGrace <= 0 {
		c.LoginGrace = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// TCPDialer dials cluster servers over TCP.
type TCPDialer struct {
	Config Config
}

func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	return Dial(ctx, d.Config)
}
