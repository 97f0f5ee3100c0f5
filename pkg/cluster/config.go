package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/livp123/dxwatch/internal/dispatch"
	"github.com/livp123/dxwatch/internal/supervisor"
	"github.com/livp123/dxwatch/internal/transport"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
)

// Defaults applied by New for zero-valued fields.
const (
	DefaultStallTimeout = 5 * time.Minute
	DefaultLoginGrace   = 5 * time.Second
	DefaultDialTimeout  = 10 * time.Second
)

// Config describes one cluster session.
type Config struct {
	// Name labels logs and metrics. Defaults to host:port.
	Name string
	Host string
	Port int
	// Callsign is the login identity sent after the prompt.
	Callsign string
	// Format overrides banner detection for conventional spots.
	Format spot.Format
	// Prompts extends the built-in login prompt list.
	Prompts []string

	LoginGrace        time.Duration
	DialTimeout       time.Duration
	StallTimeout      time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
	// MaxAttempts caps consecutive failed dials; 0 retries forever.
	MaxAttempts int

	ChannelCapacity int
	Diagnostics     bool
}

// Validate checks the fields needed to reach a TCP server.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: empty", dxerr.ErrInvalidHost)
	}
	if c.Port < 1 || c.Port > 65535 {
		return dxerr.NewPortError(c.Port)
	}
	if !ValidCallsign(c.Callsign) {
		return fmt.Errorf("%w: %q", dxerr.ErrInvalidCallsign, c.Callsign)
	}
	return c.validateTuning()
}

func (c Config) validateTuning() error {
	if c.StallTimeout < 0 {
		return dxerr.NewConfigError("stall_timeout", c.StallTimeout)
	}
	if c.BackoffInitial < 0 || c.BackoffMax < 0 {
		return dxerr.NewConfigError("backoff", fmt.Sprintf("%v..%v", c.BackoffInitial, c.BackoffMax))
	}
	if c.BackoffMax > 0 && c.BackoffInitial > c.BackoffMax {
		return dxerr.NewConfigError("backoff_initial", c.BackoffInitial)
	}
	if c.MaxAttempts < 0 {
		return dxerr.NewConfigError("max_attempts", c.MaxAttempts)
	}
	if c.ChannelCapacity < 0 {
		return dxerr.NewConfigError("channel_capacity", c.ChannelCapacity)
	}
	return nil
}

// ValidCallsign accepts letters and digits with optional '/' and '-'
// separators, as used for login identities (N0CALL, DL1ABC-2, W1AW/P).
func ValidCallsign(call string) bool {
	if call == "" || len(call) > 20 {
		return false
	}
	for _, r := range call {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '/' || r == '-':
		default:
			return false
		}
	}
	return true
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = c.Addr()
	}
	if c.StallTimeout == 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	if c.LoginGrace <= 0 {
		c.LoginGrace = DefaultLoginGrace
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = dispatch.DefaultCapacity
	}
	return c
}

// Addr is the host:port of the cluster.
func (c Config) Addr() string { return c.transport().Addr() }

func (c Config) transport() transport.Config {
	prompts := append(transport.PromptMatcher{}, transport.DefaultPrompts...)
	prompts = append(prompts, c.Prompts...)
	return transport.Config{
		Host:        c.Host,
		Port:        c.Port,
		Login:       c.Callsign,
		Prompts:     prompts,
		LoginGrace:  c.LoginGrace,
		DialTimeout: c.DialTimeout,
	}
}

func (c Config) backoff() supervisor.Backoff {
	return supervisor.Backoff{
		Initial:    c.BackoffInitial,
		Max:        c.BackoffMax,
		Multiplier: c.BackoffMultiplier,
	}
}
