// Package supervisor keeps one cluster session alive: it dials, reads lines
// until the connection drops or goes quiet, and reconnects with exponential
// backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/livp123/dxwatch/internal/transport"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"go.uber.org/zap"
)

// State is the connection state of a supervised session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backoff configures reconnect delays.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff is 1s doubling up to one minute.
var DefaultBackoff = Backoff{Initial: time.Second, Max: time.Minute, Multiplier: 2}

// Next returns the delay before reconnect attempt n (1-based):
// min(Initial * Multiplier^(n-1), Max). It never decreases as n grows.
func (b Backoff) Next(n int) time.Duration {
	policy := b.exponential()
	delay := policy.NextBackOff()
	for i := 1; i < n; i++ {
		delay = policy.NextBackOff()
	}
	return delay
}

// exponential returns a policy without jitter that never gives up: the
// attempt limit is MaxAttempts, not elapsed time.
func (b Backoff) exponential() *backoff.ExponentialBackOff {
	b = b.withDefaults()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.Initial
	policy.MaxInterval = b.Max
	policy.Multiplier = b.Multiplier
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

func (b Backoff) withDefaults() Backoff {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max <= 0 {
		b.Max = DefaultBackoff.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultBackoff.Multiplier
	}
	return b
}

// Stats is a point-in-time view of a supervisor.
type Stats struct {
	State       State
	Retries     int
	LastLine    time.Time
	Connects    uint64
	Disconnects uint64
}

// Handler consumes one cleaned line. Returning errors.ErrChannelClosed stops
// the supervisor cleanly; any other error stops it with that error.
type Handler func(line string) error

// Supervisor drives a transport.Dialer through the
// Disconnected → Connecting → Connected cycle.
type Supervisor struct {
	Dialer transport.Dialer
	// StallTimeout is the longest silence tolerated on a connected session.
	// Zero disables stall detection.
	StallTimeout time.Duration
	Backoff      Backoff
	// MaxAttempts caps consecutive failed dials. Zero means unlimited.
	MaxAttempts int
	Logger      *zap.SugaredLogger
	// OnStateChange is called synchronously from Run on every transition.
	OnStateChange func(from, to State)

	mu    sync.Mutex
	stats Stats
}

// Stats returns a snapshot.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.State
}

func (s *Supervisor) setState(to State) {
	s.mu.Lock()
	from := s.stats.State
	s.stats.State = to
	s.mu.Unlock()
	if from != to && s.OnStateChange != nil {
		s.OnStateChange(from, to)
	}
}

func (s *Supervisor) update(fn func(st *Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Run blocks until ctx is cancelled, the handler asks to stop, the source
// ends, or MaxAttempts consecutive dials fail. Transport failures never end
// the run. It returns nil on a clean stop.
func (s *Supervisor) Run(ctx context.Context, handle Handler) error {
	log := s.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	policy := s.Backoff.exponential()

	retries := 0
	failedDials := 0
	for {
		if retries > 0 {
			delay := policy.NextBackOff()
			log.Infof("🔄 Reconnecting in %v (attempt %d)", delay, retries)
			if !sleep(ctx, delay) {
				s.setState(Stopped)
				return nil
			}
		}

		s.setState(Connecting)
		conn, err := s.Dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(Stopped)
				return nil
			}
			retries++
			failedDials++
			s.update(func(st *Stats) { st.Retries = retries })
			s.setState(Disconnected)
			log.Warnf("⚠️  Connect failed: %v", err)
			if s.MaxAttempts > 0 && failedDials >= s.MaxAttempts {
				s.setState(Stopped)
				return fmt.Errorf("%w: %d: %v", dxerr.ErrMaxAttempts, failedDials, err)
			}
			continue
		}

		retries, failedDials = 0, 0
		policy.Reset()
		s.update(func(st *Stats) {
			st.Retries = 0
			st.Connects++
		})
		s.setState(Connected)
		log.Info("✅ Connected")

		err = s.read(ctx, conn, handle)
		conn.Close()

		switch {
		case ctx.Err() != nil, errors.Is(err, dxerr.ErrChannelClosed):
			s.setState(Stopped)
			return nil
		case errors.Is(err, dxerr.ErrEndOfStream):
			log.Info("🛑 Source ended")
			s.setState(Stopped)
			return nil
		case dxerr.IsTransient(err):
			retries = 1
			s.update(func(st *Stats) {
				st.Retries = retries
				st.Disconnects++
			})
			s.setState(Disconnected)
			log.Warnf("⚠️  Session dropped: %v", err)
		default:
			s.setState(Stopped)
			return err
		}
	}
}

// read pumps lines from conn into handle until either fails.
func (s *Supervisor) read(ctx context.Context, conn transport.Conn, handle Handler) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		line, err := conn.NextLine(s.StallTimeout)
		if err != nil {
			return err
		}
		now := time.Now()
		s.update(func(st *Stats) { st.LastLine = now })
		if err := handle(line); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
