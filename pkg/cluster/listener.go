// Package cluster runs a complete DX cluster session: connect, log in, read
// lines, parse spot announcements and deliver them on a bounded channel,
// reconnecting as needed.
package cluster

import (
	"context"
	"errors"
	"sync"

	"github.com/livp123/dxwatch/internal/dispatch"
	"github.com/livp123/dxwatch/internal/metrics"
	"github.com/livp123/dxwatch/internal/supervisor"
	"github.com/livp123/dxwatch/internal/transport"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
	"go.uber.org/zap"
)

// Diagnostic is a rejected spot candidate, delivered when Config.Diagnostics
// is set.
type Diagnostic = dispatch.Diagnostic

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the session logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(l *Listener) { l.log = log }
}

// WithDialer replaces the TCP dialer, e.g. with a replay source. Host, Port
// and Callsign are not validated when a dialer is given.
func WithDialer(d transport.Dialer) Option {
	return func(l *Listener) { l.dialer = d }
}

// WithMetrics records session metrics under Config.Name.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Listener) { l.metrics = c }
}

// Stats combines supervisor and delivery counters.
type Stats struct {
	supervisor.Stats
	dispatch.Counters
	Format      spot.Format
	Ignored     uint64
	ParseErrors uint64
}

// Listener owns one cluster session. It can be started once.
type Listener struct {
	cfg     Config
	log     *zap.SugaredLogger
	dialer  transport.Dialer
	metrics *metrics.Collector
	sup     *supervisor.Supervisor

	mu          sync.Mutex
	started     bool
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	err         error
	disp        *dispatch.Dispatcher
	format      spot.Format
	ignored     uint64
	parseErrors uint64
}

// New validates cfg and prepares a listener.
func New(cfg Config, opts ...Option) (*Listener, error) {
	l := &Listener{}
	for _, opt := range opts {
		opt(l)
	}

	if l.dialer == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	} else if err := cfg.validateTuning(); err != nil {
		return nil, err
	}

	l.cfg = cfg.withDefaults()
	l.format = l.cfg.Format
	if l.log == nil {
		l.log = zap.NewNop().Sugar()
	}
	if l.dialer == nil {
		tc := l.cfg.transport()
		tc.Logger = l.log
		l.dialer = transport.TCPDialer{Config: tc}
	}

	l.sup = &supervisor.Supervisor{
		Dialer:        l.dialer,
		StallTimeout:  l.cfg.StallTimeout,
		Backoff:       l.cfg.backoff(),
		MaxAttempts:   l.cfg.MaxAttempts,
		Logger:        l.log,
		OnStateChange: l.stateChanged,
	}
	l.done = make(chan struct{})
	return l, nil
}

// Name returns the configured or derived session name.
func (l *Listener) Name() string { return l.cfg.Name }

// Listen starts the session goroutine and returns the consumer end.
// Cancelling ctx, calling Stop or closing the Stream ends the session.
func (l *Listener) Listen(ctx context.Context) (*Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil, dxerr.ErrAlreadyRunning
	}
	l.started = true
	l.running = true

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.disp = dispatch.New(l.cfg.ChannelCapacity, l.cfg.Diagnostics)
	d := l.disp

	// The consumer closing its end also unblocks a read.
	go func() {
		select {
		case <-d.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer close(l.done)
		defer d.Finish()

		l.log.Infof("🚀 Starting cluster session %s", l.cfg.Name)
		err := l.sup.Run(ctx, l.handler(ctx, d))
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			l.log.Errorf("❌ Cluster session %s ended: %v", l.cfg.Name, err)
		} else {
			l.log.Infof("🛑 Cluster session %s stopped", l.cfg.Name)
		}

		l.mu.Lock()
		l.err = err
		l.running = false
		l.mu.Unlock()
		cancel()
	}()

	return &Stream{d: d}, nil
}

// Stop requests shutdown without waiting.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the session goroutine has exited and returns its error:
// nil on a requested stop, errors.ErrMaxAttempts when it gave up.
func (l *Listener) Wait() error {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return nil
	}
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Done is closed when the session goroutine exits.
func (l *Listener) Done() <-chan struct{} { return l.done }

// IsRunning reports whether the session goroutine is alive.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// State returns the connection state.
func (l *Listener) State() supervisor.State {
	return l.sup.State()
}

// Format returns the configured or detected server flavor.
func (l *Listener) Format() spot.Format {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.format
}

// Stats returns a snapshot.
func (l *Listener) Stats() Stats {
	st := Stats{Stats: l.sup.Stats()}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disp != nil {
		st.Counters = l.disp.Counters()
	}
	st.Format = l.format
	st.Ignored = l.ignored
	st.ParseErrors = l.parseErrors
	return st
}

func (l *Listener) stateChanged(from, to supervisor.State) {
	l.log.Debugf("State %s -> %s", from, to)
	if l.metrics == nil {
		return
	}
	name := l.cfg.Name
	l.metrics.SessionState.WithLabelValues(name).Set(float64(to))
	switch {
	case from == supervisor.Connecting && to == supervisor.Disconnected:
		l.metrics.ConnectFailures.WithLabelValues(name).Inc()
	case from == supervisor.Connected && to == supervisor.Disconnected:
		l.metrics.ReconnectsTotal.WithLabelValues(name).Inc()
	}
}

// handler turns lines into published spots. Parse failures never stop the
// session.
func (l *Listener) handler(ctx context.Context, d *dispatch.Dispatcher) supervisor.Handler {
	name := l.cfg.Name
	return func(line string) error {
		if l.metrics != nil {
			l.metrics.LinesTotal.WithLabelValues(name).Inc()
			l.metrics.LastLineSeconds.WithLabelValues(name).SetToCurrentTime()
		}

		c, ok := spot.Classify(line)
		if !ok {
			l.ignore(line)
			return nil
		}

		s, err := spot.Parse(c, l.Format())
		if err != nil {
			l.mu.Lock()
			l.parseErrors++
			l.mu.Unlock()
			if l.metrics != nil {
				l.metrics.ParseErrorsTotal.WithLabelValues(name, reasonLabel(err)).Inc()
			}
			l.log.Debugw("Dropped spot candidate", "line", line, "error", err)
			d.Report(Diagnostic{Line: line, Err: err})
			return nil
		}

		blocked := d.Counters().Blocked
		if err := d.Publish(ctx, s); err != nil {
			return err
		}
		if l.metrics != nil {
			l.metrics.SpotsTotal.WithLabelValues(name, s.Format.String()).Inc()
			if d.Counters().Blocked > blocked {
				l.metrics.BlockedPublishes.WithLabelValues(name).Inc()
			}
		}
		return nil
	}
}

func (l *Listener) ignore(line string) {
	l.mu.Lock()
	l.ignored++
	detect := l.format == spot.FormatUnknown
	l.mu.Unlock()
	if l.metrics != nil {
		l.metrics.IgnoredTotal.WithLabelValues(l.cfg.Name).Inc()
	}
	if !detect {
		return
	}
	if f, ok := spot.DetectFormat(line); ok {
		l.mu.Lock()
		l.format = f
		l.mu.Unlock()
		l.log.Infof("ℹ️  Detected server flavor: %s", f)
	}
}

func reasonLabel(err error) string {
	var pe *spot.ParseError
	if errors.As(err, &pe) && pe.Reason != nil {
		return pe.Reason.Error()
	}
	return "unknown"
}

// Stream is the consumer end of a session.
type Stream struct {
	d *dispatch.Dispatcher
}

// Spots delivers parsed spots in arrival order. It is closed when the
// session ends.
func (s *Stream) Spots() <-chan spot.Spot { return s.d.Spots() }

// Diagnostics delivers rejected candidates when enabled; nil otherwise.
func (s *Stream) Diagnostics() <-chan Diagnostic { return s.d.Diagnostics() }

// Close tells the session the consumer has gone away. The session closes its
// connection and ends; Spots is then closed.
func (s *Stream) Close() { s.d.Close() }
