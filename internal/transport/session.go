package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"go.uber.org/zap"
)

const readChunk = 4096

// Session is one TCP connection to a cluster server that has completed the
// login handshake.
type Session struct {
	conn   net.Conn
	addr   string
	logger *zap.SugaredLogger

	buf     []byte // filtered bytes not yet framed into a line
	chunk   []byte
	iac     iacFilter
	pending []string // lines received before the login prompt
	err     error    // sticky read error

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the server and performs the login handshake.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	addr := cfg.Addr()

	d := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, dxerr.NewConnectError(addr, err)
	}

	s := newSession(conn, addr, cfg.Logger)
	if cfg.Login == "" {
		return s, nil
	}
	if err := s.handshake(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newSession(conn net.Conn, addr string, logger *zap.SugaredLogger) *Session {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Session{
		conn:   conn,
		addr:   addr,
		logger: logger,
		chunk:  make([]byte, readChunk),
	}
}

// handshake waits for a prompt and answers it with the login. Prompts are
// usually not newline terminated, so the pending partial line is checked
// too. Without a prompt the login goes out when LoginGrace expires.
func (s *Session) handshake(ctx context.Context, cfg Config) error {
	deadline := time.Now().Add(cfg.LoginGrace)
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		for {
			line, ok := s.popLine()
			if !ok {
				break
			}
			if cfg.Prompts.Match(line) {
				s.logger.Debugf("login prompt from %s: %q", s.addr, line)
				return s.login(cfg)
			}
			s.pending = append(s.pending, line)
		}
		if len(s.buf) > 0 && cfg.Prompts.Match(cleanLine(s.buf)) {
			s.logger.Debugf("login prompt from %s: %q", s.addr, cleanLine(s.buf))
			s.buf = s.buf[:0]
			return s.login(cfg)
		}
		if !time.Now().Before(deadline) {
			s.logger.Debugf("no login prompt from %s within %v, sending login", s.addr, cfg.LoginGrace)
			return s.login(cfg)
		}

		s.conn.SetReadDeadline(deadline)
		// A cancel that fired before the line above had its deadline replaced.
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.fill(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isTimeout(err) {
				continue
			}
			return s.readError(err)
		}
	}
}

func (s *Session) login(cfg Config) error {
	if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
		return dxerr.NewIOError("clear deadline", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(cfg.DialTimeout))
	defer s.conn.SetWriteDeadline(time.Time{})

	if _, err := io.WriteString(s.conn, cfg.Login+"\r\n"); err != nil {
		return s.readError(err)
	}
	return nil
}

// NextLine returns the next cleaned line. Lines seen before the login prompt
// come first. A partial line left when the connection drops is discarded.
func (s *Session) NextLine(timeout time.Duration) (string, error) {
	if len(s.pending) > 0 {
		line := s.pending[0]
		s.pending = s.pending[1:]
		return line, nil
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return "", s.readError(err)
	}

	for {
		if line, ok := s.popLine(); ok {
			return line, nil
		}
		if s.err != nil {
			return "", s.err
		}
		if err := s.fill(); err != nil {
			if isTimeout(err) {
				return "", dxerr.ErrStalled
			}
			// Complete lines that arrived with the error are still served.
			s.err = s.readError(err)
		}
	}
}

// Close closes the socket. It is safe to call from another goroutine to
// unblock a pending read.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RemoteAddr returns the server address.
func (s *Session) RemoteAddr() string {
	return s.addr
}

func (s *Session) fill() error {
	n, err := s.conn.Read(s.chunk)
	if n > 0 {
		s.buf = s.iac.appendTo(s.buf, s.chunk[:n])
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	return nil
}

func (s *Session) popLine() (string, bool) {
	idx := bytes.IndexByte(s.buf, '\n')
	if idx < 0 {
		return "", false
	}
	line := cleanLine(s.buf[:idx])
	s.buf = append(s.buf[:0], s.buf[idx+1:]...)
	return line, true
}

func (s *Session) readError(err error) error {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return dxerr.ErrConnectionLost
	}
	return dxerr.NewIOError("read "+s.addr, err)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
