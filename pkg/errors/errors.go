package errors

import (
	"errors"
	"fmt"
)

// Transport and session errors.
var (
	ErrConnect        = errors.New("connect failed")
	ErrIO             = errors.New("I/O error")
	ErrConnectionLost = errors.New("connection lost")
	ErrStalled        = errors.New("connection stalled")
	ErrEndOfStream    = errors.New("end of stream")
	ErrMaxAttempts    = errors.New("maximum connect attempts reached")
	ErrChannelClosed  = errors.New("spot channel closed")
	ErrAlreadyRunning = errors.New("listener already running")
)

// Spot parse errors.
var (
	ErrBadFrequency     = errors.New("bad frequency")
	ErrMissingTimestamp = errors.New("missing timestamp")
	ErrBadCallsign      = errors.New("bad callsign")
	ErrMalformedSpot    = errors.New("malformed spot")
)

// Configuration errors.
var (
	ErrConfigNotFound    = errors.New("config not found")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrInvalidHost       = errors.New("invalid host")
	ErrInvalidPort       = errors.New("invalid port number")
	ErrInvalidCallsign   = errors.New("invalid callsign")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidExpression = errors.New("invalid filter expression")
)

func NewConnectError(addr string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
}

func NewIOError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}

func NewPortError(port int) error {
	return fmt.Errorf("%w: %d", ErrInvalidPort, port)
}

func NewDurationError(field, value string) error {
	return fmt.Errorf("%w: %s=%q", ErrInvalidDuration, field, value)
}

func NewExpressionError(expr string, err error) error {
	return fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
}

func NewConfigError(field string, value interface{}) error {
	return fmt.Errorf("%w: field=%s value=%v", ErrConfigInvalid, field, value)
}

// IsTransient reports whether err is a transport failure the supervisor
// recovers from by reconnecting.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConnect) ||
		errors.Is(err, ErrIO) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrStalled)
}

// IsParse reports whether err came from the spot parser.
func IsParse(err error) bool {
	return errors.Is(err, ErrBadFrequency) ||
		errors.Is(err, ErrMissingTimestamp) ||
		errors.Is(err, ErrBadCallsign) ||
		errors.Is(err, ErrMalformedSpot)
}
