// Package dispatch hands parsed spots to the consumer through a bounded
// channel.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
)

// DefaultCapacity is the spot channel size when none is configured.
const DefaultCapacity = 256

// Diagnostic describes a candidate line the parser rejected.
type Diagnostic struct {
	Line string
	Err  error
}

// Counters are the dispatcher's running totals.
type Counters struct {
	Published          uint64
	Blocked            uint64
	DroppedDiagnostics uint64
}

// Dispatcher is written to by exactly one producer. The consumer reads
// Spots() and may call Close at any time.
type Dispatcher struct {
	spots chan spot.Spot
	diags chan Diagnostic

	done      chan struct{}
	closeOnce sync.Once
	finOnce   sync.Once

	published atomic.Uint64
	blocked   atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a dispatcher. capacity <= 0 uses DefaultCapacity. With
// diagnostics false, Report is a no-op and Diagnostics returns nil.
func New(capacity int, diagnostics bool) *Dispatcher {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	d := &Dispatcher{
		spots: make(chan spot.Spot, capacity),
		done:  make(chan struct{}),
	}
	if diagnostics {
		d.diags = make(chan Diagnostic, capacity)
	}
	return d
}

// Spots is the consumer end. It is closed only by Finish.
func (d *Dispatcher) Spots() <-chan spot.Spot { return d.spots }

// Diagnostics is nil when diagnostics are disabled.
func (d *Dispatcher) Diagnostics() <-chan Diagnostic { return d.diags }

// Done is closed once the consumer has called Close.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Publish delivers s, waiting while the channel is full. It returns
// errors.ErrChannelClosed once the consumer has gone away and ctx.Err() if
// ctx ends first. Spots are never dropped.
func (d *Dispatcher) Publish(ctx context.Context, s spot.Spot) error {
	select {
	case <-d.done:
		return dxerr.ErrChannelClosed
	default:
	}

	select {
	case d.spots <- s:
		d.published.Add(1)
		return nil
	default:
	}

	d.blocked.Add(1)
	select {
	case d.spots <- s:
		d.published.Add(1)
		return nil
	case <-d.done:
		return dxerr.ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report offers a diagnostic without blocking; it is dropped when the
// consumer is not keeping up.
func (d *Dispatcher) Report(diag Diagnostic) {
	if d.diags == nil {
		return
	}
	select {
	case <-d.done:
		return
	default:
	}
	select {
	case d.diags <- diag:
	default:
		d.dropped.Add(1)
	}
}

// Close is called by the consumer to stop receiving. Safe to call more than
// once and concurrently with Publish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

// Finish is called by the producer when it will publish no more. It closes
// the consumer channels.
func (d *Dispatcher) Finish() {
	d.finOnce.Do(func() {
		close(d.spots)
		if d.diags != nil {
			close(d.diags)
		}
	})
}

// Counters returns a snapshot of the totals.
func (d *Dispatcher) Counters() Counters {
	return Counters{
		Published:          d.published.Load(),
		Blocked:            d.blocked.Load(),
		DroppedDiagnostics: d.dropped.Load(),
	}
}
