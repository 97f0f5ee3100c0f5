package cluster

import (
	"context"

	"github.com/livp123/dxwatch/pkg/spot"
)

// Record runs a session and calls fn for every spot until ctx is done or the
// session gives up. fn runs on the calling goroutine; while it is busy the
// session applies backpressure.
func Record(ctx context.Context, cfg Config, fn func(spot.Spot), opts ...Option) error {
	l, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	stream, err := l.Listen(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for s := range stream.Spots() {
		fn(s)
	}
	return l.Wait()
}
