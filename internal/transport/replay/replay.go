// Package replay feeds a recorded cluster session from a file into the
// pipeline, in place of a TCP connection.
package replay

import (
	"context"
	"io"
	"time"

	"github.com/livp123/dxwatch/internal/transport"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/nxadm/tail"
)

// Dialer opens the capture file on every Dial.
type Dialer struct {
	Path string
	// Follow keeps waiting for lines appended to the file, like tail -f.
	// A followed file never stalls: reopening it would replay it from the
	// start. Without Follow the stream ends at EOF with errors.ErrEndOfStream.
	Follow bool
	// FromEnd starts at the current end of the file (only useful with
	// Follow).
	FromEnd bool
	// Poll uses polling instead of inotify to watch the file.
	Poll bool
}

func (d Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := tail.Config{
		Follow:    d.Follow,
		ReOpen:    d.Follow, // survive log rotation of the capture
		MustExist: true,
		Poll:      d.Poll,
		Logger:    tail.DiscardingLogger,
	}
	if d.FromEnd {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(d.Path, cfg)
	if err != nil {
		return nil, dxerr.NewConnectError(d.Path, err)
	}
	return &conn{t: t, path: d.Path, follow: d.Follow}, nil
}

type conn struct {
	t      *tail.Tail
	path   string
	follow bool
}

func (c *conn) NextLine(timeout time.Duration) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 && !c.follow {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case line, ok := <-c.t.Lines:
		if !ok {
			return "", dxerr.ErrEndOfStream
		}
		if line.Err != nil {
			return "", dxerr.NewIOError("tail "+c.path, line.Err)
		}
		return transport.CleanText(line.Text), nil
	case <-expired:
		return "", dxerr.ErrStalled
	}
}

func (c *conn) Close() error {
	err := c.t.Stop()
	c.t.Cleanup()
	return err
}
