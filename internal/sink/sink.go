// Package sink writes spots to their destinations: stdout, rotated files or
// any io.Writer.
package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/livp123/dxwatch/pkg/band"
	"github.com/livp123/dxwatch/pkg/spot"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Record is one delivered spot with its origin.
type Record struct {
	Cluster  string    `json:"cluster,omitempty"`
	Received time.Time `json:"received"`
	Band     string    `json:"band,omitempty"`
	spot.Spot
}

// NewRecord stamps s with the receive time and band.
func NewRecord(cluster string, s spot.Spot, now time.Time) Record {
	return Record{Cluster: cluster, Received: now.UTC(), Band: band.Name(s.FrequencyKHz), Spot: s}
}

// Sink consumes records. Implementations are safe for concurrent use.
type Sink interface {
	Write(r Record) error
	Close() error
}

// Formatter renders one record as a single line without the newline.
type Formatter func(r Record) ([]byte, error)

// JSON renders a record as one JSON object.
func JSON(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// Text renders a record in a column layout close to a cluster console.
func Text(r Record) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10.1f %-12s %-12s %-5s %-6s %-10s",
		r.FrequencyKHz, r.DXCall, r.Spotter, r.Time, r.Band, r.Format)
	if r.Comment != "" {
		b.WriteString(" ")
		b.WriteString(r.Comment)
	}
	if r.Locator != "" {
		b.WriteString(" [")
		b.WriteString(r.Locator)
		b.WriteString("]")
	}
	if r.Cluster != "" {
		b.WriteString(" <")
		b.WriteString(r.Cluster)
		b.WriteString(">")
	}
	return []byte(strings.TrimRight(b.String(), " ")), nil
}

// FormatterFor maps a configured output format name to a formatter.
func FormatterFor(name string) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "text":
		return Text, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
}

// WriterSink writes formatted lines to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format Formatter
}

func NewWriterSink(w io.Writer, format Formatter) *WriterSink {
	if format == nil {
		format = JSON
	}
	return &WriterSink{w: w, format: format}
}

func (s *WriterSink) Write(r Record) error {
	line, err := s.format(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}

// Close closes the writer when it is an io.Closer.
func (s *WriterSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FileConfig describes a rotated spot log.
type FileConfig struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// NewFileSink appends records to a file rotated by lumberjack.
func NewFileSink(cfg FileConfig, format Formatter) *WriterSink {
	return NewWriterSink(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}, format)
}

// Multi writes every record to all sinks and joins their errors.
type Multi []Sink

func (m Multi) Write(r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a callback to a Sink.
type Func func(r Record) error

func (f Func) Write(r Record) error { return f(r) }

func (f Func) Close() error { return nil }
