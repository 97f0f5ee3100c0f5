package metrics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/livp123/dxwatch/internal/utils/fileutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	"go.uber.org/zap"
)

// Exporter publishes a registry over HTTP, to a node_exporter textfile
// and/or to a Pushgateway. Empty fields disable the matching output.
type Exporter struct {
	Gatherer prometheus.Gatherer
	// Addr is the listen address of the /metrics endpoint.
	Addr string
	// TextfilePath is rewritten every Interval.
	TextfilePath string
	PushURL      string
	Job          string
	Interval     time.Duration
	Logger       *zap.SugaredLogger
}

// Handler serves g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Run blocks until ctx is done.
func (e *Exporter) Run(ctx context.Context) error {
	log := e.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if e.Gatherer == nil {
		e.Gatherer = prometheus.DefaultGatherer
	}

	// 1. HTTP endpoint
	var server *http.Server
	serveErr := make(chan error, 1)
	if e.Addr != "" {
		server = &http.Server{
			Addr:              e.Addr,
			Handler:           Handler(e.Gatherer),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("📊 Metrics server listening on %s", e.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("❌ Metrics server error: %v", err)
				serveErr <- err
			}
		}()
	}

	// 2. Periodic textfile and push exports
	var tick <-chan time.Time
	if e.TextfilePath != "" || e.PushURL != "" {
		interval := e.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// A failed endpoint does not stop the other exports; its error is
	// returned once ctx is done.
	var failed error
	for {
		select {
		case <-ctx.Done():
			e.export(log)
			if failed != nil {
				return fmt.Errorf("metrics server: %w", failed)
			}
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
			return nil
		case err := <-serveErr:
			failed = err
		case <-tick:
			e.export(log)
		}
	}
}

func (e *Exporter) export(log *zap.SugaredLogger) {
	if e.TextfilePath != "" {
		if err := WriteTextfile(e.TextfilePath, e.Gatherer); err != nil {
			log.Errorf("❌ Failed to write metrics textfile: %v", err)
		}
	}
	if e.PushURL != "" {
		job := e.Job
		if job == "" {
			job = "dxwatch"
		}
		if err := push.New(e.PushURL, job).Gatherer(e.Gatherer).Push(); err != nil {
			log.Errorf("❌ Could not push to Pushgateway: %v", err)
		}
	}
}

// WriteTextfile writes g to path in the text exposition format, replacing
// the file atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return fileutil.AtomicWriteFile(path, buf.Bytes(), 0644)
}
