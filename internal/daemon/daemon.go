package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/livp123/dxwatch/internal/config"
	"github.com/livp123/dxwatch/internal/filter"
	"github.com/livp123/dxwatch/internal/metrics"
	"github.com/livp123/dxwatch/internal/sink"
	"github.com/livp123/dxwatch/internal/transport"
	"github.com/livp123/dxwatch/internal/utils/fmtutil"
	"github.com/livp123/dxwatch/internal/utils/logger"
	"github.com/livp123/dxwatch/pkg/cluster"
	"github.com/livp123/dxwatch/pkg/spot"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Options customizes the daemon for embedding and tests.
// Options 用于嵌入和测试时定制守护进程。
type Options struct {
	// Stdout receives spot lines when output.stdout is set (default os.Stdout).
	// Stdout 在启用 output.stdout 时接收 spot 行（默认 os.Stdout）。
	Stdout io.Writer
	// Registerer and Gatherer default to a private registry.
	// Registerer 和 Gatherer 默认使用私有注册表。
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// DialerFor replaces the TCP dialer of every cluster.
	// DialerFor 替换每个集群的 TCP 拨号器。
	DialerFor func(cluster.Config) transport.Dialer
	// Signals replaces the OS signal channel.
	// Signals 替换操作系统信号通道。
	Signals <-chan os.Signal
}

// Daemon runs every configured cluster session and fans their spots into
// the configured sinks.
// Daemon 运行所有已配置的集群会话，并将 spot 汇入输出。
type Daemon struct {
	cfg      *config.GlobalConfig
	opts     Options
	clusters []cluster.Config
	filter   *filter.Holder
	sink     sink.Sink
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer

	mu        sync.Mutex
	listeners []*cluster.Listener
}

// New prepares the daemon. Nothing is dialed until Run.
// New 准备守护进程。在 Run 之前不会建立连接。
func New(cfg *config.GlobalConfig, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon: nil configuration")
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	reg, gatherer := opts.Registerer, opts.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg = r
		if gatherer == nil {
			gatherer = r
		}
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	f, err := filter.Compile(cfg.Filter)
	if err != nil {
		return nil, err
	}

	out, err := buildSink(cfg.Output, opts.Stdout)
	if err != nil {
		return nil, err
	}

	clusters := make([]cluster.Config, 0, len(cfg.Clusters))
	for i, cc := range cfg.Clusters {
		c, err := cc.Cluster()
		if err != nil {
			return nil, fmt.Errorf("clusters[%d]: %w", i, err)
		}
		if c.Name == "" {
			c.Name = c.Addr()
		}
		clusters = append(clusters, c)
	}

	return &Daemon{
		cfg:      cfg,
		opts:     opts,
		clusters: clusters,
		filter:   filter.NewHolder(f),
		sink:     out,
		metrics:  metrics.NewCollector(reg),
		gatherer: gatherer,
	}, nil
}

// stdoutWriter hides Close so the sink never closes the process stdout.
type stdoutWriter struct{ io.Writer }

func buildSink(cfg config.OutputConfig, stdout io.Writer) (sink.Sink, error) {
	format, err := sink.FormatterFor(cfg.Format)
	if err != nil {
		return nil, err
	}

	var sinks sink.Multi
	if cfg.Stdout {
		sinks = append(sinks, sink.NewWriterSink(stdoutWriter{stdout}, format))
	}
	if cfg.File.Enabled {
		sinks = append(sinks, sink.NewFileSink(sink.FileConfig{
			Path:       cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		}, format))
	}
	return sinks, nil
}

// Run blocks until ctx is cancelled or every session has ended. It returns
// the joined terminal errors of the sessions that gave up.
// Run 阻塞直到 ctx 被取消或所有会话结束，返回放弃重连的会话错误。
func (d *Daemon) Run(ctx context.Context) error {
	log := logger.Get(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		if err := d.sink.Close(); err != nil {
			log.Warnf("⚠️  Failed to close spot output: %v", err)
		}
	}()

	// 1. Prepare sessions / 准备会话
	listeners := make([]*cluster.Listener, 0, len(d.clusters))
	for _, c := range d.clusters {
		opts := []cluster.Option{
			cluster.WithLogger(logger.Named(ctx, c.Name)),
			cluster.WithMetrics(d.metrics),
		}
		if d.opts.DialerFor != nil {
			opts = append(opts, cluster.WithDialer(d.opts.DialerFor(c)))
		}
		l, err := cluster.New(c, opts...)
		if err != nil {
			return fmt.Errorf("cluster %s: %w", c.Name, err)
		}
		listeners = append(listeners, l)
	}
	d.mu.Lock()
	d.listeners = listeners
	d.mu.Unlock()

	if len(listeners) == 0 {
		log.Warn("⚠️  No cluster configured, nothing to do")
		return nil
	}

	// 2. Metrics exporter / 指标导出
	exporterDone := make(chan error, 1)
	if d.cfg.Metrics.Enabled {
		interval, err := time.ParseDuration(d.cfg.Metrics.PushInterval)
		if err != nil {
			interval = time.Minute
		}
		exp := &metrics.Exporter{
			Gatherer:     d.gatherer,
			Addr:         d.cfg.Metrics.Addr,
			TextfilePath: d.cfg.Metrics.TextfilePath,
			PushURL:      d.cfg.Metrics.PushGateway,
			Job:          "dxwatch",
			Interval:     interval,
			Logger:       log,
		}
		go func() { exporterDone <- exp.Run(ctx) }()
	} else {
		exporterDone <- nil
	}

	// 3. Start sessions and fan in / 启动会话并汇聚
	var wg sync.WaitGroup
	var errs []error
	for _, l := range listeners {
		stream, err := l.Listen(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("cluster %s: %w", l.Name(), err))
			continue
		}
		wg.Add(1)
		go func(l *cluster.Listener, stream *cluster.Stream) {
			defer wg.Done()
			d.consume(l.Name(), stream, logger.Named(ctx, l.Name()))
			if ctx.Err() == nil {
				log.Warnf("⚠️  Cluster session %s is no longer running", l.Name())
			}
		}(l, stream)
	}
	log.Infof("✅ %d cluster session(s) started", len(listeners))

	wg.Wait()

	// 4. Collect results / 收集结果
	for _, l := range listeners {
		log.Infof("📊 %s", Summary(l.Name(), l.Stats(), time.Now()))
		if err := l.Wait(); err != nil {
			errs = append(errs, fmt.Errorf("cluster %s: %w", l.Name(), err))
		}
	}

	cancel()
	if err := <-exporterDone; err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// consume drains one session until its channels are closed.
func (d *Daemon) consume(name string, stream *cluster.Stream, log *zap.SugaredLogger) {
	spots, diags := stream.Spots(), stream.Diagnostics()
	for spots != nil || diags != nil {
		select {
		case s, ok := <-spots:
			if !ok {
				spots = nil
				continue
			}
			d.deliver(name, s, log)
		case diag, ok := <-diags:
			if !ok {
				diags = nil
				continue
			}
			log.Debugf("🔍 Unparsed line %q: %v", diag.Line, diag.Err)
		}
	}
}

func (d *Daemon) deliver(name string, s spot.Spot, log *zap.SugaredLogger) {
	ok, err := d.filter.Load().Eval(name, s)
	if err != nil {
		log.Debugf("Filter error for %s: %v", s.DXCall, err)
	}
	if !ok {
		d.metrics.FilteredTotal.WithLabelValues(name).Inc()
		return
	}
	if err := d.sink.Write(sink.NewRecord(name, s, time.Now())); err != nil {
		log.Errorf("❌ Failed to write spot: %v", err)
	}
}

// Reload applies the parts of cfg that can change at runtime. Only the
// filter is swapped in place; session and output changes need a restart.
// Reload 应用可在运行时更改的配置。仅替换过滤器；会话和输出更改需要重启。
func (d *Daemon) Reload(ctx context.Context, cfg *config.GlobalConfig) error {
	log := logger.Get(ctx)

	f, err := filter.Compile(cfg.Filter)
	if err != nil {
		return err
	}
	if prev := d.filter.Load(); prev.String() != f.String() {
		d.filter.Store(f)
		log.Infof("🔄 Filter updated: %q", f.String())
	}

	if !reflect.DeepEqual(cfg.Clusters, d.cfg.Clusters) {
		log.Warn("⚠️  Cluster changes take effect after a restart")
	}
	if !reflect.DeepEqual(cfg.Output, d.cfg.Output) || !reflect.DeepEqual(cfg.Metrics, d.cfg.Metrics) {
		log.Warn("⚠️  Output and metrics changes take effect after a restart")
	}
	return nil
}

// Filter returns the active filter.
func (d *Daemon) Filter() *filter.Filter { return d.filter.Load() }

// Stats returns a snapshot per running session, keyed by cluster name.
// Stats 返回每个会话的快照，以集群名称为键。
func (d *Daemon) Stats() map[string]cluster.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]cluster.Stats, len(d.listeners))
	for _, l := range d.listeners {
		out[l.Name()] = l.Stats()
	}
	return out
}

// Summary renders one line of session counters for logs and the CLI.
// Summary 生成一行会话计数摘要，用于日志和命令行。
func Summary(name string, s cluster.Stats, now time.Time) string {
	return fmt.Sprintf("%s: %s spots, %s ignored, %s parse errors, %d connects, %d drops, last line %s",
		name,
		fmtutil.FormatNumberWithComma(s.Published),
		fmtutil.FormatNumberWithComma(s.Ignored),
		fmtutil.FormatNumberWithComma(s.ParseErrors),
		s.Connects, s.Disconnects,
		fmtutil.FormatAge(s.LastLine, now))
}
