package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/livp123/dxwatch/internal/daemon"
	"github.com/livp123/dxwatch/internal/filter"
	"github.com/livp123/dxwatch/internal/sink"
	"github.com/livp123/dxwatch/internal/transport"
	"github.com/livp123/dxwatch/internal/transport/replay"
	"github.com/livp123/dxwatch/internal/utils/logger"
	"github.com/livp123/dxwatch/pkg/cluster"
	"github.com/livp123/dxwatch/pkg/spot"
	"github.com/spf13/cobra"
)

// streamFlags are shared by listen and replay.
// streamFlags 由 listen 和 replay 共享。
type streamFlags struct {
	format      string
	filter      string
	output      string
	diagnostics bool
	stall       time.Duration
}

func (f *streamFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "Server flavor: dxspider, ar-cluster, cc-cluster, rbn (default: detect)")
	cmd.Flags().StringVar(&f.filter, "filter", "", `Filter expression, e.g. 'band == "20m" && mode() == "CW"'`)
	cmd.Flags().StringVarP(&f.output, "output", "o", "json", "Output format: json or text")
	cmd.Flags().BoolVar(&f.diagnostics, "diagnostics", false, "Print lines that looked like spots but failed to parse")
	cmd.Flags().DurationVar(&f.stall, "stall-timeout", cluster.DefaultStallTimeout, "Reconnect after this long without a line")
}

func (f *streamFlags) apply(cfg *cluster.Config) error {
	format, err := spot.ParseFormat(f.format)
	if err != nil {
		return err
	}
	cfg.Format = format
	cfg.Diagnostics = f.diagnostics
	cfg.StallTimeout = f.stall
	return nil
}

var (
	listenFlags       streamFlags
	listenMaxAttempts int
)

var listenCmd = &cobra.Command{
	Use:   "listen <host> <port> <callsign>",
	Short: "Connect to one cluster and print its spots",
	Long: `Connect to one cluster, log in with the callsign and print every spot until interrupted.
连接到一个集群，使用呼号登录，并打印所有 spot 直到中断。`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		cfg := cluster.Config{
			Host:        args[0],
			Port:        port,
			Callsign:    args[2],
			MaxAttempts: listenMaxAttempts,
		}
		if err := listenFlags.apply(&cfg); err != nil {
			return err
		}
		return streamSpots(cmd, cfg, listenFlags)
	},
}

var (
	replayFlags   streamFlags
	replayFollow  bool
	replayFromEnd bool
	replayPoll    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Feed a recorded cluster session through the parser",
	Long: `Read a captured cluster session from a file, as if it came from the server.
With --follow the file is tailed like tail -f.
从文件读取捕获的集群会话，如同来自服务器。使用 --follow 时像 tail -f 一样跟踪文件。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cluster.Config{
			Name:        filepath.Base(args[0]),
			MaxAttempts: 1,
		}
		if err := replayFlags.apply(&cfg); err != nil {
			return err
		}
		dialer := replay.Dialer{Path: args[0], Follow: replayFollow, FromEnd: replayFromEnd, Poll: replayPoll}
		return streamSpots(cmd, cfg, replayFlags, cluster.WithDialer(dialer))
	},
}

// streamSpots runs one session and writes the filtered spots to stdout.
func streamSpots(cmd *cobra.Command, cfg cluster.Config, flags streamFlags, opts ...cluster.Option) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flt, err := filter.Compile(flags.filter)
	if err != nil {
		return err
	}
	format, err := sink.FormatterFor(flags.output)
	if err != nil {
		return err
	}
	out := sink.NewWriterSink(cmd.OutOrStdout(), format)

	name := cfg.Name
	if name == "" {
		name = cfg.Addr()
	}
	opts = append(opts, cluster.WithLogger(logger.Named(ctx, name)))
	l, err := cluster.New(cfg, opts...)
	if err != nil {
		return err
	}
	stream, err := l.Listen(ctx)
	if err != nil {
		return err
	}

	spots, diags := stream.Spots(), stream.Diagnostics()
	for spots != nil || diags != nil {
		select {
		case s, ok := <-spots:
			if !ok {
				spots = nil
				continue
			}
			if !flt.Match(name, s) {
				continue
			}
			if err := out.Write(sink.NewRecord(name, s, time.Now())); err != nil {
				stream.Close()
				return err
			}
		case d, ok := <-diags:
			if !ok {
				diags = nil
				continue
			}
			cmd.PrintErrf("⚠️  %v\n", d.Err)
		}
	}
	err = l.Wait()
	cmd.PrintErrf("📊 %s\n", daemon.Summary(name, l.Stats(), time.Now()))
	return err
}

var (
	parseFormat  string
	parseOutput  string
	parseVerbose bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse spot lines from a file or stdin",
	Long: `Parse cluster output offline and print one record per spot. Reads stdin without a file.
离线解析集群输出，每个 spot 输出一条记录。未指定文件时读取标准输入。`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		flavor, err := spot.ParseFormat(parseFormat)
		if err != nil {
			return err
		}
		format, err := sink.FormatterFor(parseOutput)
		if err != nil {
			return err
		}

		stats, err := parseLines(in, flavor, sink.NewWriterSink(cmd.OutOrStdout(), format), func(line string, err error) {
			if parseVerbose {
				cmd.PrintErrf("⚠️  %v\n", err)
			}
		})
		if err != nil {
			return err
		}
		cmd.PrintErrf("ℹ️  %d spots, %d parse errors, %d other lines\n", stats.spots, stats.errors, stats.other)
		return nil
	},
}

type parseStats struct {
	spots, errors, other int
}

// parseLines classifies every line of r. An unknown flavor is detected from
// the banner, as a live session does.
func parseLines(r io.Reader, flavor spot.Format, out sink.Sink, onError func(string, error)) (parseStats, error) {
	var stats parseStats
	now := time.Now()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := transport.CleanText(scanner.Text())
		s, ok, err := spot.ParseLine(line, flavor)
		switch {
		case !ok:
			stats.other++
			if flavor == spot.FormatUnknown {
				if f, found := spot.DetectFormat(line); found {
					flavor = f
				}
			}
		case err != nil:
			stats.errors++
			onError(line, err)
		default:
			stats.spots++
			if err := out.Write(sink.NewRecord("", s, now)); err != nil {
				return stats, err
			}
		}
	}
	return stats, scanner.Err()
}

func init() {
	listenFlags.register(listenCmd)
	listenCmd.Flags().IntVar(&listenMaxAttempts, "max-attempts", 0, "Give up after this many failed connects in a row (0: never)")

	replayFlags.register(replayCmd)
	replayCmd.Flags().BoolVarP(&replayFollow, "follow", "f", false, "Keep reading lines appended to the file")
	replayCmd.Flags().BoolVar(&replayFromEnd, "from-end", false, "Start at the end of the file (with --follow)")
	replayCmd.Flags().BoolVar(&replayPoll, "poll", false, "Poll the file instead of using inotify")

	parseCmd.Flags().StringVar(&parseFormat, "format", "", "Server flavor: dxspider, ar-cluster, cc-cluster, rbn (default: detect)")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "json", "Output format: json or text")
	parseCmd.Flags().BoolVarP(&parseVerbose, "verbose", "v", false, "Print the lines that failed to parse")
}
