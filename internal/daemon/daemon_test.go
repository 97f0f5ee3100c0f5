package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/livp123/dxwatch/internal/config"
	"github.com/livp123/dxwatch/internal/transport"
	"github.com/livp123/dxwatch/internal/transport/replay"
	"github.com/livp123/dxwatch/internal/utils/fileutil"
	"github.com/livp123/dxwatch/internal/utils/logger"
	"github.com/livp123/dxwatch/pkg/cluster"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// syncBuffer is a bytes.Buffer safe to read while the daemon writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

const capture = "DX de W1AW:     14025.0  JA1ABC       CQ DX                    1234Z\n" +
	"DX de K1TTT:    7010.5   VK2XYZ       599                      1235Z\n" +
	"W1AW de GB7DJK 18-Oct-2026 1236Z dxspider >\n" +
	"DX de G3XYZ:    14074.0  ZS6ABC       FT8 -12                  1236Z\n"

func writeCapture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func testConfig(filterExpr string) *config.GlobalConfig {
	cfg := config.Defaults()
	cfg.Clusters = []config.ClusterConfig{{
		Name:     "capture",
		Host:     "capture.invalid",
		Port:     7300,
		Callsign: "N0CALL",
		Format:   "dxspider",
	}}
	cfg.Clusters[0].ApplyDefaults()
	cfg.Filter = filterExpr
	return &cfg
}

func replayDialer(path string, follow bool) func(cluster.Config) transport.Dialer {
	return func(cluster.Config) transport.Dialer {
		return replay.Dialer{Path: path, Follow: follow, Poll: true}
	}
}

func testContext() context.Context {
	return logger.WithContext(context.Background(), logger.Nop())
}

// TestDaemon_Run tests the full pipeline from capture to stdout
// TestDaemon_Run 测试从捕获文件到标准输出的完整流程
func TestDaemon_Run(t *testing.T) {
	out := &syncBuffer{}
	d, err := New(testConfig(`band == "20m"`), Options{
		Stdout:     out,
		Registerer: prometheus.NewRegistry(),
		DialerFor:  replayDialer(writeCapture(t, capture), false),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(testContext(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Run(ctx), "a finished capture is a clean stop")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "JA1ABC", rec["dx_call"])
	assert.Equal(t, "capture", rec["cluster"])
	assert.Equal(t, "20m", rec["band"])
	assert.Contains(t, lines[1], "ZS6ABC")

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.FilteredTotal.WithLabelValues("capture")))
	assert.Equal(t, 3.0, testutil.ToFloat64(d.metrics.SpotsTotal.WithLabelValues("capture", "dxspider")))

	stats := d.Stats()
	require.Contains(t, stats, "capture")
	assert.Equal(t, uint64(1), stats["capture"].Ignored)
}

func TestSummary(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	var s cluster.Stats
	s.Published = 12345
	s.Ignored = 7
	s.Connects = 2
	s.Disconnects = 1
	s.LastLine = now.Add(-90 * time.Second)

	assert.Equal(t, "gb7djk: 12,345 spots, 7 ignored, 0 parse errors, 2 connects, 1 drops, last line 1m 30s ago",
		Summary("gb7djk", s, now))
	assert.Contains(t, Summary("idle", cluster.Stats{}, now), "last line never")
}

func TestDaemon_RunTextOutput(t *testing.T) {
	cfg := testConfig("")
	cfg.Output.Format = "text"
	out := &syncBuffer{}
	d, err := New(cfg, Options{Stdout: out, DialerFor: replayDialer(writeCapture(t, capture), false)})
	require.NoError(t, err)
	require.NoError(t, d.Run(testContext()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "7010.5"))
	assert.Contains(t, lines[1], "<capture>")
}

func TestDaemon_RunFileOutput(t *testing.T) {
	cfg := testConfig("")
	cfg.Output.Stdout = false
	cfg.Output.File.Enabled = true
	cfg.Output.File.Path = filepath.Join(t.TempDir(), "spots", "spots.jsonl")

	d, err := New(cfg, Options{DialerFor: replayDialer(writeCapture(t, capture), false)})
	require.NoError(t, err)
	require.NoError(t, d.Run(testContext()))

	data, err := os.ReadFile(cfg.Output.File.Path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestDaemon_NoClusters(t *testing.T) {
	cfg := config.Defaults()
	d, err := New(&cfg, Options{Stdout: &syncBuffer{}})
	require.NoError(t, err)
	assert.NoError(t, d.Run(testContext()))
	assert.Empty(t, d.Stats())
}

func TestDaemon_Cancel(t *testing.T) {
	d, err := New(testConfig(""), Options{
		Stdout:    &syncBuffer{},
		DialerFor: replayDialer(writeCapture(t, capture), true),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// TestDaemon_MetricsPortBusy tests that a metrics endpoint that cannot bind is
// logged while the sessions keep running
// TestDaemon_MetricsPortBusy 测试指标端点无法绑定时立即记录错误且会话继续运行
func TestDaemon_MetricsPortBusy(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig("")
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = busy.Addr().String()

	out := &syncBuffer{}
	d, err := New(cfg, Options{
		Stdout:    out,
		DialerFor: replayDialer(writeCapture(t, capture), true),
	})
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background(), zap.New(core).Sugar()))
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessageSnippet("Metrics server error").Len() == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") == 3
	}, 3*time.Second, 10*time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Run returned while sessions were running: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metrics server")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDaemon_SessionGivesUp(t *testing.T) {
	cfg := testConfig("")
	cfg.Clusters[0].MaxAttempts = 2
	cfg.Clusters[0].BackoffInitial = "1ms"
	cfg.Clusters[0].BackoffMax = "2ms"

	d, err := New(cfg, Options{
		Stdout:    &syncBuffer{},
		DialerFor: replayDialer(filepath.Join(t.TempDir(), "missing.log"), false),
	})
	require.NoError(t, err)

	err = d.Run(testContext())
	assert.ErrorIs(t, err, dxerr.ErrMaxAttempts)
	assert.Contains(t, err.Error(), "capture")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)

	cfg := testConfig(`band ==`)
	_, err = New(cfg, Options{})
	assert.ErrorIs(t, err, dxerr.ErrInvalidExpression)

	cfg = testConfig("")
	cfg.Output.Format = "xml"
	_, err = New(cfg, Options{})
	assert.Error(t, err)

	cfg = testConfig("")
	cfg.Clusters[0].StallTimeout = "soon"
	_, err = New(cfg, Options{})
	assert.Error(t, err)
}

// TestDaemon_Reload tests swapping the filter at runtime
// TestDaemon_Reload 测试运行时替换过滤器
func TestDaemon_Reload(t *testing.T) {
	d, err := New(testConfig(`band == "20m"`), Options{Stdout: &syncBuffer{}})
	require.NoError(t, err)

	next := testConfig(`band == "40m"`)
	next.Clusters[0].Port = 7373
	require.NoError(t, d.Reload(testContext(), next))
	assert.Equal(t, `band == "40m"`, d.Filter().String())

	assert.Error(t, d.Reload(testContext(), testConfig(`band ==`)))
	assert.Equal(t, `band == "40m"`, d.Filter().String(), "a bad filter keeps the active one")
}

func TestWaitForSignal(t *testing.T) {
	sig := make(chan os.Signal, 3)
	sig <- syscall.SIGHUP
	sig <- syscall.SIGHUP
	sig <- syscall.SIGTERM

	calls := 0
	waitForSignal(testContext(), sig, func() error {
		calls++
		if calls == 1 {
			return assert.AnError
		}
		return nil
	})
	assert.Equal(t, 2, calls, "a failed reload keeps waiting")
}

func TestWaitForSignal_Context(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext())
	cancel()
	waitForSignal(ctx, make(chan os.Signal), func() error { return nil })
}

// TestRun tests the daemon entry point with PID file and signals
// TestRun 测试带 PID 文件和信号的守护进程入口
func TestRun(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "dxwatch.pid")
	capturePath := writeCapture(t, capture)

	cfg := testConfig(`band == "20m"`)
	cfg.PidFile = pidPath
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, config.SaveGlobalConfig(cfgPath, cfg))

	cm := config.NewConfigManager(cfgPath)
	require.NoError(t, cm.LoadConfig())

	sig := make(chan os.Signal, 1)
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- Run(testContext(), cm, Options{
			Stdout:    out,
			DialerFor: replayDialer(capturePath, true),
			Signals:   sig,
		})
	}()

	assert.Eventually(t, func() bool { return strings.Count(out.String(), "\n") == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.True(t, fileutil.Exists(pidPath))

	cfg.Filter = `band == "40m"`
	require.NoError(t, config.SaveGlobalConfig(cfgPath, cfg))
	sig <- syscall.SIGHUP
	assert.Eventually(t, func() bool { return cm.GetConfig().Filter == `band == "40m"` }, 5*time.Second, 20*time.Millisecond)

	sig <- syscall.SIGTERM
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}
	assert.False(t, fileutil.Exists(pidPath), "PID file is removed on exit")
}

func TestRun_LoadError(t *testing.T) {
	cm := config.NewConfigManager(filepath.Join(t.TempDir(), "missing.yaml"))
	err := Run(testContext(), cm, Options{})
	assert.ErrorIs(t, err, dxerr.ErrConfigNotFound)
}

func TestManagePidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dxwatch.pid")

	require.NoError(t, managePidFile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	assert.Error(t, managePidFile(path), "a live owner blocks a second instance")

	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0644))
	assert.NoError(t, managePidFile(path), "a stale file is replaced")

	removePidFile(testContext(), path)
	assert.False(t, fileutil.Exists(path))
	removePidFile(testContext(), path)
}

func TestCheckConfiguration(t *testing.T) {
	_, err := CheckConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, dxerr.ErrConfigNotFound)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefault(path, false))
	result, err := CheckConfiguration(path)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	require.NoError(t, os.WriteFile(path, []byte("clusters: [{host: a, port: 0, callsign: N0CALL}]\n"), 0644))
	result, err = CheckConfiguration(path)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}
