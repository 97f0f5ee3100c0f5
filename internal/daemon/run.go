package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/livp123/dxwatch/internal/config"
	"github.com/livp123/dxwatch/internal/utils/fileutil"
	"github.com/livp123/dxwatch/internal/utils/logger"
)

// Run loads the configuration from cm, starts every cluster session and
// handles signals until SIGINT or SIGTERM, or until every session has ended.
// SIGHUP reloads the configuration file.
// Run 从 cm 加载配置，启动所有集群会话并处理信号，直到收到 SIGINT/SIGTERM
// 或所有会话结束。SIGHUP 重新加载配置文件。
func Run(ctx context.Context, cm *config.ConfigManager, opts Options) error {
	log := logger.Get(ctx)

	// 1. Load configuration / 加载配置
	cfg := cm.GetConfig()
	if cfg == nil {
		if err := cm.LoadConfig(); err != nil {
			return fmt.Errorf("failed to load global config: %w", err)
		}
		cfg = cm.GetConfig()
	}

	// 2. PID file / PID 文件
	if cfg.PidFile != "" {
		if err := managePidFile(cfg.PidFile); err != nil {
			return err
		}
		defer removePidFile(ctx, cfg.PidFile)
	}

	// 3. Build the pipeline / 构建处理管道
	d, err := New(cfg, opts)
	if err != nil {
		return err
	}

	// 4. Signals / 信号
	sig := opts.Signals
	if sig == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(ch)
		sig = ch
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- d.Run(runCtx)
		cancel()
	}()

	log.Infof("🚀 dxwatch started with %d cluster(s)", len(cfg.Clusters))
	waitForSignal(runCtx, sig, func() error {
		if err := cm.LoadConfig(); err != nil {
			return err
		}
		return d.Reload(runCtx, cm.GetConfig())
	})
	cancel()
	return <-errc
}

// waitForSignal blocks until ctx is done or a terminating signal arrives.
// SIGHUP calls reload and keeps waiting.
// waitForSignal 阻塞直到 ctx 结束或收到终止信号。SIGHUP 调用 reload 并继续等待。
func waitForSignal(ctx context.Context, sig <-chan os.Signal, reload func() error) {
	log := logger.Get(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-sig:
			if s == syscall.SIGHUP {
				log.Info("🔄 Received SIGHUP, reloading configuration...")
				if err := reload(); err != nil {
					log.Errorf("❌ Failed to reload config: %v", err)
					continue
				}
				log.Info("✅ Configuration reloaded")
				continue
			}
			log.Info("👋 Daemon shutting down...")
			return
		}
	}
}

func managePidFile(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		// A stale file from a crashed run is replaced.
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && processAlive(pid) {
			return fmt.Errorf("PID file %s already exists. Is dxwatch already running?", path)
		}
	}
	pid := os.Getpid()
	if err := fileutil.AtomicWriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func removePidFile(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Get(ctx).Warnf("⚠️  Failed to remove PID file: %v", err)
	}
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
