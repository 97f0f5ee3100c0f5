package commands

import (
	"fmt"
	"os"

	"github.com/livp123/dxwatch/internal/config"
	"github.com/livp123/dxwatch/internal/runtime"
	"github.com/livp123/dxwatch/internal/utils/logger"
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "dxwatch",
	Short: "A DX cluster spot client",
	// Short: DX 集群 spot 客户端
	Long: `dxwatch connects to amateur radio DX cluster servers, logs in,
and turns their telnet feed into structured spot records.
dxwatch 连接业余无线电 DX 集群服务器，完成登录，
并将其 telnet 数据流转换为结构化的 spot 记录。`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load configuration to get logging settings
		// 加载配置以获取日志设置
		logCfg := config.Defaults().Logging
		if globalCfg, err := config.LoadGlobalConfig(configPath()); err == nil {
			logCfg = globalCfg.Logging
		}
		if runtime.LogLevel != "" {
			logCfg.Level = runtime.LogLevel
		}
		logger.Init(logCfg)

		// Inject logger into context
		// 将 Logger 注入 Context
		ctx := logger.WithContext(cmd.Context(), logger.Get(nil))
		cmd.SetContext(ctx)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	// Config file path
	// 配置文件路径
	RootCmd.PersistentFlags().StringVarP(&runtime.ConfigPath, "config", "c", "", fmt.Sprintf("Path to configuration file (default: %s)", config.DefaultConfigPath))

	// Log level override
	// 日志级别覆盖
	RootCmd.PersistentFlags().StringVar(&runtime.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(listenCmd)
	RootCmd.AddCommand(replayCmd)
	RootCmd.AddCommand(parseCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(checkCmd)
	RootCmd.AddCommand(versionCmd)

	RootCmd.CompletionOptions.DisableDescriptions = true
}

func configPath() string {
	if runtime.ConfigPath != "" {
		return runtime.ConfigPath
	}
	return config.DefaultConfigPath
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
