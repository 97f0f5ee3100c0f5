package commands

import (
	"fmt"

	"github.com/livp123/dxwatch/internal/config"
	"github.com/livp123/dxwatch/internal/daemon"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured cluster session",
	Long: `Run every cluster session from the configuration file until SIGINT or SIGTERM.
SIGHUP reloads the filter.
运行配置文件中的所有集群会话，直到收到 SIGINT 或 SIGTERM。SIGHUP 重新加载过滤器。`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm := config.NewConfigManager(configPath())
		if err := cm.LoadConfig(); err != nil {
			return err
		}
		return daemon.Run(cmd.Context(), cm, daemon.Options{Stdout: cmd.OutOrStdout()})
	},
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  fmt.Sprintf("Write a commented default configuration (default: %s)", config.DefaultConfigPath),
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if err := config.WriteDefault(path, initForce); err != nil {
			return err
		}
		cmd.Printf("✅ Configuration written to %s\n", path)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Test configuration validity",
	Long:  `Validate the configuration file without connecting to any cluster`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		result, err := daemon.CheckConfiguration(path)
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			cmd.Printf("⚠️  %s: %s\n", w.Field, w.Message)
		}
		for _, e := range result.Errors {
			cmd.Printf("❌ %s: %s\n", e.Field, e.Message)
		}
		if !result.Valid {
			return result.Err()
		}
		cmd.Printf("✅ Configuration %s is valid\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")
}
