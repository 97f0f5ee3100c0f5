package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/livp123/dxwatch/internal/utils/fileutil"
	"github.com/livp123/dxwatch/internal/utils/logger"
	"github.com/livp123/dxwatch/pkg/cluster"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
	"gopkg.in/yaml.v3"
)

// GlobalConfig is the whole dxwatch configuration file.
// GlobalConfig 是完整的 dxwatch 配置文件。
type GlobalConfig struct {
	Clusters []ClusterConfig      `yaml:"clusters"`
	Filter   string               `yaml:"filter"`
	Output   OutputConfig         `yaml:"output"`
	Metrics  MetricsConfig        `yaml:"metrics"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	PidFile  string               `yaml:"pid_file"`
}

// ClusterConfig describes one server session. Durations are Go duration strings.
// ClusterConfig 描述一个服务器会话。持续时间使用 Go 持续时间字符串。
type ClusterConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Callsign string `yaml:"callsign"`
	// Format: "" 自动检测；dxspider | ar-cluster | cc-cluster | rbn
	Format  string   `yaml:"format"`
	Prompts []string `yaml:"prompts,omitempty"`

	LoginGrace        string  `yaml:"login_grace"`
	DialTimeout       string  `yaml:"dial_timeout"`
	StallTimeout      string  `yaml:"stall_timeout"`
	BackoffInitial    string  `yaml:"backoff_initial"`
	BackoffMax        string  `yaml:"backoff_max"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxAttempts       int     `yaml:"max_attempts"`
	ChannelCapacity   int     `yaml:"channel_capacity"`
	Diagnostics       bool    `yaml:"diagnostics"`
}

// OutputConfig selects how spots are written.
// OutputConfig 选择 spot 的输出方式。
type OutputConfig struct {
	Format string         `yaml:"format"` // json | text
	Stdout bool           `yaml:"stdout"`
	File   FileSinkConfig `yaml:"file"`
}

// FileSinkConfig is a rotated spot log.
// FileSinkConfig 是轮转的 spot 日志。
type FileSinkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig controls the Prometheus exports.
// MetricsConfig 控制 Prometheus 导出。
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr"`
	TextfilePath string `yaml:"textfile_path"`
	PushGateway  string `yaml:"push_gateway"`
	PushInterval string `yaml:"push_interval"`
}

// Defaults returns a configuration with every default filled in and no clusters.
// Defaults 返回填充了所有默认值且不含集群的配置。
func Defaults() GlobalConfig {
	return GlobalConfig{
		Output: OutputConfig{
			Format: "json",
			Stdout: true,
			File: FileSinkConfig{
				Enabled:    false,
				Path:       DefaultSpotLogPath,
				MaxSize:    50, // 50MB
				MaxBackups: 5,
				MaxAge:     30, // 30 days
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Addr:         DefaultMetricsAddr,
			PushInterval: "1m",
		},
		Logging: logger.LoggingConfig{
			Enabled:    false,
			Level:      "info",
			Path:       DefaultLogPath,
			MaxSize:    10, // 10MB
			MaxBackups: 3,
			MaxAge:     30, // 30 days
			Compress:   true,
		},
	}
}

// ApplyDefaults fills unset per-cluster fields.
// ApplyDefaults 填充未设置的集群字段。
func (c *ClusterConfig) ApplyDefaults() {
	if c.LoginGrace == "" {
		c.LoginGrace = DefaultLoginGrace
	}
	if c.DialTimeout == "" {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.StallTimeout == "" {
		c.StallTimeout = DefaultStallTimeout
	}
	if c.BackoffInitial == "" {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax == "" {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = DefaultBackoffFactor
	}
	if c.ChannelCapacity == 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
}

// Cluster converts the YAML form into a cluster.Config.
// Cluster 将 YAML 形式转换为 cluster.Config。
func (c ClusterConfig) Cluster() (cluster.Config, error) {
	c.ApplyDefaults()

	format, err := spot.ParseFormat(c.Format)
	if err != nil {
		return cluster.Config{}, dxerr.NewConfigError("format", c.Format)
	}

	out := cluster.Config{
		Name:              c.Name,
		Host:              c.Host,
		Port:              c.Port,
		Callsign:          c.Callsign,
		Format:            format,
		Prompts:           c.Prompts,
		BackoffMultiplier: c.BackoffMultiplier,
		MaxAttempts:       c.MaxAttempts,
		ChannelCapacity:   c.ChannelCapacity,
		Diagnostics:       c.Diagnostics,
	}

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"login_grace", c.LoginGrace, &out.LoginGrace},
		{"dial_timeout", c.DialTimeout, &out.DialTimeout},
		{"stall_timeout", c.StallTimeout, &out.StallTimeout},
		{"backoff_initial", c.BackoffInitial, &out.BackoffInitial},
		{"backoff_max", c.BackoffMax, &out.BackoffMax},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return cluster.Config{}, dxerr.NewDurationError(d.field, d.value)
		}
		*d.dst = v
	}
	return out, nil
}

// LoadGlobalConfig loads the configuration from a YAML file.
// LoadGlobalConfig 从 YAML 文件加载配置。
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	safePath := filepath.Clean(path) // Sanitize path to prevent directory traversal
	data, err := os.ReadFile(safePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", dxerr.ErrConfigNotFound, path)
		}
		return nil, err
	}
	return ParseGlobalConfig(data)
}

// ParseGlobalConfig decodes and validates YAML data.
// ParseGlobalConfig 解码并验证 YAML 数据。
func ParseGlobalConfig(data []byte) (*GlobalConfig, error) {
	// Initialize with defaults / 使用默认值初始化
	cfg := Defaults()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", dxerr.ErrConfigInvalid, err)
	}
	for i := range cfg.Clusters {
		cfg.Clusters[i].ApplyDefaults()
	}

	// Validate configuration / 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// SaveGlobalConfig writes cfg as YAML, atomically.
// SaveGlobalConfig 以原子方式将配置写入 YAML 文件。
func SaveGlobalConfig(path string, cfg *GlobalConfig) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return fileutil.AtomicWriteFile(path, buf.Bytes(), 0600)
}

// WriteDefault writes the commented template to path unless it exists.
// WriteDefault 将带注释的模板写入路径（若文件不存在）。
func WriteDefault(path string, force bool) error {
	if !force && fileutil.Exists(path) {
		return fmt.Errorf("config file %s already exists", path)
	}
	return fileutil.AtomicWriteFile(path, []byte(DefaultConfigYAML), 0644)
}
