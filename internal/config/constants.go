package config

const (
	// DefaultConfigPath is the standard location for the dxwatch configuration file.
	// DefaultConfigPath 是 dxwatch 配置文件的标准位置。
	DefaultConfigPath = "/etc/dxwatch/config.yaml"

	// DefaultMetricsAddr is the listen address of the metrics endpoint.
	// DefaultMetricsAddr 是指标端点的监听地址。
	DefaultMetricsAddr = ":9327"

	// DefaultLogPath is used when file logging is enabled without a path.
	// DefaultLogPath 是启用文件日志但未指定路径时使用的路径。
	DefaultLogPath = "/var/log/dxwatch/dxwatch.log"

	// DefaultSpotLogPath is the default rotated spot log.
	// DefaultSpotLogPath 是默认的 spot 轮转日志。
	DefaultSpotLogPath = "/var/lib/dxwatch/spots.jsonl"
)

// Per-cluster defaults, as duration strings the way they appear in YAML.
// 每个集群的默认值（与 YAML 中的持续时间字符串格式一致）。
const (
	DefaultLoginGrace      = "5s"
	DefaultDialTimeout     = "10s"
	DefaultStallTimeout    = "5m"
	DefaultBackoffInitial  = "1s"
	DefaultBackoffMax      = "60s"
	DefaultBackoffFactor   = 2.0
	DefaultChannelCapacity = 256
)
