package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/livp123/dxwatch/internal/filter"
	"github.com/livp123/dxwatch/internal/sink"
	"github.com/livp123/dxwatch/pkg/cluster"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
	"gopkg.in/yaml.v3"
)

// ValidationError represents a single validation error.
// ValidationError 表示单个验证错误。
type ValidationError struct {
	Field   string `json:"field"`   // Field path (e.g., "clusters[0].port")
	Message string `json:"message"` // Error message
	Value   any    `json:"value"`   // The invalid value (optional)
}

// ValidationWarning represents a potential issue that's not critical.
// ValidationWarning 表示非关键的潜在问题。
type ValidationWarning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// ValidationResult contains all validation errors and warnings.
// ValidationResult 包含所有验证错误和警告。
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}

func newResult() *ValidationResult {
	return &ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: []ValidationWarning{}}
}

// AddError adds a validation error.
// AddError 添加验证错误。
func (r *ValidationResult) AddError(field, message string, value any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
	r.Valid = false
}

// AddWarning adds a validation warning.
// AddWarning 添加验证警告。
func (r *ValidationResult) AddWarning(field, message string, value any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Value: value})
}

// Err folds the errors into one error wrapping errors.ErrConfigInvalid.
// Err 将所有错误合并为一个包装 errors.ErrConfigInvalid 的错误。
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return fmt.Errorf("%w: %s", dxerr.ErrConfigInvalid, strings.Join(msgs, "; "))
}

// Validate checks the whole configuration and returns the first-class error.
// Validate 检查整个配置并返回错误。
func (cfg *GlobalConfig) Validate() error {
	return ValidateConfigStruct(cfg).Err()
}

// ValidateConfigStruct validates a GlobalConfig struct directly.
// ValidateConfigStruct 直接验证 GlobalConfig 结构体。
func ValidateConfigStruct(cfg *GlobalConfig) *ValidationResult {
	result := newResult()

	// Validate each section / 验证每个部分
	validateClusters(cfg.Clusters, result)
	validateFilter(cfg.Filter, result)
	validateOutput(&cfg.Output, result)
	validateMetrics(&cfg.Metrics, result)
	validateLogging(cfg, result)

	return result
}

// ValidateConfig validates a configuration from raw YAML data.
// ValidateConfig 从原始 YAML 数据验证配置。
func ValidateConfig(data []byte) (*ValidationResult, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		result := newResult()
		result.AddError("config", fmt.Sprintf("YAML syntax error: %v", err), nil)
		return result, nil
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for i := range cfg.Clusters {
		cfg.Clusters[i].ApplyDefaults()
	}
	return ValidateConfigStruct(&cfg), nil
}

func validateClusters(clusters []ClusterConfig, result *ValidationResult) {
	if len(clusters) == 0 {
		result.AddWarning("clusters", "No cluster configured; 'dxwatch run' has nothing to connect to", nil)
		return
	}

	names := make(map[string]int)
	for i, c := range clusters {
		field := fmt.Sprintf("clusters[%d]", i)

		if strings.TrimSpace(c.Host) == "" {
			result.AddError(field+".host", "Host is required", c.Host)
		}
		if c.Port < 1 || c.Port > 65535 {
			result.AddError(field+".port", "Port must be between 1 and 65535", c.Port)
		}
		if !cluster.ValidCallsign(c.Callsign) {
			result.AddError(field+".callsign", "Callsign must be letters and digits with optional '/' or '-'", c.Callsign)
		}
		if _, err := spot.ParseFormat(c.Format); err != nil {
			result.AddError(field+".format", "Format must be empty, dxspider, ar-cluster, cc-cluster or rbn", c.Format)
		}

		validateDuration(field+".login_grace", c.LoginGrace, result)
		validateDuration(field+".dial_timeout", c.DialTimeout, result)
		stall := validateDuration(field+".stall_timeout", c.StallTimeout, result)
		initial := validateDuration(field+".backoff_initial", c.BackoffInitial, result)
		maxDelay := validateDuration(field+".backoff_max", c.BackoffMax, result)

		if stall > 0 && stall < 30*time.Second {
			result.AddWarning(field+".stall_timeout", "Quiet clusters may be flagged as stalled with a timeout under 30s", c.StallTimeout)
		}
		if initial > 0 && maxDelay > 0 && initial > maxDelay {
			result.AddError(field+".backoff_initial", "backoff_initial must not exceed backoff_max", c.BackoffInitial)
		}
		if c.BackoffMultiplier < 1 {
			result.AddError(field+".backoff_multiplier", "backoff_multiplier must be at least 1", c.BackoffMultiplier)
		}
		if c.MaxAttempts < 0 {
			result.AddError(field+".max_attempts", "max_attempts must not be negative", c.MaxAttempts)
		}
		if c.ChannelCapacity < 1 {
			result.AddError(field+".channel_capacity", "channel_capacity must be positive", c.ChannelCapacity)
		}

		name := c.Name
		if name == "" {
			name = net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
		}
		if prev, dup := names[name]; dup {
			result.AddError(field+".name", fmt.Sprintf("Duplicate cluster name, already used by clusters[%d]", prev), name)
		}
		names[name] = i
	}
}

// validateDuration returns the parsed value, or 0 after recording an error.
func validateDuration(field, value string, result *ValidationResult) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		result.AddError(field, fmt.Sprintf("Invalid duration: %v", err), value)
		return 0
	}
	if d <= 0 {
		result.AddError(field, "Duration must be positive", value)
		return 0
	}
	return d
}

func validateFilter(expr string, result *ValidationResult) {
	if _, err := filter.Compile(expr); err != nil {
		result.AddError("filter", err.Error(), expr)
	}
}

func validateOutput(cfg *OutputConfig, result *ValidationResult) {
	if _, err := sink.FormatterFor(cfg.Format); err != nil {
		result.AddError("output.format", "Format must be json or text", cfg.Format)
	}
	if cfg.File.Enabled && cfg.File.Path == "" {
		result.AddError("output.file.path", "Path is required when the spot file is enabled", nil)
	}
	if !cfg.Stdout && !cfg.File.Enabled {
		result.AddWarning("output", "Neither stdout nor the spot file is enabled; spots are only counted", nil)
	}
}

func validateMetrics(cfg *MetricsConfig, result *ValidationResult) {
	if !cfg.Enabled {
		return
	}
	if cfg.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
			result.AddError("metrics.addr", fmt.Sprintf("Invalid listen address: %v", err), cfg.Addr)
		}
	}
	if cfg.PushGateway != "" || cfg.TextfilePath != "" {
		validateDuration("metrics.push_interval", cfg.PushInterval, result)
	}
	if cfg.Addr == "" && cfg.PushGateway == "" && cfg.TextfilePath == "" {
		result.AddWarning("metrics", "Metrics enabled without addr, push_gateway or textfile_path", nil)
	}
}

func validateLogging(cfg *GlobalConfig, result *ValidationResult) {
	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.AddWarning("logging.level", "Unknown level, using info", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "console", "json":
	default:
		result.AddWarning("logging.format", "Unknown format, using console", cfg.Logging.Format)
	}
	if cfg.Logging.Enabled && cfg.Logging.Path == "" {
		result.AddError("logging.path", "Path is required when file logging is enabled", nil)
	}
	if cfg.Output.File.Enabled && cfg.Logging.Enabled && cfg.Output.File.Path == cfg.Logging.Path {
		result.AddError("output.file.path", "Spot file and log file must differ", cfg.Output.File.Path)
	}
}
