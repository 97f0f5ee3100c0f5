package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadGlobalConfig_NonExistent tests loading a missing file
// TestLoadGlobalConfig_NonExistent 测试加载不存在的文件
func TestLoadGlobalConfig_NonExistent(t *testing.T) {
	_, err := LoadGlobalConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, dxerr.ErrConfigNotFound)
}

// TestLoadGlobalConfig_Valid tests loading a minimal file with defaults applied
// TestLoadGlobalConfig_Valid 测试加载最小配置并应用默认值
func TestLoadGlobalConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
clusters:
  - name: gb7djk
    host: gb7djk.dxcluster.net
    port: 7300
    callsign: N0CALL
    format: dxspider
filter: 'band == "20m"'
output:
  format: text
`)
	cfg, err := LoadGlobalConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Clusters, 1)
	c := cfg.Clusters[0]
	assert.Equal(t, DefaultStallTimeout, c.StallTimeout)
	assert.Equal(t, DefaultChannelCapacity, c.ChannelCapacity)
	assert.Equal(t, "text", cfg.Output.Format)
	assert.True(t, cfg.Output.Stdout, "untouched nested defaults survive")
	assert.Equal(t, DefaultSpotLogPath, cfg.Output.File.Path)
	assert.Equal(t, DefaultMetricsAddr, cfg.Metrics.Addr)

	cc, err := c.Cluster()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cc.StallTimeout)
	assert.Equal(t, time.Second, cc.BackoffInitial)
	assert.Equal(t, time.Minute, cc.BackoffMax)
	assert.Equal(t, spot.FormatDXSpider, cc.Format)
	assert.NoError(t, cc.Validate())
}

func TestLoadGlobalConfig_Empty(t *testing.T) {
	cfg, err := LoadGlobalConfig(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Empty(t, cfg.Clusters)
	assert.Equal(t, "json", cfg.Output.Format)
}

func TestLoadGlobalConfig_SyntaxError(t *testing.T) {
	_, err := LoadGlobalConfig(writeConfig(t, "clusters: [\n"))
	assert.ErrorIs(t, err, dxerr.ErrConfigInvalid)
}

// TestValidate tests the validation rules
// TestValidate 测试验证规则
func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"missing host", "clusters: [{port: 7300, callsign: N0CALL}]", "clusters[0].host"},
		{"bad port", "clusters: [{host: a, port: 0, callsign: N0CALL}]", "clusters[0].port"},
		{"bad callsign", "clusters: [{host: a, port: 1, callsign: 'N0 CALL'}]", "clusters[0].callsign"},
		{"bad format", "clusters: [{host: a, port: 1, callsign: N0CALL, format: telnet}]", "clusters[0].format"},
		{"bad duration", "clusters: [{host: a, port: 1, callsign: N0CALL, stall_timeout: soon}]", "clusters[0].stall_timeout"},
		{"inverted backoff", "clusters: [{host: a, port: 1, callsign: N0CALL, backoff_initial: 2m, backoff_max: 1m}]", "clusters[0].backoff_initial"},
		{"duplicate names", "clusters: [{name: x, host: a, port: 1, callsign: N0CALL}, {name: x, host: b, port: 1, callsign: N0CALL}]", "clusters[1].name"},
		{"bad filter", "filter: 'band =='", "filter"},
		{"bad output format", "output: {format: xml}", "output.format"},
		{"file without path", "output: {file: {enabled: true, path: ''}}", "output.file.path"},
		{"bad metrics addr", "metrics: {enabled: true, addr: 'nope'}", "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateConfig([]byte(tt.yaml))
			require.NoError(t, err)
			require.False(t, result.Valid)

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
			assert.ErrorIs(t, result.Err(), dxerr.ErrConfigInvalid)
		})
	}
}

func TestValidate_Warnings(t *testing.T) {
	result, err := ValidateConfig([]byte(`
clusters: [{host: a, port: 1, callsign: N0CALL, stall_timeout: 5s}]
logging: {level: loud}
`))
	require.NoError(t, err)
	assert.True(t, result.Valid)

	var fields []string
	for _, w := range result.Warnings {
		fields = append(fields, w.Field)
	}
	assert.Contains(t, fields, "clusters[0].stall_timeout")
	assert.Contains(t, fields, "logging.level")
}

func TestValidateConfig_Syntax(t *testing.T) {
	result, err := ValidateConfig([]byte("a: [b"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "config", result.Errors[0].Field)
}

// TestDefaultConfigYAML tests that the init template loads and validates
// TestDefaultConfigYAML 测试初始化模板可以被加载和验证
func TestDefaultConfigYAML(t *testing.T) {
	cfg, err := ParseGlobalConfig([]byte(DefaultConfigYAML))
	require.NoError(t, err)
	require.Len(t, cfg.Clusters, 1)
	assert.Equal(t, "dxspider-main", cfg.Clusters[0].Name)
	assert.Equal(t, 2.0, cfg.Clusters[0].BackoffMultiplier)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "refuses to overwrite")
	require.NoError(t, WriteDefault(path, true))

	_, err := LoadGlobalConfig(path)
	assert.NoError(t, err)
}

func TestSaveGlobalConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Defaults()
	cfg.Clusters = []ClusterConfig{{Name: "rbn", Host: "telnet.reversebeacon.net", Port: 7000, Callsign: "N0CALL", Format: "rbn"}}
	cfg.Clusters[0].ApplyDefaults()
	cfg.Filter = `mode() == "CW"`

	require.NoError(t, SaveGlobalConfig(path, &cfg))

	loaded, err := LoadGlobalConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Clusters, loaded.Clusters)
	assert.Equal(t, cfg.Filter, loaded.Filter)
}

// TestConfigManager tests loading, copying and reloading
// TestConfigManager 测试加载、复制和重新加载
func TestConfigManager(t *testing.T) {
	path := writeConfig(t, "filter: 'band == \"20m\"'\n")
	cm := NewConfigManager(path)
	assert.Nil(t, cm.GetConfig())
	require.NoError(t, cm.LoadConfig())
	assert.Equal(t, `band == "20m"`, cm.GetConfig().Filter)

	require.NoError(t, os.WriteFile(path, []byte("filter: 'band =='\n"), 0644))
	assert.Error(t, cm.LoadConfig())
	assert.Equal(t, `band == "20m"`, cm.GetConfig().Filter, "bad reload keeps previous config")

	c := cm.GetConfig()
	c.Filter = "changed"
	assert.NotEqual(t, "changed", cm.GetConfig().Filter)
	assert.Equal(t, path, cm.GetConfigPath())

	assert.Equal(t, DefaultConfigPath, NewConfigManager("").GetConfigPath())
}

func TestConfigManager_UpdateAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cm := NewConfigManager(path)
	require.NoError(t, cm.SaveConfig(), "nothing loaded, nothing written")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	cfg := Defaults()
	cfg.Filter = `prefix("JA")`
	cm.UpdateConfig(&cfg)
	require.NoError(t, cm.SaveConfig())

	reloaded := NewConfigManager(path)
	require.NoError(t, reloaded.LoadConfig())
	assert.Equal(t, `prefix("JA")`, reloaded.GetConfig().Filter)
}
