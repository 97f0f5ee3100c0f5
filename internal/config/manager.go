package config

import (
	"sync"
)

// ConfigManager holds the active configuration and reloads it on demand.
// ConfigManager 保存当前配置并按需重新加载。
type ConfigManager struct {
	configPath string
	mutex      sync.RWMutex
	config     *GlobalConfig
}

// NewConfigManager creates a new configuration manager instance
// NewConfigManager 创建新的配置管理器实例
func NewConfigManager(configPath string) *ConfigManager {
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return &ConfigManager{configPath: configPath}
}

// LoadConfig loads the configuration from the configured path. On failure the
// previous configuration stays active.
// LoadConfig 从配置路径加载配置。失败时保留先前的配置。
func (cm *ConfigManager) LoadConfig() error {
	cfg, err := LoadGlobalConfig(cm.configPath)
	if err != nil {
		return err
	}

	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.config = cfg
	return nil
}

// SaveConfig saves the current configuration to the configured path
// SaveConfig 将当前配置保存到配置路径
func (cm *ConfigManager) SaveConfig() error {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	if cm.config == nil {
		return nil
	}
	return SaveGlobalConfig(cm.configPath, cm.config)
}

// GetConfig returns a copy of the current configuration
// GetConfig 返回当前配置的副本
func (cm *ConfigManager) GetConfig() *GlobalConfig {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	if cm.config == nil {
		return nil
	}

	// Return a copy to prevent external modifications
	cfgCopy := *cm.config
	cfgCopy.Clusters = append([]ClusterConfig(nil), cm.config.Clusters...)
	return &cfgCopy
}

// UpdateConfig replaces the current configuration
// UpdateConfig 替换当前配置
func (cm *ConfigManager) UpdateConfig(newConfig *GlobalConfig) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.config = newConfig
}

// GetConfigPath returns the configuration file path
// GetConfigPath 返回配置文件路径
func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}
