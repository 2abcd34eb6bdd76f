package schedule

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive source name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		sourceName := strings.TrimSuffix(fileName, ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "source", sourceName, "enabled", config.Settings.Enabled, "refresh_interval", config.Settings.RefreshInterval)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	configFile := cc.getConfigFilePath(sourceName)
	sourceConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	// Set source name from parameter
	sourceConfig.Name = sourceName

	if err := cc.validateConfig(sourceConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	// Store in cache
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[sourceConfig.Name] = sourceConfig

	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	sourceConfig, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", sourceName)
	}
	return sourceConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourceConfig Config
	if err := yaml.Unmarshal(data, &sourceConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sourceConfig.Settings.RefreshInterval == 0 {
		sourceConfig.Settings.RefreshInterval = 3600
	}
	if sourceConfig.Settings.Timeout == 0 {
		sourceConfig.Settings.Timeout = 30
	}
	if sourceConfig.Settings.WindowBackDays == 0 {
		sourceConfig.Settings.WindowBackDays = 30
	}
	if sourceConfig.Settings.WindowAheadDays == 0 {
		sourceConfig.Settings.WindowAheadDays = 180
	}

	return &sourceConfig, nil
}

func (cc *ConfigCache) validateConfig(sourceConfig *Config) error {
	if sourceConfig == nil {
		return fmt.Errorf("sourceConfig is nil")
	}

	requiredFields := map[string]string{
		"source name": sourceConfig.Name,
		"source URL":  sourceConfig.URL,
		"org ID":      sourceConfig.OrgID,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	nonNegativeFields := map[string]int{
		"refresh interval":  sourceConfig.Settings.RefreshInterval,
		"timeout":           sourceConfig.Settings.Timeout,
		"window back days":  sourceConfig.Settings.WindowBackDays,
		"window ahead days": sourceConfig.Settings.WindowAheadDays,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(sourceName string) string {
	return filepath.Join(cc.sourcesDir, sourceName+".yml")
}
