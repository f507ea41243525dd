package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = "SCANCORE"
	}

	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	cl.viper.SetConfigType("yaml")

	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cl.bindEnvVars()
	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		// no config file found: a one-shot CLI scan runs fine on
		// defaults plus flag/env overrides alone.
	}

	var cfg Config
	if err := cl.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadConfigFile 加载配置文件
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath == "" {
		if envPath := os.Getenv("SCANCORE_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		} else {
			cl.configPath = "./configs"
		}
	}

	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")
	cl.viper.SetConfigName("config")

	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return os.ErrNotExist
		}
		return err
	}

	return nil
}

// bindEnvVars 绑定环境变量
func (cl *ConfigLoader) bindEnvVars() {
	cl.viper.BindEnv("app.name", "SCANCORE_APP_NAME")
	cl.viper.BindEnv("app.environment", "SCANCORE_APP_ENVIRONMENT")
	cl.viper.BindEnv("app.debug", "SCANCORE_APP_DEBUG")

	cl.viper.BindEnv("log.level", "SCANCORE_LOG_LEVEL")
	cl.viper.BindEnv("log.format", "SCANCORE_LOG_FORMAT")
	cl.viper.BindEnv("log.file_path", "SCANCORE_LOG_FILE_PATH")

	cl.viper.BindEnv("scan.scan_type", "SCANCORE_SCAN_TYPE")
	cl.viper.BindEnv("scan.ports", "SCANCORE_SCAN_PORTS")
	cl.viper.BindEnv("scan.ipv6", "SCANCORE_SCAN_IPV6")

	cl.viper.BindEnv("rate.max_rate", "SCANCORE_RATE_MAX_RATE")
	cl.viper.BindEnv("rate.template", "SCANCORE_RATE_TEMPLATE")

	cl.viper.BindEnv("resource.batch_size", "SCANCORE_RESOURCE_BATCH_SIZE")
	cl.viper.BindEnv("resource.ulimit", "SCANCORE_RESOURCE_ULIMIT")
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	cl.viper.SetDefault("app.name", "scancore")
	cl.viper.SetDefault("app.environment", "production")
	cl.viper.SetDefault("app.debug", false)

	cl.viper.SetDefault("log.level", "info")
	cl.viper.SetDefault("log.format", "text")
	cl.viper.SetDefault("log.output", "stdout")
	cl.viper.SetDefault("log.max_size", 100)
	cl.viper.SetDefault("log.max_backups", 5)
	cl.viper.SetDefault("log.max_age", 30)
	cl.viper.SetDefault("log.compress", true)

	cl.viper.SetDefault("scan.scan_type", "syn")
	cl.viper.SetDefault("scan.ports", "1-1000")
	cl.viper.SetDefault("scan.mtu", 1500)
	cl.viper.SetDefault("scan.ttl", 64)
	cl.viper.SetDefault("scan.decoy_me", -1)

	cl.viper.SetDefault("rate.template", 3)
	cl.viper.SetDefault("rate.min_hostgroup", 32)
	cl.viper.SetDefault("rate.max_hostgroup", 512)
	cl.viper.SetDefault("rate.admit_tolerance", 1.03)

	cl.viper.SetDefault("detection.version_intensity", 7)
	cl.viper.SetDefault("detection.worker_pool_size", 64)
	cl.viper.SetDefault("detection.initial_rate", 50.0)

	cl.viper.SetDefault("resource.batch_size", 1024)
}

// validateConfig 验证配置
func (cl *ConfigLoader) validateConfig(cfg *Config) error {
	if cfg.Scan.Ports == "" {
		return fmt.Errorf("scan ports specification is required")
	}
	return validateConfig(cfg)
}

// GetConfigPath 获取配置文件路径
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfigFromFile 从指定文件加载配置
func LoadConfigFromFile(configFile string) (*Config, error) {
	configPath := filepath.Dir(configFile)
	loader := NewConfigLoader(configPath, "SCANCORE")
	loader.viper.SetConfigFile(configFile)
	return loader.LoadConfig()
}
