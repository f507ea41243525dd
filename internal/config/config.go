// Package config loads and hot-reloads the scan core's runtime configuration.
//
// @description: configuration types and loading for the scan engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration tree.
type Config struct {
	// 应用配置
	App *AppConfig `yaml:"app" mapstructure:"app"`

	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// 扫描目标与探测方式配置
	Scan *ScanConfig `yaml:"scan" mapstructure:"scan"`

	// 速率与并发配置
	Rate *RateConfig `yaml:"rate" mapstructure:"rate"`

	// 服务识别/操作系统识别配置
	Detection *DetectionConfig `yaml:"detection" mapstructure:"detection"`

	// 资源探测与限制配置
	Resource *ResourceConfig `yaml:"resource" mapstructure:"resource"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`               // 应用名称
	Version     string `yaml:"version" mapstructure:"version"`         // 应用版本
	Environment string `yaml:"environment" mapstructure:"environment"` // 运行环境
	Debug       bool   `yaml:"debug" mapstructure:"debug"`             // 调试模式
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别 (debug/info/warn/error)
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (json/text)
	Output     string `yaml:"output" mapstructure:"output"`           // 日志输出 (stdout/file/both)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 最大文件大小（MB）
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// ScanConfig describes what to scan and how the probes are built.
type ScanConfig struct {
	Targets      []string `yaml:"targets" mapstructure:"targets"`               // 目标规格 (CIDR/range/hostname)
	TargetFile   string   `yaml:"target_file" mapstructure:"target_file"`       // -iL
	ExcludeFile  string   `yaml:"exclude_file" mapstructure:"exclude_file"`     // --excludefile
	Ports        string   `yaml:"ports" mapstructure:"ports"`                   // -p 规格
	ExcludePorts string   `yaml:"exclude_ports" mapstructure:"exclude_ports"`   // --exclude-ports
	FastMode     bool     `yaml:"fast_mode" mapstructure:"fast_mode"`           // -F
	ScanType     string   `yaml:"scan_type" mapstructure:"scan_type"`           // syn/connect/udp/fin/null/xmas/ack/idle
	IdleZombie   string   `yaml:"idle_zombie" mapstructure:"idle_zombie"`       // -sI zombie host
	IPv6         bool     `yaml:"ipv6" mapstructure:"ipv6"`                     // -6
	SkipCDN      bool     `yaml:"skip_cdn" mapstructure:"skip_cdn"`             // --skip-cdn
	CDNFilter    bool     `yaml:"cdn_filter" mapstructure:"cdn_filter"`         // --cdn-filter (keep only CDN-range targets)
	Fragment     bool     `yaml:"fragment" mapstructure:"fragment"`             // -f
	MTU          int      `yaml:"mtu" mapstructure:"mtu"`                       // --mtu
	TTL          int      `yaml:"ttl" mapstructure:"ttl"`                       // --ttl
	BadSum       bool     `yaml:"bad_sum" mapstructure:"bad_sum"`               // --badsum
	Decoys       []string `yaml:"decoys" mapstructure:"decoys"`                 // -D
	DecoyMe      int      `yaml:"decoy_me" mapstructure:"decoy_me"`             // position of real source among decoys, -1 random
	SourceIP     string   `yaml:"source_ip" mapstructure:"source_ip"`           // -S
	SourcePort   int      `yaml:"source_port" mapstructure:"source_port"`       // -g / --source-port
}

// RateConfig drives internal/ratecontrol.Config.
type RateConfig struct {
	Template       int     `yaml:"template" mapstructure:"template"`               // -T0..-T5
	MaxRate        float64 `yaml:"max_rate" mapstructure:"max_rate"`               // --max-rate
	MinRate        float64 `yaml:"min_rate" mapstructure:"min_rate"`               // --min-rate
	MinHostgroup   int     `yaml:"min_hostgroup" mapstructure:"min_hostgroup"`     // --min-hostgroup
	MaxHostgroup   int     `yaml:"max_hostgroup" mapstructure:"max_hostgroup"`     // --max-hostgroup
	ScanDelayMS    int     `yaml:"scan_delay_ms" mapstructure:"scan_delay_ms"`     // --scan-delay
	AdmitTolerance float64 `yaml:"admit_tolerance" mapstructure:"admit_tolerance"` // fraction over max_rate tolerated before throttling
}

// DetectionConfig drives internal/detection's worker pool and probe depth.
type DetectionConfig struct {
	ServiceVersion    bool   `yaml:"service_version" mapstructure:"service_version"`       // -sV
	VersionIntensity  int    `yaml:"version_intensity" mapstructure:"version_intensity"`   // --version-intensity
	OSDetection       bool   `yaml:"os_detection" mapstructure:"os_detection"`             // -O
	Aggressive        bool   `yaml:"aggressive" mapstructure:"aggressive"`                 // -A
	Script            string `yaml:"script" mapstructure:"script"`                         // --script
	WorkerPoolSize    int    `yaml:"worker_pool_size" mapstructure:"worker_pool_size"`
	InitialRate       float64 `yaml:"initial_rate" mapstructure:"initial_rate"`             // AIMD starting admission rate
}

// ResourceConfig bounds internal/pkg/resource clamping.
type ResourceConfig struct {
	BatchSize  int  `yaml:"batch_size" mapstructure:"batch_size"`   // --batch-size
	Ulimit     int  `yaml:"ulimit" mapstructure:"ulimit"`           // --ulimit override
	NUMAPinned bool `yaml:"numa_pinned" mapstructure:"numa_pinned"` // --numa
}

// LoadConfig loads configuration from the given path (or the default search
// path when empty), applying defaults and environment overrides.
func LoadConfig(configPath ...string) (*Config, error) {
	var path string
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	loader := NewConfigLoader(path, "SCANCORE")
	cfg, err := loader.LoadConfig()
	if err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Rate.MaxRate < 0 {
		return fmt.Errorf("invalid max_rate: %f", cfg.Rate.MaxRate)
	}
	if cfg.Rate.MinHostgroup <= 0 || cfg.Rate.MaxHostgroup < cfg.Rate.MinHostgroup {
		return fmt.Errorf("invalid hostgroup bounds: min=%d max=%d", cfg.Rate.MinHostgroup, cfg.Rate.MaxHostgroup)
	}
	if cfg.Rate.Template < 0 || cfg.Rate.Template > 5 {
		return fmt.Errorf("invalid timing template: T%d", cfg.Rate.Template)
	}
	if cfg.Detection.VersionIntensity < 0 || cfg.Detection.VersionIntensity > 9 {
		return fmt.Errorf("invalid version_intensity: %d", cfg.Detection.VersionIntensity)
	}
	if cfg.Log.FilePath != "" {
		if err := ensureDir(filepath.Dir(cfg.Log.FilePath)); err != nil {
			return fmt.Errorf("failed to ensure log directory: %w", err)
		}
	}
	return nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(absDir, 0755)
}

// GetConfig returns the process-wide configuration, loading it from the
// default search path on first use.
var globalConfig *Config

func GetConfig() *Config {
	if globalConfig == nil {
		var err error
		globalConfig, err = LoadConfig("")
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	}
	return globalConfig
}

// ReloadConfig reloads the process-wide configuration from the default
// search path (SCANCORE_CONFIG_PATH, ./configs, .); a path given to an
// earlier LoadConfig call is not reused.
func ReloadConfig() error {
	newConfig, err := LoadConfig("")
	if err != nil {
		return err
	}
	globalConfig = newConfig
	return nil
}

// scanDelay converts RateConfig's millisecond field to a Duration for
// ratecontrol.Config.
func (r RateConfig) scanDelay() time.Duration {
	return time.Duration(r.ScanDelayMS) * time.Millisecond
}
