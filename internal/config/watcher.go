package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches the active config file and reloads on change.
//
// A long scan run (a /0 sweep can take hours) benefits from picking up a
// lowered --max-rate or a log-level change without restarting mid-scan.
// Reload is not atomic with respect to in-flight probes; callbacks decide
// what is safe to apply live (rate/log knobs) versus what requires a fresh
// process (target list, scan type).
type ConfigWatcher struct {
	configPath  string
	config      *Config
	loader      *ConfigLoader
	watcher     *fsnotify.Watcher
	callbacks   []ConfigChangeCallback
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	reloadDelay time.Duration
	lastReload  time.Time
}

// ConfigChangeCallback 配置变更回调函数
type ConfigChangeCallback func(oldConfig, newConfig *Config) error

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(configPath string) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConfigWatcher{
		configPath:  configPath,
		loader:      NewConfigLoader(filepath.Dir(configPath), "SCANCORE"),
		watcher:     watcher,
		ctx:         ctx,
		cancel:      cancel,
		reloadDelay: 1 * time.Second,
	}, nil
}

// Start 启动配置监听
func (cw *ConfigWatcher) Start() error {
	cfg, err := cw.loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	cw.mu.Lock()
	cw.config = cfg
	cw.mu.Unlock()

	configFile := cw.loader.GetConfigPath()
	if configFile == "" {
		// defaults-only run with no config file on disk: nothing to
		// watch, but not an error — the watcher just never fires.
		return nil
	}

	if err := cw.watcher.Add(configFile); err != nil {
		return fmt.Errorf("failed to watch config file %s: %w", configFile, err)
	}

	go cw.watchLoop()

	return nil
}

// Stop 停止配置监听
func (cw *ConfigWatcher) Stop() error {
	cw.cancel()
	return cw.watcher.Close()
}

// GetConfig 获取当前配置
func (cw *ConfigWatcher) GetConfig() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// AddCallback 添加配置变更回调
func (cw *ConfigWatcher) AddCallback(callback ConfigChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			fmt.Printf("config watcher error: %v\n", err)
		}
	}
}

func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
		now := time.Now()
		if now.Sub(cw.lastReload) < cw.reloadDelay {
			return
		}
		cw.lastReload = now

		time.AfterFunc(cw.reloadDelay, func() {
			if err := cw.reloadConfig(); err != nil {
				fmt.Printf("failed to reload config: %v\n", err)
			}
		})
	}
}

func (cw *ConfigWatcher) reloadConfig() error {
	newConfig, err := cw.loader.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	cw.mu.RLock()
	oldConfig := cw.config
	cw.mu.RUnlock()

	for _, callback := range cw.callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			return fmt.Errorf("config change callback failed: %w", err)
		}
	}

	cw.mu.Lock()
	cw.config = newConfig
	cw.mu.Unlock()

	return nil
}

// WatchConfig 监听配置变更（便捷函数）
func WatchConfig(configPath string, callback ConfigChangeCallback) (*ConfigWatcher, error) {
	watcher, err := NewConfigWatcher(configPath)
	if err != nil {
		return nil, err
	}

	if callback != nil {
		watcher.AddCallback(callback)
	}

	if err := watcher.Start(); err != nil {
		return nil, err
	}

	return watcher, nil
}

// ValidateConfigChange rejects live-reload attempts that touch fields a
// running scan cannot safely adopt mid-flight (targets/ports/scan type);
// callers apply the rest (log level, rate knobs) through their own callback.
func ValidateConfigChange(oldConfig, newConfig *Config) error {
	if oldConfig.Scan.ScanType != newConfig.Scan.ScanType {
		return fmt.Errorf("scan type cannot be changed during a running scan")
	}

	if len(oldConfig.Scan.Targets) != len(newConfig.Scan.Targets) {
		return fmt.Errorf("target list cannot be changed during a running scan")
	}
	for i := range oldConfig.Scan.Targets {
		if oldConfig.Scan.Targets[i] != newConfig.Scan.Targets[i] {
			return fmt.Errorf("target list cannot be changed during a running scan")
		}
	}

	if oldConfig.Scan.Ports != newConfig.Scan.Ports {
		return fmt.Errorf("port specification cannot be changed during a running scan")
	}

	if newConfig.Rate.MaxRate < 0 {
		return fmt.Errorf("invalid max_rate: %f", newConfig.Rate.MaxRate)
	}

	return nil
}
