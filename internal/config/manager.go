package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// GatewayConfig 网关可热更新配置
// 凭据和限额既可以来自环境变量，也可以放在 .config/gateway.json 里热更新。
// 文件中的非零字段覆盖环境变量提供的默认值。
type GatewayConfig struct {
	// 上游凭据（覆盖环境变量中的 GEMINI_API_KEY_*）
	Credentials []string `json:"credentials,omitempty"`

	// 每个凭据的每日调用上限（0 表示沿用环境配置）
	KeyDailyLimit int `json:"keyDailyLimit,omitempty"`

	// 用户级每日配额覆盖
	StandardQuestionLimit int `json:"standardQuestionLimit,omitempty"`
	StandardAnalysisLimit int `json:"standardAnalysisLimit,omitempty"`
	ElevatedQuestionLimit int `json:"elevatedQuestionLimit,omitempty"`
	ElevatedAnalysisLimit int `json:"elevatedAnalysisLimit,omitempty"`
}

// ConfigManager 配置管理器
// 监听配置文件变化并在重载后通知回调（用于重建凭据池）。
type ConfigManager struct {
	mu         sync.RWMutex
	config     GatewayConfig
	configFile string
	watcher    *fsnotify.Watcher
	onChange   func(GatewayConfig)
}

// NewConfigManager 创建配置管理器
func NewConfigManager(configFile string) (*ConfigManager, error) {
	cm := &ConfigManager{
		configFile: configFile,
	}

	// 加载配置
	if err := cm.loadConfig(); err != nil {
		return nil, err
	}

	// 启动文件监听
	if err := cm.startWatcher(); err != nil {
		log.Printf("启动配置文件监听失败: %v", err)
	}

	return cm, nil
}

// loadConfig 加载配置
func (cm *ConfigManager) loadConfig() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	// 如果配置文件不存在，创建默认配置
	if _, err := os.Stat(cm.configFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cm.configFile), 0755); err != nil {
			return err
		}
		data, err := json.MarshalIndent(GatewayConfig{}, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(cm.configFile, data, 0644)
	}

	data, err := os.ReadFile(cm.configFile)
	if err != nil {
		return err
	}

	var cfg GatewayConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return err
	}

	// 文件里的凭据同样要经过格式过滤
	cfg.Credentials = FilterCredentials(cfg.Credentials)
	cm.config = cfg
	return nil
}

// startWatcher 启动文件监听
func (cm *ConfigManager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	cm.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					log.Printf("检测到网关配置文件变化，重载配置...")
					if err := cm.Reload(); err != nil {
						log.Printf("配置重载失败: %v", err)
					} else {
						log.Printf("✅ 网关配置已重载")
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("文件监听错误: %v", err)
			}
		}
	}()

	return watcher.Add(cm.configFile)
}

// Reload 重新加载配置文件并触发变更回调
func (cm *ConfigManager) Reload() error {
	if err := cm.loadConfig(); err != nil {
		return err
	}

	cm.mu.RLock()
	cfg := cm.config
	onChange := cm.onChange
	cm.mu.RUnlock()

	if onChange != nil {
		onChange(cfg)
	}
	return nil
}

// SetOnChangeCallback 设置配置变更回调
func (cm *ConfigManager) SetOnChangeCallback(fn func(GatewayConfig)) {
	cm.mu.Lock()
	cm.onChange = fn
	cm.mu.Unlock()
}

// GetConfig 获取配置快照
func (cm *ConfigManager) GetConfig() GatewayConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	cfg := cm.config
	cfg.Credentials = append([]string(nil), cm.config.Credentials...)
	return cfg
}

// Close 停止文件监听
func (cm *ConfigManager) Close() error {
	if cm.watcher != nil {
		return cm.watcher.Close()
	}
	return nil
}
