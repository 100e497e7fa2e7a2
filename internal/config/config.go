package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PlaceholderKey 是配置模板中的凭据占位符。
// 保持占位符不变等同于未配置云端后端，加载时会被归一化为未配置状态。
const PlaceholderKey = "YOUR_SPEECH_KEY"

// Config 是 hanyin 的顶层配置结构。
type Config struct {
	TTS     TTSConfig     `yaml:"tts"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// TTSConfig 语音合成配置。
type TTSConfig struct {
	// Engine 云端引擎类型: azure, edge, tencent。
	// 设为 local 则不使用云端后端，直接走平台本地合成。
	Engine string `yaml:"engine"`

	// Language 合成语言标签，如 zh-CN。
	Language string `yaml:"language"`

	// Voice 默认语音名称，可被单次请求覆盖。
	Voice string `yaml:"voice"`

	// TimeoutMS 云端合成的超时时间（毫秒）。
	// 0 表示不限时，网络请求可能无限期挂起。
	TimeoutMS int `yaml:"timeout_ms"`

	Azure   *AzureConfig   `yaml:"azure"`
	Edge    EdgeConfig     `yaml:"edge"`
	Tencent *TencentConfig `yaml:"tencent"`
	Local   LocalConfig    `yaml:"local"`
}

// AzureConfig Azure 语音服务配置。
// 字段缺失或 Key 为占位符时整体归一化为 nil，表示云端未配置。
type AzureConfig struct {
	Key    string `yaml:"key"`
	Region string `yaml:"region"`
	// Endpoint 覆盖默认的区域端点，通常留空。
	Endpoint string `yaml:"endpoint"`
}

// EdgeConfig Edge TTS 配置（免凭据）。
type EdgeConfig struct {
	Voice string `yaml:"voice"`
}

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
	VoiceType int64  `yaml:"voice_type"`
	Region    string `yaml:"region"`
}

// LocalConfig 平台本地合成配置。
type LocalConfig struct {
	// Voice 首选本地语音，按名称/语言标签子串匹配，匹配不到则用平台默认。
	Voice string `yaml:"voice"`
}

// HistoryConfig 朗读历史记录配置。
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load 读取 YAML 配置文件并返回 Config。
// 支持 ${VAR_NAME} 形式的环境变量展开。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	// 展开环境变量，如 ${HANYIN_SPEECH_KEY}
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件 %s 失败: %w", path, err)
	}

	setDefaults(cfg)
	return cfg, nil
}

// setDefaults 为未设置的配置项填充默认值，并把占位/残缺的云端凭据
// 归一化为"未配置"状态（对应字段置 nil）。
func setDefaults(cfg *Config) {
	if cfg.TTS.Engine == "" {
		cfg.TTS.Engine = "azure"
	}
	if cfg.TTS.Language == "" {
		cfg.TTS.Language = "zh-CN"
	}
	if cfg.TTS.Voice == "" {
		cfg.TTS.Voice = "zh-CN-XiaoxiaoNeural"
	}
	if cfg.TTS.Edge.Voice == "" {
		cfg.TTS.Edge.Voice = cfg.TTS.Voice
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.TTS.Azure != nil {
		cfg.TTS.Azure.Key = strings.TrimSpace(cfg.TTS.Azure.Key)
		if cfg.TTS.Azure.Key == "" || cfg.TTS.Azure.Key == PlaceholderKey {
			cfg.TTS.Azure = nil
		}
	}
	if cfg.TTS.Tencent != nil {
		cfg.TTS.Tencent.SecretID = strings.TrimSpace(cfg.TTS.Tencent.SecretID)
		cfg.TTS.Tencent.SecretKey = strings.TrimSpace(cfg.TTS.Tencent.SecretKey)
		if cfg.TTS.Tencent.SecretID == "" || cfg.TTS.Tencent.SecretKey == "" {
			cfg.TTS.Tencent = nil
		}
	}

	if cfg.History.Path == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.History.Path = home + "/.hanyin/hanyin.db"
		} else {
			cfg.History.Path = "./hanyin.db"
		}
	} else if strings.HasPrefix(cfg.History.Path, "~/") {
		// Go 不会自动展开 ~，需要手动替换为用户主目录
		home, _ := os.UserHomeDir()
		if home != "" {
			cfg.History.Path = home + cfg.History.Path[1:]
		}
	}
}
