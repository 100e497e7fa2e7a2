package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"TTS.Engine", cfg.TTS.Engine, "azure"},
		{"TTS.Language", cfg.TTS.Language, "zh-CN"},
		{"TTS.Voice", cfg.TTS.Voice, "zh-CN-XiaoxiaoNeural"},
		{"TTS.Edge.Voice", cfg.TTS.Edge.Voice, "zh-CN-XiaoxiaoNeural"},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, c.got, c.want)
		}
	}

	if cfg.TTS.Azure != nil {
		t.Errorf("未提供凭据时 Azure 应为 nil")
	}
	if cfg.History.Path == "" {
		t.Errorf("History.Path 应有默认值")
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	cfg := &Config{
		TTS: TTSConfig{
			Engine:   "edge",
			Language: "en-US",
			Voice:    "custom-voice",
		},
		Log: LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.TTS.Engine != "edge" {
		t.Errorf("TTS.Engine should not be overridden: got %s", cfg.TTS.Engine)
	}
	if cfg.TTS.Language != "en-US" {
		t.Errorf("TTS.Language should not be overridden: got %s", cfg.TTS.Language)
	}
	if cfg.TTS.Voice != "custom-voice" {
		t.Errorf("TTS.Voice should not be overridden: got %s", cfg.TTS.Voice)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestSetDefaults_PlaceholderKeyMeansUnconfigured(t *testing.T) {
	cfg := &Config{
		TTS: TTSConfig{
			Azure: &AzureConfig{Key: PlaceholderKey, Region: "eastasia"},
		},
	}
	setDefaults(cfg)

	if cfg.TTS.Azure != nil {
		t.Fatalf("占位符凭据应归一化为未配置状态，got %+v", cfg.TTS.Azure)
	}
}

func TestSetDefaults_TrimsAzureKey(t *testing.T) {
	cfg := &Config{
		TTS: TTSConfig{
			Azure: &AzureConfig{Key: "  real-key  ", Region: "eastasia"},
		},
	}
	setDefaults(cfg)

	if cfg.TTS.Azure == nil {
		t.Fatal("有效凭据不应被清空")
	}
	if cfg.TTS.Azure.Key != "real-key" {
		t.Errorf("expected trimmed key, got %q", cfg.TTS.Azure.Key)
	}
}

func TestSetDefaults_IncompleteTencentMeansUnconfigured(t *testing.T) {
	cfg := &Config{
		TTS: TTSConfig{
			Tencent: &TencentConfig{SecretID: "id-only"},
		},
	}
	setDefaults(cfg)

	if cfg.TTS.Tencent != nil {
		t.Fatal("缺少 SecretKey 的腾讯云配置应归一化为未配置状态")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	yamlContent := `
tts:
  engine: azure
  language: zh-CN
  voice: zh-CN-YunxiNeural
  timeout_ms: 5000
  azure:
    key: test-key
    region: eastasia
history:
  enabled: true
log:
  level: debug
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TTS.Engine != "azure" {
		t.Errorf("TTS.Engine: got %q, want %q", cfg.TTS.Engine, "azure")
	}
	if cfg.TTS.Voice != "zh-CN-YunxiNeural" {
		t.Errorf("TTS.Voice: got %q, want %q", cfg.TTS.Voice, "zh-CN-YunxiNeural")
	}
	if cfg.TTS.TimeoutMS != 5000 {
		t.Errorf("TTS.TimeoutMS: got %d, want 5000", cfg.TTS.TimeoutMS)
	}
	if cfg.TTS.Azure == nil || cfg.TTS.Azure.Key != "test-key" {
		t.Errorf("Azure config not loaded: %+v", cfg.TTS.Azure)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled: got false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_SPEECH_KEY", "secret-from-env")

	yamlContent := `
tts:
  azure:
    key: "${TEST_SPEECH_KEY}"
    region: eastasia
`
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TTS.Azure == nil || cfg.TTS.Azure.Key != "secret-from-env" {
		t.Errorf("expected env var expansion, got %+v", cfg.TTS.Azure)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}
