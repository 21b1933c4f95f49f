package configs

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestApplyDefaults(t *testing.T) {
	t.Run("空配置填充全部缺省值", func(t *testing.T) {
		config := &Config{}
		config.ApplyDefaults()

		if config.Log.LogDir != "logs" {
			t.Errorf("LogDir = %q, want logs", config.Log.LogDir)
		}
		if config.Log.LogFile != "wineapp.log" {
			t.Errorf("LogFile = %q, want wineapp.log", config.Log.LogFile)
		}
		if config.Log.LogLevel != "INFO" {
			t.Errorf("LogLevel = %q, want INFO", config.Log.LogLevel)
		}
		if config.Server.Port != 8990 {
			t.Errorf("Port = %d, want 8990", config.Server.Port)
		}
		if config.Server.FieldDelay != 50 {
			t.Errorf("FieldDelay = %d, want 50", config.Server.FieldDelay)
		}
		if config.Image.Quality != 85 {
			t.Errorf("Quality = %d, want 85", config.Image.Quality)
		}
		if config.Image.Security.MaxFileSize != 10*1024*1024 {
			t.Errorf("MaxFileSize = %d, want 10MB", config.Image.Security.MaxFileSize)
		}
		if config.Image.Security.MaxPixels != 50_000_000 {
			t.Errorf("MaxPixels = %d, want 50M", config.Image.Security.MaxPixels)
		}
	})

	t.Run("已有配置不被覆盖", func(t *testing.T) {
		config := &Config{}
		config.Server.Port = 9000
		config.Image.Quality = 70
		config.ApplyDefaults()

		if config.Server.Port != 9000 {
			t.Errorf("Port = %d, want 9000", config.Server.Port)
		}
		if config.Image.Quality != 70 {
			t.Errorf("Quality = %d, want 70", config.Image.Quality)
		}
	})

	t.Run("非法的质量参数回落缺省值", func(t *testing.T) {
		config := &Config{}
		config.Image.Quality = 150
		config.ApplyDefaults()

		if config.Image.Quality != 85 {
			t.Errorf("Quality = %d, want 85", config.Image.Quality)
		}
	})
}

func TestConfigUnmarshal(t *testing.T) {
	doc := `
client:
  provider: wine_service
log:
  log_level: DEBUG
server:
  port: 8991
  token: dev-secret
  require_auth: true
image:
  quality: 80
  disable_worker: true
  security:
    max_file_size: 1048576
    max_pixels: 1000000
identify:
  wine_service:
    type: sse
    url: http://localhost:8991
    api_key: sk-test
  vision_llm:
    type: openai
    url: https://api.openai.com/v1
    model_name: gpt-4o
    temperature: 0.2
    max_tokens: 500
`

	config := &Config{}
	if err := yaml.Unmarshal([]byte(doc), config); err != nil {
		t.Fatalf("解析配置失败: %v", err)
	}

	if config.Client.Provider != "wine_service" {
		t.Errorf("Provider = %q, want wine_service", config.Client.Provider)
	}
	if config.Server.Port != 8991 || !config.Server.RequireAuth {
		t.Errorf("Server = %+v", config.Server)
	}
	if !config.Image.DisableWorker || config.Image.Quality != 80 {
		t.Errorf("Image = %+v", config.Image)
	}
	if config.Image.Security.MaxFileSize != 1048576 {
		t.Errorf("MaxFileSize = %d, want 1048576", config.Image.Security.MaxFileSize)
	}

	sse, ok := config.Identify["wine_service"]
	if !ok {
		t.Fatal("缺少 wine_service 配置段")
	}
	if sse.Type != "sse" || sse.BaseURL != "http://localhost:8991" || sse.APIKey != "sk-test" {
		t.Errorf("sse配置 = %+v", sse)
	}

	llm, ok := config.Identify["vision_llm"]
	if !ok {
		t.Fatal("缺少 vision_llm 配置段")
	}
	if llm.ModelName != "gpt-4o" || llm.Temperature != 0.2 || llm.MaxTokens != 500 {
		t.Errorf("openai配置 = %+v", llm)
	}
}

func TestApplyEnvOverlay(t *testing.T) {
	newConfig := func() *Config {
		return &Config{
			Identify: map[string]IdentifyConfig{
				"wine_service": {Type: "sse", APIKey: "yaml-sse-key"},
				"vision_llm":   {Type: "openai", APIKey: "yaml-openai-key"},
			},
		}
	}

	t.Run("OPENAI_API_KEY覆盖openai提供者的密钥", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-from-env")

		config := newConfig()
		config.ApplyEnvOverlay()

		if got := config.Identify["vision_llm"].APIKey; got != "sk-from-env" {
			t.Errorf("openai APIKey = %q, want sk-from-env", got)
		}
		// sse提供者不受OPENAI_API_KEY影响
		if got := config.Identify["wine_service"].APIKey; got != "yaml-sse-key" {
			t.Errorf("sse APIKey = %q, want yaml-sse-key", got)
		}
	})

	t.Run("WINEAPP_API_KEY覆盖sse提供者的密钥", func(t *testing.T) {
		t.Setenv("WINEAPP_API_KEY", "svc-from-env")

		config := newConfig()
		config.ApplyEnvOverlay()

		if got := config.Identify["wine_service"].APIKey; got != "svc-from-env" {
			t.Errorf("sse APIKey = %q, want svc-from-env", got)
		}
	})

	t.Run("环境变量未设置时保留yaml中的密钥", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("WINEAPP_API_KEY", "")

		config := newConfig()
		config.ApplyEnvOverlay()

		if got := config.Identify["vision_llm"].APIKey; got != "yaml-openai-key" {
			t.Errorf("openai APIKey = %q, want yaml-openai-key", got)
		}
	})

	t.Run("WINEAPP_SERVER_TOKEN覆盖服务端签名密钥", func(t *testing.T) {
		t.Setenv("WINEAPP_SERVER_TOKEN", "token-from-env")

		config := newConfig()
		config.Server.Token = "yaml-token"
		config.ApplyEnvOverlay()

		if config.Server.Token != "token-from-env" {
			t.Errorf("Token = %q, want token-from-env", config.Server.Token)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("优先加载.config.yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, ".config.yaml", "server:\n  port: 7001\n")
		writeConfigFile(t, dir, "config.yaml", "server:\n  port: 7002\n")
		chdir(t, dir)

		config, path, err := LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if path != ".config.yaml" {
			t.Errorf("路径 = %q, want .config.yaml", path)
		}
		if config.Server.Port != 7001 {
			t.Errorf("Port = %d, want 7001", config.Server.Port)
		}
	})

	t.Run("缺少.config.yaml时回落config.yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "config.yaml", "server:\n  port: 7002\n")
		chdir(t, dir)

		config, path, err := LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if path != "config.yaml" {
			t.Errorf("路径 = %q, want config.yaml", path)
		}
		if config.Server.Port != 7002 {
			t.Errorf("Port = %d, want 7002", config.Server.Port)
		}
	})

	t.Run("两个文件都不存在时报错", func(t *testing.T) {
		chdir(t, t.TempDir())
		if _, _, err := LoadConfig(); err == nil {
			t.Error("缺少配置文件应返回错误")
		}
	})
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("获取工作目录失败: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("切换工作目录失败: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(oldwd); err != nil {
			t.Fatalf("恢复工作目录失败: %v", err)
		}
	})
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
}
