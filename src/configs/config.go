package configs

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 主配置结构
type Config struct {
	Client struct {
		Provider  string `yaml:"provider"`   // 使用的识别提供者名称, 对应 identify 配置段的key
		RequestID string `yaml:"request_id"` // 固定请求ID, 留空则每次自动生成
	} `yaml:"client"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	// 本地联调桩服务配置
	Server struct {
		IP          string `yaml:"ip"`
		Port        int    `yaml:"port"`
		Token       string `yaml:"token"`          // JWT签名密钥
		FieldDelay  int    `yaml:"field_delay_ms"` // 字段事件之间的推送间隔
		RequireAuth bool   `yaml:"require_auth"`
	} `yaml:"server"`

	Image ImageConfig `yaml:"image"`

	Identify map[string]IdentifyConfig `yaml:"identify"`
}

// IdentifyConfig 识别提供者配置结构
type IdentifyConfig struct {
	Type        string                 `yaml:"type"` // sse 或 openai
	BaseURL     string                 `yaml:"url"`
	APIKey      string                 `yaml:"api_key"`
	ModelName   string                 `yaml:"model_name"`
	Temperature float64                `yaml:"temperature"`
	MaxTokens   int                    `yaml:"max_tokens"`
	Extra       map[string]interface{} `yaml:",inline"`
}

// SecurityConfig 图片安全配置结构
type SecurityConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"` // 最大文件大小（字节）
	MaxPixels   int64 `yaml:"max_pixels"`    // 最大像素数量
}

// ImageConfig 图片压缩配置结构
type ImageConfig struct {
	Quality       int            `yaml:"quality"`        // JPEG编码质量
	DisableWorker bool           `yaml:"disable_worker"` // 禁用后台工作池, 全部在调用方goroutine内压缩
	Security      SecurityConfig `yaml:"security"`
}

// LoadConfig 从文件加载配置, 密钥类配置项可被环境变量覆盖
func LoadConfig() (*Config, string, error) {
	// 加载 .env 文件, 不存在时直接使用系统环境变量
	godotenv.Load()

	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, path, err
	}
	config.ApplyDefaults()
	config.ApplyEnvOverlay()

	return config, path, nil
}

// ApplyEnvOverlay 用环境变量覆盖密钥类配置项, 避免把密钥写进yaml。
// openai类型的提供者读 OPENAI_API_KEY, 其余读 WINEAPP_API_KEY。
func (c *Config) ApplyEnvOverlay() {
	for name, provider := range c.Identify {
		envKey := "WINEAPP_API_KEY"
		if provider.Type == "openai" {
			envKey = "OPENAI_API_KEY"
		}
		if value := os.Getenv(envKey); value != "" {
			provider.APIKey = value
			c.Identify[name] = provider
		}
	}

	if token := os.Getenv("WINEAPP_SERVER_TOKEN"); token != "" {
		c.Server.Token = token
	}
}

// ApplyDefaults 填充缺省配置项
func (c *Config) ApplyDefaults() {
	if c.Log.LogDir == "" {
		c.Log.LogDir = "logs"
	}
	if c.Log.LogFile == "" {
		c.Log.LogFile = "wineapp.log"
	}
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "INFO"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8990
	}
	if c.Server.FieldDelay == 0 {
		c.Server.FieldDelay = 50
	}
	if c.Image.Quality <= 0 || c.Image.Quality > 100 {
		c.Image.Quality = 85
	}
	if c.Image.Security.MaxFileSize == 0 {
		c.Image.Security.MaxFileSize = 10 * 1024 * 1024
	}
	if c.Image.Security.MaxPixels == 0 {
		c.Image.Security.MaxPixels = 50_000_000
	}
}
