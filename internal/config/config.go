package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"ocrbot/internal/auth"
	"ocrbot/internal/cleanup"
	"ocrbot/internal/logger"
)

// EnvPrefix is prepended to every environment variable override, e.g.
// OCRBOT_BAIDU_API_KEY for baidu.api_key.
const EnvPrefix = "OCRBOT"

type Config struct {
	Baidu   BaiduConfig   `mapstructure:"baidu"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	OneBot  OneBotConfig  `mapstructure:"onebot"`
	Server  ServerConfig  `mapstructure:"server"`
	Bot     BotConfig     `mapstructure:"bot"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// BaiduConfig configures the OAuth2 token exchange and the OCR endpoint.
type BaiduConfig struct {
	APIKey    string  `mapstructure:"api_key"`
	SecretKey string  `mapstructure:"secret_key"`
	TokenURL  string  `mapstructure:"token_url"`
	OCRURL    string  `mapstructure:"ocr_url"`
	QPS       float64 `mapstructure:"qps"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// OneBotConfig points at the host's OneBot v11 HTTP API.
type OneBotConfig struct {
	APIURL      string `mapstructure:"api_url"`
	AccessToken string `mapstructure:"access_token"`
	Secret      string `mapstructure:"secret"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	WebhookPath string `mapstructure:"webhook_path"`
}

type BotConfig struct {
	Command        string        `mapstructure:"command"`
	WakePrefix     string        `mapstructure:"wake_prefix"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

type StorageConfig struct {
	TempDir      string        `mapstructure:"temp_dir"`
	CleanupDelay time.Duration `mapstructure:"cleanup_delay"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	TimeFormat string `mapstructure:"time_format"`
	Output     string `mapstructure:"output"`
}

// Load builds the configuration from defaults, an optional YAML file and
// OCRBOT_* environment variables, in increasing order of precedence.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("baidu.api_key", "")
	v.SetDefault("baidu.secret_key", "")
	v.SetDefault("baidu.token_url", "https://aip.baidubce.com/oauth/2.0/token")
	v.SetDefault("baidu.ocr_url", "https://aip.baidubce.com/rest/2.0/ocr/v1/accurate_basic")
	v.SetDefault("baidu.qps", 2)

	v.SetDefault("http.timeout", "30s")

	v.SetDefault("onebot.api_url", "http://127.0.0.1:5700")
	v.SetDefault("onebot.access_token", "")
	v.SetDefault("onebot.secret", "")

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.webhook_path", "/onebot")

	v.SetDefault("bot.command", "提取文字")
	v.SetDefault("bot.wake_prefix", "/")
	v.SetDefault("bot.command_timeout", "60s")

	v.SetDefault("storage.temp_dir", filepath.Join(os.TempDir(), "ocrbot"))
	v.SetDefault("storage.cleanup_delay", cleanup.DefaultDelay)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.time_format", time.RFC3339)
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	if c.Baidu.TokenURL == "" {
		return fmt.Errorf("baidu.token_url is required")
	}
	if c.Baidu.OCRURL == "" {
		return fmt.Errorf("baidu.ocr_url is required")
	}
	if c.Baidu.QPS < 0 {
		return fmt.Errorf("baidu.qps must not be negative, got %v", c.Baidu.QPS)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.Bot.Command == "" {
		return fmt.Errorf("bot.command is required")
	}
	if c.Bot.CommandTimeout <= 0 {
		return fmt.Errorf("bot.command_timeout must be positive, got %s", c.Bot.CommandTimeout)
	}
	if c.Storage.TempDir == "" {
		return fmt.Errorf("storage.temp_dir is required")
	}
	if c.Storage.CleanupDelay < 0 {
		return fmt.Errorf("storage.cleanup_delay must not be negative, got %s", c.Storage.CleanupDelay)
	}
	if !isLoopback(c.Server.Addr) && c.OneBot.Secret == "" {
		return fmt.Errorf("onebot.secret is required when server.addr %q is not a loopback address", c.Server.Addr)
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		return fmt.Errorf("server.webhook_path must start with '/', got %q", c.Server.WebhookPath)
	}
	return nil
}

// isLoopback reports whether addr only accepts local connections. An empty
// host binds every interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RecognitionEnabled reports whether both Baidu keys are present.
func (c *Config) RecognitionEnabled() bool {
	return c.Credentials().Configured()
}

// Credentials returns the immutable OCR credentials.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{
		APIKey:         c.Baidu.APIKey,
		SecretKey:      c.Baidu.SecretKey,
		TokenURL:       c.Baidu.TokenURL,
		RecognitionURL: c.Baidu.OCRURL,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		TimeFormat: c.Log.TimeFormat,
		Output:     c.Log.Output,
	}
}
