package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Vault     VaultConfig     `mapstructure:"vault"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type TelegramConfig struct {
	BotToken             string `mapstructure:"bot_token"`
	InternalBypassSecret string `mapstructure:"internal_bypass_secret"`
	AlertChatID          string `mapstructure:"alert_chat_id"`
	AlertPrefix          string `mapstructure:"alert_prefix"`
	AlertCooldownSec     int    `mapstructure:"alert_cooldown_sec"`
	DevSkipAuth          bool   `mapstructure:"dev_skip_auth"`
}

type BillingConfig struct {
	DefaultProvider     string   `mapstructure:"default_provider"`
	Currency            string   `mapstructure:"currency"`
	WebhookSecret       string   `mapstructure:"webhook_secret"`
	AdminToken          string   `mapstructure:"admin_token"`
	AdminIPAllowlist    []string `mapstructure:"admin_ip_allowlist"`
	GraceDays           int      `mapstructure:"grace_days"`
	PendingTimeoutHours int      `mapstructure:"pending_timeout_hours"`
	PendingTimeoutBatch int      `mapstructure:"pending_timeout_batch"`
	DedupRetentionHours int      `mapstructure:"dedup_retention_hours"`
}

type QuotaConfig struct {
	FreeDailyCap   int `mapstructure:"free_daily_cap"`   // 0 表示免费层不设上限
	UserDailyCap   int `mapstructure:"user_daily_cap"`   // 单用户绝对日上限，付费套餐同样受限
	GlobalDailyCap int `mapstructure:"global_daily_cap"` // 全局日请求上限，0 表示关闭
}

type RateLimitConfig struct {
	WindowSeconds int    `mapstructure:"window_seconds"`
	MaxRequests   int    `mapstructure:"max_requests"`
	Store         string `mapstructure:"store"` // memory / redis
}

type ChatConfig struct {
	RelayURL      string `mapstructure:"relay_url"`
	RelayTimeout  int    `mapstructure:"relay_timeout_sec"`
	MaxInputChars int    `mapstructure:"max_input_chars"`
	SessionLimit  int    `mapstructure:"session_limit"`
	SessionTTLHrs int    `mapstructure:"session_ttl_hours"`
	PromptShield  bool   `mapstructure:"prompt_shield"`
	ContextWindow int    `mapstructure:"context_window"`
}

type VaultConfig struct {
	MaxBlobChars  int    `mapstructure:"max_blob_chars"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
