package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server    ServerConfig            `mapstructure:"server"`    // 服务器配置
	Postgres  PostgresConfig          `mapstructure:"postgres"`  // PostgreSQL配置
	Refresh   RefreshConfig           `mapstructure:"refresh"`   // 刷新调度配置
	Rationale RationaleConfig         `mapstructure:"rationale"` // AI解读服务配置
	Sources   map[string]SourceConfig `mapstructure:"sources"`   // 多来源独立配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `mapstructure:"port"` // 服务端口
	Mode string `mapstructure:"mode"` // Gin运行模式：debug/release/test
}

// PostgresConfig PostgreSQL数据库配置
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
}

// RefreshConfig 刷新调度配置
type RefreshConfig struct {
	Interval       time.Duration `mapstructure:"interval"`        // 自动刷新间隔，0表示只接受手动触发
	ChunkSize      int           `mapstructure:"chunk_size"`      // 批量入库分块大小
	EnabledSources []string      `mapstructure:"enabled_sources"` // 启用的来源列表
}

// RationaleConfig AI解读服务配置（OpenAI兼容接口）
type RationaleConfig struct {
	BaseURL string `mapstructure:"base_url"` // API基础地址
	APIKey  string `mapstructure:"api_key"`  // API密钥
	Model   string `mapstructure:"model"`    // 模型名
	Timeout int    `mapstructure:"timeout"`  // 请求超时（秒）
}

// SourceConfig 单个来源的独立配置
type SourceConfig struct {
	BaseURL    string `mapstructure:"base_url"`    // API基础地址
	Timeout    int    `mapstructure:"timeout"`     // 请求超时（秒）
	RetryCount int    `mapstructure:"retry_count"` // 重试总次数
	PageLimit  int    `mapstructure:"page_limit"`  // 单页条数
	MaxRecords int    `mapstructure:"max_records"` // 分页安全上限（防止游标异常时无限拉取）
	AuthKey    string `mapstructure:"auth_key"`    // 可选的Bearer API Key（Kalshi用）
	Proxy      string `mapstructure:"proxy"`       // 代理地址
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	viper.SetTypeByDefaultValue(true)
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if k, ok := cfg.Sources["kalshi"]; ok {
		if v := os.Getenv("KALSHI_API_KEY"); v != "" {
			k.AuthKey = v
		}
		if v := os.Getenv("KALSHI_PROXY"); v != "" {
			k.Proxy = v
		}
		cfg.Sources["kalshi"] = k
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Rationale.APIKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// applyDefaults 填充省略项的兜底值
func applyDefaults(cfg *Config) {
	if cfg.Refresh.ChunkSize <= 0 {
		cfg.Refresh.ChunkSize = 500
	}
	if len(cfg.Refresh.EnabledSources) == 0 {
		cfg.Refresh.EnabledSources = []string{"kalshi", "polymarket", "manifold"}
	}
	for name, s := range cfg.Sources {
		if s.Timeout <= 0 {
			s.Timeout = 30
		}
		if s.RetryCount <= 0 {
			s.RetryCount = 3
		}
		cfg.Sources[name] = s
	}
	if cfg.Rationale.Timeout <= 0 {
		cfg.Rationale.Timeout = 60
	}
}
