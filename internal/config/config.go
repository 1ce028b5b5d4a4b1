package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhiyin-next/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Security   SecurityConfig   `mapstructure:"security"`
	Ambassador AmbassadorConfig `mapstructure:"ambassador"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
		Stdout:     c.Stdout,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 后台 JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// AdminConfig 默认管理员配置（首次启动时创建）
type AdminConfig struct {
	DefaultUsername string `mapstructure:"default_username"`
	DefaultPassword string `mapstructure:"default_password"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	LoginRateLimit RateLimitConfig      `mapstructure:"login_rate_limit"`
	AdminRateLimit RateLimitConfig      `mapstructure:"admin_rate_limit"`
	PasswordPolicy PasswordPolicyConfig `mapstructure:"password_policy"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
	BlockSeconds  int `mapstructure:"block_seconds"`
}

// PasswordPolicyConfig 密码策略配置
type PasswordPolicyConfig struct {
	MinLength      int  `mapstructure:"min_length"`
	RequireUpper   bool `mapstructure:"require_upper"`
	RequireLower   bool `mapstructure:"require_lower"`
	RequireNumber  bool `mapstructure:"require_number"`
	RequireSpecial bool `mapstructure:"require_special"`
}

// AmbassadorConfig 知音计划方案配置
type AmbassadorConfig struct {
	Tiers                 []TierConfig        `mapstructure:"tiers"`
	FirstReferralBonus    RewardConfig        `mapstructure:"first_referral_bonus"`
	YearEndReview         YearEndReviewConfig `mapstructure:"year_end_review"`
	LockTimeoutSeconds    int                 `mapstructure:"lock_timeout_seconds"`
	DashboardCacheSeconds int                 `mapstructure:"dashboard_cache_seconds"`
}

// TierConfig 单个等级配置，按门槛由低到高排列
type TierConfig struct {
	Level     string       `mapstructure:"level"`
	PromoteAt int          `mapstructure:"promote_at"`
	RetainAt  int          `mapstructure:"retain_at"`
	Reward    RewardConfig `mapstructure:"reward"`
}

// RewardConfig 现金 / 住宿点数奖励
type RewardConfig struct {
	Cash          float64 `mapstructure:"cash"`
	Accommodation float64 `mapstructure:"accommodation"`
}

// YearEndReviewConfig 年度等级考核调度
type YearEndReviewConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Cron     string `mapstructure:"cron"`
	Timezone string `mapstructure:"timezone"`
}

// LockTimeout 大使帐本锁等待时长
func (c AmbassadorConfig) LockTimeout() time.Duration {
	if c.LockTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// DashboardCacheTTL 仪表盘缓存时长
func (c AmbassadorConfig) DashboardCacheTTL() time.Duration {
	if c.DashboardCacheSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.DashboardCacheSeconds) * time.Second
}

// Location 年度考核使用的时区
func (c YearEndReviewConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// ValidateProgram 校验知音计划方案配置
func (c AmbassadorConfig) ValidateProgram() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("ambassador.tiers is empty")
	}
	seen := make(map[string]struct{}, len(c.Tiers))
	for idx, tier := range c.Tiers {
		level := strings.TrimSpace(tier.Level)
		if level == "" {
			return fmt.Errorf("ambassador.tiers[%d].level is empty", idx)
		}
		if _, ok := seen[level]; ok {
			return fmt.Errorf("ambassador.tiers[%d].level %s duplicated", idx, level)
		}
		seen[level] = struct{}{}
		if tier.Reward.Cash < 0 || tier.Reward.Accommodation < 0 {
			return fmt.Errorf("ambassador.tiers[%d].reward must be non-negative", idx)
		}
		if tier.RetainAt < 0 || tier.RetainAt > tier.PromoteAt {
			return fmt.Errorf("ambassador.tiers[%d].retain_at must be within [0, promote_at]", idx)
		}
		if idx == 0 {
			if tier.PromoteAt != 0 {
				return fmt.Errorf("ambassador.tiers[0].promote_at must be 0")
			}
			continue
		}
		if tier.PromoteAt <= c.Tiers[idx-1].PromoteAt {
			return fmt.Errorf("ambassador.tiers[%d].promote_at must be greater than the previous tier", idx)
		}
	}
	if c.FirstReferralBonus.Cash < 0 || c.FirstReferralBonus.Accommodation < 0 {
		return fmt.Errorf("ambassador.first_referral_bonus must be non-negative")
	}
	if c.YearEndReview.Enabled {
		if strings.TrimSpace(c.YearEndReview.Cron) == "" {
			return fmt.Errorf("ambassador.year_end_review.cron is empty")
		}
		if _, err := c.YearEndReview.Location(); err != nil {
			return fmt.Errorf("ambassador.year_end_review.timezone: %w", err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.stdout", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/zhiyin.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("admin.default_username", "admin")
	v.SetDefault("admin.default_password", "")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "zy")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 5)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
		"X-Request-ID",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.login_rate_limit.window_seconds", 300)
	v.SetDefault("security.login_rate_limit.max_attempts", 5)
	v.SetDefault("security.login_rate_limit.block_seconds", 900)
	v.SetDefault("security.admin_rate_limit.window_seconds", 60)
	v.SetDefault("security.admin_rate_limit.max_attempts", 120)
	v.SetDefault("security.admin_rate_limit.block_seconds", 60)
	v.SetDefault("security.password_policy.min_length", 8)
	v.SetDefault("security.password_policy.require_upper", true)
	v.SetDefault("security.password_policy.require_lower", true)
	v.SetDefault("security.password_policy.require_number", true)
	v.SetDefault("security.password_policy.require_special", false)
	v.SetDefault("ambassador.tiers", []map[string]interface{}{
		{"level": "LV1_INSIDER", "promote_at": 0, "retain_at": 0, "reward": map[string]interface{}{"cash": 500, "accommodation": 1000}},
		{"level": "LV2_GUIDE", "promote_at": 4, "retain_at": 3, "reward": map[string]interface{}{"cash": 600, "accommodation": 1200}},
		{"level": "LV3_GUARDIAN", "promote_at": 10, "retain_at": 6, "reward": map[string]interface{}{"cash": 800, "accommodation": 1500}},
	})
	v.SetDefault("ambassador.first_referral_bonus.cash", 1500)
	v.SetDefault("ambassador.first_referral_bonus.accommodation", 1500)
	v.SetDefault("ambassador.year_end_review.enabled", true)
	v.SetDefault("ambassador.year_end_review.cron", "0 0 1 1 *")
	v.SetDefault("ambassador.year_end_review.timezone", "Asia/Taipei")
	v.SetDefault("ambassador.lock_timeout_seconds", 10)
	v.SetDefault("ambassador.dashboard_cache_seconds", 30)
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")     // 从当前目录查找
	v.AddConfigPath("../")   // 如果从 cmd/server 运行
	v.AddConfigPath("./etc") // etc 文件夹

	setDefaults(v)

	// 环境变量支持，例如 server.port -> SERVER_PORT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(err)
	}
	return cfg
}

// LoadFrom 从指定 viper 实例解析配置（不读取文件，便于测试）
func LoadFrom(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("配置解析失败: %w", err)
	}
	if err := cfg.Ambassador.ValidateProgram(); err != nil {
		return nil, fmt.Errorf("知音计划配置无效: %w", err)
	}
	return &cfg, nil
}
