package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 服务运行配置，全部来自环境变量
type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8090"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// 数据库: mysql 或 sqlite
	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBUser     string `env:"DB_USER" envDefault:"voteuser"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"votepassword"`
	DBHost     string `env:"DB_HOST" envDefault:"mysql"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBName     string `env:"DB_NAME" envDefault:"votingdb"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"electrafusion.db"`
	SeedData   bool   `env:"SEED_SAMPLE_DATA" envDefault:"false"`

	// Redis地址为空时禁用所有Redis相关功能
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	BallotTimeout       time.Duration `env:"BALLOT_SUBMIT_TIMEOUT" envDefault:"5s"`
	ExpiryCheckInterval time.Duration `env:"POLL_EXPIRY_CHECK_INTERVAL" envDefault:"1m"`

	RateLimitEnabled bool `env:"ENABLE_RATE_LIMIT" envDefault:"false"`
	GlobalRateLimit  int  `env:"GLOBAL_RATE_LIMIT" envDefault:"100"`
	UserRateLimit    int  `env:"USER_RATE_LIMIT" envDefault:"10"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load 从环境变量加载配置
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "sqlite" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.GlobalRateLimit <= 0 || cfg.UserRateLimit <= 0 {
		return Config{}, fmt.Errorf("rate limits must be positive")
	}
	return cfg, nil
}

// MySQLDSN 构建MySQL连接串
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ShouldSeed 开发环境或显式开启时写入示例数据
func (c Config) ShouldSeed() bool {
	return c.SeedData || c.IsDevelopment()
}
