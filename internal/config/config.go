package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/CryptoNewsHub/internal/collector"
	"github.com/LJTian/CryptoNewsHub/internal/output"
	"github.com/charmbracelet/log"
)

const DefaultTimezone = "Asia/Jerusalem"

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec string

	// 全站 Basic Auth，两者都配置时启用
	BasicAuthUser string
	BasicAuthPass string

	OutputDir    string
	OutputFormat string
	Timezone     string
	Location     *time.Location

	MaxItemsPerSource int
	HTTPTimeout       time.Duration
	// RequestsPerSecond <= 0 表示不限速
	RequestsPerSecond float64
	UserAgent         string
	DiscoverFeeds     bool

	LogLevel    string
	SourcesFile string

	Credentials Credentials
	Sources     Sources
}

// Credentials 各平台凭据，缺失时对应采集器跳过
type Credentials struct {
	TwitterBearerToken string
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	GitHubToken        string
	// GitHubGatewayURL 非空时 GitHub 走网关而不是直连 API
	GitHubGatewayURL string
}

func Load() *Config {
	cfg := &Config{
		AppPort:           getEnv("APP_PORT", "9000"),
		PostgresDSN:       getEnv("POSTGRES_DSN", "host=localhost user=cryptonews password=cryptonews dbname=cryptonews port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6380"),
		CronSpec:          getEnv("CRON_SPEC", "0 * * * *"),
		BasicAuthUser:     os.Getenv("APP_BASIC_USER"),
		BasicAuthPass:     os.Getenv("APP_BASIC_PASS"),
		OutputDir:         getEnv("OUTPUT_DIR", "data"),
		OutputFormat:      strings.ToLower(getEnv("OUTPUT_FORMAT", output.FormatJSON)),
		Timezone:          getEnv("NEWS_TIMEZONE", DefaultTimezone),
		MaxItemsPerSource: getEnvInt("MAX_ITEMS_PER_SOURCE", 5),
		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", collector.DefaultClientTimeout),
		RequestsPerSecond: getEnvFloat("HTTP_RATE_LIMIT", 0),
		UserAgent:         getEnv("USER_AGENT", collector.DefaultUserAgent),
		DiscoverFeeds:     getEnvBool("FEED_DISCOVERY", true),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SourcesFile:       os.Getenv("SOURCES_FILE"),
		Credentials: Credentials{
			TwitterBearerToken: os.Getenv("TWITTER_BEARER_TOKEN"),
			RedditClientID:     os.Getenv("REDDIT_CLIENT_ID"),
			RedditClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
			RedditUserAgent:    getEnv("REDDIT_USER_AGENT", collector.DefaultRedditUserAgent),
			GitHubToken:        os.Getenv("GITHUB_TOKEN"),
			GitHubGatewayURL:   os.Getenv("GITHUB_GATEWAY_URL"),
		},
		Sources: DefaultSources(),
	}

	log.Printf("config loaded: port=%s cron=%s tz=%s format=%s", cfg.AppPort, cfg.CronSpec, cfg.Timezone, cfg.OutputFormat)
	return cfg
}

// Finalize 加载 SOURCES_FILE、解析时区并校验，入口在覆盖完命令行参数之后调用
func (c *Config) Finalize() error {
	if c.SourcesFile != "" {
		src, err := LoadSources(c.SourcesFile)
		if err != nil {
			return err
		}
		c.Sources = src
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc

	return c.Validate()
}

func (c *Config) Validate() error {
	c.OutputFormat = strings.ToLower(strings.TrimSpace(c.OutputFormat))
	if !output.ValidFormat(c.OutputFormat) {
		return fmt.Errorf("config: %w: %q", output.ErrUnsupportedFormat, c.OutputFormat)
	}
	if c.MaxItemsPerSource < 0 {
		return fmt.Errorf("config: MAX_ITEMS_PER_SOURCE must not be negative, got %d", c.MaxItemsPerSource)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("config: OUTPUT_DIR must not be empty")
	}
	return nil
}

// ApplyLogLevel 按 LOG_LEVEL 设置全局日志级别，无法识别时保持 info
func (c *Config) ApplyLogLevel() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.Warn("unknown log level, using info", "level", c.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("invalid int env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn("invalid float env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn("invalid bool env, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// getEnvDuration 支持 "15s" 形式，也接受纯数字（秒）
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	log.Warn("invalid duration env, using default", "key", key, "value", v, "default", def)
	return def
}
