package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Email     EmailConfig     `yaml:"email"`
	SES       SESConfig       `yaml:"ses"`
	Resend    ResendConfig    `yaml:"resend"`
	AI        AIConfig        `yaml:"ai"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	News      NewsConfig      `yaml:"news"`
	Auth      AuthConfig      `yaml:"auth"`
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port               int      `yaml:"port"`
	Host               string   `yaml:"host"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	PublicRatePerMin   int      `yaml:"public_rate_per_minute"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_seconds"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ShutdownTimeout returns the graceful shutdown window.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// Lifetime returns the max connection lifetime.
func (c DatabaseConfig) Lifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// RedisConfig holds Redis connection settings. An empty Addr disables
// Redis; locks then fall back to Postgres advisory locks and the news
// cache is skipped.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig holds the job bus settings used in queue dispatch mode.
type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// EmailConfig selects the email provider.
type EmailConfig struct {
	Provider  string `yaml:"provider"` // ses | resend
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	ReplyTo   string `yaml:"reply_to"`
}

// SESConfig holds AWS SES v2 credentials.
type SESConfig struct {
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	ConfigSet      string `yaml:"configuration_set"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResendConfig holds the Resend HTTP API settings.
type ResendConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the timeout as a duration
func (c ResendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AIConfig selects the LLM backend.
type AIConfig struct {
	Provider       string `yaml:"provider"` // bedrock | gemini
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Headlines      int    `yaml:"headlines"`
}

// Timeout returns the per-generation timeout.
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BedrockConfig holds AWS Bedrock settings.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// DispatchConfig controls how a run delivers emails.
type DispatchConfig struct {
	Mode              string  `yaml:"mode"` // direct | queue
	BatchSize         int     `yaml:"batch_size"`
	MaxSendsPerSecond float64 `yaml:"max_sends_per_second"`
	StaleMinutes      int     `yaml:"stale_minutes"`
	SweepSeconds      int     `yaml:"sweep_interval_seconds"`
	Concurrency       int     `yaml:"concurrency"`
	LockTTLMinutes    int     `yaml:"lock_ttl_minutes"`
}

// StaleAge is how long a delivery may stay in flight before recovery.
func (c DispatchConfig) StaleAge() time.Duration {
	return time.Duration(c.StaleMinutes) * time.Minute
}

// SweepInterval is the recovery sweeper period.
func (c DispatchConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

// LockTTL bounds how long one auto run holds its lock.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// SchedulerConfig holds the in-process auto-send schedule.
type SchedulerConfig struct {
	Enabled bool  `yaml:"enabled"`
	Hours   []int `yaml:"hours"`
}

// NewsConfig holds RSS sources per topic.
type NewsConfig struct {
	Feeds           map[string][]string `yaml:"feeds"`
	CacheTTLMinutes int                 `yaml:"cache_ttl_minutes"`
	TimeoutSeconds  int                 `yaml:"timeout_seconds"`
}

// CacheTTL returns the headline cache lifetime.
func (c NewsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Timeout bounds one feed fetch.
func (c NewsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig holds shared secrets for trigger and admin endpoints.
type AuthConfig struct {
	CronSecret        string `yaml:"cron_secret"`
	RequireCronSecret bool   `yaml:"require_cron_secret"`
	AdminJWTSecret    string `yaml:"admin_jwt_secret"`
	// LinkSecret signs the tokens in unsubscribe and preference links.
	// Empty leaves links unsigned and the token-gated routes closed.
	LinkSecret string `yaml:"link_secret"`
}

// AppConfig holds public-facing settings used in emails.
type AppConfig struct {
	BaseURL string `yaml:"base_url"`
	APIURL  string `yaml:"api_url"`
	Name    string `yaml:"name"`
}

// API is the public origin serving /api, BaseURL unless set.
func (c AppConfig) API() string {
	if c.APIURL == "" {
		return c.BaseURL
	}
	return strings.TrimRight(c.APIURL, "/")
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// DefaultFeeds are used for topics with no configured feed.
var DefaultFeeds = map[string][]string{
	"ai_tools":      {"https://techcrunch.com/category/artificial-intelligence/feed/"},
	"stock_market":  {"https://feeds.marketwatch.com/marketwatch/topstories/"},
	"crypto":        {"https://www.coindesk.com/arc/outboundfeeds/rss/"},
	"startups":      {"https://techcrunch.com/category/startups/feed/"},
	"productivity":  {"https://lifehacker.com/feed/rss"},
	"tech_news":     {"https://www.theverge.com/rss/index.xml"},
	"business":      {"https://feeds.bbci.co.uk/news/business/rss.xml"},
	"science":       {"https://www.sciencedaily.com/rss/top/science.xml"},
	"world_news":    {"https://feeds.bbci.co.uk/news/world/rss.xml"},
	"health":        {"https://feeds.bbci.co.uk/news/health/rss.xml"},
	"entertainment": {"https://feeds.bbci.co.uk/news/entertainment_and_arts/rss.xml"},
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.PublicRatePerMin == 0 {
		cfg.Server.PublicRatePerMin = 20
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "newsly"
	}
	if cfg.RabbitMQ.Queue == "" {
		cfg.RabbitMQ.Queue = "newsletter.delivery"
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "ses"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Newsly"
	}
	if cfg.Email.FromEmail == "" {
		cfg.Email.FromEmail = "hello@newsly.app"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Resend.BaseURL == "" {
		cfg.Resend.BaseURL = "https://api.resend.com"
	}
	if cfg.Resend.TimeoutSeconds == 0 {
		cfg.Resend.TimeoutSeconds = 30
	}
	if cfg.Resend.MaxRetries == 0 {
		cfg.Resend.MaxRetries = 3
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "bedrock"
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 4096
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 120
	}
	if cfg.AI.Headlines == 0 {
		cfg.AI.Headlines = 5
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.ModelID == "" {
		cfg.Bedrock.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.Dispatch.Mode == "" {
		cfg.Dispatch.Mode = "direct"
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 50
	}
	if cfg.Dispatch.StaleMinutes == 0 {
		cfg.Dispatch.StaleMinutes = 15
	}
	if cfg.Dispatch.SweepSeconds == 0 {
		cfg.Dispatch.SweepSeconds = 60
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 10
	}
	if cfg.Dispatch.LockTTLMinutes == 0 {
		cfg.Dispatch.LockTTLMinutes = 30
	}
	if len(cfg.Scheduler.Hours) == 0 {
		cfg.Scheduler.Hours = []int{7, 12, 17, 20}
	}
	if cfg.News.Feeds == nil {
		cfg.News.Feeds = make(map[string][]string)
	}
	for topic, feeds := range DefaultFeeds {
		if len(cfg.News.Feeds[topic]) == 0 {
			cfg.News.Feeds[topic] = feeds
		}
	}
	if cfg.News.CacheTTLMinutes == 0 {
		cfg.News.CacheTTLMinutes = 30
	}
	if cfg.News.TimeoutSeconds == 0 {
		cfg.News.TimeoutSeconds = 15
	}
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = "http://localhost:3000"
	}
	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")
	if cfg.App.Name == "" {
		cfg.App.Name = "Newsly"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets
// can live in .env locally and in real env vars in production. A missing
// config file is not an error; defaults plus env vars are used instead.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		"DATABASE_URL":       &cfg.Database.URL,
		"REDIS_ADDR":         &cfg.Redis.Addr,
		"REDIS_PASSWORD":     &cfg.Redis.Password,
		"RABBITMQ_URL":       &cfg.RabbitMQ.URL,
		"EMAIL_PROVIDER":     &cfg.Email.Provider,
		"EMAIL_FROM":         &cfg.Email.FromEmail,
		"EMAIL_FROM_NAME":    &cfg.Email.FromName,
		"RESEND_API_KEY":     &cfg.Resend.APIKey,
		"AWS_SES_ACCESS_KEY": &cfg.SES.AccessKey,
		"AWS_SES_SECRET_KEY": &cfg.SES.SecretKey,
		"AWS_SES_REGION":     &cfg.SES.Region,
		"AI_PROVIDER":        &cfg.AI.Provider,
		"GEMINI_API_KEY":     &cfg.Gemini.APIKey,
		"GEMINI_MODEL":       &cfg.Gemini.Model,
		"BEDROCK_MODEL_ID":   &cfg.Bedrock.ModelID,
		"BEDROCK_REGION":     &cfg.Bedrock.Region,
		"CRON_SECRET":        &cfg.Auth.CronSecret,
		"ADMIN_JWT_SECRET":   &cfg.Auth.AdminJWTSecret,
		"LINK_SECRET":        &cfg.Auth.LinkSecret,
		"APP_BASE_URL":       &cfg.App.BaseURL,
		"APP_API_URL":        &cfg.App.APIURL,
		"DISPATCH_MODE":      &cfg.Dispatch.Mode,
		"LOG_LEVEL":          &cfg.Log.Level,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	cfg.App.BaseURL = strings.TrimRight(cfg.App.BaseURL, "/")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("REQUIRE_CRON_SECRET"); v != "" {
		cfg.Auth.RequireCronSecret, _ = strconv.ParseBool(v)
	}

	return cfg, cfg.Validate()
}

// Validate checks enumerated settings.
func (cfg *Config) Validate() error {
	switch cfg.Email.Provider {
	case "ses", "resend":
	default:
		return fmt.Errorf("email.provider must be ses or resend, got %q", cfg.Email.Provider)
	}
	switch cfg.AI.Provider {
	case "bedrock", "gemini":
	default:
		return fmt.Errorf("ai.provider must be bedrock or gemini, got %q", cfg.AI.Provider)
	}
	switch cfg.Dispatch.Mode {
	case "direct", "queue":
	default:
		return fmt.Errorf("dispatch.mode must be direct or queue, got %q", cfg.Dispatch.Mode)
	}
	if cfg.Dispatch.BatchSize < 1 {
		return fmt.Errorf("dispatch.batch_size must be positive")
	}
	for _, h := range cfg.Scheduler.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("scheduler.hours: %d out of range", h)
		}
	}
	return nil
}
