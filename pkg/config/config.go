package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ProTrdx/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		CORS            bool          `yaml:"cors" default:"true"`
		RunPerMinute    int           `yaml:"run_per_minute" default:"6"`
		RunBurst        int           `yaml:"run_burst" default:"3"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled" default:"true"`
		SlowThreshold time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"metrics"`
	Auth struct {
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"auth"`
	Storage struct {
		Backend string `yaml:"backend" default:"sqlite"`
	} `yaml:"storage"`
	SQLite struct {
		Path string `yaml:"path" default:"data/protrdx.db"`
	} `yaml:"sqlite"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"protrdx"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"protrdx"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic" default:"protrdx.jobs"`
		RunTopic     string   `yaml:"run_topic" default:"protrdx.run-requests"`
		LogsTopic    string   `yaml:"logs_topic" default:"protrdx.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"protrdx"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"2"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"protrdx.run-requests.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Backend    string        `yaml:"backend" default:"memory"`
		Mode       string        `yaml:"mode" default:"both"` // both | producer | consumer (redis only)
		Workers    int           `yaml:"workers" default:"2"`
		QueueSize  int           `yaml:"queue_size" default:"64"`
		RetryLimit int           `yaml:"retry_limit" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
	} `yaml:"queue"`
	Cache struct {
		Backend    string        `yaml:"backend" default:"memory"`
		HistoryTTL time.Duration `yaml:"history_ttl" default:"30m"`
		MaxEntries int           `yaml:"max_entries" default:"500"`
	} `yaml:"cache"`
	MarketData struct {
		Provider           string        `yaml:"provider" default:"finnhub"`
		FinnhubURL         string        `yaml:"finnhub_url" default:"https://finnhub.io/api/v1"`
		APIKey             string        `yaml:"api_key"`
		RateLimitPerMinute int           `yaml:"rate_limit_per_minute" default:"55"`
		LookbackDays       int           `yaml:"lookback_days" default:"120"`
		Timeout            time.Duration `yaml:"timeout" default:"20s"`
	} `yaml:"market_data"`
	News struct {
		Provider      string        `yaml:"provider" default:"perplexity"`
		PerplexityURL string        `yaml:"perplexity_url" default:"https://api.perplexity.ai/search"`
		PerplexityKey string        `yaml:"perplexity_key"`
		TavilyURL     string        `yaml:"tavily_url" default:"https://api.tavily.com/search"`
		TavilyKey     string        `yaml:"tavily_key"`
		FinnhubURL    string        `yaml:"finnhub_url" default:"https://finnhub.io/api/v1/company-news"`
		ResultSize    int           `yaml:"result_size" default:"5"`
		Window        time.Duration `yaml:"window" default:"24h"` // drops older items
	} `yaml:"news"`
	LLM struct {
		Provider     string        `yaml:"provider" default:"openai"`
		Model        string        `yaml:"model" default:"gpt-4o-mini"`
		OpenAIKey    string        `yaml:"openai_key"`
		AnthropicKey string        `yaml:"anthropic_key"`
		OllamaHost   string        `yaml:"ollama_host" default:"http://localhost:11434"`
		Temperature  float64       `yaml:"temperature" default:"0.2"`
		Retries      int           `yaml:"retries" default:"1"`
		Timeout      time.Duration `yaml:"timeout" default:"90s"`
	} `yaml:"llm"`
	Notify struct {
		Timeout  time.Duration `yaml:"timeout" default:"15s"`
		Telegram struct {
			APIURL   string `yaml:"api_url" default:"https://api.telegram.org"`
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
		} `yaml:"telegram"`
		Slack struct {
			WebhookURL string `yaml:"webhook_url"`
		} `yaml:"slack"`
	} `yaml:"notify"`
	Pipeline struct {
		Concurrency int           `yaml:"concurrency" default:"4"`
		ChartsDir   string        `yaml:"charts_dir" default:"charts"`
		ChartBars   int           `yaml:"chart_bars" default:"120"`
		RunLockTTL  time.Duration `yaml:"run_lock_ttl" default:"30m"`
	} `yaml:"pipeline"`
	Scheduler struct {
		Enabled  bool   `yaml:"enabled" default:"true"`
		Timezone string `yaml:"timezone" default:"Europe/Brussels"`
		CronHour int    `yaml:"cron_hour" default:"7"`
	} `yaml:"scheduler"`
	Risk struct {
		SizeRiskPct  float64 `yaml:"size_risk_pct" default:"0.75"`
		MaxSpreadPct float64 `yaml:"max_spread_pct" default:"0.15"`
		MinVolRel    float64 `yaml:"min_vol_rel" default:"1.2"`
		MinSharpe    float64 `yaml:"min_sharpe" default:"0.8"`
		MaxDrawdown  float64 `yaml:"max_dd" default:"0.08"`
		MinHitRate   float64 `yaml:"min_hit_rate" default:"0.48"`
		MinSample    int     `yaml:"min_sample" default:"30"`
	} `yaml:"risk"`
}

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies
// environment overrides for secrets and deployment switches.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str(&c.Environment, "APP_ENV")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Auth.AdminPassword, "ADMIN_PASSWORD")
	str(&c.Storage.Backend, "STORAGE_BACKEND")
	str(&c.SQLite.Path, "SQLITE_PATH")
	str(&c.Redis.Host, "REDIS_HOST")
	str(&c.Redis.Password, "REDIS_PASSWORD")
	str(&c.MarketData.APIKey, "FINNHUB_API_KEY")
	str(&c.News.Provider, "NEWS_PROVIDER")
	str(&c.News.PerplexityKey, "PERPLEXITY_API_KEY")
	str(&c.News.TavilyKey, "TAVILY_API_KEY")
	str(&c.LLM.Provider, "LLM_PROVIDER")
	str(&c.LLM.Model, "LLM_MODEL")
	str(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	str(&c.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	str(&c.LLM.OllamaHost, "OLLAMA_HOST")
	str(&c.Notify.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	str(&c.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	str(&c.Notify.Slack.WebhookURL, "SLACK_WEBHOOK_URL")
	str(&c.Scheduler.Timezone, "TIMEZONE")
	c.Redis.Port = util.ParseIntDefault(os.Getenv("REDIS_PORT"), c.Redis.Port)
	c.Server.Port = util.ParseIntDefault(os.Getenv("PORT"), c.Server.Port)
	c.Scheduler.CronHour = util.ParseIntDefault(os.Getenv("CRON_HOUR"), c.Scheduler.CronHour)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Storage.Backend != "sqlite" && c.Storage.Backend != "redis" {
		return fmt.Errorf("storage.backend must be 'sqlite' or 'redis', got '%s'", c.Storage.Backend)
	}
	if c.Storage.Backend == "sqlite" && c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	if c.Queue.Backend != "memory" && c.Queue.Backend != "redis" {
		return fmt.Errorf("queue.backend must be 'memory' or 'redis', got '%s'", c.Queue.Backend)
	}
	switch c.Queue.Mode {
	case "both":
	case "producer", "consumer":
		if c.Queue.Backend != "redis" {
			return fmt.Errorf("queue.mode '%s' requires the redis backend", c.Queue.Mode)
		}
	default:
		return fmt.Errorf("queue.mode must be 'both', 'producer' or 'consumer', got '%s'", c.Queue.Mode)
	}
	switch c.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	switch c.MarketData.Provider {
	case "finnhub", "clickhouse":
	default:
		return fmt.Errorf("market_data.provider must be 'finnhub' or 'clickhouse', got '%s'", c.MarketData.Provider)
	}
	if c.MarketData.Provider == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("market_data.provider 'clickhouse' requires clickhouse.enabled")
	}
	switch c.News.Provider {
	case "perplexity", "tavily", "finnhub":
	default:
		return fmt.Errorf("news.provider must be one of perplexity, tavily, finnhub, got '%s'", c.News.Provider)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("llm.provider must be one of openai, anthropic, ollama, got '%s'", c.LLM.Provider)
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("llm.retries cannot be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1")
	}
	if c.Scheduler.CronHour < 0 || c.Scheduler.CronHour > 23 {
		return fmt.Errorf("scheduler.cron_hour must be within 0..23")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.MarketData.LookbackDays < 60 {
		return fmt.Errorf("market_data.lookback_days must be at least 60")
	}
	return nil
}
