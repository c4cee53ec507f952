package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort  int    `yaml:"http_port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Store  StoreConfig  `yaml:"store"`
	LLM    LLMConfig    `yaml:"llm"`
	Search SearchConfig `yaml:"search"`
	Pool   PoolConfig   `yaml:"pool"`

	// NATSURL enables publishing job status events when non-empty.
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`

	// ReportsDir, when set, receives a markdown copy of every finished report.
	ReportsDir string `yaml:"reports_dir"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // memory, badger, sqlite, postgres
	DataDir     string `yaml:"data_dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type LLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type SearchConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

type PoolConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

func Default() *Config {
	return &Config{
		HTTPPort:  8000,
		LogLevel:  "info",
		LogFormat: "text",
		Store: StoreConfig{
			Driver:     "badger",
			DataDir:    "./data",
			SQLitePath: "./data/research_agent.db",
		},
		LLM: LLMConfig{
			BaseURL: "http://localhost:11434/v1",
			APIKey:  "ollama",
			Model:   "llama3.2:3b",
		},
		Search: SearchConfig{
			Endpoint:   "https://html.duckduckgo.com/html/",
			MaxResults: 5,
			Timeout:    15 * time.Second,
		},
		Pool: PoolConfig{
			Workers:   4,
			QueueSize: 64,
		},
		NATSSubject: "research.jobs",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE, then environment variables. envFile is loaded into the
// environment first when it exists.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.DataDir = getEnv("DATA_DIR", cfg.Store.DataDir)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", cfg.Store.SQLitePath)
	cfg.Store.PostgresDSN = getEnv("POSTGRES_DSN", cfg.Store.PostgresDSN)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = getEnvDuration("LLM_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.MaxRetries = getEnvInt("LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.Search.Endpoint = getEnv("SEARCH_ENDPOINT", cfg.Search.Endpoint)
	cfg.Search.MaxResults = getEnvInt("SEARCH_MAX_RESULTS", cfg.Search.MaxResults)
	cfg.Search.Timeout = getEnvDuration("SEARCH_TIMEOUT", cfg.Search.Timeout)

	cfg.Pool.Workers = getEnvInt("WORKERS", cfg.Pool.Workers)
	cfg.Pool.QueueSize = getEnvInt("QUEUE_SIZE", cfg.Pool.QueueSize)

	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubject = getEnv("NATS_SUBJECT", cfg.NATSSubject)
	cfg.ReportsDir = getEnv("REPORTS_DIR", cfg.ReportsDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "badger", "sqlite":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store driver postgres requires POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("workers must be > 0, got %d", c.Pool.Workers)
	}
	if c.Pool.QueueSize < 0 {
		return fmt.Errorf("queue size must be >= 0, got %d", c.Pool.QueueSize)
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 5
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
