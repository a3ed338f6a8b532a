package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		KeyPrefix  string        `yaml:"key_prefix"`
	} `yaml:"queue"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Postgres struct {
		Enabled  bool   `yaml:"enabled"`
		DSN      string `yaml:"dsn"`
		MaxConns int    `yaml:"max_conns"`
	} `yaml:"postgres"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		ResultsTopic  string   `yaml:"results_topic"`
		PredictTopic  string   `yaml:"predictions_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		// ConsumerGroup is the prefix of the per-instance consumer groups.
		ConsumerGroup string   `yaml:"consumer_group"`
		DLQTopic      string   `yaml:"dlq_topic"`
	} `yaml:"kafka"`
	Yahoo struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout"`
		UserAgent     string        `yaml:"user_agent"`
		RatePerMinute int           `yaml:"rate_per_minute"`
	} `yaml:"yahoo"`
	Storage struct {
		ArtifactDir string `yaml:"artifact_dir"`
		CatalogPath string `yaml:"catalog_path"`
	} `yaml:"storage"`
	Training struct {
		Tickers      []string      `yaml:"tickers"`
		Models       []string      `yaml:"models"`
		Start        string        `yaml:"start"`
		Epochs       int           `yaml:"epochs"`
		BatchSize    int           `yaml:"batch_size"`
		Parallelism  int           `yaml:"parallelism"`
		LockTTL      time.Duration `yaml:"lock_ttl"`
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryBase    time.Duration `yaml:"retry_base"`
		ThrottleBase time.Duration `yaml:"throttle_base"`
	} `yaml:"training"`
	Model struct {
		WindowLen          int     `yaml:"window_len"`
		Hidden             int     `yaml:"hidden"`
		DModel             int     `yaml:"d_model"`
		Heads              int     `yaml:"heads"`
		FFN                int     `yaml:"ffn"`
		Dropout            float64 `yaml:"dropout"`
		LearningRate       float64 `yaml:"learning_rate"`
		Patience           int     `yaml:"patience"`
		ValidationFraction float64 `yaml:"validation_fraction"`
		Seed               int64   `yaml:"seed"`
	} `yaml:"model"`
	Forecast struct {
		Calendar   string        `yaml:"calendar"`
		RecentDays int           `yaml:"recent_days"`
		CacheTTL   time.Duration `yaml:"cache_ttl"`
		MemoTTL    time.Duration `yaml:"memo_ttl"`
	} `yaml:"forecast"`
}

// Default returns a configuration that runs with no external services.
func Default() *Config {
	c := &Config{Environment: "development"}
	c.Server.Port = 8000
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 5 * time.Minute
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.AllowOrigins = []string{"*"}
	c.Logger.Level = "info"
	c.Logger.Format = "json"
	c.Logger.Output = "stdout"
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Redis.Addr = "localhost:6379"
	c.Queue.Workers = 2
	c.Queue.RetryLimit = 1
	c.Queue.RetryDelay = 5 * time.Minute
	c.Queue.KeyPrefix = "stockcast:queue"
	c.ClickHouse.Host = "localhost"
	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "stockcast"
	c.ClickHouse.User = "default"
	c.Kafka.Brokers = []string{"localhost:9092"}
	c.Kafka.ResultsTopic = "training.results"
	c.Kafka.PredictTopic = "predictions"
	c.Kafka.RequiredAcks = 1
	c.Kafka.ConsumerGroup = "stockcast-api"
	c.Yahoo.BaseURL = "https://query1.finance.yahoo.com"
	c.Yahoo.Timeout = 30 * time.Second
	c.Yahoo.UserAgent = "Mozilla/5.0 (compatible; StockCast/1.0)"
	c.Yahoo.RatePerMinute = 60
	c.Storage.ArtifactDir = "models"
	c.Storage.CatalogPath = "models/catalog.db"
	c.Training.Tickers = []string{"TSLA", "AAPL", "GOOGL", "MSFT", "AMZN"}
	c.Training.Models = []string{"LSTM", "GRU", "TRANSFORMER"}
	c.Training.Start = "2018-01-01"
	c.Training.Epochs = 20
	c.Training.BatchSize = 32
	c.Training.Parallelism = 2
	c.Training.LockTTL = time.Hour
	c.Training.MaxAttempts = 5
	c.Training.RetryBase = 5 * time.Second
	c.Training.ThrottleBase = 10 * time.Second
	c.Model.WindowLen = 60
	c.Model.Hidden = 50
	c.Model.DModel = 16
	c.Model.Heads = 4
	c.Model.FFN = 64
	c.Model.Dropout = 0.2
	c.Model.LearningRate = 0.001
	c.Model.Patience = 5
	c.Model.ValidationFraction = 0.1
	c.Model.Seed = 42
	c.Forecast.RecentDays = 90
	c.Forecast.CacheTTL = time.Hour
	c.Forecast.MemoTTL = 10 * time.Minute
	return c
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads the YAML file, then a .env file if present, then applies
// environment overrides and validates again.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
		c.Postgres.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Storage.ArtifactDir = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		c.Training.Tickers = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKET_CALENDAR"); v != "" {
		c.Forecast.Calendar = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive, got %d", c.Server.Port)
	}
	if c.Storage.ArtifactDir == "" {
		return fmt.Errorf("storage.artifact_dir is required")
	}
	if c.Model.WindowLen <= 0 {
		return fmt.Errorf("model.window_len must be positive, got %d", c.Model.WindowLen)
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return fmt.Errorf("model.dropout must be in [0,1), got %v", c.Model.Dropout)
	}
	if c.Model.Heads <= 0 || c.Model.DModel%c.Model.Heads != 0 {
		return fmt.Errorf("model.d_model (%d) must be divisible by model.heads (%d)", c.Model.DModel, c.Model.Heads)
	}
	if c.Model.ValidationFraction < 0 || c.Model.ValidationFraction >= 1 {
		return fmt.Errorf("model.validation_fraction must be in [0,1), got %v", c.Model.ValidationFraction)
	}
	if c.Training.Parallelism <= 0 {
		return fmt.Errorf("training.parallelism must be positive, got %d", c.Training.Parallelism)
	}
	if c.Training.MaxAttempts <= 0 {
		return fmt.Errorf("training.max_attempts must be positive, got %d", c.Training.MaxAttempts)
	}
	if _, err := time.Parse("2006-01-02", c.Training.Start); err != nil {
		return fmt.Errorf("training.start must be YYYY-MM-DD, got '%s'", c.Training.Start)
	}
	if len(c.Training.Tickers) == 0 {
		return fmt.Errorf("training.tickers cannot be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres is enabled")
	}
	if c.Forecast.RecentDays <= 0 {
		return fmt.Errorf("forecast.recent_days must be positive, got %d", c.Forecast.RecentDays)
	}
	return nil
}
