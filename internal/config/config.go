package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Reindexer ReindexerConfig `mapstructure:"reindexer"`
	Storage   StorageConfig   `mapstructure:"storage"`
	AI        AIConfig        `mapstructure:"ai"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ReindexerConfig contains Reindexer database configuration
type ReindexerConfig struct {
	DSN string `mapstructure:"dsn"`
}

// StorageConfig contains MinIO object storage configuration
type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// AIConfig contains model provider configuration
type AIConfig struct {
	OpenAIBaseURL     string  `mapstructure:"openai_base_url"`
	OpenAIAPIKey      string  `mapstructure:"openai_api_key"`
	AnthropicBaseURL  string  `mapstructure:"anthropic_base_url"`
	AnthropicAPIKey   string  `mapstructure:"anthropic_api_key"`
	DefaultModel      string  `mapstructure:"default_model"`
	FallbackModel     string  `mapstructure:"fallback_model"`
	Temperature       float64 `mapstructure:"temperature"`
	MaxOutputTokens   int     `mapstructure:"max_output_tokens"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Workers           int     `mapstructure:"workers"`
}

// ChunkerConfig contains document chunking configuration
type ChunkerConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// QueueConfig contains analysis queue configuration
type QueueConfig struct {
	Workers             int `mapstructure:"workers"`
	QueueSize           int `mapstructure:"queue_size"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	RetryBackoffSeconds int `mapstructure:"retry_backoff_seconds"`
}

// NotifyConfig contains webhook notification configuration
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// CacheConfig contains analysis result cache configuration
type CacheConfig struct {
	Shards int `mapstructure:"shards"`
	TTL    int `mapstructure:"ttl"` // TTL in seconds
}

// Get returns the singleton configuration instance
func Get() *Config {
	once.Do(func() {
		if instance == nil {
			instance = &Config{}
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	instance = cfg
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Reindexer defaults (cproto RPC, port 6534)
	viper.SetDefault("reindexer.dsn", "cproto://localhost:6534/legal_analyzer")

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.access_key", "minioadmin")
	viper.SetDefault("storage.secret_key", "minioadmin")
	viper.SetDefault("storage.bucket", "documents")
	viper.SetDefault("storage.use_ssl", false)

	// AI defaults
	viper.SetDefault("ai.openai_base_url", "https://api.openai.com")
	viper.SetDefault("ai.anthropic_base_url", "https://api.anthropic.com")
	viper.SetDefault("ai.default_model", "gpt-4o")
	viper.SetDefault("ai.fallback_model", "claude-3-sonnet-20240229")
	viper.SetDefault("ai.temperature", 0.1)
	viper.SetDefault("ai.max_output_tokens", 4000)
	viper.SetDefault("ai.requests_per_second", 2.0)
	viper.SetDefault("ai.workers", 4)

	// Chunker defaults
	viper.SetDefault("chunker.max_tokens", 3000)
	viper.SetDefault("chunker.overlap_tokens", 200)

	// Queue defaults
	viper.SetDefault("queue.workers", 4)
	viper.SetDefault("queue.queue_size", 100)
	viper.SetDefault("queue.max_attempts", 3)
	viper.SetDefault("queue.retry_backoff_seconds", 60)

	// Notify defaults (empty URL disables notifications)
	viper.SetDefault("notify.webhook_url", "")

	// Cache defaults
	viper.SetDefault("cache.shards", 16)
	viper.SetDefault("cache.ttl", 900)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.host", "APP_SERVER_HOST")
	viper.BindEnv("server.port", "APP_SERVER_PORT")

	// Reindexer
	viper.BindEnv("reindexer.dsn", "APP_REINDEXER_DSN")

	// Storage
	viper.BindEnv("storage.endpoint", "APP_STORAGE_ENDPOINT")
	viper.BindEnv("storage.access_key", "APP_STORAGE_ACCESS_KEY")
	viper.BindEnv("storage.secret_key", "APP_STORAGE_SECRET_KEY")
	viper.BindEnv("storage.bucket", "APP_STORAGE_BUCKET")
	viper.BindEnv("storage.use_ssl", "APP_STORAGE_USE_SSL")

	// AI
	viper.BindEnv("ai.openai_base_url", "APP_AI_OPENAI_BASE_URL")
	viper.BindEnv("ai.openai_api_key", "APP_AI_OPENAI_API_KEY", "OPENAI_API_KEY")
	viper.BindEnv("ai.anthropic_base_url", "APP_AI_ANTHROPIC_BASE_URL")
	viper.BindEnv("ai.anthropic_api_key", "APP_AI_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	viper.BindEnv("ai.default_model", "APP_AI_DEFAULT_MODEL")
	viper.BindEnv("ai.fallback_model", "APP_AI_FALLBACK_MODEL")
	viper.BindEnv("ai.temperature", "APP_AI_TEMPERATURE")
	viper.BindEnv("ai.max_output_tokens", "APP_AI_MAX_OUTPUT_TOKENS")
	viper.BindEnv("ai.requests_per_second", "APP_AI_REQUESTS_PER_SECOND")
	viper.BindEnv("ai.workers", "APP_AI_WORKERS")

	// Chunker
	viper.BindEnv("chunker.max_tokens", "APP_CHUNKER_MAX_TOKENS")
	viper.BindEnv("chunker.overlap_tokens", "APP_CHUNKER_OVERLAP_TOKENS")

	// Queue
	viper.BindEnv("queue.workers", "APP_QUEUE_WORKERS")
	viper.BindEnv("queue.queue_size", "APP_QUEUE_QUEUE_SIZE")
	viper.BindEnv("queue.max_attempts", "APP_QUEUE_MAX_ATTEMPTS")
	viper.BindEnv("queue.retry_backoff_seconds", "APP_QUEUE_RETRY_BACKOFF_SECONDS")

	// Notify
	viper.BindEnv("notify.webhook_url", "APP_NOTIFY_WEBHOOK_URL")

	// Cache
	viper.BindEnv("cache.shards", "APP_CACHE_SHARDS")
	viper.BindEnv("cache.ttl", "APP_CACHE_TTL")
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Reindexer.DSN == "" {
		return fmt.Errorf("reindexer.dsn is required")
	}

	if cfg.Storage.Endpoint == "" {
		return fmt.Errorf("storage.endpoint is required")
	}
	if cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}

	if cfg.AI.DefaultModel == "" {
		return fmt.Errorf("ai.default_model is required")
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be between 0 and 2")
	}
	if cfg.AI.MaxOutputTokens < 1 {
		return fmt.Errorf("ai.max_output_tokens must be at least 1")
	}
	if cfg.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("ai.requests_per_second must be positive")
	}
	if cfg.AI.Workers < 1 {
		return fmt.Errorf("ai.workers must be at least 1")
	}

	if cfg.Chunker.MaxTokens < 1 {
		return fmt.Errorf("chunker.max_tokens must be at least 1")
	}
	if cfg.Chunker.OverlapTokens < 0 {
		return fmt.Errorf("chunker.overlap_tokens must be non-negative")
	}
	if cfg.Chunker.OverlapTokens >= cfg.Chunker.MaxTokens {
		return fmt.Errorf("chunker.overlap_tokens must be smaller than chunker.max_tokens")
	}

	if cfg.Queue.Workers < 1 {
		return fmt.Errorf("queue.workers must be at least 1")
	}
	if cfg.Queue.QueueSize < 1 {
		return fmt.Errorf("queue.queue_size must be at least 1")
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	if cfg.Queue.RetryBackoffSeconds < 0 {
		return fmt.Errorf("queue.retry_backoff_seconds must be non-negative")
	}

	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}

	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	mu.Lock()
	instance = nil
	once = sync.Once{}
	mu.Unlock()

	return Load(configPath)
}
