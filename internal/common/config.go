package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	LLM      LLMConfig      `yaml:"llm"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// EngineConfig holds workflow-engine configuration. Either APIKey (static
// pre-shared key) or KeyID/KeySecret (token exchange) must be set; call sites
// pick which style they use.
type EngineConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	KeyID           string        `yaml:"key_id"`
	KeySecret       string        `yaml:"key_secret"`
	DocumentDelay   time.Duration `yaml:"document_poll_delay"`
	SentimentDelay  time.Duration `yaml:"sentiment_poll_delay"`
	SimilarityDelay time.Duration `yaml:"similarity_poll_delay"`
	MaxAttempts     int           `yaml:"max_poll_attempts"`
	DocumentTimeout time.Duration `yaml:"document_timeout"`
	ChunkSize       int           `yaml:"chunk_size"`
}

// LLMConfig holds OpenAI-related configuration
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoadConfig loads configuration from environment variables. If path is
// non-empty, the YAML file there is read first and env vars override it.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapError(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapError(err, "parse config file")
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	c.Engine.BaseURL = getEnv("ENGINE_BASE_URL", c.Engine.BaseURL)
	c.Engine.APIKey = getEnv("ENGINE_API_KEY", c.Engine.APIKey)
	c.Engine.KeyID = getEnv("ENGINE_KEY_ID", c.Engine.KeyID)
	c.Engine.KeySecret = getEnv("ENGINE_KEY_SECRET", c.Engine.KeySecret)
	c.Engine.DocumentDelay = getEnvAsDuration("DOCUMENT_POLL_DELAY", c.Engine.DocumentDelay)
	c.Engine.SentimentDelay = getEnvAsDuration("SENTIMENT_POLL_DELAY", c.Engine.SentimentDelay)
	c.Engine.SimilarityDelay = getEnvAsDuration("SIMILARITY_POLL_DELAY", c.Engine.SimilarityDelay)
	c.Engine.MaxAttempts = getEnvAsInt("MAX_POLL_ATTEMPTS", c.Engine.MaxAttempts)
	c.Engine.DocumentTimeout = getEnvAsDuration("DOCUMENT_TIMEOUT", c.Engine.DocumentTimeout)
	c.Engine.ChunkSize = getEnvAsInt("CHUNK_SIZE", c.Engine.ChunkSize)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
}

func applyDefaults(c *Config) {
	if c.Database.DSN == "" {
		c.Database.DSN = "./budget-tracker.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 20
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 5
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = 30 * time.Minute
	}
	if c.Database.MaxConnIdleTime == 0 {
		c.Database.MaxConnIdleTime = 5 * time.Minute
	}
	if c.Database.DialTimeout == 0 {
		c.Database.DialTimeout = 3 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Engine.BaseURL == "" {
		c.Engine.BaseURL = "https://developer.orkescloud.com"
	}
	if c.Engine.DocumentDelay == 0 {
		c.Engine.DocumentDelay = 10 * time.Second
	}
	if c.Engine.SentimentDelay == 0 {
		c.Engine.SentimentDelay = 2 * time.Second
	}
	if c.Engine.SimilarityDelay == 0 {
		c.Engine.SimilarityDelay = 2 * time.Second
	}
	if c.Engine.MaxAttempts == 0 {
		c.Engine.MaxAttempts = 10
	}
	if c.Engine.DocumentTimeout == 0 {
		c.Engine.DocumentTimeout = 10 * time.Minute
	}
	if c.Engine.ChunkSize == 0 {
		c.Engine.ChunkSize = 500
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.4
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 150
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 45 * time.Second
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Engine.APIKey == "" && (c.Engine.KeyID == "" || c.Engine.KeySecret == "") {
		return NewAppError("CONFIG_ERROR", "ENGINE_API_KEY or ENGINE_KEY_ID/ENGINE_KEY_SECRET is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
