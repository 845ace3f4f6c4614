package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	OpenAI    OpenAIConfig
	Worker    WorkerConfig
	Task      TaskConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenAIConfig configures the remote backend. An empty APIKey selects the
// fallback backend at startup.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

type WorkerConfig struct {
	Concurrency int
	Queue       string
	MaxRetry    int
}

type TaskConfig struct {
	ResultTTLSeconds     int // retention of state/result after completion
	PendingTTLHours      int // retention of the record while not yet terminal
	FallbackDelaySeconds int
}

type RateLimitConfig struct {
	SubmitPerMin int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("OPENAI_API_KEY")
	readSecret("REDIS_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("openai.max_tokens", "OPENAI_MAX_TOKENS")
	_ = viper.BindEnv("openai.temperature", "OPENAI_TEMPERATURE")
	_ = viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = viper.BindEnv("worker.queue", "WORKER_QUEUE")
	_ = viper.BindEnv("worker.max_retry", "WORKER_MAX_RETRY")
	_ = viper.BindEnv("task.result_ttl_seconds", "TASK_RESULT_TTL_SECONDS")
	_ = viper.BindEnv("task.pending_ttl_hours", "TASK_PENDING_TTL_HOURS")
	_ = viper.BindEnv("task.fallback_delay_seconds", "TASK_FALLBACK_DELAY_SECONDS")
	_ = viper.BindEnv("ratelimit.submit_per_min", "RATELIMIT_SUBMIT_PER_MIN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.max_tokens", 300)
	viper.SetDefault("openai.temperature", 0.7)
	viper.SetDefault("worker.concurrency", 4)
	viper.SetDefault("worker.queue", "tasks")
	viper.SetDefault("worker.max_retry", 3)
	viper.SetDefault("task.result_ttl_seconds", 3600)
	viper.SetDefault("task.pending_ttl_hours", 24)
	viper.SetDefault("task.fallback_delay_seconds", 10)
	viper.SetDefault("ratelimit.submit_per_min", 60)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      viper.GetString("openai.api_key"),
			BaseURL:     viper.GetString("openai.base_url"),
			Model:       viper.GetString("openai.model"),
			MaxTokens:   viper.GetInt("openai.max_tokens"),
			Temperature: viper.GetFloat64("openai.temperature"),
		},
		Worker: WorkerConfig{
			Concurrency: viper.GetInt("worker.concurrency"),
			Queue:       viper.GetString("worker.queue"),
			MaxRetry:    viper.GetInt("worker.max_retry"),
		},
		Task: TaskConfig{
			ResultTTLSeconds:     viper.GetInt("task.result_ttl_seconds"),
			PendingTTLHours:      viper.GetInt("task.pending_ttl_hours"),
			FallbackDelaySeconds: viper.GetInt("task.fallback_delay_seconds"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerMin: viper.GetInt("ratelimit.submit_per_min"),
		},
	}

	return cfg, nil
}
