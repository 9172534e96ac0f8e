package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Provider ProviderConfig `json:"provider"`
	Worker   WorkerConfig   `json:"worker"`
	Auth     AuthConfig     `json:"auth"`
	Chat     ChatConfig     `json:"chat"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type ProviderConfig struct {
	APIKey         string        `json:"api_key,omitempty"`
	BaseURL        string        `json:"base_url,omitempty"`
	DefaultModel   string        `json:"default_model"`
	EmbeddingModel string        `json:"embedding_model"`
	Timeout        time.Duration `json:"timeout"`
}

type WorkerConfig struct {
	PoolSize          int           `json:"pool_size"`
	PollInterval      time.Duration `json:"poll_interval"`
	MaxAttempts       int           `json:"max_attempts"`
	BackoffBase       time.Duration `json:"backoff_base"`
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

type ChatConfig struct {
	HistoryLimit int `json:"history_limit"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".conversa"))
	}

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "conversa")
	viper.SetDefault("database.database", "conversa")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("provider.default_model", "gpt-4o-mini")
	viper.SetDefault("provider.embedding_model", "text-embedding-3-small")
	viper.SetDefault("provider.timeout", 2*time.Minute)
	viper.SetDefault("worker.pool_size", 4)
	viper.SetDefault("worker.poll_interval", time.Second)
	viper.SetDefault("worker.max_attempts", 3)
	viper.SetDefault("worker.backoff_base", 2*time.Second)
	viper.SetDefault("worker.visibility_timeout", 5*time.Minute)
	viper.SetDefault("chat.history_limit", 40)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file is fine; defaults plus env cover everything.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("CONVERSA_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("CONVERSA_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.Provider.BaseURL = base
	}
	if secret := os.Getenv("CONVERSA_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}
