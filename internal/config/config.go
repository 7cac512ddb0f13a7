package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// RequestTimeout bounds one non-streaming chat call, in minutes.
	RequestTimeout int `json:"request_timeout"`
	// StreamTimeout bounds one streaming chat call, in minutes.
	StreamTimeout int `json:"stream_timeout"`
	// MaxResponseBytes caps the accumulated assistant text of a single
	// streaming response; past it the stream is treated as an error.
	MaxResponseBytes int64 `json:"max_response_bytes"`
	HistoryLimit     int   `json:"history_limit"`
	TokenTTLHours    int   `json:"token_ttl_hours"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

const (
	DefaultRequestTimeout   = 3 // minutes
	DefaultStreamTimeout    = 5 // minutes
	DefaultMaxResponseBytes = 1 << 20
	DefaultHistoryLimit     = 50
	DefaultTokenTTLHours    = 24
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	for name, db := range cfg.Databases {
		if name == "sqlite3" && db.DSN != "" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	cfg.fillDefaults()
	return &cfg, nil
}

func (c *Config) fillDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.RequestTimeout <= 0 {
		c.BasicConfig.RequestTimeout = DefaultRequestTimeout
	}
	if c.BasicConfig.StreamTimeout <= 0 {
		c.BasicConfig.StreamTimeout = DefaultStreamTimeout
	}
	if c.BasicConfig.MaxResponseBytes <= 0 {
		c.BasicConfig.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if c.BasicConfig.HistoryLimit <= 0 {
		c.BasicConfig.HistoryLimit = DefaultHistoryLimit
	}
	if c.BasicConfig.TokenTTLHours <= 0 {
		c.BasicConfig.TokenTTLHours = DefaultTokenTTLHours
	}
	if len(c.Databases) == 0 {
		c.Databases = map[string]DatabaseConfig{
			"sqlite3": {DSN: "./data/ollamaweb.db"},
		}
	}
}
