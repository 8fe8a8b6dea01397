package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

type Config struct {
	// Engine configuration
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Study session configuration
	Study StudyConfig `json:"study" mapstructure:"study"`

	// Server configuration
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `json:"rateLimit" mapstructure:"rateLimit"`

	// Analysis cache configuration
	Cache CacheConfig `json:"cache" mapstructure:"cache"`
}

type EngineConfig struct {
	BinaryPath       string   `json:"binaryPath" mapstructure:"binaryPath"`
	Args             []string `json:"args" mapstructure:"args"`
	Depth            int      `json:"depth" mapstructure:"depth"`
	Threads          int      `json:"threads" mapstructure:"threads"`
	HashMB           int      `json:"hashMB" mapstructure:"hashMB"`
	AutoStart        bool     `json:"autoStart" mapstructure:"autoStart"`
	FollowNavigation bool     `json:"followNavigation" mapstructure:"followNavigation"`
	// PingTimeout is in seconds.
	PingTimeout float64 `json:"pingTimeout" mapstructure:"pingTimeout"`
}

type StudyConfig struct {
	MaxGames         int    `json:"maxGames" mapstructure:"maxGames"`
	DefaultPromotion string `json:"defaultPromotion" mapstructure:"defaultPromotion"`
}

type ServerConfig struct {
	Name        string `json:"name" mapstructure:"name"`
	Version     string `json:"version" mapstructure:"version"`
	Description string `json:"description" mapstructure:"description"`
	HTTPAddr    string `json:"httpAddr" mapstructure:"httpAddr"`
	EnableHTTP  bool   `json:"enableHTTP" mapstructure:"enableHTTP"`
}

type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Prefix string `json:"prefix" mapstructure:"prefix"`
	Format string `json:"format" mapstructure:"format"`
	// File is an optional rotating copy of the log.
	File LogFileConfig `json:"file" mapstructure:"file"`
}

type LogFileConfig struct {
	Path       string `json:"path" mapstructure:"path"`
	MaxSizeMB  int    `json:"maxSizeMB" mapstructure:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays" mapstructure:"maxAgeDays"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

type RateLimitConfig struct {
	Enabled        bool           `json:"enabled" mapstructure:"enabled"`
	RequestsPerMin int            `json:"requestsPerMin" mapstructure:"requestsPerMin"`
	BurstSize      int            `json:"burstSize" mapstructure:"burstSize"`
	PerToolLimits  map[string]int `json:"perToolLimits" mapstructure:"perToolLimits"`
}

type CacheConfig struct {
	Enabled      bool  `json:"enabled" mapstructure:"enabled"`
	MaxItems     int   `json:"maxItems" mapstructure:"maxItems"`
	MaxSizeBytes int64 `json:"maxSizeBytes" mapstructure:"maxSizeBytes"`
	TTLSeconds   int   `json:"ttlSeconds" mapstructure:"ttlSeconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BinaryPath:  "stockfish",
			Depth:       15,
			Threads:     1,
			HashMB:      16,
			PingTimeout: 5.0,
		},
		Study: StudyConfig{
			MaxGames:         100,
			DefaultPromotion: "q",
		},
		Server: ServerConfig{
			Name:        "chess-study",
			Version:     "0.1.0",
			Description: "Chess study server with PGN browsing and engine analysis",
			HTTPAddr:    ":8080",
			EnableHTTP:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Prefix: "[chess-study] ",
			File: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
				Compress:   true,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			BurstSize:      60,
			PerToolLimits: map[string]int{
				"startAnalysis": 60,
			},
		},
		Cache: CacheConfig{
			Enabled:      true,
			MaxItems:     1000,
			MaxSizeBytes: 1 << 20,
			TTLSeconds:   0,
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	// A missing .env is the normal case
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	// Load from config file if provided
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	// Engine settings
	if v := os.Getenv("CHESS_STUDY_ENGINE_PATH"); v != "" {
		c.Engine.BinaryPath = v
	}
	if v := os.Getenv("CHESS_STUDY_ENGINE_DEPTH"); v != "" {
		if depth, err := cast.ToIntE(v); err == nil {
			c.Engine.Depth = depth
		}
	}
	if v := os.Getenv("CHESS_STUDY_ENGINE_AUTOSTART"); v != "" {
		c.Engine.AutoStart = cast.ToBool(strings.ToLower(v))
	}

	// Study settings
	if v := os.Getenv("CHESS_STUDY_MAX_GAMES"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			c.Study.MaxGames = n
		}
	}

	// Server settings
	if v := os.Getenv("CHESS_STUDY_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}

	// Logging settings
	if v := os.Getenv("CHESS_STUDY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHESS_STUDY_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("CHESS_STUDY_LOG_FILE"); v != "" {
		c.Logging.File.Path = v
	}

	// Rate limit settings
	if v := os.Getenv("CHESS_STUDY_RATE_LIMIT_ENABLED"); v != "" {
		c.RateLimit.Enabled = strings.ToLower(v) == "true"
	}
}

func (c *Config) validate() error {
	if c.Engine.BinaryPath == "" {
		return fmt.Errorf("engine binary path must not be empty")
	}
	if filepath.IsAbs(c.Engine.BinaryPath) {
		if _, err := os.Stat(c.Engine.BinaryPath); err != nil {
			return fmt.Errorf("engine binary not found at %s", c.Engine.BinaryPath)
		}
	}

	switch strings.ToLower(c.Study.DefaultPromotion) {
	case "q", "r", "b", "n":
		c.Study.DefaultPromotion = strings.ToLower(c.Study.DefaultPromotion)
	case "":
		c.Study.DefaultPromotion = "q"
	default:
		return fmt.Errorf("invalid default promotion %q", c.Study.DefaultPromotion)
	}

	// Validate numeric ranges
	if c.Engine.Depth < 1 {
		c.Engine.Depth = 1
	}
	if c.Engine.Threads < 1 {
		c.Engine.Threads = 1
	}
	if c.Engine.HashMB < 1 {
		c.Engine.HashMB = 1
	}
	if c.Engine.PingTimeout < 0.1 {
		c.Engine.PingTimeout = 0.1
	}
	if c.Study.MaxGames < 1 {
		c.Study.MaxGames = 1
	}

	// Validate rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin < 1 {
			c.RateLimit.RequestsPerMin = 1
		}
		if c.RateLimit.BurstSize < 1 {
			c.RateLimit.BurstSize = 1
		}
	}

	if c.Logging.File.MaxSizeMB < 0 {
		c.Logging.File.MaxSizeMB = 0
	}
	if c.Logging.File.MaxBackups < 0 {
		c.Logging.File.MaxBackups = 0
	}
	if c.Logging.File.MaxAgeDays < 0 {
		c.Logging.File.MaxAgeDays = 0
	}

	if c.Cache.Enabled && c.Cache.MaxItems < 1 {
		c.Cache.MaxItems = 1
	}

	return nil
}

func GetConfigPath() string {
	// Check environment variable first
	if path := os.Getenv("CHESS_STUDY_CONFIG"); path != "" {
		return path
	}

	// Check current directory
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}

	// Check home directory
	if home, err := os.UserHomeDir(); err == nil {
		configPath := filepath.Join(home, ".chess-study", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}
