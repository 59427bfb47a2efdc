// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Vocabulary   VocabularyConfig   `mapstructure:"vocabulary"`
	Analytics    AnalyticsConfig    `mapstructure:"analytics"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Response     ResponseConfig     `mapstructure:"response"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// PipelineConfig holds the intent-classification thresholds.
type PipelineConfig struct {
	MinTier2Confidence float64 `mapstructure:"min_tier2_confidence"`
	MinKeywordScore    int     `mapstructure:"min_keyword_score"`
	FuzzyThreshold     float64 `mapstructure:"fuzzy_threshold"`
	DefaultRankLimit   int     `mapstructure:"default_rank_limit"`
}

type ConversationConfig struct {
	IdleTimeout  int `mapstructure:"idle_timeout"`  // milliseconds
	HistoryLimit int `mapstructure:"history_limit"` // max intents kept per session
	SweepEvery   int `mapstructure:"sweep_every"`   // milliseconds
}

type VocabularyConfig struct {
	StaticPath      string `mapstructure:"static_path"`
	RefreshInterval int    `mapstructure:"refresh_interval"` // milliseconds, 0 disables
}

type AnalyticsConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxRetries int    `mapstructure:"max_retries"`
	CacheTTL   int    `mapstructure:"cache_ttl"` // milliseconds
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the address for the Redis client.
func (r RedisConfig) Addr() string {
	if r.Address == "" {
		return "localhost:6379"
	}
	return r.Address
}

type ResponseConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
	CacheTTL     int    `mapstructure:"cache_ttl"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// String implements fmt.Stringer without leaking credentials.
func (c *Config) String() string {
	return fmt.Sprintf("Config{app=%s env=%s server=%s analytics=%s}",
		c.App.Name, c.App.Environment, c.Server.Address, c.Analytics.BaseURL)
}
