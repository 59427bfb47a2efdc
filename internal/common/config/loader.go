// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like ANALYTICS_BASE_URL
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the working directory or the project root.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig applies direct env fallbacks for values that must not
// silently stay empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Analytics.BaseURL == "" {
		if val := os.Getenv("ANALYTICS_BASE_URL"); val != "" {
			cfg.Analytics.BaseURL = val
		}
	}
	if cfg.Analytics.APIKey == "" {
		if val := os.Getenv("ANALYTICS_API_KEY"); val != "" {
			cfg.Analytics.APIKey = val
		}
	}
	if cfg.Redis.Address == "" {
		if val := os.Getenv("REDIS_ADDRESS"); val != "" {
			cfg.Redis.Address = val
		}
	}
	if cfg.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8085"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Pipeline.MinTier2Confidence == 0 {
		cfg.Pipeline.MinTier2Confidence = 0.5
	}
	if cfg.Pipeline.MinKeywordScore == 0 {
		cfg.Pipeline.MinKeywordScore = 3
	}
	if cfg.Pipeline.FuzzyThreshold == 0 {
		cfg.Pipeline.FuzzyThreshold = 0.7
	}
	if cfg.Pipeline.DefaultRankLimit == 0 {
		cfg.Pipeline.DefaultRankLimit = 5
	}

	if cfg.Conversation.IdleTimeout == 0 {
		cfg.Conversation.IdleTimeout = 600000 // 10 minutes
	}
	if cfg.Conversation.HistoryLimit == 0 {
		cfg.Conversation.HistoryLimit = 20
	}
	if cfg.Conversation.SweepEvery == 0 {
		cfg.Conversation.SweepEvery = 60000
	}

	if cfg.Vocabulary.StaticPath == "" {
		cfg.Vocabulary.StaticPath = "configs/vocabulary.yaml"
	}

	if cfg.Analytics.Timeout == 0 {
		cfg.Analytics.Timeout = 10000
	}
	if cfg.Analytics.MaxRetries == 0 {
		cfg.Analytics.MaxRetries = 2
	}
	if cfg.Analytics.CacheTTL == 0 {
		cfg.Analytics.CacheTTL = 300000 // 5 minutes
	}

	if cfg.Response.RegistryPath == "" {
		cfg.Response.RegistryPath = "configs/response_templates.json"
	}
	if cfg.Response.CacheTTL == 0 {
		cfg.Response.CacheTTL = 300000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.Analytics.BaseURL == "" {
		return fmt.Errorf("analytics.base_url is required")
	}
	if cfg.Vocabulary.StaticPath == "" {
		return fmt.Errorf("vocabulary.static_path is required")
	}
	if cfg.Pipeline.FuzzyThreshold <= 0 || cfg.Pipeline.FuzzyThreshold > 1 {
		return fmt.Errorf("pipeline.fuzzy_threshold must be in (0,1]")
	}
	if cfg.Redis.Enabled && cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
