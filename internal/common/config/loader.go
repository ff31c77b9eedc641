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

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GENAI_API_KEY
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

	// Environment overlay, ignored if missing
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

// LoadFromFile loads configuration from a specific file path
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

// Find project root by looking for go.mod
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

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.GenAI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.GenAI.APIKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Elasticsearch.Password == "" {
		if val := os.Getenv("ES_PASSWORD"); val != "" {
			cfg.Database.Elasticsearch.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30000
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.IndexPrefix == "" {
		cfg.Database.Elasticsearch.IndexPrefix = "ops-kb"
	}

	// GenAI defaults
	if cfg.GenAI.ClassifyTimeout == 0 {
		cfg.GenAI.ClassifyTimeout = 10000
	}
	if cfg.GenAI.SynthesisTimeout == 0 {
		cfg.GenAI.SynthesisTimeout = 20000
	}
	if cfg.GenAI.MaxRetries == 0 {
		cfg.GenAI.MaxRetries = 2
	}
	if cfg.GenAI.MaxTokens == 0 {
		cfg.GenAI.MaxTokens = 800
	}

	// Pipeline defaults
	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 5
	}
	if cfg.Pipeline.ContextBudget == 0 {
		cfg.Pipeline.ContextBudget = 6
	}
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.5
	}
	if cfg.Pipeline.RetrievalTimeout == 0 {
		cfg.Pipeline.RetrievalTimeout = 2000
	}
	if cfg.Pipeline.AlertRecencyHours == 0 {
		cfg.Pipeline.AlertRecencyHours = 24
	}
	if cfg.Pipeline.FusionSimilarityWeight == 0 {
		cfg.Pipeline.FusionSimilarityWeight = 0.7
	}
	if cfg.Pipeline.FusionSourceWeight == 0 {
		cfg.Pipeline.FusionSourceWeight = 0.3
	}
	if cfg.Pipeline.ConfidenceIntentWeight == 0 {
		cfg.Pipeline.ConfidenceIntentWeight = 0.3
	}
	if cfg.Pipeline.ConfidenceSimilarityWeight == 0 {
		cfg.Pipeline.ConfidenceSimilarityWeight = 0.4
	}
	if cfg.Pipeline.ConfidenceCoverageWeight == 0 {
		cfg.Pipeline.ConfidenceCoverageWeight = 0.3
	}

	// Logging defaults
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

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.GenAI.BaseURL == "" {
		return fmt.Errorf("genai.base_url is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be within [0,1]")
	}

	wSum := cfg.Pipeline.ConfidenceIntentWeight +
		cfg.Pipeline.ConfidenceSimilarityWeight +
		cfg.Pipeline.ConfidenceCoverageWeight
	if wSum <= 0 {
		return fmt.Errorf("confidence blend weights must sum to a positive value")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
