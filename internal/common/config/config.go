// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct. It is constructed
// once at startup and passed by reference into each component; no component
// reads ambient global state.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	GenAI         GenAIConfig        `mapstructure:"genai"`
	Pipeline      PipelineConfig     `mapstructure:"pipeline"`
	Guardrail     GuardrailConfig    `mapstructure:"guardrail"`
	SourceWeights SourceWeightTable  `mapstructure:"source_weights"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	RequestTimeout int `mapstructure:"request_timeout"` // milliseconds, end-to-end
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	IndexPrefix string   `mapstructure:"index_prefix"` // e.g. "ops-kb" → "ops-kb-runbooks"
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GenAIConfig holds settings for the external generation capability, used by
// both the intent classifier and the answer synthesizer.
type GenAIConfig struct {
	BaseURL          string  `mapstructure:"base_url"`
	APIKey           string  `mapstructure:"api_key"`
	ClassifyTimeout  int     `mapstructure:"classify_timeout"`  // milliseconds
	SynthesisTimeout int     `mapstructure:"synthesis_timeout"` // milliseconds
	MaxRetries       int     `mapstructure:"max_retries"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	Temperature      float64 `mapstructure:"temperature"`
}

// PipelineConfig holds the tunable orchestration parameters.
type PipelineConfig struct {
	TopK                int            `mapstructure:"top_k"`
	PerSourceTopK       map[string]int `mapstructure:"per_source_top_k"`
	ContextBudget       int            `mapstructure:"context_budget"`
	ConfidenceThreshold float64        `mapstructure:"confidence_threshold"`
	RetrievalTimeout    int            `mapstructure:"retrieval_timeout"` // milliseconds, per source
	AlertRecencyHours   int            `mapstructure:"alert_recency_hours"`
	CacheTTL            int            `mapstructure:"cache_ttl"` // seconds; 0 disables the answer cache
	KnownServices       []string       `mapstructure:"known_services"`

	// Fusion scoring: fused = similarity_weight*normScore + source_weight*routerWeight.
	// Tunable parameters, not fixed constants.
	FusionSimilarityWeight float64 `mapstructure:"fusion_similarity_weight"`
	FusionSourceWeight     float64 `mapstructure:"fusion_source_weight"`

	// Confidence blend over (intent confidence, mean cited similarity,
	// grounding coverage).
	ConfidenceIntentWeight     float64 `mapstructure:"confidence_intent_weight"`
	ConfidenceSimilarityWeight float64 `mapstructure:"confidence_similarity_weight"`
	ConfidenceCoverageWeight   float64 `mapstructure:"confidence_coverage_weight"`
}

// GuardrailConfig holds the out-of-scope denylist.
type GuardrailConfig struct {
	Topics []string `mapstructure:"topics"` // regexp patterns
}

// SourceWeightTable maps intent → source kind → static relevance weight.
// This is the single place encoding which knowledge source answers which
// kind of question.
type SourceWeightTable map[string]map[string]float64

// NotificationConfig holds settings for escalation notifications.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
