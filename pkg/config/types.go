// Package config loads and validates maestro configuration from a config
// directory (maestro.yaml + .env) with environment variable expansion.
package config

// Config is the fully resolved runtime configuration.
type Config struct {
	Server     *ServerConfig     `yaml:"server"`
	Database   *DatabaseConfig   `yaml:"database"`
	BSA        *BSAConfig        `yaml:"bsa"`
	Dedupe     *DedupeConfig     `yaml:"dedupe"`
	Resilience *ResilienceConfig `yaml:"resilience"`
	Resolver   *ResolverConfig   `yaml:"resolver"`
	Planner    *PlannerConfig    `yaml:"planner"`
	Memory     *MemoryConfig     `yaml:"memory"`
	Workflow   *WorkflowConfig   `yaml:"workflow"`
	Entity     *EntityConfig     `yaml:"entity"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	GinMode         string        `yaml:"gin_mode"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
}

// BSAConfig holds remote CRM gateway settings.
type BSAConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
	// Stub wires the in-memory gateway for local development.
	Stub bool `yaml:"stub"`
}

// DedupeConfig holds dedupe guard settings.
type DedupeConfig struct {
	// Window is the trailing interval within which identical write payloads
	// deduplicate to at most one execution.
	Window Duration `yaml:"window"`
	// PurgeInterval is how often expired dedupe rows are deleted.
	PurgeInterval Duration `yaml:"purge_interval"`
}

// ResilienceConfig holds retry and circuit-breaker settings.
type ResilienceConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	InitialDelay     Duration `yaml:"initial_delay"`
	MaxDelay         Duration `yaml:"max_delay"`
	Multiplier       float64       `yaml:"multiplier"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	ResetTimeout     Duration `yaml:"reset_timeout"`
	HalfOpenMax      uint32        `yaml:"half_open_max"`
}

// ResolverConfig holds contact/user resolver settings.
type ResolverConfig struct {
	CacheSize      int           `yaml:"cache_size"`
	CacheTTL       Duration `yaml:"cache_ttl"`
	SearchLimit    int           `yaml:"search_limit"`
	FuzzyThreshold float64       `yaml:"fuzzy_threshold"`
}

// PlannerConfig holds planner settings.
type PlannerConfig struct {
	// LLMExtraction enables the Anthropic-assisted entity extractor.
	// Keyword detection runs regardless.
	LLMExtraction bool   `yaml:"llm_extraction"`
	Model         string `yaml:"model"`
	APIKeyEnv     string `yaml:"api_key_env"`
}

// MemoryConfig holds the vector-memory provider settings.
type MemoryConfig struct {
	// ProviderURL of the recall/synthesize service. Empty disables memory.
	ProviderURL string        `yaml:"provider_url"`
	Timeout     Duration `yaml:"timeout"`
	RecallLimit int           `yaml:"recall_limit"`
	Threshold   float64       `yaml:"threshold"`
}

// WorkflowMode selects the workflow generation pipeline.
type WorkflowMode string

// Workflow modes. Only the simplified pipeline is implemented; the value
// exists so deployments can opt into future modes without a schema change.
const (
	WorkflowModeSimplified WorkflowMode = "simplified"
)

// WorkflowConfig holds workflow domain settings.
type WorkflowConfig struct {
	Mode     WorkflowMode `yaml:"mode"`
	MaxSteps int          `yaml:"max_steps"`
}

// EntityConfig holds entity graph settings.
type EntityConfig struct {
	MaxHistoryPerType int `yaml:"max_history_per_type"`
}
