package config

import "time"

// Default returns the built-in configuration. User YAML is merged on top;
// unset values keep these defaults.
func Default() *Config {
	return &Config{
		Server: &ServerConfig{
			Port:            8080,
			GinMode:         "release",
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: &DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "maestro",
			Database:        "maestro",
			SSLMode:         "disable",
			MaxOpenConns:    20,
			ConnMaxLifetime: Duration(time.Hour),
			ConnMaxIdleTime: Duration(30 * time.Minute),
		},
		BSA: &BSAConfig{
			Timeout: Duration(10 * time.Second),
		},
		Dedupe: &DedupeConfig{
			Window:        Duration(5 * time.Minute),
			PurgeInterval: Duration(time.Hour),
		},
		Resilience: &ResilienceConfig{
			MaxRetries:       3,
			InitialDelay:     Duration(time.Second),
			MaxDelay:         Duration(30 * time.Second),
			Multiplier:       2,
			FailureThreshold: 5,
			ResetTimeout:     Duration(60 * time.Second),
			HalfOpenMax:      3,
		},
		Resolver: &ResolverConfig{
			CacheSize:      50,
			CacheTTL:       Duration(time.Hour),
			SearchLimit:    10,
			FuzzyThreshold: 0.3,
		},
		Planner: &PlannerConfig{
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Memory: &MemoryConfig{
			Timeout:     Duration(5 * time.Second),
			RecallLimit: 5,
			Threshold:   0.5,
		},
		Workflow: &WorkflowConfig{
			Mode:     WorkflowModeSimplified,
			MaxSteps: 22,
		},
		Entity: &EntityConfig{
			MaxHistoryPerType: 10,
		},
	}
}
