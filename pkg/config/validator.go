package config

import "fmt"

// Validate checks the resolved configuration for values that would break the
// runtime. Defaults guarantee most fields; validation guards the rest.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return NewValidationError("server", "port", fmt.Errorf("%w: %d", ErrInvalidValue, c.Server.Port))
	}
	if c.Database.Host == "" {
		return NewValidationError("database", "host", ErrMissingRequiredField)
	}
	if c.Database.Database == "" {
		return NewValidationError("database", "database", ErrMissingRequiredField)
	}
	if !c.BSA.Stub && c.BSA.BaseURL == "" {
		return NewValidationError("bsa", "base_url", ErrMissingRequiredField)
	}
	if c.BSA.Timeout <= 0 {
		return NewValidationError("bsa", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Dedupe.Window <= 0 {
		return NewValidationError("dedupe", "window", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Resilience.MaxRetries < 0 {
		return NewValidationError("resilience", "max_retries", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
	}
	if c.Resilience.Multiplier < 1 {
		return NewValidationError("resilience", "multiplier", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if c.Resilience.FailureThreshold == 0 {
		return NewValidationError("resilience", "failure_threshold", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Resolver.CacheSize <= 0 {
		return NewValidationError("resolver", "cache_size", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Resolver.FuzzyThreshold < 0 || c.Resolver.FuzzyThreshold > 1 {
		return NewValidationError("resolver", "fuzzy_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if c.Workflow.Mode != WorkflowModeSimplified {
		return NewValidationError("workflow", "mode", fmt.Errorf("%w: %q", ErrInvalidValue, c.Workflow.Mode))
	}
	if c.Workflow.MaxSteps <= 0 {
		return NewValidationError("workflow", "max_steps", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Entity.MaxHistoryPerType <= 0 {
		return NewValidationError("entity", "max_history_per_type", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if c.Planner.LLMExtraction && c.Planner.APIKeyEnv == "" {
		return NewValidationError("planner", "api_key_env", ErrMissingRequiredField)
	}
	return nil
}
