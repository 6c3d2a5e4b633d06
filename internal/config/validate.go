package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Service validation
	validBackends := []string{BackendFoundry, BackendOpenAI}
	if !slices.Contains(validBackends, cfg.Service.Backend) {
		issues = append(issues, ValidationIssue{
			Path:    "service.backend",
			Message: fmt.Sprintf("must be one of %v, got %q", validBackends, cfg.Service.Backend),
		})
	}

	if cfg.Service.Endpoint == "" {
		if cfg.Service.Backend != BackendOpenAI {
			issues = append(issues, ValidationIssue{
				Path:    "service.endpoint",
				Message: "required (set PROJECT_ENDPOINT)",
			})
		}
	} else if u, err := url.Parse(cfg.Service.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, ValidationIssue{
			Path:    "service.endpoint",
			Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.Service.Endpoint),
		})
	}

	if cfg.Service.Model == "" {
		issues = append(issues, ValidationIssue{
			Path:    "service.model",
			Message: "required (set MODEL_DEPLOYMENT_NAME)",
		})
	}

	if cfg.Service.MaxRetries < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "service.maxRetries",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Service.MaxRetries),
		})
	}

	if cfg.Service.RequestsPerSecond < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "service.requestsPerSecond",
			Message: fmt.Sprintf("must be >= 0, got %v", cfg.Service.RequestsPerSecond),
		})
	}

	// Auth validation
	validAuthModes := []string{AuthDefault, AuthToken, AuthClientCredentials, AuthAPIKey}
	if !slices.Contains(validAuthModes, cfg.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Auth.Mode),
		})
	}

	if cfg.Auth.Mode == AuthAPIKey && cfg.Auth.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "auth.apiKey",
			Message: "required when auth.mode is api-key",
		})
	}

	if cfg.Auth.Mode == AuthToken && cfg.Auth.Token == "" {
		issues = append(issues, ValidationIssue{
			Path:    "auth.token",
			Message: "required when auth.mode is token",
		})
	}

	if cfg.Service.Backend == BackendOpenAI && cfg.Auth.Mode != AuthAPIKey {
		issues = append(issues, ValidationIssue{
			Path:    "auth.mode",
			Message: "openai backend requires api-key auth",
		})
	}

	// Poll validation
	if cfg.Poll.InitialInterval <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "poll.initialInterval",
			Message: fmt.Sprintf("must be positive, got %s", cfg.Poll.InitialInterval),
		})
	}
	if cfg.Poll.MaxInterval < cfg.Poll.InitialInterval {
		issues = append(issues, ValidationIssue{
			Path:    "poll.maxInterval",
			Message: fmt.Sprintf("must be >= initialInterval (%s), got %s", cfg.Poll.InitialInterval, cfg.Poll.MaxInterval),
		})
	}
	if cfg.Poll.Multiplier < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "poll.multiplier",
			Message: fmt.Sprintf("must be >= 1, got %v", cfg.Poll.Multiplier),
		})
	}
	if cfg.Poll.Timeout <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "poll.timeout",
			Message: fmt.Sprintf("must be positive, got %s", cfg.Poll.Timeout),
		})
	}
	if cfg.Poll.MaxAttempts < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "poll.maxAttempts",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Poll.MaxAttempts),
		})
	}

	// Tools validation
	validToolModes := []string{ToolsConnected, ToolsFunction}
	if !slices.Contains(validToolModes, cfg.Tools.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "tools.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validToolModes, cfg.Tools.Mode),
		})
	}
	if cfg.Service.Backend == BackendOpenAI && cfg.Tools.Mode == ToolsConnected {
		issues = append(issues, ValidationIssue{
			Path:    "tools.mode",
			Message: "connected agent tools require the foundry backend",
		})
	}

	if cfg.Ticket.MaxTokens < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "ticket.maxTokens",
			Message: fmt.Sprintf("must be >= 0, got %d", cfg.Ticket.MaxTokens),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Hooks validation
	for i, h := range cfg.Hooks.RunFinished {
		if h.Command == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("hooks.runFinished[%d].command", i),
				Message: "command is required",
			})
		}
	}
	for i, h := range cfg.Hooks.AfterTriage {
		if h.Command == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("hooks.afterTriage[%d].command", i),
				Message: "command is required",
			})
		}
	}

	return issues
}
