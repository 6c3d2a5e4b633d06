package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Backends and modes understood by the rest of the program.
const (
	BackendFoundry = "foundry"
	BackendOpenAI  = "openai"

	AuthDefault           = "default"
	AuthToken             = "token"
	AuthClientCredentials = "client-credentials"
	AuthAPIKey            = "api-key"

	ToolsConnected = "connected"
	ToolsFunction  = "function"

	DefaultAPIVersion    = "v1"
	DefaultScope         = "https://ai.azure.com/.default"
	DefaultAuthorityHost = "https://login.microsoftonline.com"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Service: ServiceConfig{
			Backend:           BackendFoundry,
			APIVersion:        DefaultAPIVersion,
			RequestTimeout:    60 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 5,
		},
		Auth: AuthConfig{
			Mode:          AuthDefault,
			Scope:         DefaultScope,
			AuthorityHost: DefaultAuthorityHost,
		},
		Poll: PollConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
			Timeout:         5 * time.Minute,
			MaxToolRounds:   5,
		},
		Tools: ToolsConfig{
			Mode: ToolsConnected,
		},
		Ticket: TicketConfig{
			MaxTokens: 8000,
		},
		Store: StoreConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
