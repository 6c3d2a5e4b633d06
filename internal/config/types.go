package config

import "time"

// Config is the root configuration for the triage tool.
type Config struct {
	Service ServiceConfig `yaml:"service,omitempty"`
	Auth    AuthConfig    `yaml:"auth,omitempty"`
	Poll    PollConfig    `yaml:"poll,omitempty"`
	Tools   ToolsConfig   `yaml:"tools,omitempty"`
	Ticket  TicketConfig  `yaml:"ticket,omitempty"`
	Agents  AgentsConfig  `yaml:"agents,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Hooks   HooksConfig   `yaml:"hooks,omitempty"`
}

// ServiceConfig locates the hosted agent service.
type ServiceConfig struct {
	Backend           string        `yaml:"backend,omitempty"`    // "foundry" | "openai"
	Endpoint          string        `yaml:"endpoint,omitempty"`   // project endpoint (PROJECT_ENDPOINT)
	APIVersion        string        `yaml:"apiVersion,omitempty"` // sent as ?api-version= on the foundry backend
	Model             string        `yaml:"model,omitempty"`      // model deployment name (MODEL_DEPLOYMENT_NAME)
	RequestTimeout    time.Duration `yaml:"requestTimeout,omitempty"`
	MaxRetries        int           `yaml:"maxRetries,omitempty"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond,omitempty"`
}

// AuthConfig configures how requests are authenticated.
type AuthConfig struct {
	Mode          string `yaml:"mode,omitempty"` // "default" | "token" | "client-credentials" | "api-key"
	TenantID      string `yaml:"tenantId,omitempty"`
	ClientID      string `yaml:"clientId,omitempty"`
	ClientSecret  string `yaml:"clientSecret,omitempty"`
	Token         string `yaml:"token,omitempty"`
	APIKey        string `yaml:"apiKey,omitempty"`
	Scope         string `yaml:"scope,omitempty"`
	AuthorityHost string `yaml:"authorityHost,omitempty"`
}

// PollConfig bounds how long and how often a run is polled.
type PollConfig struct {
	InitialInterval time.Duration `yaml:"initialInterval,omitempty"`
	MaxInterval     time.Duration `yaml:"maxInterval,omitempty"`
	Multiplier      float64       `yaml:"multiplier,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	MaxAttempts     int           `yaml:"maxAttempts,omitempty"` // 0 = bounded by timeout only
	MaxToolRounds   int           `yaml:"maxToolRounds,omitempty"`
}

// ToolsConfig selects how the triage agent reaches the specialists.
type ToolsConfig struct {
	Mode string `yaml:"mode,omitempty"` // "connected" | "function"
}

// TicketConfig limits what is sent to the agents.
type TicketConfig struct {
	MaxTokens int `yaml:"maxTokens,omitempty"` // prompt tokens (GPT-4 encoding); 0 = unlimited
}

// AgentsConfig overrides the built-in agent roster per role.
type AgentsConfig struct {
	Prioritization AgentEntry `yaml:"prioritization,omitempty"`
	Assignment     AgentEntry `yaml:"assignment,omitempty"`
	Estimation     AgentEntry `yaml:"estimation,omitempty"`
	Triage         AgentEntry `yaml:"triage,omitempty"`
}

// AgentEntry overrides a single agent definition. Empty fields keep the built-in value.
type AgentEntry struct {
	Name         string `yaml:"name,omitempty"`
	Instructions string `yaml:"instructions,omitempty"`
	Model        string `yaml:"model,omitempty"`
}

// StoreConfig controls the local resource ledger.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // defaults to <home>/data/triage.db
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // write Prometheus text format here after each run
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// HooksConfig defines shell commands run on triage lifecycle events.
type HooksConfig struct {
	RunFinished []HookEntry `yaml:"runFinished,omitempty"`
	AfterTriage []HookEntry `yaml:"afterTriage,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
