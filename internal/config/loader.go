package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Auth.ClientSecret = expandEnvVars(cfg.Auth.ClientSecret)
	cfg.Auth.Token = expandEnvVars(cfg.Auth.Token)
	cfg.Auth.APIKey = expandEnvVars(cfg.Auth.APIKey)
	cfg.Auth.TenantID = expandEnvVars(cfg.Auth.TenantID)
	cfg.Auth.ClientID = expandEnvVars(cfg.Auth.ClientID)
	cfg.Service.Endpoint = expandEnvVars(cfg.Service.Endpoint)
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return &ConfigError{Message: "failed to load " + path + ": " + err.Error()}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()

	if cfg.Service.Backend == "" {
		cfg.Service.Backend = def.Service.Backend
	}
	if cfg.Service.APIVersion == "" {
		cfg.Service.APIVersion = def.Service.APIVersion
	}
	if cfg.Service.RequestTimeout == 0 {
		cfg.Service.RequestTimeout = def.Service.RequestTimeout
	}
	if cfg.Service.RequestsPerSecond == 0 {
		cfg.Service.RequestsPerSecond = def.Service.RequestsPerSecond
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = def.Auth.Mode
	}
	if cfg.Auth.Scope == "" {
		cfg.Auth.Scope = def.Auth.Scope
	}
	if cfg.Auth.AuthorityHost == "" {
		cfg.Auth.AuthorityHost = def.Auth.AuthorityHost
	}
	if cfg.Poll.InitialInterval == 0 {
		cfg.Poll.InitialInterval = def.Poll.InitialInterval
	}
	if cfg.Poll.MaxInterval == 0 {
		cfg.Poll.MaxInterval = def.Poll.MaxInterval
	}
	if cfg.Poll.Multiplier == 0 {
		cfg.Poll.Multiplier = def.Poll.Multiplier
	}
	if cfg.Poll.Timeout == 0 {
		cfg.Poll.Timeout = def.Poll.Timeout
	}
	if cfg.Poll.MaxToolRounds == 0 {
		cfg.Poll.MaxToolRounds = def.Poll.MaxToolRounds
	}
	if cfg.Tools.Mode == "" {
		cfg.Tools.Mode = def.Tools.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads PROJECT_ENDPOINT, MODEL_DEPLOYMENT_NAME and
// TRIAGE_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROJECT_ENDPOINT"); v != "" {
		cfg.Service.Endpoint = v
	}
	if v := os.Getenv("MODEL_DEPLOYMENT_NAME"); v != "" {
		cfg.Service.Model = v
	}
	if v := os.Getenv("TRIAGE_BACKEND"); v != "" {
		cfg.Service.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TRIAGE_API_VERSION"); v != "" {
		cfg.Service.APIVersion = v
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRIAGE_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Poll.Timeout = d
		}
	}
	if v := os.Getenv("TRIAGE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Service.MaxRetries = n
		}
	}
	if v := os.Getenv("TRIAGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Auth.APIKey == "" {
		cfg.Auth.APIKey = v
	}
}
