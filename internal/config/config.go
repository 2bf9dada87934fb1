// Package config provides configuration parsing and validation for the
// host bridge.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPorts is the ordered candidate port list shared by the agent
// (bind) and the client (connect) discovery logic.
var DefaultPorts = []int{7071, 7072, 7073, 7074, 7075}

// Config represents the complete bridge configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	Bridge  BridgeConfig  `yaml:"bridge"`
	Exec    ExecConfig    `yaml:"exec"`
	Client  ClientConfig  `yaml:"client"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AgentConfig contains process-level settings.
type AgentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// BridgeConfig defines the host-agent listener.
type BridgeConfig struct {
	// Host is the interface the agent binds. The trust boundary is
	// loopback; binding anything else is the operator's decision.
	Host string `yaml:"host"`

	// Ports is the ordered candidate list. The agent binds the first
	// port that is not already in use.
	Ports []int `yaml:"ports"`

	// Token is the shared secret. Empty means connections are
	// implicitly authorized. ${HOSTBRIDGE_TOKEN} expansion lets the
	// secret come from the process environment.
	Token string `yaml:"token"`

	// WorkingDirectory is the initial working directory for each new
	// connection. Empty means the agent process's own cwd.
	WorkingDirectory string `yaml:"working_directory"`
}

// ExecConfig tunes the process executor.
type ExecConfig struct {
	// Shell overrides the platform shell. Empty selects
	// $SHELL / /bin/sh on POSIX and powershell on Windows.
	Shell string `yaml:"shell"`

	// CommandTimeout bounds each spawned command. Zero disables the
	// bound and a hung process holds its request open forever.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// ChunkSize is the stdout/stderr read buffer size.
	ChunkSize int `yaml:"chunk_size"`
}

// ClientConfig tunes the client-side connection manager.
type ClientConfig struct {
	Host           string          `yaml:"host"`
	Ports          []int           `yaml:"ports"`
	Token          string          `yaml:"token"`
	DialTimeout    time.Duration   `yaml:"dial_timeout"`
	RequestTimeout time.Duration   `yaml:"request_timeout"` // 0 = unbounded
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig defines backoff behavior after a full candidate
// sweep fails.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
	MaxRetries   int           `yaml:"max_retries"` // 0 = infinite
}

// MetricsConfig defines Prometheus exposition.
type MetricsConfig struct {
	// Enabled serves /metrics on the agent's HTTP mux.
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Bridge: BridgeConfig{
			Host:  "127.0.0.1",
			Ports: append([]int(nil), DefaultPorts...),
		},
		Exec: ExecConfig{
			CommandTimeout: 0,
			ChunkSize:      4096,
		},
		Client: ClientConfig{
			Host:           "127.0.0.1",
			Ports:          append([]int(nil), DefaultPorts...),
			DialTimeout:    3 * time.Second,
			RequestTimeout: 0,
			Reconnect: ReconnectConfig{
				InitialDelay: 1 * time.Second,
				MaxDelay:     30 * time.Second,
				Multiplier:   2.0,
				Jitter:       0.2,
				MaxRetries:   0,
			},
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Agent.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.Agent.LogLevel))
	}
	if !isValidLogFormat(c.Agent.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.Agent.LogFormat))
	}

	if len(c.Bridge.Ports) == 0 {
		errs = append(errs, "bridge.ports must list at least one candidate port")
	}
	for i, p := range c.Bridge.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("bridge.ports[%d]: invalid port %d", i, p))
		}
	}
	if c.Bridge.Host == "" {
		errs = append(errs, "bridge.host is required")
	}

	if c.Exec.ChunkSize < 1 {
		errs = append(errs, "exec.chunk_size must be positive")
	}
	if c.Exec.CommandTimeout < 0 {
		errs = append(errs, "exec.command_timeout must not be negative")
	}

	if len(c.Client.Ports) == 0 {
		errs = append(errs, "client.ports must list at least one candidate port")
	}
	for i, p := range c.Client.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("client.ports[%d]: invalid port %d", i, p))
		}
	}
	if c.Client.Reconnect.Multiplier < 1.0 {
		errs = append(errs, "client.reconnect.multiplier must be >= 1.0")
	}
	if c.Client.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "client.reconnect.initial_delay must be positive")
	}
	if c.Client.Reconnect.MaxDelay < c.Client.Reconnect.InitialDelay {
		errs = append(errs, "client.reconnect.max_delay must be >= initial_delay")
	}
	if c.Client.Reconnect.Jitter < 0 || c.Client.Reconnect.Jitter > 1 {
		errs = append(errs, "client.reconnect.jitter must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// redactedValue is the placeholder for sensitive values.
const redactedValue = "[REDACTED]"

// Redacted returns a copy of the config with the shared tokens
// redacted. This is safe to log or display.
func (c *Config) Redacted() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		return c
	}

	redacted := &Config{}
	if err := yaml.Unmarshal(data, redacted); err != nil {
		return c
	}

	if redacted.Bridge.Token != "" {
		redacted.Bridge.Token = redactedValue
	}
	if redacted.Client.Token != "" {
		redacted.Client.Token = redactedValue
	}

	return redacted
}

// String returns a string representation of the config with sensitive
// values redacted.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}
