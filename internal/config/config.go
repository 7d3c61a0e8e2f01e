// Package config loads the Cueso configuration file: YAML (or JSON5)
// with $include resolution, environment-variable expansion, and a
// strict decode that rejects unknown keys.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config values decode from strings
// like "30s" or "5m". Bare numbers are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	LLM       LLMConfig       `yaml:"llm"`
	Session   SessionConfig   `yaml:"session"`
	Tools     ToolsConfig     `yaml:"tools"`
	Roku      RokuConfig      `yaml:"roku"`
	MCP       MCPConfig       `yaml:"mcp"`
	Brave     BraveConfig     `yaml:"brave"`
	Streaming StreamingConfig `yaml:"streaming"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout Duration      `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// LLMConfig selects and configures the model backend.
type LLMConfig struct {
	// Provider is "anthropic" or "openai".
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// SessionConfig seeds new sessions and tunes the store.
type SessionConfig struct {
	SystemPrompt  string        `yaml:"system_prompt"`
	MaxIterations int           `yaml:"max_iterations"`
	TTL           Duration `yaml:"ttl"`
	MaxSessions   int           `yaml:"max_sessions"`
	LockTimeout   Duration `yaml:"lock_timeout"`
}

// ToolsConfig shapes the tool surface offered to the model.
type ToolsConfig struct {
	// Enabled restricts the direct catalog to the named tools. Empty
	// means every available tool.
	Enabled []string `yaml:"enabled"`

	// PostLaunchDelay is the wait before the post-launch keypress.
	// Negative disables the keypress.
	PostLaunchDelay Duration `yaml:"post_launch_delay"`

	// Concurrency caps parallel tool executions per assistant turn.
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds one tool execution.
	Timeout Duration `yaml:"timeout"`
}

type RokuConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout Duration `yaml:"timeout"`
}

// MCPConfig lists remote tool servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Token   string            `yaml:"token"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout"`
}

type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// StreamingConfig orders the streaming services the content pipeline
// prefers. Empty means the built-in priority.
type StreamingConfig struct {
	Priority []string `yaml:"priority"`
}

// Load reads, merges, and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8483
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Roku.Port == 0 {
		cfg.Roku.Port = 8060
	}
	if cfg.Roku.Timeout == 0 {
		cfg.Roku.Timeout = Duration(5 * time.Second)
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm.provider must be \"anthropic\" or \"openai\", got %q", c.LLM.Provider)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	seen := map[string]bool{}
	for _, server := range c.MCP.Servers {
		if err := validateMCPServer(server); err != nil {
			return err
		}
		if seen[server.Name] {
			return fmt.Errorf("mcp server %q configured twice", server.Name)
		}
		seen[server.Name] = true
	}
	return nil
}

func validateMCPServer(server MCPServerConfig) error {
	if strings.TrimSpace(server.Name) == "" {
		return fmt.Errorf("mcp server name is required")
	}
	if strings.TrimSpace(server.URL) == "" {
		return fmt.Errorf("mcp server %q has no url", server.Name)
	}
	if !strings.HasPrefix(server.URL, "http://") && !strings.HasPrefix(server.URL, "https://") {
		return fmt.Errorf("mcp server %q url must be http(s)", server.Name)
	}
	return nil
}
