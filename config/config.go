package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/m4xw311/genui/errors"
	"github.com/m4xw311/genui/protocol"
)

// Backend kinds.
const (
	BackendLLM = "llm"
	BackendA2A = "a2a"
	BackendMCP = "mcp"
)

type A2A struct {
	URL               string   `yaml:"url"`
	Extensions        []string `yaml:"extensions"`
	TrustAgentCardURL *bool    `yaml:"trust_agent_card_url"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Tool    string   `yaml:"tool"`
}

type Protocol struct {
	MimeTypes []string `yaml:"mime_types"`
}

type Publish struct {
	Listen        string `yaml:"listen"`
	WebSocketPath string `yaml:"websocket_path"`
	SSEPath       string `yaml:"sse_path"`
}

type Config struct {
	Backend        string        `yaml:"backend"`
	LLMClient      string        `yaml:"llm"`
	Model          string        `yaml:"model"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     *int          `yaml:"max_retries"`
	A2A            A2A           `yaml:"a2a"`
	MCP            MCPServer     `yaml:"mcp"`
	Protocol       Protocol      `yaml:"protocol"`
	Publish        Publish       `yaml:"publish"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
}

// Retries returns max_retries, defaulting to 1.
func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return 1
	}
	return *c.MaxRetries
}

// TrustAgentCardURL reports whether the A2A client may follow the URL the
// agent card advertises. It defaults to true.
func (c *Config) TrustAgentCardURL() bool {
	return c.A2A.TrustAgentCardURL == nil || *c.A2A.TrustAgentCardURL
}

// LoadConfig loads configuration from the user's home directory, the current
// working directory and finally path, if not empty. Later files take
// precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".genui", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".genui", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config %s", path)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Fields present in the YAML replace what earlier files set; lists are
	// replaced, not appended.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendLLM
	}
	if c.LLMClient == "" {
		c.LLMClient = "mock"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 90 * time.Second
	}
	if len(c.A2A.Extensions) == 0 {
		c.A2A.Extensions = []string{protocol.ExtensionURI}
	}
	if c.MCP.Tool == "" {
		c.MCP.Tool = "generate_ui"
	}
	if c.MCP.Name == "" {
		c.MCP.Name = c.MCP.Command
	}
	if len(c.Protocol.MimeTypes) == 0 {
		c.Protocol.MimeTypes = []string{protocol.MimeType}
	}
	if c.Publish.WebSocketPath == "" {
		c.Publish.WebSocketPath = "/ws"
	}
	if c.Publish.SSEPath == "" {
		c.Publish.SSEPath = "/events"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the settings the selected backend needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLLM:
	case BackendA2A:
		if c.A2A.URL == "" {
			return errors.New("backend a2a requires a2a.url")
		}
	case BackendMCP:
		if c.MCP.Command == "" {
			return errors.New("backend mcp requires mcp.command")
		}
	default:
		return errors.New("unknown backend %q", c.Backend)
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	if c.Retries() < 0 {
		return errors.New("max_retries must not be negative")
	}
	for _, p := range c.Protocol.MimeTypes {
		if !doublestar.ValidatePattern(p) {
			return errors.New("invalid protocol.mime_types pattern %q", p)
		}
	}
	return nil
}
