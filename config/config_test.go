package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/genui/protocol"
)

// isolate points the home and working directories at empty temp dirs.
func isolate(t *testing.T) (home, wd string) {
	t.Helper()
	home, wd = t.TempDir(), t.TempDir()
	t.Setenv("HOME", home)
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(wd))
	t.Cleanup(func() { os.Chdir(old) })
	return home, wd
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfigDefaults(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, BackendLLM, cfg.Backend)
	assert.Equal(t, "mock", cfg.LLMClient)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1, cfg.Retries())
	assert.True(t, cfg.TrustAgentCardURL())
	assert.Equal(t, []string{protocol.ExtensionURI}, cfg.A2A.Extensions)
	assert.Equal(t, []string{protocol.MimeType}, cfg.Protocol.MimeTypes)
	assert.Equal(t, "generate_ui", cfg.MCP.Tool)
	assert.Equal(t, "/ws", cfg.Publish.WebSocketPath)
	assert.Equal(t, "/events", cfg.Publish.SSEPath)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigLayers(t *testing.T) {
	home, wd := isolate(t)
	write(t, filepath.Join(home, ".genui", "config.yaml"), `
llm: anthropic
model: claude-sonnet
request_timeout: 30s
max_retries: 0
`)
	write(t, filepath.Join(wd, ".genui", "config.yaml"), `
model: claude-haiku
protocol:
  mime_types: ["application/json+a2ui", "application/*+a2ui"]
`)
	explicit := filepath.Join(t.TempDir(), "genui.yaml")
	write(t, explicit, `
backend: a2a
a2a:
  url: http://localhost:10002
  trust_agent_card_url: false
`)

	cfg, err := LoadConfig(explicit)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLMClient)
	assert.Equal(t, "claude-haiku", cfg.Model)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 0, cfg.Retries())
	assert.Len(t, cfg.Protocol.MimeTypes, 2)
	assert.Equal(t, BackendA2A, cfg.Backend)
	assert.Equal(t, "http://localhost:10002", cfg.A2A.URL)
	assert.False(t, cfg.TrustAgentCardURL())
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown backend", "backend: carrier-pigeon"},
		{"a2a without url", "backend: a2a"},
		{"mcp without command", "backend: mcp"},
		{"bad pattern", "protocol:\n  mime_types: ['application/[json']"},
		{"negative retries", "max_retries: -1"},
		{"not yaml", "backend: [llm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := filepath.Join(t.TempDir(), "genui.yaml")
			write(t, path, tt.yaml)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestMCPNameDefaultsToCommand(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "genui.yaml")
	write(t, path, "backend: mcp\nmcp:\n  command: ui-server\n  args: [--stdio]\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ui-server", cfg.MCP.Name)
	assert.Equal(t, []string{"--stdio"}, cfg.MCP.Args)
}
