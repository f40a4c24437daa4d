package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.JWTSecret = "s3cret"
	cfg.OpenAIAPIKey = "sk-test"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL.Duration)
	assert.Equal(t, "users.json", cfg.UsersFile)
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, 8, cfg.Model.MaxIterations)
	assert.Equal(t, 4, cfg.Search.MaxResults)
	assert.Equal(t, "memory", cfg.Store.Kind)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchagent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt_secret = "from-file"
token_ttl = "1h"

[http]
addr = ":9000"
cors_origins = ["http://localhost:3000"]

[model]
provider = "anthropic"
timeout = "15s"

[store]
kind = "sqlite"
sqlite_path = "/tmp/x.db"

[[tools.mcp]]
url = "http://localhost:7000/mcp"
prefix = "docs_"
`), 0o600))

	cfg, err := load(path, envMap(map[string]string{
		"JWT_SECRET":                "from-env",
		"SEARCHAGENT_MODEL_TIMEOUT": "5s",
		"SEARCHAGENT_RATE_LIMIT":    "2.5",
		"SEARCHAGENT_MCP_URLS":      "http://a/mcp, http://b/mcp",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWTSecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL.Duration)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 5*time.Second, cfg.Model.Timeout.Duration)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.InDelta(t, 2.5, cfg.HTTP.RateLimit, 0.0001)
	require.Len(t, cfg.Tools.MCP, 3)
	assert.Equal(t, "docs_", cfg.Tools.MCP[0].Prefix)
	assert.Equal(t, "http://b/mcp", cfg.Tools.MCP[2].URL)
	// untouched defaults survive
	assert.Equal(t, 8, cfg.Model.MaxIterations)
}

func TestLoad_Errors(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.toml"), envMap(nil))
	require.Error(t, err)

	_, err = load("", envMap(map[string]string{"SEARCHAGENT_TOOL_TIMEOUT": "soon"}))
	require.Error(t, err)

	_, err = load("", envMap(map[string]string{"SEARCHAGENT_MAX_ITERATIONS": "many"}))
	require.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cfg := validConfig()
	fs := NewFlagSet("test")
	require.NoError(t, fs.Parse([]string{"--addr", ":7000", "--store=redis", "--max-iterations", "3"}))
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.Store.Kind)
	assert.Equal(t, 3, cfg.Model.MaxIterations)
	// flags not given keep their configured value
	assert.Equal(t, "openai", cfg.Model.Provider)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"bad ttl", func(c *Config) { c.TokenTTL.Duration = 0 }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "llama" }},
		{"openai without key", func(c *Config) { c.OpenAIAPIKey = "" }},
		{"anthropic without key", func(c *Config) { c.Model.Provider = "anthropic" }},
		{"unknown store", func(c *Config) { c.Store.Kind = "postgres" }},
		{"redis without url", func(c *Config) { c.Store.Kind = "redis" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"zero iterations", func(c *Config) { c.Model.MaxIterations = 0 }},
		{"negative rate", func(c *Config) { c.HTTP.RateLimit = -1 }},
		{"mcp without url", func(c *Config) { c.Tools.MCP = []MCPServer{{Prefix: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	cfg := validConfig()
	cfg.JWTSecret = ""
	require.ErrorIs(t, cfg.Validate(), ErrMissingSecret)

	cfg = validConfig()
	cfg.Model.Provider = "mock"
	cfg.OpenAIAPIKey = ""
	require.NoError(t, cfg.Validate())
}
