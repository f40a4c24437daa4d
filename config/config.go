// Package config loads searchagent settings from an optional TOML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/hupe1980/searchagent/logging"
)

// ErrMissingSecret is returned by Validate when no signing secret is set.
var ErrMissingSecret = errors.New("config: JWT_SECRET must be set")

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // json or text
}

type ModelConfig struct {
	Provider      string   `toml:"provider"` // openai, anthropic or mock
	Name          string   `toml:"name"`
	Temperature   float64  `toml:"temperature"`
	Instructions  string   `toml:"instructions"`
	Timeout       Duration `toml:"timeout"`
	MaxIterations int      `toml:"max_iterations"`
	Stream        bool     `toml:"stream"`
}

type StoreConfig struct {
	Kind       string   `toml:"kind"` // memory, sqlite or redis
	SQLitePath string   `toml:"sqlite_path"`
	RedisURL   string   `toml:"redis_url"`
	RedisTTL   Duration `toml:"redis_ttl"`
}

type SearchConfig struct {
	MaxResults int    `toml:"max_results"`
	BaseURL    string `toml:"base_url"`
}

type MCPServer struct {
	URL     string            `toml:"url"`
	Prefix  string            `toml:"prefix"`
	Headers map[string]string `toml:"headers"`
}

type ToolConfig struct {
	Timeout     Duration    `toml:"timeout"`
	MaxParallel int         `toml:"max_parallel"`
	MCP         []MCPServer `toml:"mcp"`
}

type HTTPConfig struct {
	Addr            string   `toml:"addr"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       float64  `toml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int      `toml:"rate_burst"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// Config is the complete process configuration.
type Config struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
	UsersFile string   `toml:"users_file"`

	OpenAIAPIKey    string `toml:"openai_api_key"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	TavilyAPIKey    string `toml:"tavily_api_key"`

	HTTP   HTTPConfig   `toml:"http"`
	Log    LogConfig    `toml:"log"`
	Model  ModelConfig  `toml:"model"`
	Store  StoreConfig  `toml:"store"`
	Search SearchConfig `toml:"search"`
	Tools  ToolConfig   `toml:"tools"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		TokenTTL:  Duration{8 * time.Hour},
		UsersFile: "users.json",
		HTTP: HTTPConfig{
			Addr:            ":8000",
			CORSOrigins:     []string{"*"},
			RateLimit:       5,
			RateBurst:       20,
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Model: ModelConfig{
			Provider:      "openai",
			Temperature:   0.7,
			Timeout:       Duration{60 * time.Second},
			MaxIterations: 8,
			Stream:        true,
		},
		Store:  StoreConfig{Kind: "memory", SQLitePath: "searchagent.db"},
		Search: SearchConfig{MaxResults: 4},
		Tools:  ToolConfig{Timeout: Duration{30 * time.Second}},
	}
}

// Load reads the TOML file at path (if not empty) and applies environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("JWT_SECRET", &c.JWTSecret)
	str("USERS_FILE", &c.UsersFile)
	str("OPENAI_API_KEY", &c.OpenAIAPIKey)
	str("ANTHROPIC_API_KEY", &c.AnthropicAPIKey)
	str("TAVILY_API_KEY", &c.TavilyAPIKey)

	str("SEARCHAGENT_ADDR", &c.HTTP.Addr)
	str("SEARCHAGENT_LOG_LEVEL", &c.Log.Level)
	str("SEARCHAGENT_LOG_FORMAT", &c.Log.Format)
	str("SEARCHAGENT_MODEL_PROVIDER", &c.Model.Provider)
	str("SEARCHAGENT_MODEL", &c.Model.Name)
	str("SEARCHAGENT_INSTRUCTIONS", &c.Model.Instructions)
	str("SEARCHAGENT_STORE", &c.Store.Kind)
	str("SEARCHAGENT_SQLITE_PATH", &c.Store.SQLitePath)
	str("SEARCHAGENT_REDIS_URL", &c.Store.RedisURL)
	str("SEARCHAGENT_TAVILY_BASE_URL", &c.Search.BaseURL)

	if v, ok := lookup("SEARCHAGENT_CORS_ORIGINS"); ok && v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("SEARCHAGENT_MCP_URLS"); ok && v != "" {
		for _, u := range splitList(v) {
			c.Tools.MCP = append(c.Tools.MCP, MCPServer{URL: u})
		}
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"SEARCHAGENT_TOKEN_TTL", &c.TokenTTL},
		{"SEARCHAGENT_MODEL_TIMEOUT", &c.Model.Timeout},
		{"SEARCHAGENT_TOOL_TIMEOUT", &c.Tools.Timeout},
		{"SEARCHAGENT_REDIS_TTL", &c.Store.RedisTTL},
		{"SEARCHAGENT_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			if err := d.dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("config: %s: %w", d.key, err)
			}
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"SEARCHAGENT_MAX_ITERATIONS", &c.Model.MaxIterations},
		{"SEARCHAGENT_SEARCH_MAX_RESULTS", &c.Search.MaxResults},
		{"SEARCHAGENT_RATE_BURST", &c.HTTP.RateBurst},
	}
	for _, i := range ints {
		if v, ok := lookup(i.key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	if v, ok := lookup("SEARCHAGENT_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: SEARCHAGENT_RATE_LIMIT: %w", err)
		}
		c.HTTP.RateLimit = f
	}
	if v, ok := lookup("SEARCHAGENT_STREAM"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SEARCHAGENT_STREAM: %w", err)
		}
		c.Model.Stream = b
	}

	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewFlagSet defines the command line flags understood by ApplyFlags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to a TOML configuration file")
	fs.String("addr", "", "HTTP listen address")
	fs.String("users-file", "", "credential file (JSON or TOML)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, text)")
	fs.String("provider", "", "model provider (openai, anthropic, mock)")
	fs.String("model", "", "model name")
	fs.String("store", "", "conversation store (memory, sqlite, redis)")
	fs.String("sqlite-path", "", "SQLite database path")
	fs.String("redis-url", "", "Redis URL")
	fs.Int("max-iterations", 0, "maximum tool cycles per turn")
	return fs
}

// ApplyFlags copies every flag that was set explicitly into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"addr":        &c.HTTP.Addr,
		"users-file":  &c.UsersFile,
		"log-level":   &c.Log.Level,
		"log-format":  &c.Log.Format,
		"provider":    &c.Model.Provider,
		"model":       &c.Model.Name,
		"store":       &c.Store.Kind,
		"sqlite-path": &c.Store.SQLitePath,
		"redis-url":   &c.Store.RedisURL,
	}
	for name, dst := range strs {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	if fs.Lookup("max-iterations") != nil && fs.Changed("max-iterations") {
		n, err := fs.GetInt("max-iterations")
		if err != nil {
			return err
		}
		c.Model.MaxIterations = n
	}

	return nil
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return ErrMissingSecret
	}
	if c.TokenTTL.Duration <= 0 {
		return errors.New("config: token_ttl must be positive")
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr must be set")
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return errors.New("config: rate limit must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	switch c.Model.Provider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("config: OPENAI_API_KEY must be set for the openai provider")
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("config: ANTHROPIC_API_KEY must be set for the anthropic provider")
		}
	case "mock":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Timeout.Duration <= 0 {
		return errors.New("config: model.timeout must be positive")
	}
	if c.Model.MaxIterations <= 0 {
		return errors.New("config: model.max_iterations must be positive")
	}

	switch c.Store.Kind {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("config: store.sqlite_path must be set for the sqlite store")
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return errors.New("config: store.redis_url must be set for the redis store")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store.Kind)
	}

	if c.Tools.Timeout.Duration <= 0 {
		return errors.New("config: tools.timeout must be positive")
	}
	if c.Search.MaxResults <= 0 {
		return errors.New("config: search.max_results must be positive")
	}
	for i, s := range c.Tools.MCP {
		if s.URL == "" {
			return fmt.Errorf("config: tools.mcp[%d].url must be set", i)
		}
	}

	return nil
}
