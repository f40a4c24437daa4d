// Command searchagent serves the authenticated web-search chat API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/pflag"

	"github.com/hupe1980/searchagent"
	"github.com/hupe1980/searchagent/auth"
	"github.com/hupe1980/searchagent/config"
	"github.com/hupe1980/searchagent/conversation"
	"github.com/hupe1980/searchagent/conversation/redis"
	"github.com/hupe1980/searchagent/conversation/sqlite"
	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/engine"
	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/model"
	anthropicmodel "github.com/hupe1980/searchagent/model/anthropic"
	"github.com/hupe1980/searchagent/model/openai"
	"github.com/hupe1980/searchagent/server"
	"github.com/hupe1980/searchagent/tool"
	"github.com/hupe1980/searchagent/tool/mcp"
	"github.com/hupe1980/searchagent/tool/tavily"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "searchagent: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := config.NewFlagSet("searchagent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path, _ := fs.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, stdout)
	if err != nil {
		return err
	}

	creds := auth.NewCredentialStore(cfg.UsersFile, func(o *auth.CredentialStoreOptions) {
		o.Logger = logger.WithComponent("auth")
	})
	if err := creds.Load(); err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	codec, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), func(o *auth.TokenCodecOptions) {
		o.TTL = cfg.TokenTTL.Duration
	})
	if err != nil {
		return err
	}
	gate := auth.NewGate(codec, creds, func(o *auth.GateOptions) {
		o.Logger = logger.WithComponent("auth")
	})

	store, closeStore, err := newStore(cfg.Store, logger.WithComponent("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := newModel(cfg)
	if err != nil {
		return err
	}

	registry, closeTools, err := newRegistry(ctx, cfg, logger.WithComponent("tool"))
	if err != nil {
		return err
	}
	defer closeTools()

	executor := tool.NewExecutor(registry, func(o *tool.ExecutorOptions) {
		o.Timeout = cfg.Tools.Timeout.Duration
		o.MaxParallel = cfg.Tools.MaxParallel
		o.Logger = logger.WithComponent("tool")
	})

	engineLogger := logger.WithComponent("engine")
	callbacks := engine.NewCallbackManager()
	callbacks.RegisterCallback(engine.NewLoggingCallback(engine.CallbackOnError, engineLogger))

	eng, err := engine.New(m, store, executor, func(o *engine.Options) {
		o.Instructions = cfg.Model.Instructions
		o.MaxIterations = cfg.Model.MaxIterations
		o.ModelTimeout = cfg.Model.Timeout.Duration
		o.Stream = cfg.Model.Stream
		o.Callbacks = callbacks
		o.Logger = engineLogger
	})
	if err != nil {
		return err
	}

	svc, err := searchagent.New(gate, eng, func(o *searchagent.Options) {
		o.Logger = logger.WithComponent("service")
	})
	if err != nil {
		return err
	}

	go reloadCredentialsOnHangup(ctx, creds, logger)

	srv := server.New(svc, func(o *server.Options) {
		o.CORSOrigins = cfg.HTTP.CORSOrigins
		o.RateLimit = cfg.HTTP.RateLimit
		o.RateBurst = cfg.HTTP.RateBurst
		o.Logger = logger.WithComponent("http")
	})

	info := m.Info()
	logger.Info("server.starting",
		"addr", cfg.HTTP.Addr,
		"version", version,
		"provider", info.Provider,
		"model", info.Name,
		"store", cfg.Store.Kind,
		"tools", registry.Names(),
	)

	if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout.Duration); err != nil {
		return err
	}

	logger.Info("server.stopped")
	return nil
}

func newLogger(cfg config.LogConfig, out io.Writer) (*logging.StructuredLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Output:    out,
		Component: "searchagent",
	}), nil
}

func newStore(cfg config.StoreConfig, logger logging.Logger) (core.ConversationStore, func(), error) {
	switch cfg.Kind {
	case "", "memory":
		return conversation.NewInMemoryStore(), func() {}, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlite.New(db, func(o *sqlite.Options) { o.Logger = logger })
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	case "redis":
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		store := redis.New(client, func(o *redis.Options) {
			o.TTL = cfg.RedisTTL.Duration
			o.Logger = logger
		})
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}

func newModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Model.Provider {
	case "", "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.OpenAIAPIKey
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Model.Name != "" {
				o.Model = anthropic.Model(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.AnthropicAPIKey
		}), nil
	case "mock":
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

// newRegistry registers the web search tool and every configured MCP server.
// The returned func closes the MCP sessions.
func newRegistry(ctx context.Context, cfg *config.Config, logger logging.Logger) (*tool.Registry, func(), error) {
	registry := tool.NewRegistry()
	var sources []*mcp.Source
	closeAll := func() {
		for _, s := range sources {
			_ = s.Close()
		}
	}

	if cfg.TavilyAPIKey != "" {
		search, err := tavily.New(cfg.TavilyAPIKey, func(o *tavily.Options) {
			o.MaxResults = cfg.Search.MaxResults
			if cfg.Search.BaseURL != "" {
				o.BaseURL = cfg.Search.BaseURL
			}
		})
		if err != nil {
			return nil, nil, err
		}
		if err := registry.Register(search); err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("tool.search.disabled", "reason", "no tavily api key")
	}

	for _, srv := range cfg.Tools.MCP {
		src, err := mcp.Connect(ctx, srv.URL, func(o *mcp.Options) {
			o.Headers = srv.Headers
			o.Prefix = srv.Prefix
			o.ClientName = "searchagent"
			o.ClientVersion = version
			o.Logger = logger
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect mcp %s: %w", srv.URL, err)
		}
		sources = append(sources, src)
		for _, t := range src.Tools() {
			if err := registry.Register(t); err != nil {
				closeAll()
				return nil, nil, err
			}
		}
	}

	return registry, closeAll, nil
}

func reloadCredentialsOnHangup(ctx context.Context, creds *auth.CredentialStore, logger logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := creds.Reload(); err != nil {
				logger.Error("auth.credentials.reload_failed", "error", err)
				continue
			}
			logger.Info("auth.credentials.reloaded")
		}
	}
}
