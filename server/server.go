// Package server exposes the searchagent Service over HTTP.
//
// Routes:
//
//	POST /auth/login                 {email, password} -> {access_token, token_type}
//	GET  /auth/me                    bearer -> {email}
//	GET  /chat_stream/{message}      bearer, ?checkpoint_id= -> text/event-stream
//	GET  /healthz
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hupe1980/searchagent"
	"github.com/hupe1980/searchagent/logging"
)

// DefaultKeepAlive is the interval of comment frames on idle event streams.
const DefaultKeepAlive = 15 * time.Second

// Options configures the HTTP layer.
type Options struct {
	// CORSOrigins lists allowed origins. "*" allows any origin.
	CORSOrigins []string
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64
	RateBurst int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// KeepAlive is the idle interval after which a keepalive comment is sent
	// on event streams. Zero disables keepalives.
	KeepAlive time.Duration
	Logger    logging.Logger
}

// Server serves the searchagent API.
type Server struct {
	svc     *searchagent.Service
	opts    Options
	logger  logging.Logger
	limiter *RateLimiter
	handler http.Handler
}

// New creates a server for svc.
func New(svc *searchagent.Service, optFns ...func(o *Options)) *Server {
	opts := Options{
		CORSOrigins: []string{"*"},
		KeepAlive:   DefaultKeepAlive,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{svc: svc, opts: opts, logger: logging.OrNoOp(opts.Logger)}
	if opts.RateLimit > 0 {
		s.limiter = NewRateLimiter(opts.RateLimit, opts.RateBurst)
	}
	s.handler = s.routes()

	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if s.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogging(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsPolicy(s.opts.CORSOrigins))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", s.handleHealthz)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.With(s.requireAuth).Get("/me", s.handleMe)
	})

	r.With(s.requireAuth).Get("/chat_stream/{message}", s.handleChatStream)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout. Open event streams are cancelled when
// shutdown begins.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listen", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server.shutdown")
	cancelBase()
	if s.limiter != nil {
		s.limiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
