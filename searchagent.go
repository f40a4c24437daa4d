// Package searchagent ties the credential gate to the conversational engine.
// Most applications interact with this package by:
//  1. Building an auth.Gate and an engine.Engine
//  2. Creating a Service via New()
//  3. Calling Login / Authenticate on incoming requests and Chat for turns
//
// Transport concerns (routing, SSE framing, CORS) live in the server package.
package searchagent

import (
	"context"
	"errors"

	"github.com/hupe1980/searchagent/auth"
	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/engine"
	"github.com/hupe1980/searchagent/logging"
)

// Options configures the Service.
type Options struct {
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Service is the façade over the gate and the engine.
type Service struct {
	gate   *auth.Gate
	engine *engine.Engine
	logger logging.Logger
}

// New creates a Service. Both gate and engine are required.
func New(gate *auth.Gate, eng *engine.Engine, optFns ...func(o *Options)) (*Service, error) {
	if gate == nil {
		return nil, errors.New("searchagent: gate is required")
	}
	if eng == nil {
		return nil, errors.New("searchagent: engine is required")
	}

	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Service{gate: gate, engine: eng, logger: logging.OrNoOp(opts.Logger)}, nil
}

// Login exchanges an identity/secret pair for a bearer token.
func (s *Service) Login(identity, secret string) (auth.Token, error) {
	return s.gate.Login(identity, secret)
}

// Authenticate resolves an Authorization header value to the caller identity.
func (s *Service) Authenticate(header string) (string, error) {
	return s.gate.Authenticate(header)
}

// Chat starts a turn on behalf of identity. Conversations are not scoped to
// identities: any authenticated caller may address any checkpoint id.
func (s *Service) Chat(ctx context.Context, identity, checkpointID, message string) (string, <-chan core.AgentEvent, error) {
	id, events, err := s.engine.Run(ctx, checkpointID, message)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("chat.turn.accepted", "identity", identity, "conversation_id", id, "resumed", id == checkpointID)

	return id, events, nil
}

// ChatSync runs a turn to completion on behalf of identity.
func (s *Service) ChatSync(ctx context.Context, identity, checkpointID, message string) (*engine.TurnResult, error) {
	s.logger.Info("chat.turn.accepted", "identity", identity, "conversation_id", checkpointID, "sync", true)
	return s.engine.RunSync(ctx, checkpointID, message)
}
