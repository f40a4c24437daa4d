package auth

import (
	"strings"

	"github.com/hupe1980/searchagent/logging"
)

const bearerPrefix = "Bearer "

// CredentialVerifier checks an identity/secret pair.
type CredentialVerifier interface {
	Verify(identity, secret string) (bool, error)
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// GateOptions configures a Gate.
type GateOptions struct {
	Logger logging.Logger
}

// Gate issues tokens for valid credentials and authenticates bearer headers.
type Gate struct {
	codec       *TokenCodec
	credentials CredentialVerifier
	logger      logging.Logger
}

// NewGate creates a gate.
func NewGate(codec *TokenCodec, credentials CredentialVerifier, optFns ...func(o *GateOptions)) *Gate {
	opts := GateOptions{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Gate{
		codec:       codec,
		credentials: credentials,
		logger:      logging.OrNoOp(opts.Logger),
	}
}

// Login verifies the pair and issues a bearer token for the identity as
// submitted. Lookup ignores case, so the token keeps the caller's casing.
func (g *Gate) Login(identity, secret string) (Token, error) {
	ok, err := g.credentials.Verify(identity, secret)
	if err != nil {
		g.logger.Error("auth.login.error", "error", err)
		return Token{}, ErrInvalidCredentials
	}
	if !ok {
		g.logger.Info("auth.login.rejected")
		return Token{}, ErrInvalidCredentials
	}

	access, err := g.codec.Issue(identity)
	if err != nil {
		g.logger.Error("auth.login.issue_failed", "error", err)
		return Token{}, ErrInvalidCredentials
	}

	return Token{AccessToken: access, TokenType: "bearer"}, nil
}

// Authenticate validates an Authorization header value of the form
// "Bearer <token>" and returns the caller's identity. It has no side effects.
func (g *Gate) Authenticate(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingToken
	}

	identity, err := g.codec.Decode(header[len(bearerPrefix):])
	if err != nil {
		return "", ErrInvalidOrExpiredToken
	}
	return identity, nil
}
