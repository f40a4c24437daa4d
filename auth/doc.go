// Package auth implements the bearer-token gate in front of the agent.
//
// TokenCodec issues and verifies compact HS256 tokens, CredentialStore holds
// the identity/secret mapping loaded from a users file, and Gate combines the
// two into the Login and Authenticate operations used by the HTTP layer.
package auth
