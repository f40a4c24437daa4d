package auth

import "errors"

// ErrInvalidToken is returned by TokenCodec.Decode for every failure. Malformed,
// expired and wrongly signed tokens are indistinguishable.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrEmptySubject is returned by TokenCodec.Encode when no subject is given.
var ErrEmptySubject = errors.New("auth: token subject must not be empty")

// ErrEmptySecret is returned when a TokenCodec is built without signing key.
var ErrEmptySecret = errors.New("auth: signing secret must not be empty")

// AuthErrorKind classifies gate failures.
type AuthErrorKind int

const (
	// MissingToken means no bearer credentials were presented.
	MissingToken AuthErrorKind = iota + 1
	// InvalidOrExpiredToken means the presented token did not verify.
	InvalidOrExpiredToken
	// InvalidCredentials means login was refused.
	InvalidCredentials
)

// String returns the user facing message for the kind.
func (k AuthErrorKind) String() string {
	switch k {
	case MissingToken:
		return "Missing token"
	case InvalidOrExpiredToken:
		return "Invalid or expired token"
	case InvalidCredentials:
		return "Invalid credentials"
	default:
		return "Unauthorized"
	}
}

// AuthError is the error type returned by Gate. Its message is safe to show
// to clients.
type AuthError struct {
	Kind AuthErrorKind
}

// Error implements error.
func (e *AuthError) Error() string { return e.Kind.String() }

// Is reports whether target is an AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel gate errors for use with errors.Is.
var (
	ErrMissingToken          = &AuthError{Kind: MissingToken}
	ErrInvalidOrExpiredToken = &AuthError{Kind: InvalidOrExpiredToken}
	ErrInvalidCredentials    = &AuthError{Kind: InvalidCredentials}
)
