package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens issued by Issue.
const DefaultTokenTTL = 8 * time.Hour

// tokenClaims is the token payload. Field order gives the wire layout
// {"sub":...,"iat":...,"exp":...}.
type tokenClaims struct {
	Subject   string           `json:"sub"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

func (c tokenClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c tokenClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c tokenClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c tokenClaims) GetIssuer() (string, error)                   { return "", nil }
func (c tokenClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c tokenClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }

// TokenCodecOptions configures a TokenCodec.
type TokenCodecOptions struct {
	// TTL is used by Issue. Defaults to DefaultTokenTTL.
	TTL time.Duration
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// TokenCodec encodes and decodes HMAC-SHA256 signed compact tokens. It is
// stateless apart from the secret and safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec creates a codec signing with secret.
func NewTokenCodec(secret []byte, optFns ...func(o *TokenCodecOptions)) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	opts := TokenCodecOptions{
		TTL: DefaultTokenTTL,
		Now: time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    opts.TTL,
		now:    opts.Now,
	}

	// Expiry is compared at whole-second granularity: a token stays valid
	// while the truncated current time is <= exp. The one second leeway
	// turns the parser's "now < exp" into exactly that.
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
		jwt.WithLeeway(time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)

	return c, nil
}

// TTL returns the lifetime used by Issue.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue encodes subject with the configured TTL.
func (c *TokenCodec) Issue(subject string) (string, error) {
	return c.Encode(subject, c.ttl)
}

// Encode builds a token for subject that expires ttl after now. Subjects must
// be non-empty so that every encoded token decodes.
func (c *TokenCodec) Encode(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}
	if ttl < 0 {
		return "", fmt.Errorf("auth: negative token ttl %s", ttl)
	}

	now := c.now().Truncate(time.Second)
	claims := tokenClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns its subject. Any failure yields
// ErrInvalidToken.
func (c *TokenCodec) Decode(token string) (string, error) {
	var claims tokenClaims
	parsed, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
