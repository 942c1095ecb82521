// Package identity verifies the access tokens issued by the identity service.
package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/apperr"
	"github.com/mohamed-arshad-ch/chato-strapi-api/internal/crypto"
)

// Claims is the verified caller identity.
type Claims struct {
	UserID   int64
	Username string
	Email    string
}

// Verifier checks a bearer token and returns the caller it names.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// tokenClaims accepts both the numeric "id" claim of Strapi-issued
// tokens and a standard "sub" claim.
type tokenClaims struct {
	ID       json.Number `json:"id,omitempty"`
	Username string      `json:"username,omitempty"`
	Email    string      `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 or EdDSA signed JWTs.
type JWTVerifier struct {
	key    any
	parser *jwt.Parser
}

// NewHMACVerifier verifies tokens signed with a shared secret.
func NewHMACVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{
		key:    secret,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second)),
	}
}

// NewEd25519Verifier verifies tokens signed with the private half of pub.
func NewEd25519Verifier(pub ed25519.PublicKey) *JWTVerifier {
	return &JWTVerifier{
		key:    pub,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithLeeway(30*time.Second)),
	}
}

// NewVerifier picks the EdDSA verifier when a public key is configured and
// falls back to the shared secret otherwise.
func NewVerifier(secret, publicKeyB64 string) (*JWTVerifier, error) {
	if publicKeyB64 != "" {
		pub, err := crypto.ValidatePublicKey(publicKeyB64)
		if err != nil {
			return nil, err
		}
		return NewEd25519Verifier(pub), nil
	}
	if secret == "" {
		return nil, errors.New("identity: JWT_SECRET or JWT_PUBLIC_KEY is required")
	}
	return NewHMACVerifier([]byte(secret)), nil
}

// Verify validates signature and time claims and extracts the user id.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, apperr.Auth("missing token")
	}

	tc := &tokenClaims{}
	if _, err := v.parser.ParseWithClaims(token, tc, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Auth("token expired")
		}
		return nil, apperr.Auth("invalid token")
	}

	id, err := tc.userID()
	if err != nil {
		return nil, err
	}

	return &Claims{UserID: id, Username: tc.Username, Email: tc.Email}, nil
}

func (tc *tokenClaims) userID() (int64, error) {
	raw := tc.ID.String()
	if raw == "" {
		raw = tc.Subject
	}
	if raw == "" {
		return 0, apperr.Auth("token has no subject")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Auth("token subject is not a user id")
	}
	return id, nil
}

// Signer mints tokens in the shape Verify expects. The server never issues
// tokens itself; cmd/token and the tests use it.
type Signer struct {
	method jwt.SigningMethod
	key    any
	ttl    time.Duration
}

// NewHMACSigner signs HS256 tokens.
func NewHMACSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{method: jwt.SigningMethodHS256, key: secret, ttl: ttl}
}

// NewEd25519Signer signs EdDSA tokens.
func NewEd25519Signer(priv ed25519.PrivateKey, ttl time.Duration) *Signer {
	return &Signer{method: jwt.SigningMethodEdDSA, key: priv, ttl: ttl}
}

// Sign returns a compact JWT for c.
func (s *Signer) Sign(c Claims) (string, error) {
	now := time.Now()
	tc := tokenClaims{
		ID:       json.Number(strconv.FormatInt(c.UserID, 10)),
		Username: c.Username,
		Email:    c.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(c.UserID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl != 0 {
		tc.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(s.method, tc).SignedString(s.key)
}
