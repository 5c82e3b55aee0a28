// Package auth resolves bearer credentials into the acting user. Token
// issuance (login, registration) belongs to the identity service; this
// package only verifies and decodes what that service issued.
package auth

import (
	"context"

	"github.com/go-faster/errors"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a credential is missing, malformed,
// expired, or fails signature verification.
var ErrUnauthenticated = errors.New("unauthenticated")

// Actor is the resolved identity of the caller.
type Actor struct {
	UserID   string
	Role     string
	BranchID string
	StoreID  string
}

// Resolver turns a bearer credential into an Actor.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*Actor, error)
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
	StoreID  string `json:"store_id"`
}

// TokenResolver verifies HMAC-signed JWTs issued by the identity service.
type TokenResolver struct {
	secret []byte
}

var _ Resolver = (*TokenResolver)(nil)

// NewTokenResolver creates a TokenResolver with the shared signing secret.
func NewTokenResolver(secret string) *TokenResolver {
	return &TokenResolver{secret: []byte(secret)}
}

// Resolve parses and verifies the token, returning the embedded actor.
// All failures collapse into ErrUnauthenticated; callers get no oracle on
// why a credential was rejected.
func (r *TokenResolver) Resolve(_ context.Context, credential string) (*Actor, error) {
	var claims posClaims
	token, err := jwtlib.ParseWithClaims(credential, &claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthenticated
	}
	if claims.Subject == "" {
		return nil, ErrUnauthenticated
	}

	return &Actor{
		UserID:   claims.Subject,
		Role:     claims.Role,
		BranchID: claims.BranchID,
		StoreID:  claims.StoreID,
	}, nil
}
