// Package auth turns a bearer token into a trusted identity.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingCredentials = errors.New("no authentication token provided")

// Claims is the token payload issued by the account service.
type Claims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify validates token and returns the identity it names. Every failure
// wraps domain.ErrNotAuthenticated.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, ErrMissingCredentials)
	}
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrNotAuthenticated, err)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrNotAuthenticated)
	}
	return domain.Identity{
		UserID:   domain.UserID(claims.Subject),
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}

// Issue signs a token for user valid for ttl. Used by tests and local tooling;
// production tokens come from the account service.
func (v *Verifier) Issue(user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// TokenFromRequest reads the token from an "Authorization: Bearer" header, or
// failing that from the "token" query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		typ, token, ok := strings.Cut(h, " ")
		if ok && typ == "Bearer" && token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
