// Package auth issues and verifies credentials for the StockTester API.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/stocktester/internal/config"
	"github.com/yourusername/stocktester/internal/models"
)

// Auth errors
var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidAPIKey      = errors.New("invalid API key")
)

// APIKeyHeader carries service API keys
const APIKeyHeader = "X-API-Key"

// HashPassword returns the bcrypt hash of password
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with a stored hash
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return models.ErrInvalidCredentials
	}
	return nil
}

// Claims are the JWT claims issued at login
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Principal identifies the caller of a request. API key callers have no user.
type Principal struct {
	UserID   *uuid.UUID
	Username string
	APIKey   bool
}

type principalKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Authenticator issues tokens and authenticates requests
type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	apiKeys []string
	now     func() time.Time
}

// NewAuthenticator creates an authenticator from the auth config section
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL(),
		apiKeys: append([]string(nil), cfg.APIKeys...),
		now:     time.Now,
	}
}

// IssueToken signs an HS256 token for user
func (a *Authenticator) IssueToken(user *models.User) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expires, nil
}

// ParseToken verifies a token and returns its claims
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: bad user id", ErrInvalidToken)
	}
	return claims, nil
}

// ValidAPIKey reports whether key is configured
func (a *Authenticator) ValidAPIKey(key string) bool {
	if key == "" {
		return false
	}
	for _, k := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

// Authenticate resolves the caller of r from a bearer token or an API key
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return nil, ErrInvalidToken
		}
		claims, err := a.ParseToken(strings.TrimSpace(token))
		if err != nil {
			return nil, err
		}
		id := uuid.MustParse(claims.UserID)
		return &Principal{UserID: &id, Username: claims.Username}, nil
	}

	if key := r.Header.Get(APIKeyHeader); key != "" {
		if !a.ValidAPIKey(key) {
			return nil, ErrInvalidAPIKey
		}
		return &Principal{APIKey: true}, nil
	}

	return nil, ErrMissingCredentials
}
