// Package usertoken issues and verifies the bearer credential carried by
// authenticated requests. The token encodes only the identity id and role;
// the server re-fetches the live identity record on every request to honor
// deactivation even while a token is still otherwise valid.
package usertoken

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"docvault/internal/util"
	"docvault/pkg/domain"
)

const (
	defaultIssuer   = "docvault"
	defaultAudience = "docvault-api"
	defaultTTL      = 8 * time.Hour
	defaultLeeway   = 30 * time.Second
)

// Claims are the validated contents of a bearer credential.
type Claims struct {
	UserID    string
	Role      domain.UserRole
	SessionID string
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Options configure token issuance and validation.
type Options struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Codec signs and verifies HS256 tokens.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
}

// New builds a Codec; the signing secret is required.
func New(opts Options) (*Codec, error) {
	if len(opts.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	c := &Codec{
		secret:   opts.Secret,
		issuer:   strings.TrimSpace(opts.Issuer),
		audience: strings.TrimSpace(opts.Audience),
		ttl:      opts.TTL,
		leeway:   opts.Leeway,
	}
	if c.issuer == "" {
		c.issuer = defaultIssuer
	}
	if c.audience == "" {
		c.audience = defaultAudience
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.leeway <= 0 {
		c.leeway = defaultLeeway
	}
	return c, nil
}

// Issue signs a token for the user. The jti doubles as the session id on
// audit entries.
func (c *Codec) Issue(userID string, role domain.UserRole) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id required")
	}
	now := time.Now().UTC()
	claims := tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        util.NewID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify validates signature, expiry, issuer, and audience, and returns the
// embedded identity claims.
func (c *Codec) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, errors.New("token required")
	}
	parsed := tokenClaims{}
	t, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unsupported signing method %s", t.Method.Alg())
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
	)
	if err != nil || !t.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return Claims{}, err
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, errors.New("token subject missing")
	}
	switch domain.UserRole(parsed.Role) {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleUser:
	default:
		return Claims{}, fmt.Errorf("unknown role %q", parsed.Role)
	}
	return Claims{
		UserID:    parsed.Subject,
		Role:      domain.UserRole(parsed.Role),
		SessionID: parsed.ID,
	}, nil
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
