// Package token issues and verifies the gateway's signed access and refresh
// tokens. Verification is stateless; rotation re-reads the user directory so
// role changes land at the next refresh.
package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "cleargate"
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour

	typeAccess  = "access"
	typeRefresh = "refresh"
)

// ErrInvalidToken indicates the token failed validation. Callers must treat
// it uniformly as "unauthenticated" regardless of the underlying cause.
var ErrInvalidToken = errors.New("token: invalid token")

// Identity carries the claims bound into a token at issuance. It is never
// mutated afterwards; a role change takes effect at the next refresh.
type Identity struct {
	UserID    string   `json:"uid"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	CompanyID string   `json:"company_id"`
	Domain    string   `json:"domain"`
	Role      string   `json:"role"`
	Products  []string `json:"products,omitempty"`
}

// HasProduct reports whether the identity is entitled to a product.
func (id Identity) HasProduct(product string) bool {
	for _, p := range id.Products {
		if p == product {
			return true
		}
	}
	return false
}

// IsSuperadmin reports whether the identity overrides every gate.
func (id Identity) IsSuperadmin() bool {
	return id.Role == "superadmin"
}

// IsEngineAdmin reports whether the identity passes admin-gated routes:
// either the engine domain or the superadmin role is sufficient.
func (id Identity) IsEngineAdmin() bool {
	return id.Domain == "engine" || id.IsSuperadmin()
}

// Claims is the wire shape of a signed token.
type Claims struct {
	Identity
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair holds a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service signs and verifies tokens with a single shared HS256 secret. The
// secret is the sole root of trust and never leaves the gateway process.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if iss := strings.TrimSpace(issuer); iss != "" {
			s.issuer = iss
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the token service around a signing secret.
func NewService(secret string, opts ...Option) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: signing secret is required")
	}
	s := &Service{
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a fresh token pair for the identity. The access token carries
// the full identity; the refresh token carries only the subject.
func (s *Service) Issue(identity Identity) (Pair, error) {
	if strings.TrimSpace(identity.UserID) == "" {
		return Pair{}, errors.New("token: identity user id is required")
	}
	now := s.now().UTC()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	access, err := s.sign(Claims{
		Identity:  identity,
		TokenType: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.sign(Claims{
		Identity:  Identity{UserID: identity.UserID},
		TokenType: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Verify checks signature, expiry and the access type discriminator. Any
// failure surfaces as ErrInvalidToken so callers cannot distinguish causes.
func (s *Service) Verify(raw string) (*Identity, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != typeAccess {
		return nil, ErrInvalidToken
	}
	identity := claims.Identity
	return &identity, nil
}

// VerifyRefresh checks a refresh token and returns the subject user id.
func (s *Service) VerifyRefresh(raw string) (string, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.TokenType != typeRefresh {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// IdentityLookup re-fetches the current identity for a user, typically from
// the user directory. It runs once per refresh, never on plain verification.
type IdentityLookup func(ctx context.Context, userID string) (Identity, error)

// RefreshIfNeeded authenticates a request from its cookie pair. A valid
// access token wins outright and no new pair is minted. Otherwise a valid
// refresh token re-fetches the identity and rotates both tokens, bounding
// the replay window of a stolen refresh token.
func (s *Service) RefreshIfNeeded(ctx context.Context, access, refresh string, lookup IdentityLookup) (*Identity, *Pair, error) {
	if identity, err := s.Verify(access); err == nil {
		return identity, nil, nil
	}
	userID, err := s.VerifyRefresh(refresh)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	identity, err := lookup(ctx, userID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	pair, err := s.Issue(identity)
	if err != nil {
		return nil, nil, err
	}
	return &identity, &pair, nil
}

func (s *Service) sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

func (s *Service) parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
