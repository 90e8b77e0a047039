package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// tokenKind distinguishes an access token from a refresh token so one
// cannot be swapped for the other. The run-control surface only has one
// operator identity, so this is the only thing worth smuggling in a
// compromised token: a stolen long-lived refresh token used directly
// against a protected endpoint, or a short-lived access token replayed
// against the refresh endpoint to mint a fresh pair past its real expiry.
type tokenKind string

const (
	kindAccess  tokenKind = "access"
	kindRefresh tokenKind = "refresh"
)

// OperatorScopes are the capabilities granted to the single configured
// operator identity. There is no per-user scope assignment: every
// successful login is the same operator, so the scope set is fixed.
var OperatorScopes = []string{"runs:trigger", "runs:read", "audit:read"}

// JWTService issues and validates the bearer tokens that guard AWFES's
// run-trigger and run-history API surface.
type JWTService struct {
	secretKey       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	logger          zerolog.Logger
}

// Claims identifies the operator a token was issued to and what it is
// scoped to do. AWFES protects one run-control surface for one operator,
// not a multi-tenant user base, so there is no user ID or email here —
// only the username, its granted scopes, and the token's kind.
type Claims struct {
	Username string    `json:"username"`
	Scopes   []string  `json:"scopes"`
	Kind     tokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenPair is an issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// NewJWTService returns a JWTService signing with secretKey. accessTTL
// comes from the operator's configured AuthConfig.AccessTokenTTL rather
// than a hardcoded constant; the refresh window is fixed at seven days,
// long enough to survive a weekend without forcing a re-login for a tool
// an operator may only run a few times a week.
func NewJWTService(secretKey string, accessTTL time.Duration, logger zerolog.Logger) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &JWTService{
		secretKey:       []byte(secretKey),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: 7 * 24 * time.Hour,
		logger:          logger,
	}
}

// GenerateTokenPair issues an access/refresh pair for username, scoped to
// scopes.
func (s *JWTService) GenerateTokenPair(ctx context.Context, username string, scopes []string) (*TokenPair, error) {
	accessToken, err := s.generateToken(username, scopes, kindAccess, s.accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.generateToken(username, scopes, kindRefresh, s.refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenTTL.Seconds()),
	}, nil
}

func (s *JWTService) generateToken(username string, scopes []string, kind tokenKind, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Scopes:   scopes,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "awfes",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and verifies tokenString, returning its claims
// regardless of whether they belong to an access or refresh token. Callers
// that need to enforce a specific kind should use ValidateAccessToken.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateAccessToken validates tokenString and rejects it unless it was
// issued as an access token, so a leaked refresh token cannot be replayed
// directly against a protected endpoint.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kindAccess {
		return nil, fmt.Errorf("token is not an access token")
	}
	return claims, nil
}

// RefreshAccessToken validates refreshToken, rejects it unless it was
// issued as a refresh token, and issues a fresh token pair for the same
// operator identity and scopes.
func (s *JWTService) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}
	if claims.Kind != kindRefresh {
		return nil, fmt.Errorf("token is not a refresh token")
	}

	return s.GenerateTokenPair(ctx, claims.Username, claims.Scopes)
}
