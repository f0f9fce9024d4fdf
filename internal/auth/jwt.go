package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kidlearn/server/internal/apperr"
	"github.com/kidlearn/server/internal/model"
)

const (
	DefaultAccessTokenTTL  = 7 * 24 * time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// JWTClaims represents the token claims; Name is only set on access tokens
type JWTClaims struct {
	UserID    uuid.UUID  `json:"id"`
	Role      model.Role `json:"role"`
	Name      string     `json:"name,omitempty"`
	TokenType string     `json:"typ"`
	jwt.RegisteredClaims
}

// JWTService mints and verifies stateless access and refresh tokens
type JWTService struct {
	secret        []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewJWTService creates a new JWT service. An empty refreshSecret falls back to
// secret; non-positive TTLs use the defaults.
func NewJWTService(secret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTService {
	if refreshSecret == "" {
		refreshSecret = secret
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &JWTService{
		secret:        []byte(secret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// SignAccessToken creates an access token carrying id, role and display name
func (s *JWTService) SignAccessToken(a model.Account) (string, error) {
	return s.sign(&JWTClaims{UserID: a.ID, Role: a.Role, Name: a.Name, TokenType: tokenTypeAccess}, s.secret, s.accessTTL)
}

// SignRefreshToken creates a refresh token carrying id and role
func (s *JWTService) SignRefreshToken(a model.Account) (string, error) {
	return s.sign(&JWTClaims{UserID: a.ID, Role: a.Role, TokenType: tokenTypeRefresh}, s.refreshSecret, s.refreshTTL)
}

func (s *JWTService) sign(claims *JWTClaims, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.TokenType, err)
	}
	return tokenString, nil
}

// VerifyAccessToken checks signature, expiry and token type of an access token
func (s *JWTService) VerifyAccessToken(tokenString string) (*JWTClaims, error) {
	return s.verify(tokenString, s.secret, tokenTypeAccess)
}

// VerifyRefreshToken checks signature, expiry and token type of a refresh token
func (s *JWTService) VerifyRefreshToken(tokenString string) (*JWTClaims, error) {
	return s.verify(tokenString, s.refreshSecret, tokenTypeRefresh)
}

func (s *JWTService) verify(tokenString string, secret []byte, wantType string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperr.New(apperr.KindInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, apperr.New(apperr.KindInvalidToken, "invalid claims")
	}
	if claims.TokenType != wantType {
		return nil, apperr.New(apperr.KindInvalidToken, "wrong token type")
	}
	return claims, nil
}
