// Package auth issues and verifies the bearer tokens that guard the API:
// short-lived access tokens and revocable refresh tokens, both HMAC-signed
// JWTs carrying the principal id and principal kind.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal kinds carried in the token.
const (
	KindStaff = "staff"
	KindAdmin = "admin"
)

// Token uses, to keep access and refresh tokens from being swapped.
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims is the JWT claim set for both token uses.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalKind string `json:"kind"`
	Role          string `json:"role,omitempty"`
	Use           string `json:"use"`
}

// TokenPair is the result of a successful authentication.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenService mints and verifies token pairs.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	revoked    *RevocationStore
	now        func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration, revoked *RevocationStore) *TokenService {
	if accessTTL <= 0 || accessTTL > time.Hour {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		revoked:    revoked,
		now:        time.Now,
	}
}

// SetClock overrides the time source; used by tests.
func (s *TokenService) SetClock(now func() time.Time) { s.now = now }

// Mint issues an access/refresh pair for a principal.
func (s *TokenService) Mint(principalID, kind, role string) (TokenPair, error) {
	access, err := s.sign(principalID, kind, role, useAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(principalID, kind, role, useRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *TokenService) sign(principalID, kind, role, use string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		PrincipalKind: kind,
		Role:          role,
		Use:           use,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess parses and validates an access token.
func (s *TokenService) VerifyAccess(tokenStr string) (*Claims, error) {
	return s.verify(tokenStr, useAccess)
}

// VerifyRefresh parses and validates a refresh token, rejecting revoked ones.
func (s *TokenService) VerifyRefresh(tokenStr string) (*Claims, error) {
	claims, err := s.verify(tokenStr, useRefresh)
	if err != nil {
		return nil, err
	}
	if s.revoked != nil && s.revoked.IsRevoked(claims.ID) {
		return nil, fmt.Errorf("token revoked")
	}
	return claims, nil
}

func (s *TokenService) verify(tokenStr, use string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Use != use {
		return nil, fmt.Errorf("wrong token use %q", claims.Use)
	}
	return claims, nil
}

// RevokeRefresh best-effort revokes a refresh token. A malformed token is
// reported but never fatal; the token's own expiry bounds the damage.
func (s *TokenService) RevokeRefresh(tokenStr string) error {
	if s.revoked == nil {
		return nil
	}
	claims, err := s.verify(tokenStr, useRefresh)
	if err != nil {
		return err
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	} else {
		expires = s.now().Add(s.refreshTTL)
	}
	s.revoked.Revoke(claims.ID, expires)
	return nil
}
