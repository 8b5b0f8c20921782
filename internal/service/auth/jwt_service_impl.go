package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/phrazzld/match-gateway/internal/config"
	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/platform/logger"
)

const signingKeySize = 32

// hkdfTokenService signs HS256 tokens with a key derived per role ID from
// one master secret.
type hkdfTokenService struct {
	secret        []byte
	tokenLifetime time.Duration
	refreshGrace  time.Duration
	timeFunc      func() time.Time
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	Region string      `json:"region"`
	RoleID string      `json:"role_id"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

var _ TokenService = (*hkdfTokenService)(nil)

// NewTokenService creates a TokenService from auth configuration.
func NewTokenService(cfg config.AuthConfig) (TokenService, error) {
	return newTokenService(cfg, time.Now)
}

func newTokenService(cfg config.AuthConfig, now func() time.Time) (*hkdfTokenService, error) {
	if len(cfg.TokenSecret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 characters")
	}
	if cfg.TokenLifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	return &hkdfTokenService{
		secret:        []byte(cfg.TokenSecret),
		tokenLifetime: cfg.TokenLifetime,
		refreshGrace:  cfg.RefreshGrace,
		timeFunc:      now,
	}, nil
}

// keyFor derives the signing key of roleID.
func (s *hkdfTokenService) keyFor(roleID string) ([]byte, error) {
	key := make([]byte, signingKeySize)
	r := hkdf.New(sha256.New, s.secret, nil, []byte("role:"+roleID))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}

// Issue implements TokenService.
func (s *hkdfTokenService) Issue(ctx context.Context, id domain.Identity) (string, time.Time, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()
	expires := now.Add(s.tokenLifetime)

	key, err := s.keyFor(id.RoleID)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := tokenClaims{
		Region: id.Region,
		RoleID: id.RoleID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.RoleID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.New().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		log.Error("failed to sign session token",
			"error", err,
			"role_id", id.RoleID,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expires, nil
}

// Verify implements TokenService.
func (s *hkdfTokenService) Verify(ctx context.Context, token string, roleID string) (*Claims, error) {
	return s.verify(ctx, token, roleID, 0)
}

// VerifyForRefresh implements TokenService.
func (s *hkdfTokenService) VerifyForRefresh(ctx context.Context, token string, roleID string) (*Claims, error) {
	return s.verify(ctx, token, roleID, s.refreshGrace)
}

func (s *hkdfTokenService) verify(ctx context.Context, tokenString, roleID string, grace time.Duration) (*Claims, error) {
	log := logger.FromContext(ctx)
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if roleID == "" {
		return nil, ErrInvalidToken
	}
	key, err := s.keyFor(roleID)
	if err != nil {
		return nil, err
	}

	now := s.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if grace > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(grace))
	}

	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
		parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", "role_id", roleID)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
			log.Debug("token validation failed: token not yet valid", "role_id", roleID)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				"role_id", roleID,
				"error", err,
				"error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.RoleID != roleID {
		log.Debug("token validation failed: claims do not match role", "role_id", roleID)
		return nil, ErrInvalidToken
	}

	return &Claims{
		Region:    claims.Region,
		RoleID:    claims.RoleID,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}
