package account

import (
	"context"
	"errors"

	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/auth"
)

// Authenticate validates token for the addressed resource: the token must
// verify under roleID's key, name the same role, and be the token of the
// cached online session.
func (s *Service) Authenticate(ctx context.Context, role domain.Role, roleID, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(ctx, token, roleID)
	if err != nil {
		return nil, tokenError(err)
	}
	if claims.Role != role {
		return nil, domain.UnauthorizedError("token does not match resource")
	}
	if _, err := s.activeSession(ctx, roleID, token); err != nil {
		return nil, err
	}
	return claims, nil
}

// activeSession returns the cached session of roleID if token is its token.
func (s *Service) activeSession(ctx context.Context, roleID, token string) (domain.Session, error) {
	sess, ok, err := s.cache.Session(ctx, roleID)
	if err != nil {
		return domain.Session{}, domain.ServerError("failed to read session", err)
	}
	if !ok || sess.Token == "" || sess.Token != token {
		return domain.Session{}, domain.UnauthorizedError("session not found")
	}
	return sess, nil
}

// Logout replaces the session with its offline snapshot.
func (s *Service) Logout(ctx context.Context, roleID, token string) error {
	sess, err := s.activeSession(ctx, roleID, token)
	if err != nil {
		return err
	}
	if err := s.cache.MarkOffline(ctx, sess); err != nil {
		return domain.ServerError("failed to cache offline session", err)
	}
	return nil
}

// Refresh exchanges a token, expired by no more than the refresh grace, for
// a new one. The old token stops matching the session immediately.
func (s *Service) Refresh(ctx context.Context, role domain.Role, roleID, token string) (*AuthResult, error) {
	claims, err := s.tokens.VerifyForRefresh(ctx, token, roleID)
	if err != nil {
		return nil, tokenError(err)
	}
	if claims.Role != role {
		return nil, domain.UnauthorizedError("token does not match resource")
	}
	sess, err := s.activeSession(ctx, roleID, token)
	if err != nil {
		return nil, err
	}

	next, _, err := s.tokens.Issue(ctx, claims.Identity())
	if err != nil {
		return nil, domain.ServerError("failed to issue token", err)
	}
	sess.Token = next
	if err := s.cache.PutSession(ctx, sess); err != nil {
		return nil, domain.ServerError("failed to cache session", err)
	}
	return &AuthResult{Token: next, Session: sess}, nil
}

// Session returns the cached session of roleID without its token.
func (s *Service) Session(ctx context.Context, roleID string) (domain.Session, error) {
	sess, ok, err := s.cache.Session(ctx, roleID)
	if err != nil {
		return domain.Session{}, domain.ServerError("failed to read session", err)
	}
	if !ok {
		return domain.Session{}, domain.NotFoundError("session not found")
	}
	sess.Token = ""
	return sess, nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return domain.UnauthorizedError("token expired")
	case errors.Is(err, auth.ErrMissingToken):
		return domain.UnauthorizedError("token missing")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
		return domain.UnauthorizedError("invalid token")
	default:
		return domain.ServerError("token validation failed", err)
	}
}
