package auth

import (
	"context"
	"time"

	"github.com/phrazzld/match-gateway/internal/domain"
)

// TokenService mints and validates session tokens. Each role ID has its own
// signing key, so a token only verifies against the identity it was issued
// for.
type TokenService interface {
	// Issue mints a token bound to id and returns it with its expiry.
	Issue(ctx context.Context, id domain.Identity) (string, time.Time, error)

	// Verify validates token for roleID with no expiry grace.
	Verify(ctx context.Context, token string, roleID string) (*Claims, error)

	// VerifyForRefresh is Verify that also accepts tokens expired by no
	// more than the configured refresh grace.
	VerifyForRefresh(ctx context.Context, token string, roleID string) (*Claims, error)
}

// Claims is the validated content of a token.
type Claims struct {
	Region    string
	RoleID    string
	Role      domain.Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Identity returns the identity the token is bound to.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity{Region: c.Region, RoleID: c.RoleID, Role: c.Role}
}
