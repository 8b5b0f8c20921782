package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/match-gateway/internal/domain"
	"github.com/phrazzld/match-gateway/internal/service/auth"
)

func loggedIn(t *testing.T) (*fixture, *AuthResult) {
	t.Helper()
	f := newFixture(t, Options{})
	f.authJP.OK(http.MethodPost, "/login", map[string]string{"role": "teacher", "role_id": "t-1"})
	res, err := f.svc.Login(context.Background(), LoginRequest{CurrentRegion: "jp", Credentials: credentials})
	require.NoError(t, err)
	return f, res
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, res := loggedIn(t)

	claims, err := f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", res.Token)
	require.NoError(t, err)
	assert.Equal(t, "t-1", claims.RoleID)

	_, err = f.svc.Authenticate(ctx, domain.RoleCompany, "t-1", res.Token)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "role mismatch")

	_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-2", res.Token)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "token of another role id")

	_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", "garbage")
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
}

func TestAuthenticateRequiresCachedSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, res := loggedIn(t)

	id := domain.Identity{Region: "jp", RoleID: "t-1", Role: domain.RoleTeacher}
	other, _, err := f.tokens.Issue(ctx, id)
	require.NoError(t, err)
	if other != res.Token {
		_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", other)
		assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "a valid token that is not the session's")
	}

	f.store.Err = errors.New("cache down")
	_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", res.Token)
	assert.True(t, domain.IsKind(err, domain.KindServer))
}

func TestLogout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, res := loggedIn(t)

	require.NoError(t, f.svc.Logout(ctx, "t-1", res.Token))

	sess, ok, err := f.cache.Session(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, ok, "an offline snapshot is kept")
	assert.False(t, sess.Online)
	assert.Empty(t, sess.Token)
	assert.Equal(t, "jp", sess.Region)

	_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", res.Token)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))

	err = f.svc.Logout(ctx, "t-1", res.Token)
	assert.True(t, domain.IsKind(err, domain.KindUnauthorized))
}

func TestRefreshRotatesToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, res := loggedIn(t)

	next, err := f.svc.Refresh(ctx, domain.RoleTeacher, "t-1", res.Token)
	require.NoError(t, err)
	require.NotEmpty(t, next.Token)

	sess, ok, err := f.cache.Session(ctx, "t-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, next.Token, sess.Token)

	if next.Token != res.Token {
		_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", res.Token)
		assert.True(t, domain.IsKind(err, domain.KindUnauthorized), "the old token no longer matches")
	}
	_, err = f.svc.Authenticate(ctx, domain.RoleTeacher, "t-1", next.Token)
	assert.NoError(t, err)
}

func TestSessionHidesToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := loggedIn(t)

	sess, err := f.svc.Session(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Token)
	assert.True(t, sess.Online)

	_, err = f.svc.Session(ctx, "nobody")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestTokenErrorMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "token expired", domain.AsError(tokenError(fmt.Errorf("verify: %w", auth.ErrExpiredToken))).Msg)
	assert.True(t, domain.IsKind(tokenError(errors.New("boom")), domain.KindServer))
}
