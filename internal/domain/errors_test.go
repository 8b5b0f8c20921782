package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		kind Kind
		code string
	}{
		{"client", ClientError("bad"), KindClient, CodeClient},
		{"unauthorized", UnauthorizedError("no"), KindUnauthorized, CodeUnauthorized},
		{"forbidden", ForbiddenError("no"), KindForbidden, CodeForbidden},
		{"not found", NotFoundError("gone"), KindNotFound, CodeNotFound},
		{"duplicate", DuplicateError("again"), KindDuplicate, CodeDuplicate},
		{"server", ServerError("boom", errors.New("cause")), KindServer, CodeServer},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := fmt.Errorf("read session: %w", ServerError("cache unavailable", cause))

	assert.True(t, IsKind(err, KindServer))
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, &Error{Kind: KindServer})
	assert.NotErrorIs(t, err, &Error{Kind: KindClient})

	converted := AsError(errors.New("plain"))
	require.NotNil(t, converted)
	assert.Equal(t, KindServer, converted.Kind)
	assert.Nil(t, AsError(nil))
}

func TestWithDataCopies(t *testing.T) {
	t.Parallel()

	base := ClientError("invalid region")
	withRegion := base.WithData("region", "xx")

	assert.Nil(t, base.Data)
	assert.Equal(t, "xx", withRegion.Data["region"])
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	role, err := ParseRole("Company")
	require.NoError(t, err)
	assert.Equal(t, RoleCompany, role)
	assert.Equal(t, TargetResume, role.Target())

	role, err = ParseRole("teacher")
	require.NoError(t, err)
	assert.Equal(t, TargetJob, role.Target())
	assert.Equal(t, "job_id", role.Target().IDField())

	_, err = ParseRole("admin")
	assert.True(t, IsKind(err, KindClient))
}

func TestSessionOffline(t *testing.T) {
	t.Parallel()

	s := Session{
		Role: RoleTeacher, RoleID: "t-1", Region: "jp", CurrentRegion: "us",
		Token: "tok", Online: true, SocketID: "sock",
	}
	off := s.Offline()

	assert.Equal(t, "t-1", off.RoleID)
	assert.Equal(t, "jp", off.Region)
	assert.Equal(t, "us", off.CurrentRegion)
	assert.Empty(t, off.Token)
	assert.False(t, off.Online)
}

func TestParseRelation(t *testing.T) {
	t.Parallel()

	r, err := ParseRelation("Follow")
	require.NoError(t, err)
	assert.Equal(t, RelationFollow, r)
	assert.Equal(t, "followed", r.Flag())

	r, err = ParseRelation("contact")
	require.NoError(t, err)
	assert.Equal(t, "contacted", r.Flag())

	_, err = ParseRelation("block")
	require.Error(t, err)
	assert.Equal(t, KindClient, KindOf(err))
	assert.Equal(t, "block", AsError(err).Data["relation"])
}

func TestRoleTargets(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TargetResume, RoleCompany.Target())
	assert.Equal(t, TargetJob, RoleTeacher.Target())
	assert.Equal(t, "job_id", RoleTeacher.Target().IDField())
}
