package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

type fakeJuries map[uint]string

func (f fakeJuries) GetJury(_ context.Context, gameID uint) (string, error) {
	jury, ok := f[gameID]
	if !ok {
		return "", apperrors.New(apperrors.ErrNotFound, "对局不存在")
	}
	return jury, nil
}

func TestRolePolicyIsJury(t *testing.T) {
	p := NewRolePolicy(fakeJuries{1: "H-jury", 2: ""}, TokenRoles{}, []string{"admin"})
	ctx := context.Background()

	ok, err := p.IsJury(ctx, "H-jury", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.IsJury(ctx, "H-other", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 未指定评委时没有人是评委
	ok, err = p.IsJury(ctx, "", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.IsJury(ctx, "H-jury", 99)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestRolePolicyIsAdmin(t *testing.T) {
	p := NewRolePolicy(fakeJuries{}, TokenRoles{}, []string{" Admin ", "ops"})

	ctx := WithIdentity(context.Background(), "H-ops", "OPS")
	ok, err := p.IsAdmin(ctx, "H-ops")
	require.NoError(t, err)
	assert.True(t, ok)

	// 只认当前请求本人的角色
	ok, err = p.IsAdmin(ctx, "H-someone")
	require.NoError(t, err)
	assert.False(t, ok)

	ctx = WithIdentity(context.Background(), "H-student", "student")
	ok, err = p.IsAdmin(ctx, "H-student")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.IsAdmin(context.Background(), "H-ops")
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthentication))
}

type failingRoles struct{}

func (failingRoles) RoleOf(context.Context, string) (string, error) {
	return "", errors.New("identity service down")
}

func TestRolePolicyWithoutAdminRoles(t *testing.T) {
	p := NewRolePolicy(fakeJuries{}, failingRoles{}, nil)
	ok, err := p.IsAdmin(context.Background(), "H-1")
	require.NoError(t, err)
	assert.False(t, ok)

	p = NewRolePolicy(fakeJuries{}, failingRoles{}, []string{"admin"})
	_, err = p.IsAdmin(context.Background(), "H-1")
	assert.Error(t, err)
}

func TestIdentityContext(t *testing.T) {
	_, _, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	numeroH, role, ok := IdentityFrom(WithIdentity(context.Background(), "H-1", "student"))
	assert.True(t, ok)
	assert.Equal(t, "H-1", numeroH)
	assert.Equal(t, "student", role)
}
