// Package auth 判定评委和管理员身份。身份本身由外部服务签发，这里只做授权。
package auth

import (
	"context"
	"strings"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

// AuthorizationPolicy 授权策略，注入到服务层
type AuthorizationPolicy interface {
	IsJury(ctx context.Context, numeroH string, gameID uint) (bool, error)
	IsAdmin(ctx context.Context, numeroH string) (bool, error)
}

// JuryLookup 查询对局评委
type JuryLookup interface {
	GetJury(ctx context.Context, gameID uint) (string, error)
}

// RoleResolver 解析身份的角色
type RoleResolver interface {
	RoleOf(ctx context.Context, numeroH string) (string, error)
}

// RolePolicy 默认策略：评委取自对局记录，管理员取自角色
type RolePolicy struct {
	juries     JuryLookup
	roles      RoleResolver
	adminRoles map[string]struct{}
}

// NewRolePolicy 创建默认策略
func NewRolePolicy(juries JuryLookup, roles RoleResolver, adminRoles []string) *RolePolicy {
	set := make(map[string]struct{}, len(adminRoles))
	for _, r := range adminRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			set[r] = struct{}{}
		}
	}
	return &RolePolicy{juries: juries, roles: roles, adminRoles: set}
}

// IsJury 是否为对局评委
func (p *RolePolicy) IsJury(ctx context.Context, numeroH string, gameID uint) (bool, error) {
	if numeroH == "" {
		return false, nil
	}
	jury, err := p.juries.GetJury(ctx, gameID)
	if err != nil {
		return false, err
	}
	return jury != "" && jury == numeroH, nil
}

// IsAdmin 是否为管理员
func (p *RolePolicy) IsAdmin(ctx context.Context, numeroH string) (bool, error) {
	if numeroH == "" || len(p.adminRoles) == 0 {
		return false, nil
	}
	role, err := p.roles.RoleOf(ctx, numeroH)
	if err != nil {
		return false, err
	}
	_, ok := p.adminRoles[strings.ToLower(role)]
	return ok, nil
}

type roleKey struct{}

type identity struct {
	numeroH string
	role    string
}

// WithIdentity 将已验证的身份写入 context
func WithIdentity(ctx context.Context, numeroH, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, identity{numeroH: numeroH, role: role})
}

// IdentityFrom 读取 context 中的身份
func IdentityFrom(ctx context.Context) (numeroH, role string, ok bool) {
	id, ok := ctx.Value(roleKey{}).(identity)
	if !ok {
		return "", "", false
	}
	return id.numeroH, id.role, true
}

// TokenRoles 从请求 context 中的令牌角色解析，只能解析当前请求本人
type TokenRoles struct{}

// RoleOf 实现 RoleResolver
func (TokenRoles) RoleOf(ctx context.Context, numeroH string) (string, error) {
	who, role, ok := IdentityFrom(ctx)
	if !ok {
		return "", apperrors.New(apperrors.ErrAuthentication, "缺少身份信息")
	}
	if who != numeroH {
		return "", nil
	}
	return role, nil
}
