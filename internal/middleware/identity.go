package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/edu-challenge/internal/auth"
	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/utils"
)

const (
	ctxNumeroH   = "numeroH"
	ctxRole      = "role"
	ctxRequestID = "requestID"
)

// TokenValidator 令牌校验接口
type TokenValidator interface {
	ValidateToken(token string) (*utils.IdentityClaims, error)
}

// IdentityMiddleware 校验身份服务签发的令牌
type IdentityMiddleware struct {
	validator TokenValidator
}

// NewIdentityMiddleware 创建身份中间件
func NewIdentityMiddleware(validator TokenValidator) *IdentityMiddleware {
	return &IdentityMiddleware{validator: validator}
}

// RequireIdentity 需要有效且活跃的身份
func (m *IdentityMiddleware) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			AbortWithError(c, apperrors.New(apperrors.ErrAuthentication, "缺少认证令牌"))
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			code := apperrors.ErrTokenInvalid
			if errors.Is(err, utils.ErrExpiredToken) {
				code = apperrors.ErrTokenExpired
			}
			AbortWithError(c, apperrors.Wrap(err, code))
			return
		}
		if !claims.Active {
			AbortWithError(c, apperrors.Newf(apperrors.ErrInactiveUser, "%s 已停用", claims.NumeroH))
			return
		}

		c.Set(ctxNumeroH, claims.NumeroH)
		c.Set(ctxRole, claims.Role)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), claims.NumeroH, claims.Role))

		c.Next()
	}
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. Authorization: Bearer
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Query参数，浏览器建立WebSocket时无法设置请求头
	if token := c.Query("token"); token != "" {
		return token
	}

	return ""
}

// GetNumeroH 从上下文获取身份编号
func GetNumeroH(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ctxNumeroH); exists {
		if numeroH, ok := v.(string); ok && numeroH != "" {
			return numeroH, true
		}
	}
	return "", false
}

// GetRole 从上下文获取身份角色
func GetRole(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ctxRole); exists {
		if role, ok := v.(string); ok {
			return role, true
		}
	}
	return "", false
}

// AbortWithError 以统一格式返回错误并终止请求
func AbortWithError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		_ = c.Error(appErr)
	}
	c.AbortWithStatusJSON(status, apperrors.NewErrorResponse(appErr, GetRequestID(c)))
}
