//go:build !swagger

package api

import "github.com/gin-gonic/gin"

// registerSwaggerRoutes 非 swagger 构建下不注册文档路由
func registerSwaggerRoutes(_ *gin.Engine) {}
