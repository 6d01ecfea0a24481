package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/edu-challenge/internal/config"
	"github.com/wfunc/edu-challenge/internal/database"
	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/middleware"
	"github.com/wfunc/edu-challenge/internal/notify"
	"github.com/wfunc/edu-challenge/internal/service"
)

// Options 路由依赖
type Options struct {
	DB        *gorm.DB
	Services  *service.Services
	Validator middleware.TokenValidator
	Hub       *notify.Hub // 为空时不提供WebSocket订阅
	WebSocket config.WebSocketNotifyConfig
	Logger    *zap.Logger
}

// Router API路由器
type Router struct {
	engine           *gin.Engine
	db               *gorm.DB
	services         *service.Services
	challengeHandler *ChallengeHandler
	wsHandler        *WebSocketHandler
	identity         *middleware.IdentityMiddleware
	log              *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// 创建Gin引擎
	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	router := &Router{
		engine:           engine,
		db:               opts.DB,
		services:         opts.Services,
		challengeHandler: NewChallengeHandler(opts.Services.Challenge, opts.Logger),
		identity:         middleware.NewIdentityMiddleware(opts.Validator),
		log:              opts.Logger,
	}
	if opts.Hub != nil {
		router.wsHandler = NewWebSocketHandler(opts.Hub, opts.Services.Challenge, opts.WebSocket, opts.Logger)
	}

	// 设置路由
	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 文档
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	h := r.challengeHandler

	// API v1路由组，均需要身份
	v1 := r.engine.Group("/api/v1")
	v1.Use(r.identity.RequireIdentity())
	{
		v1.POST("/games", h.CreateGame)
		v1.GET("/games", h.ListGames)

		game := v1.Group("/games/:id")
		{
			game.GET("", h.GetGame)
			game.POST("/jury", h.AssignJury)

			// 成员
			game.POST("/players", h.Join)
			game.POST("/leave", h.Leave)

			// 生命周期
			game.POST("/start", h.Start)
			game.POST("/pause", h.Pause)
			game.POST("/resume", h.Resume)
			game.POST("/finish", h.Finish)
			game.POST("/turn/advance", h.AdvanceTurn)

			// 题目与答案
			game.POST("/questions", h.AskQuestion)
			game.POST("/questions/close", h.CloseQuestion)
			game.POST("/answers", h.SubmitAnswer)
			game.POST("/answers/:aid/validate", h.ValidateAnswer)

			// 奖池与账本
			game.POST("/deposit/recharge", h.RechargeDeposit)
			game.GET("/transactions", h.ListTransactions)
			game.GET("/reconciliation", h.Reconcile)
		}
	}

	// WebSocket路由
	if r.wsHandler != nil {
		ws := r.engine.Group("/ws")
		ws.Use(r.identity.RequireIdentity())
		ws.GET("/games/:id", r.wsHandler.GameWebSocket)
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, apperrors.Newf(apperrors.ErrNotFound, "接口不存在: %s", c.Request.URL.Path))
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	// 检查数据库连接
	if err := database.Ping(ctx, r.db); err != nil {
		r.log.Warn("健康检查失败", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// Handler 用于 http.Server
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
