package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/edu-challenge/internal/config"
	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/middleware"
	"github.com/wfunc/edu-challenge/internal/notify"
	"github.com/wfunc/edu-challenge/internal/service"
)

// WebSocketHandler 对局通知订阅
type WebSocketHandler struct {
	hub        *notify.Hub
	svc        service.ChallengeService
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *notify.Hub, svc service.ChallengeService, cfg config.WebSocketNotifyConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// 令牌已校验，来源交给网关控制
				return true
			},
		},
		sendBuffer: cfg.SendBuffer,
		logger:     logger,
	}
}

// GameWebSocket 订阅对局通知
// @Summary 订阅对局通知
// @Description 浏览器无法设置请求头时通过 ?token= 传递令牌
// @Tags Notify
// @Param id path int true "对局ID"
// @Param token query string false "身份令牌"
// @Success 101 {string} string "Switching Protocols"
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /ws/games/{id} [get]
func (h *WebSocketHandler) GameWebSocket(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	if _, err := h.svc.GetGame(c.Request.Context(), gameID); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		h.logger.Warn("WebSocket升级失败",
			zap.Uint("game_id", gameID),
			zap.String("numero_h", numeroH),
			zap.Error(apperrors.Wrap(err, apperrors.ErrWebSocketConnect)))
		return
	}

	client := notify.NewClient(h.hub, conn, gameID, numeroH, h.sendBuffer)
	if !h.hub.Register(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "服务正在关闭"))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
