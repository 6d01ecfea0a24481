package notify

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrBufferFull      = errors.New("发送缓冲区已满")
	ErrPublisherClosed = errors.New("发布器已关闭")
)

// 客户端消息类型
const (
	kindConnected Kind = "connected"
	kindPong      Kind = "pong"
	kindError     Kind = "error"
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 最大消息大小，客户端只会发送心跳
	maxMessageSize = 4 * 1024
)

// Client 订阅某个对局的WebSocket客户端
type Client struct {
	ID      string
	GameID  uint
	NumeroH string
	Send    chan []byte

	hub  *Hub
	conn *websocket.Conn
}

// clientMessage 客户端上行消息
type clientMessage struct {
	Type string `json:"type"`
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, gameID uint, numeroH string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Client{
		ID:      uuid.New().String(),
		GameID:  gameID,
		NumeroH: numeroH,
		Send:    make(chan []byte, sendBuffer),
		hub:     hub,
		conn:    conn,
	}
}

// pongWait 读超时，必须大于ping周期
func (c *Client) pongWait() time.Duration {
	return c.hub.pingInterval * 2
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理上行消息，只支持应用层ping
func (c *Client) handleMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.reply(NewEvent(kindError, c.GameID, c.NumeroH, map[string]interface{}{"error": "消息格式错误"}))
		return
	}

	switch msg.Type {
	case "ping":
		c.reply(NewEvent(kindPong, c.GameID, c.NumeroH, nil))
	default:
		c.reply(NewEvent(kindError, c.GameID, c.NumeroH, map[string]interface{}{"error": "不支持的消息类型: " + msg.Type}))
	}
}

func (c *Client) reply(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	// Send 可能已被Hub关闭
	defer func() { _ = recover() }()
	select {
	case c.Send <- data:
	default:
	}
}
