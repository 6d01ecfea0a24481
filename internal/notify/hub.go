package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/edu-challenge/internal/logger"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心，按对局分组推送
type Hub struct {
	clients   map[string]*Client
	games     map[uint]map[string]*Client
	clientsMu sync.RWMutex

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	pingInterval time.Duration
	logger       *zap.Logger
}

// NewHub 创建Hub
func NewHub(pingInterval time.Duration, l *zap.Logger) *Hub {
	if l == nil {
		l = logger.GetModuleLogger("notify")
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*Client),
		games:        make(map[uint]map[string]*Client),
		broadcast:    make(chan Event, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		logger:       l,
	}
}

// Run 运行Hub，ctx取消后关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.broadcast:
			h.pushEvent(ev)

		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		}
	}
}

// Dispatch 实现Dispatcher，不阻塞调用方
func (h *Hub) Dispatch(_ context.Context, ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		logger.LogNotify("websocket", string(ev.Kind), ev.GameID, ErrBufferFull)
	}
}

// Register 注册客户端，Hub已停止时返回false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	if h.games[client.GameID] == nil {
		h.games[client.GameID] = make(map[string]*Client)
	}
	h.games[client.GameID][client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.Uint("game_id", client.GameID),
		zap.String("numero_h", client.NumeroH))

	h.sendTo(client, NewEvent(kindConnected, client.GameID, client.NumeroH, nil))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		delete(h.games[client.GameID], client.ID)
		if len(h.games[client.GameID]) == 0 {
			delete(h.games, client.GameID)
		}
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.Uint("game_id", client.GameID))
}

// pushEvent 推送给订阅该对局的所有客户端
func (h *Hub) pushEvent(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, client := range h.games[ev.GameID] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID),
				zap.Uint("game_id", ev.GameID))
		}
	}
	logger.LogNotify("websocket", string(ev.Kind), ev.GameID, nil)
}

func (h *Hub) sendTo(client *Client, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
	h.logger.Info("WebSocket Hub已停止")
	h.games = make(map[uint]map[string]*Client)
}

// GameClientCount 获取对局在线订阅数
func (h *Hub) GameClientCount(gameID uint) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.games[gameID])
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
