package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/edu-challenge/internal/config"
	"github.com/wfunc/edu-challenge/internal/logger"
)

func init() {
	logger.ReplaceForTest(zap.NewNop())
}

// hubServer 启动Hub以及订阅 gameID 的测试服务器
func hubServer(t *testing.T, gameID uint) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, gameID, r.URL.Query().Get("numero_h"), 8)
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, numeroH string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?numero_h=" + numeroH
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHubPushesToGameSubscribers(t *testing.T) {
	hub, srv := hubServer(t, 7)
	conn := dial(t, srv, "H-p1")

	connected := readEvent(t, conn)
	assert.Equal(t, kindConnected, connected.Kind)
	assert.Equal(t, uint(7), connected.GameID)
	assert.Equal(t, "H-p1", connected.NumeroH)
	assert.Equal(t, 1, hub.GameClientCount(7))
	assert.Equal(t, 1, hub.GetOnlineCount())

	// 其他对局的事件不推送
	hub.Dispatch(context.Background(), NewEvent(KindTurnChanged, 8, "H-p2", nil))
	hub.Dispatch(context.Background(), NewEvent(KindTurnChanged, 7, "H-p2", map[string]interface{}{"cycle": 2}))

	ev := readEvent(t, conn)
	assert.Equal(t, KindTurnChanged, ev.Kind)
	assert.Equal(t, uint(7), ev.GameID)
	assert.Equal(t, "H-p2", ev.NumeroH)
	assert.EqualValues(t, 2, ev.Data["cycle"])
}

func TestClientPing(t *testing.T) {
	_, srv := hubServer(t, 1)
	conn := dial(t, srv, "H-p1")
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, kindPong, readEvent(t, conn).Kind)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev := readEvent(t, conn)
	assert.Equal(t, kindError, ev.Kind)
	assert.Equal(t, "消息格式错误", ev.Data["error"])
}

func TestHubUnregisterOnClose(t *testing.T) {
	hub, srv := hubServer(t, 3)
	conn := dial(t, srv, "H-p1")
	readEvent(t, conn)
	require.Equal(t, 1, hub.GameClientCount(3))

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GameClientCount(3) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubRegisterAfterStop(t *testing.T) {
	hub := NewHub(time.Second, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	client := &Client{ID: "c1", GameID: 1, Send: make(chan []byte, 1), hub: hub}
	assert.False(t, hub.Register(client))
	hub.Unregister(client)
}

// fakePublisher 记录发布的消息
type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	if b, ok := message.([]byte); ok {
		f.payloads = append(f.payloads, b)
	}

	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakePublisher) snapshot() ([]string, [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...), append([][]byte(nil), f.payloads...)
}

// slowPublisher 阻塞到 release 关闭或发布超时
type slowPublisher struct {
	fakePublisher
	release chan struct{}
}

func (s *slowPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return s.fakePublisher.Publish(ctx, channel, message)
}

func TestRedisPublisherDispatch(t *testing.T) {
	pub := &fakePublisher{}
	p := NewRedisPublisher(pub, "edu:challenge", 8)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// 调用方已取消也要发布
	p.Dispatch(ctx, NewEvent(KindAnswerValidated, 5, "H-jury", map[string]interface{}{"verdict": "correct"}))
	require.NoError(t, p.Close())

	channels, payloads := pub.snapshot()
	require.Len(t, payloads, 1)
	assert.Equal(t, []string{"edu:challenge"}, channels)

	var ev Event
	require.NoError(t, json.Unmarshal(payloads[0], &ev))
	assert.Equal(t, KindAnswerValidated, ev.Kind)
	assert.Equal(t, uint(5), ev.GameID)
	assert.Equal(t, "correct", ev.Data["verdict"])
}

func TestRedisPublisherFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	p := NewRedisPublisher(pub, "edu:challenge", 0)

	assert.NotPanics(t, func() {
		p.Dispatch(context.Background(), NewEvent(KindDepositLow, 1, "", nil))
	})
	require.NoError(t, p.Close())
	channels, _ := pub.snapshot()
	assert.Len(t, channels, 1)
}

// Redis 无响应时 Dispatch 立即返回，队列满后丢弃
func TestRedisPublisherDoesNotBlock(t *testing.T) {
	pub := &slowPublisher{release: make(chan struct{})}
	p := NewRedisPublisher(pub, "edu:challenge", 2)

	start := time.Now()
	for i := 0; i < 10; i++ {
		p.Dispatch(context.Background(), NewEvent(KindTurnChanged, 1, "H-p1", map[string]interface{}{"seq": i}))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(pub.release)
	require.NoError(t, p.Close())
	channels, payloads := pub.snapshot()
	// 发布协程手上一条加队列中两条
	assert.LessOrEqual(t, len(channels), 3)
	require.NotEmpty(t, payloads)

	var first Event
	require.NoError(t, json.Unmarshal(payloads[0], &first))
	assert.EqualValues(t, 0, first.Data["seq"])

	// 关闭后不再接收
	p.Dispatch(context.Background(), NewEvent(KindTurnChanged, 1, "H-p1", nil))
	channels, _ = pub.snapshot()
	assert.Len(t, channels, len(payloads))
	assert.NoError(t, p.Close())
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, Nop{}, b}

	m.Dispatch(context.Background(), NewEvent(KindGameStarted, 1, "H-jury", nil))
	m.Dispatch(context.Background(), NewEvent(KindTurnChanged, 1, "H-p1", nil))

	assert.Equal(t, []Kind{KindGameStarted, KindTurnChanged}, a.Kinds())
	assert.Equal(t, a.Kinds(), b.Kinds())

	a.Reset()
	assert.Empty(t, a.Events())
	assert.Len(t, b.Events(), 2)
}

func TestBuild(t *testing.T) {
	hub := NewHub(time.Second, zap.NewNop())

	t.Run("无驱动", func(t *testing.T) {
		d, closers := Build(config.NotifyConfig{Drivers: []string{"none"}}, hub)
		assert.IsType(t, Nop{}, d)
		assert.Empty(t, closers)
	})

	t.Run("仅WebSocket", func(t *testing.T) {
		d, closers := Build(config.NotifyConfig{Drivers: []string{"websocket"}}, hub)
		assert.Same(t, hub, d)
		assert.Empty(t, closers)
	})

	t.Run("WebSocket与Redis", func(t *testing.T) {
		cfg := config.NotifyConfig{
			Drivers: []string{"websocket", "redis", "unknown"},
			Redis:   config.RedisNotifyConfig{Addr: "127.0.0.1:6379", Channel: "edu:challenge"},
		}
		d, closers := Build(cfg, hub)
		multi, ok := d.(Multi)
		require.True(t, ok)
		assert.Len(t, multi, 2)
		require.Len(t, closers, 2)
		assert.IsType(t, &RedisPublisher{}, closers[0])
		for _, c := range closers {
			assert.NoError(t, c.Close())
		}
	})

	t.Run("未启用Hub", func(t *testing.T) {
		d, _ := Build(config.NotifyConfig{Drivers: []string{"websocket"}}, nil)
		assert.IsType(t, Nop{}, d)
	})
}
