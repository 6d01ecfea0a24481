package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/edu-challenge/internal/config"
	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/logger"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
	"github.com/wfunc/edu-challenge/internal/repository"
	"github.com/wfunc/edu-challenge/internal/service"
	"github.com/wfunc/edu-challenge/internal/utils"
)

const (
	creator = "H-creator"
	jury    = "H-jury"
	p1      = "H-p1"
	p2      = "H-p2"
	carol   = "H-carol"
)

// envelope 统一响应
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
	Error     *struct {
		Code    apperrors.ErrorCode `json:"code"`
		Message string              `json:"message"`
	} `json:"error"`
}

// RouterTestSuite 路由集成测试套件
type RouterTestSuite struct {
	suite.Suite
	db      *gorm.DB
	jwt     *utils.JWTManager
	hub     *notify.Hub
	cancel  context.CancelFunc
	router  *Router
	restore func()
}

func (s *RouterTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	s.restore = logger.ReplaceForTest(zap.NewNop())
	s.jwt = utils.NewJWTManager("test-secret", "identity", time.Hour)
}

func (s *RouterTestSuite) TearDownSuite() {
	s.restore()
}

func (s *RouterTestSuite) SetupTest() {
	s.db = repository.SetupTestDB()

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())
	s.hub = notify.NewHub(time.Second, zap.NewNop())
	go s.hub.Run(ctx)

	services := service.NewServices(s.db, service.DefaultConfig(), s.hub, zap.NewNop())
	s.router = NewRouter(Options{
		DB:        s.db,
		Services:  services,
		Validator: s.jwt,
		Hub:       s.hub,
		WebSocket: config.WebSocketNotifyConfig{ReadBufferSize: 1024, WriteBufferSize: 1024, PingInterval: time.Second, SendBuffer: 16},
		Logger:    zap.NewNop(),
	})
}

func (s *RouterTestSuite) TearDownTest() {
	s.cancel()
	repository.CleanupTestDB(s.db)
}

func (s *RouterTestSuite) token(numeroH, role string) string {
	token, err := s.jwt.GenerateToken(numeroH, role, true)
	s.Require().NoError(err)
	return token
}

// call 以 numeroH 身份发起请求，numeroH 为空时不带令牌
func (s *RouterTestSuite) call(method, path, numeroH string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if numeroH != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(numeroH, "student"))
	}

	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (s *RouterTestSuite) decode(env envelope, out interface{}) {
	s.Require().NoError(json.Unmarshal(env.Data, out))
}

// createGame 创建对局并返回ID
func (s *RouterTestSuite) createGame() uint {
	w, env := s.call(http.MethodPost, "/api/v1/games", creator, gin.H{
		"jury_numero_h": jury,
		"players":       []string{p1, p2},
	})
	s.Require().Equal(http.StatusCreated, w.Code)
	s.True(env.Success)

	var view service.GameView
	s.decode(env, &view)
	s.Require().NotNil(view.Game)
	return view.Game.ID
}

func (s *RouterTestSuite) gamePath(gameID uint, suffix string) string {
	return fmt.Sprintf("/api/v1/games/%d%s", gameID, suffix)
}

// openAnswer p1 出题，p2 作答
func (s *RouterTestSuite) openAnswer(gameID uint) models.GameAnswer {
	w, env := s.call(http.MethodPost, s.gamePath(gameID, "/questions"), p1, gin.H{"type": "text", "content": "2+2=?"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var question models.GameQuestion
	s.decode(env, &question)

	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/answers"), p2, gin.H{"question_id": question.ID, "content": "4"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var answer models.GameAnswer
	s.decode(env, &answer)
	return answer
}

// TestHealthCheck 测试健康检查
func (s *RouterTestSuite) TestHealthCheck() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	var resp map[string]interface{}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("healthy", resp["status"])
}

// TestFullRound 测试完整的一轮：创建、开始、出题、作答、裁决、流水、对账
func (s *RouterTestSuite) TestFullRound() {
	gameID := s.createGame()

	w, env := s.call(http.MethodPost, s.gamePath(gameID, "/start"), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var game models.Game
	s.decode(env, &game)
	s.Equal(models.GameStatusActive, game.Status)
	s.Equal(p1, game.CurrentPlayerTurn)

	answer := s.openAnswer(gameID)
	s.Equal(models.AnswerPending, answer.Status)

	w, env = s.call(http.MethodPost, fmt.Sprintf("/api/v1/games/%d/answers/%d/validate", gameID, answer.ID), jury, gin.H{"verdict": "correct"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var result service.ValidationResult
	s.decode(env, &result)
	s.Equal(models.AnswerValidatedCorrect, result.Answer.Status)
	s.Equal(int64(10000), result.Player.Balance)
	s.Equal(int64(40000), result.Deposit.CurrentAmount)
	s.Equal(p2, result.Game.CurrentPlayerTurn)

	w, env = s.call(http.MethodGet, s.gamePath(gameID, "/transactions?type=gain"), p1, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list struct {
		Items []models.GameTransaction `json:"items"`
		Total int64                    `json:"total"`
	}
	s.decode(env, &list)
	s.Equal(int64(1), list.Total)
	s.Require().Len(list.Items, 1)
	s.Equal(int64(10000), list.Items[0].Amount)

	w, env = s.call(http.MethodGet, s.gamePath(gameID, "/reconciliation"), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var report struct {
		Balanced       bool  `json:"balanced"`
		DepositCurrent int64 `json:"deposit_current"`
	}
	s.decode(env, &report)
	s.True(report.Balanced)
	s.Equal(int64(40000), report.DepositCurrent)

	w, env = s.call(http.MethodGet, s.gamePath(gameID, ""), carol, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var view service.GameView
	s.decode(env, &view)
	s.Len(view.Players, 2)
	s.Nil(view.Question)
}

// TestListGames 测试对局列表
func (s *RouterTestSuite) TestListGames() {
	s.createGame()
	s.createGame()

	w, env := s.call(http.MethodGet, "/api/v1/games?status=waiting&page_size=1", carol, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list struct {
		Items    []models.Game `json:"items"`
		Total    int64         `json:"total"`
		PageSize int           `json:"page_size"`
	}
	s.decode(env, &list)
	s.Equal(int64(2), list.Total)
	s.Equal(1, list.PageSize)
	s.Len(list.Items, 1)

	w, env = s.call(http.MethodGet, "/api/v1/games?status=bogus", carol, nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apperrors.ErrInvalidParam, env.Error.Code)
}

// TestJoinAndRecharge 测试加入对局和充值
func (s *RouterTestSuite) TestJoinAndRecharge() {
	gameID := s.createGame()

	w, env := s.call(http.MethodPost, s.gamePath(gameID, "/players"), carol, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var player models.GamePlayer
	s.decode(env, &player)
	s.Equal(carol, player.NumeroH)
	s.Equal(models.RoleGuest, player.Role)

	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/deposit/recharge"), jury, gin.H{"amount": 20000})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var deposit models.GameDeposit
	s.decode(env, &deposit)
	s.Equal(int64(70000), deposit.CurrentAmount)
	s.Equal(1, deposit.RechargeCount)

	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/deposit/recharge"), jury, gin.H{"amount": -5})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apperrors.ErrInvalidAmount, env.Error.Code)

	// 超出单次上限或 int64 容量
	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/deposit/recharge"), jury, gin.H{"amount": int64(math.MaxInt64)})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal(apperrors.ErrInvalidAmount, env.Error.Code)

	w, env = s.call(http.MethodGet, s.gamePath(gameID, ""), carol, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var view service.GameView
	s.decode(env, &view)
	s.Equal(int64(70000), view.Deposit.CurrentAmount)
}

// TestValidateWithoutVerdict 放弃作答的裁决可以省略请求体，普通答案缺少裁决被拒绝
func (s *RouterTestSuite) TestValidateWithoutVerdict() {
	gameID := s.createGame()
	w, _ := s.call(http.MethodPost, s.gamePath(gameID, "/start"), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	answer := s.openAnswer(gameID)
	validate := fmt.Sprintf("/api/v1/games/%d/answers/%d/validate", gameID, answer.ID)

	for _, body := range []interface{}{nil, gin.H{}} {
		w, env := s.call(http.MethodPost, validate, jury, body)
		s.Equal(http.StatusBadRequest, w.Code, w.Body.String())
		s.Equal(apperrors.ErrInvalidParam, env.Error.Code)
	}

	// 评委关闭题目，答案作废，回合交给 p2
	w, env := s.call(http.MethodPost, s.gamePath(gameID, "/questions/close"), p1, nil)
	s.Equal(http.StatusForbidden, w.Code)
	s.Equal(apperrors.ErrNotJury, env.Error.Code)

	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/questions/close"), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var closed models.GameQuestion
	s.decode(env, &closed)
	s.Equal(models.QuestionClosed, closed.Status)

	w, env = s.call(http.MethodPost, validate, jury, gin.H{"verdict": "correct"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(apperrors.ErrAlreadyValidated, env.Error.Code)

	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/questions"), p2, gin.H{"type": "text", "content": "3+3=?"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var question models.GameQuestion
	s.decode(env, &question)

	w, env = s.call(http.MethodPost, s.gamePath(gameID, "/answers"), p1, gin.H{"question_id": question.ID, "refusal": true})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var refusal models.GameAnswer
	s.decode(env, &refusal)

	w, env = s.call(http.MethodPost, fmt.Sprintf("/api/v1/games/%d/answers/%d/validate", gameID, refusal.ID), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var result service.ValidationResult
	s.decode(env, &result)
	s.Equal(models.AnswerRefused, result.Answer.Status)
	s.Equal(int64(-10000), result.Player.Balance)
	s.Equal(int64(60000), result.Deposit.CurrentAmount)
}

// TestErrorMapping 测试错误码到HTTP状态的映射
func (s *RouterTestSuite) TestErrorMapping() {
	gameID := s.createGame()
	w, _ := s.call(http.MethodPost, s.gamePath(gameID, "/start"), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	answer := s.openAnswer(gameID)
	validate := fmt.Sprintf("/api/v1/games/%d/answers/%d/validate", gameID, answer.ID)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   interface{}
		status int
		code   apperrors.ErrorCode
	}{
		{"无令牌", http.MethodGet, "/api/v1/games", "", nil, http.StatusUnauthorized, apperrors.ErrAuthentication},
		{"非评委裁决", http.MethodPost, validate, p1, gin.H{"verdict": "correct"}, http.StatusForbidden, apperrors.ErrNotJury},
		{"非当前回合出题", http.MethodPost, s.gamePath(gameID, "/questions"), p2, gin.H{"type": "text", "content": "?"}, http.StatusConflict, apperrors.ErrNotYourTurn},
		{"未知对局", http.MethodGet, "/api/v1/games/999", p1, nil, http.StatusNotFound, apperrors.ErrNotFound},
		{"未知答案", http.MethodPost, s.gamePath(gameID, "/answers/999/validate"), jury, gin.H{"verdict": "correct"}, http.StatusNotFound, apperrors.ErrUnknownAnswer},
		{"无效ID", http.MethodGet, "/api/v1/games/abc", p1, nil, http.StatusBadRequest, apperrors.ErrInvalidParam},
		{"无效裁决", http.MethodPost, validate, jury, gin.H{"verdict": "maybe"}, http.StatusBadRequest, apperrors.ErrInvalidParam},
		{"缺少参数", http.MethodPost, s.gamePath(gameID, "/jury"), creator, gin.H{}, http.StatusBadRequest, apperrors.ErrInvalidParam},
		{"未知接口", http.MethodGet, "/api/v2/nothing", "", nil, http.StatusNotFound, apperrors.ErrNotFound},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			w, env := s.call(tt.method, tt.path, tt.caller, tt.body)
			s.Equal(tt.status, w.Code, w.Body.String())
			s.False(env.Success)
			s.Require().NotNil(env.Error)
			s.Equal(tt.code, env.Error.Code)
			s.NotEmpty(env.RequestID)
		})
	}

	// 答案仍待裁决
	w, _ = s.call(http.MethodPost, validate, jury, gin.H{"verdict": "wrong"})
	s.Equal(http.StatusOK, w.Code)
	w, env := s.call(http.MethodPost, validate, jury, gin.H{"verdict": "wrong"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal(apperrors.ErrAlreadyValidated, env.Error.Code)
}

// TestInactiveIdentity 测试停用身份
func (s *RouterTestSuite) TestInactiveIdentity() {
	token, err := s.jwt.GenerateToken(p1, "student", false)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/games", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)

	s.Equal(http.StatusForbidden, w.Code)
	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env))
	s.Equal(apperrors.ErrInactiveUser, env.Error.Code)
}

// TestGameWebSocket 测试订阅对局通知
func (s *RouterTestSuite) TestGameWebSocket() {
	gameID := s.createGame()
	srv := httptest.NewServer(s.router.GetEngine())
	defer srv.Close()

	url := fmt.Sprintf("ws%s/ws/games/%d?token=%s", strings.TrimPrefix(srv.URL, "http"), gameID, s.token(carol, "student"))
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()

	next := func() notify.Event {
		s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		var ev notify.Event
		s.Require().NoError(conn.ReadJSON(&ev))
		return ev
	}

	connected := next()
	s.Equal(notify.Kind("connected"), connected.Kind)
	s.Equal(carol, connected.NumeroH)

	w, _ := s.call(http.MethodPost, s.gamePath(gameID, "/start"), jury, nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var kinds []notify.Kind
	for len(kinds) < 2 {
		ev := next()
		s.Equal(gameID, ev.GameID)
		kinds = append(kinds, ev.Kind)
	}
	s.Contains(kinds, notify.KindGameStarted)
}

// TestGameWebSocketUnknownGame 测试订阅不存在的对局
func (s *RouterTestSuite) TestGameWebSocketUnknownGame() {
	srv := httptest.NewServer(s.router.GetEngine())
	defer srv.Close()

	url := fmt.Sprintf("ws%s/ws/games/999?token=%s", strings.TrimPrefix(srv.URL, "http"), s.token(carol, "student"))
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

// TestDocsRoutes 测试文档路由，测试目录下没有 OpenAPI 文件
func (s *RouterTestSuite) TestDocsRoutes() {
	for _, path := range []string{"/docs/redoc", "/docs/ui"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.router.GetEngine().ServeHTTP(w, req)
		s.Equal(http.StatusOK, w.Code, path)
		s.Contains(w.Body.String(), docsTitle)
	}

	req := httptest.NewRequest(http.MethodGet, "/openapi", nil)
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)
	s.Equal(http.StatusNotFound, w.Code)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
