package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/middleware"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/repository"
	"github.com/wfunc/edu-challenge/internal/service"
)

// ChallengeHandler 挑战赛处理器
type ChallengeHandler struct {
	svc    service.ChallengeService
	logger *zap.Logger
}

// NewChallengeHandler 创建挑战赛处理器
func NewChallengeHandler(svc service.ChallengeService, logger *zap.Logger) *ChallengeHandler {
	return &ChallengeHandler{svc: svc, logger: logger}
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ListData 分页数据
type ListData struct {
	Items    interface{} `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// AssignJuryRequest 指定评委请求
type AssignJuryRequest struct {
	JuryNumeroH string `json:"jury_numero_h" binding:"required"`
}

// JoinRequest 加入请求
type JoinRequest struct {
	Role string `json:"role"` // 为空时自动分配
}

// AskRequest 出题请求
type AskRequest struct {
	Type     string `json:"type" binding:"required"`
	Content  string `json:"content"`
	MediaURL string `json:"media_url"`
}

// SubmitRequest 作答请求，refusal 为 true 时表示放弃作答
type SubmitRequest struct {
	QuestionID uint   `json:"question_id" binding:"required"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url"`
	Refusal    bool   `json:"refusal"`
}

// ValidateRequest 裁决请求。放弃作答的答案忽略 verdict，可以不传请求体
type ValidateRequest struct {
	Verdict string `json:"verdict" enums:"correct,wrong"`
}

// RechargeRequest 充值请求
type RechargeRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		Success:   true,
		Data:      data,
		RequestID: middleware.GetRequestID(c),
		Timestamp: time.Now().Unix(),
	})
}

// bindJSON 绑定请求体，失败时已写入错误响应
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.AbortWithError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求参数错误"))
		return false
	}
	return true
}

// uintParam 解析路径中的ID
func uintParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		middleware.AbortWithError(c, apperrors.Newf(apperrors.ErrInvalidParam, "无效的%s: %s", name, c.Param(name)))
		return 0, false
	}
	return uint(id), true
}

// caller 当前请求的身份
func caller(c *gin.Context) (string, bool) {
	numeroH, exists := middleware.GetNumeroH(c)
	if !exists {
		middleware.AbortWithError(c, apperrors.New(apperrors.ErrAuthentication, "未登录"))
		return "", false
	}
	return numeroH, true
}

// gameCaller 解析对局ID和调用人
func gameCaller(c *gin.Context) (uint, string, bool) {
	gameID, valid := uintParam(c, "id")
	if !valid {
		return 0, "", false
	}
	numeroH, valid := caller(c)
	if !valid {
		return 0, "", false
	}
	return gameID, numeroH, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	p := repository.NewPagination(page, pageSize)
	return p.Page, p.PageSize
}

// CreateGame 创建对局
// @Summary 创建对局
// @Description 创建等待中的对局，开设奖池并按顺序加入初始玩家
// @Tags Games
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body service.CreateGameRequest true "对局信息"
// @Success 201 {object} SuccessResponse{data=service.GameView}
// @Failure 400 {object} apperrors.ErrorResponse
// @Failure 401 {object} apperrors.ErrorResponse
// @Router /api/v1/games [post]
func (h *ChallengeHandler) CreateGame(c *gin.Context) {
	numeroH, valid := caller(c)
	if !valid {
		return
	}
	var req service.CreateGameRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.svc.CreateGame(c.Request.Context(), numeroH, &req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusCreated, view)
}

// ListGames 对局列表
// @Summary 对局列表
// @Tags Games
// @Security Bearer
// @Produce json
// @Param status query string false "对局状态"
// @Param numero_h query string false "创建人、评委或成员"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} SuccessResponse{data=ListData}
// @Router /api/v1/games [get]
func (h *ChallengeHandler) ListGames(c *gin.Context) {
	page, pageSize := pageParams(c)
	filter := repository.GameFilter{
		Status:  models.GameStatus(c.Query("status")),
		NumeroH: c.Query("numero_h"),
	}

	games, total, err := h.svc.ListGames(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, ListData{Items: games, Total: total, Page: page, PageSize: pageSize})
}

// GetGame 对局详情
// @Summary 对局详情
// @Description 对局状态、成员、当前题目、答案和奖池
// @Tags Games
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=service.GameView}
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id} [get]
func (h *ChallengeHandler) GetGame(c *gin.Context) {
	gameID, valid := uintParam(c, "id")
	if !valid {
		return
	}
	view, err := h.svc.GetGame(c.Request.Context(), gameID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// AssignJury 指定评委
// @Summary 指定评委
// @Tags Games
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "对局ID"
// @Param request body AssignJuryRequest true "评委"
// @Success 200 {object} SuccessResponse{data=models.Game}
// @Failure 403 {object} apperrors.ErrorResponse
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/jury [post]
func (h *ChallengeHandler) AssignJury(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	var req AssignJuryRequest
	if !bindJSON(c, &req) {
		return
	}
	game, err := h.svc.AssignJury(c.Request.Context(), gameID, numeroH, req.JuryNumeroH)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, game)
}

// Join 加入对局
// @Summary 加入对局
// @Description 前两名计分加入者为 player1/player2，之后为观众
// @Tags Players
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "对局ID"
// @Param request body JoinRequest false "角色"
// @Success 200 {object} SuccessResponse{data=models.GamePlayer}
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/players [post]
func (h *ChallengeHandler) Join(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	var req JoinRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	role, err := models.ParsePlayerRole(req.Role)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	player, err := h.svc.Join(c.Request.Context(), gameID, numeroH, role)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, player)
}

// Leave 离开对局
// @Summary 离开对局
// @Tags Players
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.GamePlayer}
// @Router /api/v1/games/{id}/leave [post]
func (h *ChallengeHandler) Leave(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	player, err := h.svc.Leave(c.Request.Context(), gameID, numeroH)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, player)
}

// lifecycle 生命周期命令的通用处理
func (h *ChallengeHandler) lifecycle(c *gin.Context, fn func(context.Context, uint, string) (*models.Game, error)) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	game, err := fn(c.Request.Context(), gameID, numeroH)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, game)
}

// Start 开始对局
// @Summary 开始对局
// @Tags Lifecycle
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.Game}
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/start [post]
func (h *ChallengeHandler) Start(c *gin.Context) {
	h.lifecycle(c, h.svc.Start)
}

// Pause 暂停对局
// @Summary 暂停对局
// @Tags Lifecycle
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.Game}
// @Router /api/v1/games/{id}/pause [post]
func (h *ChallengeHandler) Pause(c *gin.Context) {
	h.lifecycle(c, h.svc.Pause)
}

// Resume 恢复对局
// @Summary 恢复对局
// @Tags Lifecycle
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.Game}
// @Router /api/v1/games/{id}/resume [post]
func (h *ChallengeHandler) Resume(c *gin.Context) {
	h.lifecycle(c, h.svc.Resume)
}

// Finish 结束对局
// @Summary 结束对局
// @Tags Lifecycle
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.Game}
// @Router /api/v1/games/{id}/finish [post]
func (h *ChallengeHandler) Finish(c *gin.Context) {
	h.lifecycle(c, h.svc.Finish)
}

// AdvanceTurn 跳过回合
// @Summary 跳过当前回合
// @Description 当前回合玩家、评委或管理员可以在没有未关闭题目时跳过回合
// @Tags Lifecycle
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.Game}
// @Router /api/v1/games/{id}/turn/advance [post]
func (h *ChallengeHandler) AdvanceTurn(c *gin.Context) {
	h.lifecycle(c, h.svc.AdvanceTurn)
}

// AskQuestion 出题
// @Summary 出题
// @Tags Questions
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "对局ID"
// @Param request body AskRequest true "题目"
// @Success 201 {object} SuccessResponse{data=models.GameQuestion}
// @Failure 409 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/questions [post]
func (h *ChallengeHandler) AskQuestion(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	var req AskRequest
	if !bindJSON(c, &req) {
		return
	}
	qType, err := models.ParseQuestionType(req.Type)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	question, err := h.svc.AskQuestion(c.Request.Context(), gameID, numeroH, &service.AskQuestionRequest{
		Type:     qType,
		Content:  req.Content,
		MediaURL: req.MediaURL,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusCreated, question)
}

// SubmitAnswer 作答
// @Summary 作答或放弃作答
// @Tags Answers
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "对局ID"
// @Param request body SubmitRequest true "答案"
// @Success 201 {object} SuccessResponse{data=models.GameAnswer}
// @Failure 409 {object} apperrors.ErrorResponse
// @Failure 422 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/answers [post]
func (h *ChallengeHandler) SubmitAnswer(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	var req SubmitRequest
	if !bindJSON(c, &req) {
		return
	}

	answer, err := h.svc.SubmitAnswer(c.Request.Context(), gameID, numeroH, &service.SubmitAnswerRequest{
		QuestionID: req.QuestionID,
		Content:    req.Content,
		MediaURL:   req.MediaURL,
		Refusal:    req.Refusal,
	})
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusCreated, answer)
}

// ValidateAnswer 裁决
// @Summary 评委裁决答案
// @Description 正确加分并从奖池支付，错误扣分并计入奖池。放弃作答的答案忽略 verdict，请求体可省略
// @Tags Answers
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "对局ID"
// @Param aid path int true "答案ID"
// @Param request body ValidateRequest false "裁决"
// @Success 200 {object} SuccessResponse{data=service.ValidationResult}
// @Failure 403 {object} apperrors.ErrorResponse
// @Failure 409 {object} apperrors.ErrorResponse
// @Failure 422 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/answers/{aid}/validate [post]
func (h *ChallengeHandler) ValidateAnswer(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	answerID, valid := uintParam(c, "aid")
	if !valid {
		return
	}
	var req ValidateRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	// 空裁决交给领域层：放弃作答不需要，其余答案会被拒绝
	var verdict models.Verdict
	if strings.TrimSpace(req.Verdict) != "" {
		var err error
		if verdict, err = models.ParseVerdict(req.Verdict); err != nil {
			middleware.AbortWithError(c, err)
			return
		}
	}

	result, err := h.svc.ValidateAnswer(c.Request.Context(), gameID, answerID, numeroH, verdict)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// CloseQuestion 关闭题目
// @Summary 评委关闭当前题目
// @Description 未裁决的答案作废，不产生流水，回合轮转到下一位未出局的玩家。用于无人可答或扣分超出负债上限的题目
// @Tags Questions
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=models.GameQuestion}
// @Failure 403 {object} apperrors.ErrorResponse
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/questions/close [post]
func (h *ChallengeHandler) CloseQuestion(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	question, err := h.svc.CloseQuestion(c.Request.Context(), gameID, numeroH)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, question)
}

// RechargeDeposit 奖池充值
// @Summary 奖池充值
// @Tags Deposit
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "对局ID"
// @Param request body RechargeRequest true "金额"
// @Success 200 {object} SuccessResponse{data=models.GameDeposit}
// @Router /api/v1/games/{id}/deposit/recharge [post]
func (h *ChallengeHandler) RechargeDeposit(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	var req RechargeRequest
	if !bindJSON(c, &req) {
		return
	}
	deposit, err := h.svc.RechargeDeposit(c.Request.Context(), gameID, numeroH, req.Amount)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, deposit)
}

// ListTransactions 流水列表
// @Summary 流水列表
// @Description 按写入顺序分页
// @Tags Deposit
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Param type query string false "流水类型"
// @Param player_id query int false "玩家ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} SuccessResponse{data=ListData}
// @Router /api/v1/games/{id}/transactions [get]
func (h *ChallengeHandler) ListTransactions(c *gin.Context) {
	gameID, valid := uintParam(c, "id")
	if !valid {
		return
	}
	page, pageSize := pageParams(c)
	filter := repository.TransactionFilter{Type: models.TransactionType(c.Query("type"))}
	if raw := c.Query("player_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			middleware.AbortWithError(c, apperrors.Newf(apperrors.ErrInvalidParam, "无效的player_id: %s", raw))
			return
		}
		filter.PlayerID = uint(id)
	}

	txs, total, err := h.svc.ListTransactions(c.Request.Context(), gameID, filter, page, pageSize)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	ok(c, http.StatusOK, ListData{Items: txs, Total: total, Page: page, PageSize: pageSize})
}

// Reconcile 对账
// @Summary 对账
// @Description 核对玩家余额与流水合计、奖池余额与累计字段及流水，仅评委或管理员
// @Tags Deposit
// @Security Bearer
// @Produce json
// @Param id path int true "对局ID"
// @Success 200 {object} SuccessResponse{data=challenge.Report}
// @Failure 403 {object} apperrors.ErrorResponse
// @Router /api/v1/games/{id}/reconciliation [get]
func (h *ChallengeHandler) Reconcile(c *gin.Context) {
	gameID, numeroH, valid := gameCaller(c)
	if !valid {
		return
	}
	report, err := h.svc.Reconcile(c.Request.Context(), gameID, numeroH)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if !report.Balanced {
		h.logger.Warn("对账不平", zap.Uint("gameID", gameID), zap.Strings("drift", report.Drift))
	}
	ok(c, http.StatusOK, report)
}
