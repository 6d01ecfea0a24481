package service

import (
	"context"

	"github.com/wfunc/edu-challenge/internal/challenge"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/repository"
)

// ChallengeService 挑战赛服务接口
type ChallengeService interface {
	// 对局管理
	CreateGame(ctx context.Context, creator string, req *CreateGameRequest) (*GameView, error)
	GetGame(ctx context.Context, gameID uint) (*GameView, error)
	ListGames(ctx context.Context, filter repository.GameFilter, page, pageSize int) ([]*models.Game, int64, error)
	AssignJury(ctx context.Context, gameID uint, numeroH, jury string) (*models.Game, error)

	// 生命周期
	Start(ctx context.Context, gameID uint, numeroH string) (*models.Game, error)
	Pause(ctx context.Context, gameID uint, numeroH string) (*models.Game, error)
	Resume(ctx context.Context, gameID uint, numeroH string) (*models.Game, error)
	Finish(ctx context.Context, gameID uint, numeroH string) (*models.Game, error)
	AdvanceTurn(ctx context.Context, gameID uint, numeroH string) (*models.Game, error)

	// 成员
	Join(ctx context.Context, gameID uint, numeroH string, role models.PlayerRole) (*models.GamePlayer, error)
	Leave(ctx context.Context, gameID uint, numeroH string) (*models.GamePlayer, error)

	// 题目与答案
	AskQuestion(ctx context.Context, gameID uint, numeroH string, req *AskQuestionRequest) (*models.GameQuestion, error)
	SubmitAnswer(ctx context.Context, gameID uint, numeroH string, req *SubmitAnswerRequest) (*models.GameAnswer, error)
	ValidateAnswer(ctx context.Context, gameID, answerID uint, numeroH string, verdict models.Verdict) (*ValidationResult, error)
	CloseQuestion(ctx context.Context, gameID uint, numeroH string) (*models.GameQuestion, error)

	// 奖池与账本
	RechargeDeposit(ctx context.Context, gameID uint, numeroH string, amount int64) (*models.GameDeposit, error)
	ListTransactions(ctx context.Context, gameID uint, filter repository.TransactionFilter, page, pageSize int) ([]*models.GameTransaction, int64, error)
	Reconcile(ctx context.Context, gameID uint, numeroH string) (*challenge.Report, error)
}

// CreateGameRequest 创建对局请求
type CreateGameRequest struct {
	JuryNumeroH   string   `json:"jury_numero_h"`
	Players       []string `json:"players"`
	DepositAmount int64    `json:"deposit_amount"` // 0 使用默认初始奖池
}

// AskQuestionRequest 出题请求
type AskQuestionRequest struct {
	Type     models.QuestionType `json:"type"`
	Content  string              `json:"content"`
	MediaURL string              `json:"media_url"`
}

// SubmitAnswerRequest 作答请求
type SubmitAnswerRequest struct {
	QuestionID uint   `json:"question_id"`
	Content    string `json:"content"`
	MediaURL   string `json:"media_url"`
	Refusal    bool   `json:"refusal"`
}

// GameView 对局完整状态
type GameView struct {
	Game     *models.Game         `json:"game"`
	Players  []*models.GamePlayer `json:"players"`
	Deposit  *models.GameDeposit  `json:"deposit"`
	Question *models.GameQuestion `json:"question,omitempty"`
	Answers  []*models.GameAnswer `json:"answers,omitempty"`
}

// ValidationResult 裁决结果
type ValidationResult struct {
	Answer      *models.GameAnswer      `json:"answer"`
	Player      *models.GamePlayer      `json:"player"`
	Deposit     *models.GameDeposit     `json:"deposit"`
	Transaction *models.GameTransaction `json:"transaction"`
	Game        *models.Game            `json:"game"`
}
