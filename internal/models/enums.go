package models

import (
	"strings"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

// GameStatus 对局状态
type GameStatus string

const (
	GameStatusWaiting  GameStatus = "waiting"
	GameStatusActive   GameStatus = "active"
	GameStatusPaused   GameStatus = "paused"
	GameStatusFinished GameStatus = "finished"
)

// Valid 是否为合法状态
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusWaiting, GameStatusActive, GameStatusPaused, GameStatusFinished:
		return true
	}
	return false
}

// Joinable 当前状态下是否允许加入
func (s GameStatus) Joinable() bool {
	switch s {
	case GameStatusWaiting, GameStatusActive, GameStatusPaused:
		return true
	case GameStatusFinished:
		return false
	}
	return false
}

// PlayerRole 玩家角色
type PlayerRole string

const (
	RolePlayer1 PlayerRole = "player1"
	RolePlayer2 PlayerRole = "player2"
	RoleGuest   PlayerRole = "guest"
)

// ScoringRoles 计分角色，按分配顺序
var ScoringRoles = []PlayerRole{RolePlayer1, RolePlayer2}

// ParsePlayerRole 解析角色，空字符串表示自动分配
func ParsePlayerRole(s string) (PlayerRole, error) {
	r := PlayerRole(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case "", RolePlayer1, RolePlayer2, RoleGuest:
		return r, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidParam, "未知角色: %s", s)
}

// IsScoring 是否计分角色
func (r PlayerRole) IsScoring() bool {
	switch r {
	case RolePlayer1, RolePlayer2:
		return true
	case RoleGuest:
		return false
	}
	return false
}

// QuestionType 题目类型
type QuestionType string

const (
	QuestionText  QuestionType = "text"
	QuestionAudio QuestionType = "audio"
	QuestionVideo QuestionType = "video"
)

// ParseQuestionType 解析题目类型
func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case QuestionText, QuestionAudio, QuestionVideo:
		return t, nil
	case "":
		return QuestionText, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidParam, "未知题目类型: %s", s)
}

// NeedsMedia 是否需要媒体地址
func (t QuestionType) NeedsMedia() bool {
	switch t {
	case QuestionAudio, QuestionVideo:
		return true
	case QuestionText:
		return false
	}
	return false
}

// QuestionStatus 题目状态
type QuestionStatus string

const (
	QuestionPending   QuestionStatus = "pending"
	QuestionAnswered  QuestionStatus = "answered"
	QuestionValidated QuestionStatus = "validated" // 已裁决
	QuestionClosed    QuestionStatus = "closed"    // 未裁决直接关闭
)

// IsOpen 是否未关闭（阻止新提问）
func (s QuestionStatus) IsOpen() bool {
	switch s {
	case QuestionPending, QuestionAnswered:
		return true
	case QuestionValidated, QuestionClosed:
		return false
	}
	return false
}

// AnswerStatus 答案状态
type AnswerStatus string

const (
	AnswerPending          AnswerStatus = "pending"
	AnswerValidatedCorrect AnswerStatus = "validated_correct"
	AnswerValidatedWrong   AnswerStatus = "validated_wrong"
	AnswerRefused          AnswerStatus = "refused"
	AnswerVoided           AnswerStatus = "voided" // 题目被直接关闭，未结算
)

// IsFinal 是否已裁决
func (s AnswerStatus) IsFinal() bool {
	switch s {
	case AnswerValidatedCorrect, AnswerValidatedWrong, AnswerRefused, AnswerVoided:
		return true
	case AnswerPending:
		return false
	}
	return false
}

// TransactionType 流水类型
type TransactionType string

const (
	TxGain             TransactionType = "gain"
	TxPenalty          TransactionType = "penalty"
	TxDepositRecharge  TransactionType = "deposit_recharge"
	TxDepositPayment   TransactionType = "deposit_payment"
	TxVoluntaryRefusal TransactionType = "voluntary_refusal"
)

// Verdict 评委裁决
type Verdict string

const (
	VerdictCorrect Verdict = "correct"
	VerdictWrong   Verdict = "wrong"
)

// ParseVerdict 解析裁决
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VerdictCorrect, VerdictWrong:
		return v, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidParam, "未知裁决: %s", s)
}
