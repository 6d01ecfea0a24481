package models

import (
	"time"

	"gorm.io/gorm"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

// GameDeposit 对局奖池表（与对局一对一）
type GameDeposit struct {
	BaseModel
	GameID                 uint       `gorm:"not null;uniqueIndex" json:"game_id"`
	InitialAmount          int64      `gorm:"not null" json:"initial_amount"`
	CurrentAmount          int64      `gorm:"not null" json:"current_amount"`
	TotalGainsPaid         int64      `gorm:"not null" json:"total_gains_paid"`
	TotalPenaltiesReceived int64      `gorm:"not null" json:"total_penalties_received"`
	TotalRecharged         int64      `gorm:"not null" json:"total_recharged"`
	RechargeCount          int        `gorm:"not null" json:"recharge_count"`
	LastRechargedBy        string     `gorm:"size:64" json:"last_recharged_by,omitempty"`
	LastRechargedAt        *time.Time `json:"last_recharged_at,omitempty"`
}

// TableName 指定表名
func (GameDeposit) TableName() string {
	return "game_deposits"
}

// ExpectedAmount 按累计字段推算的奖池余额
func (d *GameDeposit) ExpectedAmount() int64 {
	return d.InitialAmount - d.TotalGainsPaid + d.TotalPenaltiesReceived + d.TotalRecharged
}

// GameTransaction 对局流水表（只追加）
type GameTransaction struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	GameID              uint            `gorm:"not null;index" json:"game_id"`
	OrderNo             string          `gorm:"uniqueIndex;size:64;not null" json:"order_no"`
	Type                TransactionType `gorm:"size:30;not null;index" json:"type"`
	Amount              int64           `gorm:"not null" json:"amount"` // 玩家视角的有符号金额
	PlayerID            *uint           `gorm:"index" json:"player_id,omitempty"`
	NumeroH             *string         `gorm:"size:64;index" json:"numero_h,omitempty"`
	PlayerBalanceBefore *int64          `json:"player_balance_before,omitempty"`
	PlayerBalanceAfter  *int64          `json:"player_balance_after,omitempty"`
	DepositBefore       int64           `gorm:"not null" json:"deposit_before"`
	DepositAfter        int64           `gorm:"not null" json:"deposit_after"`
	QuestionID          *uint           `json:"question_id,omitempty"`
	AnswerID            *uint           `gorm:"index" json:"answer_id,omitempty"`
	CreatedBy           string          `gorm:"size:64" json:"created_by"`
	Description         string          `gorm:"size:255" json:"description,omitempty"`
	Metadata            JSONMap         `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// TableName 指定表名
func (GameTransaction) TableName() string {
	return "game_transactions"
}

// BeforeUpdate 流水不可修改
func (t *GameTransaction) BeforeUpdate(tx *gorm.DB) error {
	return apperrors.New(apperrors.ErrDataIntegrity, "流水只能追加")
}

// BeforeDelete 流水不可删除
func (t *GameTransaction) BeforeDelete(tx *gorm.DB) error {
	return apperrors.New(apperrors.ErrDataIntegrity, "流水只能追加")
}

// DepositDelta 本条流水对奖池的影响
func (t *GameTransaction) DepositDelta() int64 {
	return t.DepositAfter - t.DepositBefore
}
