package challenge

import (
	"math"

	"github.com/google/uuid"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
)

// Entry 一条待追加的账本流水
type Entry struct {
	Type          models.TransactionType
	Amount        int64 // 玩家视角，有符号
	Player        *models.GamePlayer
	BalanceBefore int64
	BalanceAfter  int64
	DepositBefore int64
	DepositAfter  int64
	Question      *models.GameQuestion
	Answer        *models.GameAnswer
	CreatedBy     string
	Description   string
}

// Transaction 转换为流水行，需在关联行落库之后调用
func (e Entry) Transaction(gameID uint) *models.GameTransaction {
	tx := &models.GameTransaction{
		GameID:        gameID,
		OrderNo:       uuid.NewString(),
		Type:          e.Type,
		Amount:        e.Amount,
		DepositBefore: e.DepositBefore,
		DepositAfter:  e.DepositAfter,
		CreatedBy:     e.CreatedBy,
		Description:   e.Description,
	}
	if e.Player != nil {
		playerID, numeroH := e.Player.ID, e.Player.NumeroH
		before, after := e.BalanceBefore, e.BalanceAfter
		tx.PlayerID = &playerID
		tx.NumeroH = &numeroH
		tx.PlayerBalanceBefore = &before
		tx.PlayerBalanceAfter = &after
	}
	if e.Question != nil {
		id := e.Question.ID
		tx.QuestionID = &id
	}
	if e.Answer != nil {
		id := e.Answer.ID
		tx.AnswerID = &id
	}
	return tx
}

// Ledger 对局奖池
type Ledger struct {
	d *models.GameDeposit
}

// Ledger 当前对局的奖池
func (s *Session) Ledger() *Ledger {
	return &Ledger{d: s.Deposit}
}

// Current 当前余额
func (l *Ledger) Current() int64 {
	return l.d.CurrentAmount
}

// Debit 支付奖励，余额不能为负
func (l *Ledger) Debit(amount int64) (before, after int64, err error) {
	before = l.d.CurrentAmount
	if amount <= 0 {
		return before, before, apperrors.Newf(apperrors.ErrInvalidAmount, "扣减金额必须大于0: %d", amount)
	}
	if before < amount {
		return before, before, apperrors.Newf(apperrors.ErrInsufficientDeposit, "需要: %d, 当前: %d", amount, before)
	}
	l.d.CurrentAmount -= amount
	l.d.TotalGainsPaid += amount
	return before, l.d.CurrentAmount, nil
}

// Credit 收入罚分
func (l *Ledger) Credit(amount int64) (before, after int64, err error) {
	before = l.d.CurrentAmount
	if amount <= 0 {
		return before, before, apperrors.Newf(apperrors.ErrInvalidAmount, "入账金额必须大于0: %d", amount)
	}
	if err := l.checkCapacity(amount); err != nil {
		return before, before, err
	}
	l.d.CurrentAmount += amount
	l.d.TotalPenaltiesReceived += amount
	return before, l.d.CurrentAmount, nil
}

// Recharge 奖池充值，未结束的对局均可
func (s *Session) Recharge(a Actor, amount int64) (*Outcome, error) {
	if err := s.requireManager(a); err != nil {
		return nil, err
	}
	if err := s.requireNotFinished(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "充值金额必须大于0: %d", amount)
	}
	if s.rules.MaxRecharge > 0 && amount > s.rules.MaxRecharge {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "单次充值不能超过 %d: %d", s.rules.MaxRecharge, amount)
	}
	if overflows(s.Deposit.CurrentAmount, amount) || overflows(s.Deposit.TotalRecharged, amount) {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "充值金额 %d 超出奖池容量, 当前: %d", amount, s.Deposit.CurrentAmount)
	}

	now := s.now()
	d := s.Deposit
	before := d.CurrentAmount
	d.CurrentAmount += amount
	d.TotalRecharged += amount
	d.RechargeCount++
	d.LastRechargedBy = a.NumeroH
	d.LastRechargedAt = &now

	o := &Outcome{DepositChanged: true}
	o.Entries = append(o.Entries, Entry{
		Type:          models.TxDepositRecharge,
		Amount:        amount,
		DepositBefore: before,
		DepositAfter:  d.CurrentAmount,
		CreatedBy:     a.NumeroH,
		Description:   "奖池充值",
	})
	o.emit(notify.KindDepositRecharged, s.Game.ID, a.NumeroH, map[string]interface{}{
		"amount":  amount,
		"deposit": d.CurrentAmount,
		"count":   d.RechargeCount,
	})
	return o, nil
}

// checkCapacity 入账后余额和累计字段都不能溢出
func (l *Ledger) checkCapacity(amount int64) error {
	if overflows(l.d.CurrentAmount, amount) || overflows(l.d.TotalPenaltiesReceived, amount) {
		return apperrors.Newf(apperrors.ErrInvalidAmount, "入账金额 %d 超出奖池容量, 当前: %d", amount, l.d.CurrentAmount)
	}
	return nil
}

// overflows 两个非负数相加是否超出 int64
func overflows(current, amount int64) bool {
	return amount > math.MaxInt64-current
}

// emitDepositLow 奖池不足以支付下一次奖励或低于预警线时提醒
func (s *Session) emitDepositLow(o *Outcome) {
	current := s.Deposit.CurrentAmount
	if current >= s.rules.GainPoints && current >= s.rules.LowDepositThreshold {
		return
	}
	o.emit(notify.KindDepositLow, s.Game.ID, s.Game.JuryNumeroH, map[string]interface{}{
		"deposit":   current,
		"threshold": s.rules.LowDepositThreshold,
	})
}
