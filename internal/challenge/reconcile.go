package challenge

import (
	"fmt"

	"github.com/wfunc/edu-challenge/internal/models"
)

// PlayerCheck 单个玩家的对账结果
type PlayerCheck struct {
	PlayerID       uint   `json:"player_id"`
	NumeroH        string `json:"numero_h"`
	Balance        int64  `json:"balance"`
	TransactionSum int64  `json:"transaction_sum"`
	OK             bool   `json:"ok"`
}

// Report 对账报告
type Report struct {
	GameID          uint          `json:"game_id"`
	Balanced        bool          `json:"balanced"`
	Players         []PlayerCheck `json:"players"`
	DepositCurrent  int64         `json:"deposit_current"`
	DepositExpected int64         `json:"deposit_expected"` // initial - gains + penalties + recharges
	DepositLogged   int64         `json:"deposit_logged"`   // initial + 流水中的奖池变动
	Drift           []string      `json:"drift,omitempty"`
}

// Sums 流水汇总
type Sums struct {
	ByPlayer     map[uint]int64 // 玩家流水金额合计
	DepositDelta int64          // 除入池流水外的奖池变动合计
}

// Reconcile 核对余额与流水
func Reconcile(deposit *models.GameDeposit, players []*models.GamePlayer, sums Sums) *Report {
	r := &Report{
		GameID:          deposit.GameID,
		Balanced:        true,
		DepositCurrent:  deposit.CurrentAmount,
		DepositExpected: deposit.ExpectedAmount(),
		DepositLogged:   deposit.InitialAmount + sums.DepositDelta,
	}

	for _, p := range players {
		check := PlayerCheck{
			PlayerID:       p.ID,
			NumeroH:        p.NumeroH,
			Balance:        p.Balance,
			TransactionSum: sums.ByPlayer[p.ID],
		}
		check.OK = check.Balance == check.TransactionSum
		if !check.OK {
			r.Balanced = false
			r.Drift = append(r.Drift, fmt.Sprintf("玩家 %s 余额 %d 与流水合计 %d 不一致",
				p.NumeroH, check.Balance, check.TransactionSum))
		}
		r.Players = append(r.Players, check)
	}

	if r.DepositCurrent != r.DepositExpected {
		r.Balanced = false
		r.Drift = append(r.Drift, fmt.Sprintf("奖池余额 %d 与累计字段推算 %d 不一致",
			r.DepositCurrent, r.DepositExpected))
	}
	if r.DepositCurrent != r.DepositLogged {
		r.Balanced = false
		r.Drift = append(r.Drift, fmt.Sprintf("奖池余额 %d 与流水推算 %d 不一致",
			r.DepositCurrent, r.DepositLogged))
	}

	return r
}
