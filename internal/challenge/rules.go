// Package challenge 教育挑战赛的领域模型：对局状态机、成员名册、题目队列、答案裁决和奖池账本。
//
// Session 是聚合根。每个命令方法只修改内存中的行数据，并返回 Outcome
// 描述需要持久化的行、要追加的流水和提交后要分发的通知，由服务层在一个事务内落库。
package challenge

import (
	"github.com/wfunc/edu-challenge/internal/config"
)

// MaxDebtCap 负债次数硬上限
const MaxDebtCap = 2

// Rules 计分规则
type Rules struct {
	InitialDeposit      int64
	GainPoints          int64
	WrongPenalty        int64
	RefusalPenalty      int64
	DebtCap             int
	LowDepositThreshold int64
	MaxInitialDeposit   int64 // 0 表示不限，仍受 int64 溢出保护
	MaxRecharge         int64
}

// DefaultRules 默认规则
func DefaultRules() Rules {
	return Rules{
		InitialDeposit:      50000,
		GainPoints:          10000,
		WrongPenalty:        5000,
		RefusalPenalty:      10000,
		DebtCap:             MaxDebtCap,
		LowDepositThreshold: 10000,
		MaxInitialDeposit:   10000000,
		MaxRecharge:         10000000,
	}
}

// RulesFromConfig 从配置构建规则
func RulesFromConfig(cfg config.ChallengeConfig) Rules {
	r := Rules{
		InitialDeposit:      cfg.InitialDeposit,
		GainPoints:          cfg.GainPoints,
		WrongPenalty:        cfg.WrongPenalty,
		RefusalPenalty:      cfg.RefusalPenalty,
		DebtCap:             cfg.DebtCap,
		LowDepositThreshold: cfg.LowDepositThreshold,
		MaxInitialDeposit:   cfg.MaxInitialDeposit,
		MaxRecharge:         cfg.MaxRecharge,
	}
	if r.DebtCap <= 0 || r.DebtCap > MaxDebtCap {
		r.DebtCap = MaxDebtCap
	}
	return r
}
