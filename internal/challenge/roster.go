package challenge

import (
	"strings"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
)

// Join 加入对局。前两名计分加入者依次成为 player1/player2，之后为观众
func (s *Session) Join(a Actor, role models.PlayerRole) (*Outcome, error) {
	o := &Outcome{}
	if _, err := s.join(o, strings.TrimSpace(a.NumeroH), role); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Session) join(o *Outcome, numeroH string, role models.PlayerRole) (*models.GamePlayer, error) {
	if numeroH == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "numero_h不能为空")
	}
	if !s.Game.Status.Joinable() {
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能加入", s.Game.Status)
	}
	if numeroH == s.Game.JuryNumeroH {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "评委不能作为玩家加入")
	}

	if existing := s.player(numeroH); existing != nil {
		if existing.IsActive {
			return nil, apperrors.Newf(apperrors.ErrAlreadyExists, "%s 已在对局中", numeroH)
		}
		// 离开后重新加入，沿用原角色和余额
		existing.IsActive = true
		existing.LeftAt = nil
		o.touchPlayer(existing)
		s.afterJoin(o, existing)
		return existing, nil
	}

	assigned, err := s.assignRole(role)
	if err != nil {
		return nil, err
	}

	p := &models.GamePlayer{
		GameID:    s.Game.ID,
		NumeroH:   numeroH,
		Role:      assigned,
		IsActive:  true,
		JoinOrder: len(s.Players),
	}
	s.Players = append(s.Players, p)
	o.touchPlayer(p)
	s.afterJoin(o, p)
	return p, nil
}

func (s *Session) afterJoin(o *Outcome, p *models.GamePlayer) {
	o.emit(notify.KindPlayerJoined, s.Game.ID, p.NumeroH, map[string]interface{}{
		"role": p.Role,
	})
	// 进行中的对局没人持有回合时，交给新加入的计分玩家
	if s.Game.Status == models.GameStatusActive && s.Game.CurrentPlayerTurn == "" && p.Role.IsScoring() {
		s.advanceTurn(o)
	}
}

// assignRole 分配角色，计分角色一经分配不回收
func (s *Session) assignRole(requested models.PlayerRole) (models.PlayerRole, error) {
	switch requested {
	case models.RoleGuest:
		return models.RoleGuest, nil
	case models.RolePlayer1, models.RolePlayer2:
		if s.roleTaken(requested) {
			return "", apperrors.Newf(apperrors.ErrAlreadyExists, "角色 %s 已被占用", requested)
		}
		return requested, nil
	case "":
		for _, r := range models.ScoringRoles {
			if !s.roleTaken(r) {
				return r, nil
			}
		}
		return models.RoleGuest, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidParam, "未知角色: %s", requested)
}

func (s *Session) roleTaken(role models.PlayerRole) bool {
	for _, p := range s.Players {
		if p.Role == role {
			return true
		}
	}
	return false
}

// Leave 离开对局，成员记录保留
func (s *Session) Leave(a Actor) (*Outcome, error) {
	if err := s.requireNotFinished(); err != nil {
		return nil, err
	}
	p := s.player(a.NumeroH)
	if p == nil || !p.IsActive {
		return nil, apperrors.Newf(apperrors.ErrNotParticipant, "%s 不在对局中", a.NumeroH)
	}

	now := s.now()
	p.IsActive = false
	p.LeftAt = &now

	o := &Outcome{}
	o.touchPlayer(p)
	o.emit(notify.KindPlayerLeft, s.Game.ID, p.NumeroH, map[string]interface{}{"role": p.Role})

	if s.Game.CurrentPlayerTurn == p.NumeroH && !s.hasOpenQuestion() {
		switch s.Game.Status {
		case models.GameStatusActive, models.GameStatusPaused:
			s.advanceTurn(o)
		case models.GameStatusWaiting, models.GameStatusFinished:
		}
	}
	return o, nil
}

// ApplyDelta 变动玩家余额。结果为负的扣减算一次负债，达到上限后拒绝
func (s *Session) ApplyDelta(numeroH string, amount int64) (*Outcome, error) {
	p := s.player(numeroH)
	if p == nil {
		return nil, apperrors.Newf(apperrors.ErrNotParticipant, "%s 不在对局中", numeroH)
	}
	if _, _, err := s.applyDelta(p, amount); err != nil {
		return nil, err
	}
	o := &Outcome{}
	o.touchPlayer(p)
	return o, nil
}

func (s *Session) applyDelta(p *models.GamePlayer, amount int64) (before, after int64, err error) {
	before = p.Balance
	after = before + amount
	if s.isDebtEvent(p, amount) {
		if p.DebtCount >= s.rules.DebtCap {
			return before, before, apperrors.Newf(apperrors.ErrDebtLimitExceeded,
				"玩家 %s 负债次数 %d 已达上限 %d", p.NumeroH, p.DebtCount, s.rules.DebtCap)
		}
		p.DebtCount++
	}
	p.Balance = after
	return before, after, nil
}

func (s *Session) isDebtEvent(p *models.GamePlayer, amount int64) bool {
	return amount < 0 && p.Balance+amount < 0
}

// eliminated 负债次数已满且余额为负，任何扣分都无法结算，不再参与轮转和作答
func (s *Session) eliminated(p *models.GamePlayer) bool {
	return p.DebtCount >= s.rules.DebtCap && p.Balance < 0
}

// Eliminated 玩家是否已出局
func (s *Session) Eliminated(numeroH string) (bool, error) {
	p := s.player(numeroH)
	if p == nil {
		return false, apperrors.Newf(apperrors.ErrNotParticipant, "%s 不在对局中", numeroH)
	}
	return s.eliminated(p), nil
}

// Balance 玩家余额
func (s *Session) Balance(numeroH string) (int64, error) {
	p := s.player(numeroH)
	if p == nil {
		return 0, apperrors.Newf(apperrors.ErrNotParticipant, "%s 不在对局中", numeroH)
	}
	return p.Balance, nil
}

// DebtCount 玩家负债次数
func (s *Session) DebtCount(numeroH string) (int, error) {
	p := s.player(numeroH)
	if p == nil {
		return 0, apperrors.Newf(apperrors.ErrNotParticipant, "%s 不在对局中", numeroH)
	}
	return p.DebtCount, nil
}

func (s *Session) player(numeroH string) *models.GamePlayer {
	if numeroH == "" {
		return nil
	}
	for _, p := range s.Players {
		if p.NumeroH == numeroH {
			return p
		}
	}
	return nil
}

func (s *Session) playerByID(id uint) *models.GamePlayer {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// eligiblePlayers 在场且未出局的计分玩家，按加入顺序
func (s *Session) eligiblePlayers() []*models.GamePlayer {
	out := make([]*models.GamePlayer, 0, len(models.ScoringRoles))
	for _, p := range s.Players {
		if p.IsActive && p.Role.IsScoring() && !s.eliminated(p) {
			out = append(out, p)
		}
	}
	return out
}
