package challenge

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
)

// Actor 命令发起人，Jury/Admin 由注入的授权策略判定
type Actor struct {
	NumeroH string
	Jury    bool
	Admin   bool
}

// Outcome 一次命令产生的全部变更
type Outcome struct {
	GameChanged    bool
	DepositChanged bool
	Players        []*models.GamePlayer // 新建或变更的成员
	Question       *models.GameQuestion // 新建或变更的题目
	Answer         *models.GameAnswer   // 新建或变更的答案
	Entries        []Entry              // 需要追加的流水
	Events         []notify.Event       // 提交后分发
}

func (o *Outcome) touchPlayer(p *models.GamePlayer) {
	for _, existing := range o.Players {
		if existing == p {
			return
		}
	}
	o.Players = append(o.Players, p)
}

func (o *Outcome) emit(kind notify.Kind, gameID uint, numeroH string, data map[string]interface{}) {
	o.Events = append(o.Events, notify.NewEvent(kind, gameID, numeroH, data))
}

// lifecycleEvent 生命周期事件
type lifecycleEvent string

const (
	eventStart  lifecycleEvent = "start"
	eventPause  lifecycleEvent = "pause"
	eventResume lifecycleEvent = "resume"
	eventFinish lifecycleEvent = "finish"
)

// transitions 状态转换表，键为 "from:event"
var transitions = map[string]models.GameStatus{
	transitionKey(models.GameStatusWaiting, eventStart):  models.GameStatusActive,
	transitionKey(models.GameStatusActive, eventPause):   models.GameStatusPaused,
	transitionKey(models.GameStatusPaused, eventResume):  models.GameStatusActive,
	transitionKey(models.GameStatusWaiting, eventFinish): models.GameStatusFinished,
	transitionKey(models.GameStatusActive, eventFinish):  models.GameStatusFinished,
	transitionKey(models.GameStatusPaused, eventFinish):  models.GameStatusFinished,
}

func transitionKey(from models.GameStatus, ev lifecycleEvent) string {
	return string(from) + ":" + string(ev)
}

// Session 对局聚合根
type Session struct {
	Game     *models.Game
	Players  []*models.GamePlayer // 按加入顺序
	Deposit  *models.GameDeposit
	Question *models.GameQuestion // 当前未关闭的题目
	Answers  []*models.GameAnswer // 当前题目的答案

	rules Rules
	now   func() time.Time
}

// Load 从已持久化的行组装聚合
func Load(rules Rules, game *models.Game, players []*models.GamePlayer, deposit *models.GameDeposit,
	question *models.GameQuestion, answers []*models.GameAnswer) *Session {
	sorted := make([]*models.GamePlayer, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].JoinOrder < sorted[j].JoinOrder })

	if question != nil && !question.Status.IsOpen() {
		question, answers = nil, nil
	}

	return &Session{
		Game:     game,
		Players:  sorted,
		Deposit:  deposit,
		Question: question,
		Answers:  answers,
		rules:    rules,
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试使用
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Rules 当前规则
func (s *Session) Rules() Rules {
	return s.rules
}

// NewSession 创建对局：开设奖池、记录入池流水并按顺序加入初始玩家
func NewSession(rules Rules, creator, jury string, players []string, depositAmount int64) (*Session, *Outcome, error) {
	creator = strings.TrimSpace(creator)
	jury = strings.TrimSpace(jury)
	if creator == "" {
		return nil, nil, apperrors.New(apperrors.ErrInvalidParam, "创建人不能为空")
	}
	if depositAmount < 0 {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidAmount, "奖池金额不能为负数: %d", depositAmount)
	}
	if depositAmount == 0 {
		depositAmount = rules.InitialDeposit
	}
	if rules.MaxInitialDeposit > 0 && depositAmount > rules.MaxInitialDeposit {
		return nil, nil, apperrors.Newf(apperrors.ErrInvalidAmount, "奖池金额不能超过 %d: %d", rules.MaxInitialDeposit, depositAmount)
	}

	s := &Session{
		Game: &models.Game{
			Status:        models.GameStatusWaiting,
			CurrentCycle:  1,
			DepositAmount: depositAmount,
			JuryNumeroH:   jury,
			CreatedBy:     creator,
		},
		Deposit: &models.GameDeposit{
			InitialAmount: depositAmount,
			CurrentAmount: depositAmount,
		},
		rules: rules,
		now:   time.Now,
	}

	o := &Outcome{GameChanged: true, DepositChanged: true}
	o.Entries = append(o.Entries, Entry{
		Type:          models.TxDepositPayment,
		Amount:        depositAmount,
		DepositBefore: 0,
		DepositAfter:  depositAmount,
		CreatedBy:     creator,
		Description:   "开设奖池",
	})

	for _, numeroH := range players {
		if _, err := s.join(o, strings.TrimSpace(numeroH), ""); err != nil {
			return nil, nil, err
		}
	}

	return s, o, nil
}

// canManage 创建人、评委或管理员可以管理对局
func (s *Session) canManage(a Actor) bool {
	return a.Admin || a.Jury || (a.NumeroH != "" && a.NumeroH == s.Game.CreatedBy)
}

func (s *Session) requireManager(a Actor) error {
	if !s.canManage(a) {
		return apperrors.Newf(apperrors.ErrPermissionDenied, "%s 无权管理对局 %d", a.NumeroH, s.Game.ID)
	}
	return nil
}

// next 查询状态转换，不修改状态
func (s *Session) next(ev lifecycleEvent) (models.GameStatus, error) {
	to, ok := transitions[transitionKey(s.Game.Status, ev)]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能执行 %s", s.Game.Status, ev)
	}
	return to, nil
}

func (s *Session) requireNotFinished() error {
	if s.Game.Status == models.GameStatusFinished {
		return apperrors.New(apperrors.ErrInvalidStateTransition, "对局已结束")
	}
	return nil
}

// AssignJury 指定评委，仅等待状态
func (s *Session) AssignJury(a Actor, jury string) (*Outcome, error) {
	if err := s.requireManager(a); err != nil {
		return nil, err
	}
	if s.Game.Status != models.GameStatusWaiting {
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能指定评委", s.Game.Status)
	}
	jury = strings.TrimSpace(jury)
	if jury == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "评委不能为空")
	}
	if s.player(jury) != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "%s 已是本局成员，不能担任评委", jury)
	}

	s.Game.JuryNumeroH = jury
	return &Outcome{GameChanged: true}, nil
}

// Start 开始对局，回合交给加入最早的计分玩家
func (s *Session) Start(a Actor) (*Outcome, error) {
	if err := s.requireManager(a); err != nil {
		return nil, err
	}
	to, err := s.next(eventStart)
	if err != nil {
		return nil, err
	}
	if s.Game.JuryNumeroH == "" {
		return nil, apperrors.New(apperrors.ErrInvalidStateTransition, "尚未指定评委")
	}
	eligible := s.eligiblePlayers()
	if len(eligible) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidStateTransition, "至少需要一名计分玩家")
	}

	now := s.now()
	s.Game.Status = to
	s.Game.CurrentCycle = 1
	s.Game.CurrentPlayerTurn = eligible[0].NumeroH
	s.Game.StartedAt = &now

	o := &Outcome{GameChanged: true}
	o.emit(notify.KindGameStarted, s.Game.ID, a.NumeroH, nil)
	o.emit(notify.KindTurnChanged, s.Game.ID, s.Game.CurrentPlayerTurn, map[string]interface{}{
		"to":    s.Game.CurrentPlayerTurn,
		"cycle": s.Game.CurrentCycle,
	})
	return o, nil
}

// Pause 暂停
func (s *Session) Pause(a Actor) (*Outcome, error) {
	return s.toggle(a, eventPause, notify.KindGamePaused)
}

// Resume 恢复
func (s *Session) Resume(a Actor) (*Outcome, error) {
	return s.toggle(a, eventResume, notify.KindGameResumed)
}

func (s *Session) toggle(a Actor, ev lifecycleEvent, kind notify.Kind) (*Outcome, error) {
	if err := s.requireManager(a); err != nil {
		return nil, err
	}
	to, err := s.next(ev)
	if err != nil {
		return nil, err
	}
	s.Game.Status = to

	o := &Outcome{GameChanged: true}
	o.emit(kind, s.Game.ID, a.NumeroH, nil)
	return o, nil
}

// Finish 结束对局，终态
func (s *Session) Finish(a Actor) (*Outcome, error) {
	if err := s.requireManager(a); err != nil {
		return nil, err
	}
	to, err := s.next(eventFinish)
	if err != nil {
		return nil, err
	}

	now := s.now()
	s.Game.Status = to
	s.Game.FinishedAt = &now

	o := &Outcome{GameChanged: true}
	o.emit(notify.KindGameFinished, s.Game.ID, a.NumeroH, map[string]interface{}{
		"cycle":   s.Game.CurrentCycle,
		"deposit": s.Deposit.CurrentAmount,
	})
	return o, nil
}

// AdvanceTurn 跳过当前回合
func (s *Session) AdvanceTurn(a Actor) (*Outcome, error) {
	if s.Game.Status != models.GameStatusActive {
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能切换回合", s.Game.Status)
	}
	if s.hasOpenQuestion() {
		return nil, apperrors.New(apperrors.ErrQuestionAlreadyOpen, "题目未关闭时不能跳过回合")
	}
	if !a.Jury && !a.Admin && a.NumeroH != s.Game.CurrentPlayerTurn {
		return nil, apperrors.Newf(apperrors.ErrPermissionDenied, "%s 不能跳过他人的回合", a.NumeroH)
	}

	o := &Outcome{}
	s.advanceTurn(o)
	return o, nil
}

// advanceTurn 按加入顺序在有效计分玩家之间轮转，回到第一位时轮次加一
func (s *Session) advanceTurn(o *Outcome) {
	from := s.Game.CurrentPlayerTurn
	eligible := s.eligiblePlayers()
	o.GameChanged = true

	if len(eligible) == 0 {
		s.Game.CurrentPlayerTurn = ""
		return
	}

	currentOrder := -1
	if p := s.player(from); p != nil {
		currentOrder = p.JoinOrder
	}

	var next *models.GamePlayer
	for _, p := range eligible {
		if p.JoinOrder > currentOrder {
			next = p
			break
		}
	}
	if next == nil {
		next = eligible[0]
		s.Game.CurrentCycle++
	}
	s.Game.CurrentPlayerTurn = next.NumeroH

	o.emit(notify.KindTurnChanged, s.Game.ID, next.NumeroH, map[string]interface{}{
		"from":  from,
		"to":    next.NumeroH,
		"cycle": s.Game.CurrentCycle,
	})
}

func (s *Session) hasOpenQuestion() bool {
	return s.Question != nil && s.Question.Status.IsOpen()
}
