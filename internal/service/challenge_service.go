package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/edu-challenge/internal/auth"
	"github.com/wfunc/edu-challenge/internal/challenge"
	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/logger"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
	"github.com/wfunc/edu-challenge/internal/repository"
)

// command 在事务内对已加载的聚合执行一条命令
type command func(ctx context.Context, tx *repository.Transaction, s *challenge.Session, a challenge.Actor) (*challenge.Outcome, error)

// challengeService 挑战赛服务实现
type challengeService struct {
	repos      *repository.Manager
	policy     auth.AuthorizationPolicy
	dispatcher notify.Dispatcher
	locker     *challenge.GameLocker
	rules      challenge.Rules
	now        func() time.Time
	log        *zap.Logger
}

// NewChallengeService 创建挑战赛服务
func NewChallengeService(
	repos *repository.Manager,
	policy auth.AuthorizationPolicy,
	dispatcher notify.Dispatcher,
	rules challenge.Rules,
	log *zap.Logger,
) ChallengeService {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &challengeService{
		repos:      repos,
		policy:     policy,
		dispatcher: dispatcher,
		locker:     challenge.NewGameLocker(),
		rules:      rules,
		now:        time.Now,
		log:        log,
	}
}

// CreateGame 创建对局并开设奖池
func (s *challengeService) CreateGame(ctx context.Context, creator string, req *CreateGameRequest) (*GameView, error) {
	if req == nil {
		req = &CreateGameRequest{}
	}
	session, outcome, err := challenge.NewSession(s.rules, creator, req.JuryNumeroH, req.Players, req.DepositAmount)
	if err != nil {
		return nil, err
	}
	session.WithClock(s.now)

	var rows []*models.GameTransaction
	err = s.repos.WithTransaction(ctx, func(tx *repository.Transaction) error {
		if err := tx.Game().Create(ctx, session.Game); err != nil {
			return err
		}
		session.Deposit.GameID = session.Game.ID
		if err := tx.Deposit().Create(ctx, session.Deposit); err != nil {
			return err
		}
		// 对局和奖池已插入，其余变更走统一的落库流程
		outcome.GameChanged, outcome.DepositChanged = false, false

		rows, err = s.persist(ctx, tx, session, outcome)
		return err
	})
	if err != nil {
		s.log.Error("创建对局失败", zap.Error(err), zap.String("creator", creator))
		return nil, err
	}

	s.afterCommit(ctx, session.Game.ID, outcome, rows)
	s.log.Info("对局已创建",
		zap.Uint("gameID", session.Game.ID),
		zap.String("creator", session.Game.CreatedBy),
		zap.String("jury", session.Game.JuryNumeroH),
		zap.Int64("deposit", session.Deposit.InitialAmount),
	)
	return viewOf(session), nil
}

// GetGame 对局完整状态
func (s *challengeService) GetGame(ctx context.Context, gameID uint) (*GameView, error) {
	var view *GameView
	err := s.repos.WithReadOnlyTransaction(ctx, func(tx *repository.Transaction) error {
		session, err := s.load(ctx, tx, gameID, false)
		if err != nil {
			return err
		}
		view = viewOf(session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListGames 分页列出对局
func (s *challengeService) ListGames(ctx context.Context, filter repository.GameFilter, page, pageSize int) ([]*models.Game, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperrors.Newf(apperrors.ErrInvalidParam, "未知对局状态: %s", filter.Status)
	}
	pagination := repository.NewPagination(page, pageSize)
	games, err := s.repos.Game().List(ctx, filter, pagination)
	if err != nil {
		return nil, 0, err
	}
	return games, pagination.Total, nil
}

// AssignJury 指定评委
func (s *challengeService) AssignJury(ctx context.Context, gameID uint, numeroH, jury string) (*models.Game, error) {
	res, err := s.execute(ctx, "assign_jury", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.AssignJury(a, jury)
		})
	if err != nil {
		return nil, err
	}
	return res.session.Game, nil
}

// Start 开始对局
func (s *challengeService) Start(ctx context.Context, gameID uint, numeroH string) (*models.Game, error) {
	return s.lifecycle(ctx, "start", gameID, numeroH, (*challenge.Session).Start)
}

// Pause 暂停对局
func (s *challengeService) Pause(ctx context.Context, gameID uint, numeroH string) (*models.Game, error) {
	return s.lifecycle(ctx, "pause", gameID, numeroH, (*challenge.Session).Pause)
}

// Resume 恢复对局
func (s *challengeService) Resume(ctx context.Context, gameID uint, numeroH string) (*models.Game, error) {
	return s.lifecycle(ctx, "resume", gameID, numeroH, (*challenge.Session).Resume)
}

// Finish 结束对局
func (s *challengeService) Finish(ctx context.Context, gameID uint, numeroH string) (*models.Game, error) {
	return s.lifecycle(ctx, "finish", gameID, numeroH, (*challenge.Session).Finish)
}

// AdvanceTurn 跳过当前回合
func (s *challengeService) AdvanceTurn(ctx context.Context, gameID uint, numeroH string) (*models.Game, error) {
	return s.lifecycle(ctx, "advance_turn", gameID, numeroH, (*challenge.Session).AdvanceTurn)
}

func (s *challengeService) lifecycle(ctx context.Context, op string, gameID uint, numeroH string,
	fn func(*challenge.Session, challenge.Actor) (*challenge.Outcome, error)) (*models.Game, error) {
	res, err := s.execute(ctx, op, gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return fn(ss, a)
		})
	if err != nil {
		return nil, err
	}
	return res.session.Game, nil
}

// Join 加入对局
func (s *challengeService) Join(ctx context.Context, gameID uint, numeroH string, role models.PlayerRole) (*models.GamePlayer, error) {
	res, err := s.execute(ctx, "join", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.Join(a, role)
		})
	if err != nil {
		return nil, err
	}
	return findPlayer(res.outcome.Players, numeroH), nil
}

// Leave 离开对局
func (s *challengeService) Leave(ctx context.Context, gameID uint, numeroH string) (*models.GamePlayer, error) {
	res, err := s.execute(ctx, "leave", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.Leave(a)
		})
	if err != nil {
		return nil, err
	}
	return findPlayer(res.outcome.Players, numeroH), nil
}

// AskQuestion 出题
func (s *challengeService) AskQuestion(ctx context.Context, gameID uint, numeroH string, req *AskQuestionRequest) (*models.GameQuestion, error) {
	if req == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "出题内容不能为空")
	}
	res, err := s.execute(ctx, "ask", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.Ask(a, req.Type, req.Content, req.MediaURL)
		})
	if err != nil {
		return nil, err
	}
	return res.outcome.Question, nil
}

// SubmitAnswer 作答或放弃
func (s *challengeService) SubmitAnswer(ctx context.Context, gameID uint, numeroH string, req *SubmitAnswerRequest) (*models.GameAnswer, error) {
	if req == nil {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "答案不能为空")
	}
	res, err := s.execute(ctx, "submit", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.Submit(a, challenge.Submission{
				QuestionID: req.QuestionID,
				Content:    req.Content,
				MediaURL:   req.MediaURL,
				Refusal:    req.Refusal,
			})
		})
	if err != nil {
		return nil, err
	}
	return res.outcome.Answer, nil
}

// ValidateAnswer 评委裁决。余额、奖池、流水、题目和回合在同一个事务中提交
func (s *challengeService) ValidateAnswer(ctx context.Context, gameID, answerID uint, numeroH string, verdict models.Verdict) (*ValidationResult, error) {
	res, err := s.execute(ctx, "validate", gameID, numeroH,
		func(ctx context.Context, tx *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			answer, err := s.lookupAnswer(ctx, tx, ss, answerID)
			if err != nil {
				return nil, err
			}
			if !answer.Status.IsFinal() {
				// 待裁决的答案不应已有流水
				count, err := tx.Ledger().CountByAnswer(ctx, answer.ID)
				if err != nil {
					return nil, err
				}
				if count > 0 {
					return nil, apperrors.Newf(apperrors.ErrAlreadyValidated, "答案 %d 已有 %d 条流水", answer.ID, count)
				}
			}
			return ss.Validate(a, answer, verdict)
		})
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Answer:  res.outcome.Answer,
		Deposit: res.session.Deposit,
		Game:    res.session.Game,
	}
	if res.outcome.Answer != nil {
		result.Player = findPlayerByID(res.session.Players, res.outcome.Answer.PlayerID)
	}
	if len(res.rows) > 0 {
		result.Transaction = res.rows[0]
	}
	return result, nil
}

// CloseQuestion 评委或管理员关闭当前题目，未裁决的答案作废，不记流水
func (s *challengeService) CloseQuestion(ctx context.Context, gameID uint, numeroH string) (*models.GameQuestion, error) {
	res, err := s.execute(ctx, "close_question", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.CloseQuestion(a)
		})
	if err != nil {
		return nil, err
	}
	return res.outcome.Question, nil
}

// lookupAnswer 先在当前题目的答案中查找，找不到时读库，以便对已结算的答案返回 AlreadyValidated
func (s *challengeService) lookupAnswer(ctx context.Context, tx *repository.Transaction, ss *challenge.Session, answerID uint) (*models.GameAnswer, error) {
	for _, answer := range ss.Answers {
		if answer.ID == answerID {
			return answer, nil
		}
	}
	answer, err := tx.Answer().GetByID(ctx, answerID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Newf(apperrors.ErrUnknownAnswer, "答案 %d 不存在", answerID)
		}
		return nil, err
	}
	if answer.GameID != ss.Game.ID {
		return nil, apperrors.Newf(apperrors.ErrUnknownAnswer, "答案 %d 不属于对局 %d", answerID, ss.Game.ID)
	}
	return answer, nil
}

// RechargeDeposit 奖池充值
func (s *challengeService) RechargeDeposit(ctx context.Context, gameID uint, numeroH string, amount int64) (*models.GameDeposit, error) {
	res, err := s.execute(ctx, "recharge", gameID, numeroH,
		func(_ context.Context, _ *repository.Transaction, ss *challenge.Session, a challenge.Actor) (*challenge.Outcome, error) {
			return ss.Recharge(a, amount)
		})
	if err != nil {
		return nil, err
	}
	return res.session.Deposit, nil
}

// ListTransactions 按写入顺序分页列出流水
func (s *challengeService) ListTransactions(ctx context.Context, gameID uint, filter repository.TransactionFilter, page, pageSize int) ([]*models.GameTransaction, int64, error) {
	if _, err := s.repos.Game().GetByID(ctx, gameID); err != nil {
		return nil, 0, err
	}
	pagination := repository.NewPagination(page, pageSize)
	txs, err := s.repos.Ledger().ListByGame(ctx, gameID, filter, pagination)
	if err != nil {
		return nil, 0, err
	}
	return txs, pagination.Total, nil
}

// Reconcile 核对余额与流水，仅评委或管理员
func (s *challengeService) Reconcile(ctx context.Context, gameID uint, numeroH string) (*challenge.Report, error) {
	a, err := s.actor(ctx, gameID, numeroH)
	if err != nil {
		return nil, err
	}
	if !a.Jury && !a.Admin {
		return nil, apperrors.Newf(apperrors.ErrNotJury, "%s 无权对账", numeroH)
	}

	var report *challenge.Report
	err = s.repos.WithReadOnlyTransaction(ctx, func(tx *repository.Transaction) error {
		deposit, err := tx.Deposit().GetByGame(ctx, gameID)
		if err != nil {
			return err
		}
		players, err := tx.Player().ListByGame(ctx, gameID)
		if err != nil {
			return err
		}
		byPlayer, err := tx.Ledger().SumByPlayer(ctx, gameID)
		if err != nil {
			return err
		}
		delta, err := tx.Ledger().SumDepositDelta(ctx, gameID)
		if err != nil {
			return err
		}
		report = challenge.Reconcile(deposit, players, challenge.Sums{ByPlayer: byPlayer, DepositDelta: delta})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !report.Balanced {
		s.log.Error("对账发现偏差",
			zap.Error(apperrors.Newf(apperrors.ErrLedgerDrift, "对局 %d 账目不平", gameID)),
			zap.Uint("gameID", gameID),
			zap.Strings("drift", report.Drift),
		)
	}
	return report, nil
}

// executed 已提交的命令结果
type executed struct {
	session *challenge.Session
	outcome *challenge.Outcome
	rows    []*models.GameTransaction
}

// execute 执行命令，提交并释放对局锁之后再分发通知
func (s *challengeService) execute(ctx context.Context, op string, gameID uint, numeroH string, cmd command) (*executed, error) {
	res, err := s.commit(ctx, gameID, numeroH, cmd)
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.String("op", op), zap.Uint("gameID", gameID), zap.String("numeroH", numeroH)}
		if apperrors.Category(err) == apperrors.KindInternal {
			s.log.Error("对局命令失败", fields...)
		} else {
			s.log.Debug("对局命令被拒绝", fields...)
		}
		return nil, err
	}

	s.afterCommit(ctx, gameID, res.outcome, res.rows)
	return res, nil
}

// commit 持有对局锁：判定身份、在事务中加载聚合、执行命令并落库
func (s *challengeService) commit(ctx context.Context, gameID uint, numeroH string, cmd command) (*executed, error) {
	unlock, err := s.locker.Acquire(ctx, gameID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 授权查询走非事务连接，必须在开启事务之前完成
	a, err := s.actor(ctx, gameID, numeroH)
	if err != nil {
		return nil, err
	}

	res := &executed{}
	err = s.repos.WithTransaction(ctx, func(tx *repository.Transaction) error {
		var err error
		if res.session, err = s.load(ctx, tx, gameID, true); err != nil {
			return err
		}
		if res.outcome, err = cmd(ctx, tx, res.session, a); err != nil {
			return err
		}
		res.rows, err = s.persist(ctx, tx, res.session, res.outcome)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// actor 通过授权策略判定发起人身份
func (s *challengeService) actor(ctx context.Context, gameID uint, numeroH string) (challenge.Actor, error) {
	a := challenge.Actor{NumeroH: numeroH}
	if numeroH == "" {
		return a, apperrors.New(apperrors.ErrAuthentication, "缺少身份信息")
	}
	var err error
	if a.Jury, err = s.policy.IsJury(ctx, numeroH, gameID); err != nil {
		return a, err
	}
	if a.Admin, err = s.policy.IsAdmin(ctx, numeroH); err != nil {
		return a, err
	}
	return a, nil
}

// load 在事务中读取对局的全部行并组装聚合，forUpdate 时对对局、奖池和成员加行锁
func (s *challengeService) load(ctx context.Context, tx *repository.Transaction, gameID uint, forUpdate bool) (*challenge.Session, error) {
	var (
		game    *models.Game
		deposit *models.GameDeposit
		players []*models.GamePlayer
		err     error
	)
	if forUpdate {
		game, err = tx.Game().GetForUpdate(ctx, gameID)
	} else {
		game, err = tx.Game().GetByID(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}
	if forUpdate {
		deposit, err = tx.Deposit().GetByGameForUpdate(ctx, gameID)
	} else {
		deposit, err = tx.Deposit().GetByGame(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}
	if forUpdate {
		players, err = tx.Player().ListByGameForUpdate(ctx, gameID)
	} else {
		players, err = tx.Player().ListByGame(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}

	question, err := tx.Question().OpenByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	var answers []*models.GameAnswer
	if question != nil {
		if answers, err = tx.Answer().ListByQuestion(ctx, question.ID); err != nil {
			return nil, err
		}
	}

	return challenge.Load(s.rules, game, players, deposit, question, answers).WithClock(s.now), nil
}

// persist 按依赖顺序写入 Outcome：对局、成员、奖池、题目、答案，最后追加流水
func (s *challengeService) persist(ctx context.Context, tx *repository.Transaction, session *challenge.Session, o *challenge.Outcome) ([]*models.GameTransaction, error) {
	gameID := session.Game.ID

	if o.GameChanged {
		if err := tx.Game().Save(ctx, session.Game); err != nil {
			return nil, err
		}
	}
	for _, p := range o.Players {
		p.GameID = gameID
		if err := tx.Player().Save(ctx, p); err != nil {
			return nil, err
		}
	}
	if o.DepositChanged {
		if err := tx.Deposit().Save(ctx, session.Deposit); err != nil {
			return nil, err
		}
	}
	if o.Question != nil {
		o.Question.GameID = gameID
		if err := tx.Question().Save(ctx, o.Question); err != nil {
			return nil, err
		}
	}
	if o.Answer != nil {
		o.Answer.GameID = gameID
		if o.Answer.QuestionID == 0 && o.Question != nil {
			o.Answer.QuestionID = o.Question.ID
		}
		if err := tx.Answer().Save(ctx, o.Answer); err != nil {
			return nil, err
		}
	}

	rows := make([]*models.GameTransaction, 0, len(o.Entries))
	for _, entry := range o.Entries {
		row := entry.Transaction(gameID)
		if err := tx.Ledger().Append(ctx, row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// afterCommit 记录流水日志并分发通知，只在事务提交后调用
func (s *challengeService) afterCommit(ctx context.Context, gameID uint, o *challenge.Outcome, rows []*models.GameTransaction) {
	for _, row := range rows {
		numeroH := ""
		if row.NumeroH != nil {
			numeroH = *row.NumeroH
		}
		logger.LogLedgerEntry(gameID, string(row.Type), numeroH, row.Amount, row.DepositBefore, row.DepositAfter)
	}
	for _, ev := range o.Events {
		if ev.GameID == 0 {
			ev.GameID = gameID
		}
		logger.LogChallengeEvent(string(ev.Kind), ev.GameID, ev.NumeroH, ev.Data)
		s.dispatcher.Dispatch(ctx, ev)
	}
}

func viewOf(session *challenge.Session) *GameView {
	return &GameView{
		Game:     session.Game,
		Players:  session.Players,
		Deposit:  session.Deposit,
		Question: session.Question,
		Answers:  session.Answers,
	}
}

func findPlayer(players []*models.GamePlayer, numeroH string) *models.GamePlayer {
	for _, p := range players {
		if p.NumeroH == numeroH {
			return p
		}
	}
	return nil
}

func findPlayerByID(players []*models.GamePlayer, id uint) *models.GamePlayer {
	for _, p := range players {
		if p.ID == id {
			return p
		}
	}
	return nil
}
