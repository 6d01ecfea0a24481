package challenge

import (
	"strings"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
)

// Submission 提交的答案
type Submission struct {
	QuestionID uint
	Content    string
	MediaURL   string
	Refusal    bool // 主动放弃作答
}

// Submit 提交答案或主动放弃
func (s *Session) Submit(a Actor, sub Submission) (*Outcome, error) {
	if s.Game.Status != models.GameStatusActive {
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能作答", s.Game.Status)
	}
	q := s.Question
	if q == nil || q.ID != sub.QuestionID || !q.Status.IsOpen() {
		return nil, apperrors.Newf(apperrors.ErrUnknownQuestion, "题目 %d 不是当前题目", sub.QuestionID)
	}

	p := s.player(a.NumeroH)
	if p == nil || !p.IsActive || !p.Role.IsScoring() {
		return nil, apperrors.Newf(apperrors.ErrNotParticipant, "%s 不是在场的计分玩家", a.NumeroH)
	}
	if s.eliminated(p) {
		return nil, apperrors.Newf(apperrors.ErrDebtLimitExceeded, "玩家 %s 负债次数已达上限，已出局", p.NumeroH)
	}
	if p.NumeroH == q.AskedBy {
		return nil, apperrors.New(apperrors.ErrPermissionDenied, "出题人不能回答自己的题目")
	}
	for _, existing := range s.Answers {
		if existing.NumeroH == p.NumeroH {
			return nil, apperrors.Newf(apperrors.ErrAlreadyAnswered, "%s 已回答题目 %d", p.NumeroH, q.ID)
		}
	}

	answer := &models.GameAnswer{
		GameID:             s.Game.ID,
		QuestionID:         q.ID,
		PlayerID:           p.ID,
		NumeroH:            p.NumeroH,
		IsVoluntaryRefusal: sub.Refusal,
		Status:             models.AnswerPending,
	}

	if sub.Refusal {
		// 已达负债上限的玩家放弃作答必然无法结算，提前拒绝
		if s.isDebtEvent(p, -s.rules.RefusalPenalty) && p.DebtCount >= s.rules.DebtCap {
			return nil, apperrors.Newf(apperrors.ErrDebtLimitExceeded,
				"玩家 %s 负债次数已达上限，不能放弃作答", p.NumeroH)
		}
	} else {
		content := strings.TrimSpace(sub.Content)
		mediaURL := strings.TrimSpace(sub.MediaURL)
		if content == "" && mediaURL == "" {
			return nil, apperrors.New(apperrors.ErrInvalidParam, "答案内容不能为空")
		}
		if mediaURL != "" {
			if err := ValidateMediaURL(mediaURL); err != nil {
				return nil, err
			}
		}
		if content != "" {
			answer.Content = &content
		}
		answer.MediaURL = mediaURL
	}

	q.Status = models.QuestionAnswered
	s.Answers = append(s.Answers, answer)

	o := &Outcome{Question: q, Answer: answer}
	o.emit(notify.KindAnswerSubmitted, s.Game.ID, p.NumeroH, map[string]interface{}{
		"question_id": q.ID,
		"refusal":     sub.Refusal,
	})
	return o, nil
}

// Validate 评委裁决答案。余额、奖池、流水、题目和回合在同一个 Outcome 中一起变更
func (s *Session) Validate(a Actor, answer *models.GameAnswer, verdict models.Verdict) (*Outcome, error) {
	if !a.Jury && !a.Admin {
		return nil, apperrors.Newf(apperrors.ErrNotJury, "%s 不是对局 %d 的评委", a.NumeroH, s.Game.ID)
	}
	if answer == nil || answer.GameID != s.Game.ID {
		return nil, apperrors.New(apperrors.ErrUnknownAnswer)
	}
	if answer.Status.IsFinal() {
		return nil, apperrors.Newf(apperrors.ErrAlreadyValidated, "答案 %d 状态: %s", answer.ID, answer.Status)
	}
	switch s.Game.Status {
	case models.GameStatusActive, models.GameStatusPaused:
	case models.GameStatusWaiting, models.GameStatusFinished:
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能裁决", s.Game.Status)
	}

	q := s.Question
	if q == nil || q.ID != answer.QuestionID {
		return nil, apperrors.Newf(apperrors.ErrUnknownQuestion, "答案 %d 对应的题目已关闭", answer.ID)
	}
	p := s.playerByID(answer.PlayerID)
	if p == nil {
		return nil, apperrors.Newf(apperrors.ErrNotParticipant, "答案 %d 的作答人不在名册中", answer.ID)
	}

	var (
		txType models.TransactionType
		status models.AnswerStatus
		amount int64
	)
	switch {
	case answer.IsVoluntaryRefusal:
		// 放弃作答不看裁决结果
		txType, status, amount = models.TxVoluntaryRefusal, models.AnswerRefused, -s.rules.RefusalPenalty
	case verdict == models.VerdictCorrect:
		txType, status, amount = models.TxGain, models.AnswerValidatedCorrect, s.rules.GainPoints
	case verdict == models.VerdictWrong:
		txType, status, amount = models.TxPenalty, models.AnswerValidatedWrong, -s.rules.WrongPenalty
	case verdict == "":
		return nil, apperrors.New(apperrors.ErrInvalidParam, "缺少裁决结果")
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "未知裁决: %s", verdict)
	}

	ledger := s.Ledger()
	entry := Entry{
		Type:      txType,
		Amount:    amount,
		Player:    p,
		Question:  q,
		Answer:    answer,
		CreatedBy: a.NumeroH,
	}

	// 可能失败的一步先执行，失败时内存状态保持不变
	var err error
	if amount > 0 {
		if entry.DepositBefore, entry.DepositAfter, err = ledger.Debit(amount); err != nil {
			return nil, err
		}
		entry.BalanceBefore, entry.BalanceAfter, _ = s.applyDelta(p, amount)
		entry.Description = "答对奖励"
	} else {
		if err = ledger.checkCapacity(-amount); err != nil {
			return nil, err
		}
		if entry.BalanceBefore, entry.BalanceAfter, err = s.applyDelta(p, amount); err != nil {
			return nil, err
		}
		entry.DepositBefore, entry.DepositAfter, _ = ledger.Credit(-amount)
		entry.Description = "答错扣分"
		if answer.IsVoluntaryRefusal {
			entry.Description = "放弃作答扣分"
		}
	}

	now := s.now()
	answer.Status = status
	answer.PointsEarned = amount
	answer.ValidatedBy = a.NumeroH
	answer.ValidatedAt = &now

	o := &Outcome{DepositChanged: true, Answer: answer, Entries: []Entry{entry}}
	o.touchPlayer(p)
	s.closeQuestion(o, models.QuestionValidated)

	o.emit(notify.KindAnswerValidated, s.Game.ID, p.NumeroH, map[string]interface{}{
		"answer_id": answer.ID,
		"status":    status,
		"points":    amount,
		"balance":   p.Balance,
		"deposit":   s.Deposit.CurrentAmount,
	})
	s.emitDepositLow(o)

	s.advanceTurn(o)
	return o, nil
}
