package challenge

import (
	"net/url"
	"strings"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
	"github.com/wfunc/edu-challenge/internal/notify"
)

const maxMediaURLLength = 1024

// Ask 当前回合玩家出题
func (s *Session) Ask(a Actor, qType models.QuestionType, content, mediaURL string) (*Outcome, error) {
	if s.Game.Status != models.GameStatusActive {
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能出题", s.Game.Status)
	}
	if a.NumeroH == "" || a.NumeroH != s.Game.CurrentPlayerTurn {
		return nil, apperrors.Newf(apperrors.ErrNotYourTurn, "当前回合: %s", s.Game.CurrentPlayerTurn)
	}
	if s.hasOpenQuestion() {
		return nil, apperrors.Newf(apperrors.ErrQuestionAlreadyOpen, "题目 %d 尚未关闭", s.Question.ID)
	}

	content = strings.TrimSpace(content)
	mediaURL = strings.TrimSpace(mediaURL)
	switch qType {
	case models.QuestionText, models.QuestionAudio, models.QuestionVideo:
	default:
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "未知题目类型: %s", qType)
	}
	if !qType.NeedsMedia() && content == "" {
		return nil, apperrors.New(apperrors.ErrInvalidParam, "文字题内容不能为空")
	}
	if qType.NeedsMedia() || mediaURL != "" {
		if err := ValidateMediaURL(mediaURL); err != nil {
			return nil, err
		}
	}

	q := &models.GameQuestion{
		GameID:      s.Game.ID,
		AskedBy:     a.NumeroH,
		Type:        qType,
		Content:     content,
		MediaURL:    mediaURL,
		CycleNumber: s.Game.CurrentCycle,
		Status:      models.QuestionPending,
	}
	s.Question = q
	s.Answers = nil

	o := &Outcome{Question: q}
	o.emit(notify.KindQuestionAsked, s.Game.ID, a.NumeroH, map[string]interface{}{
		"type":  qType,
		"cycle": q.CycleNumber,
	})
	return o, nil
}

// CloseQuestion 评委或管理员直接关闭当前题目。未裁决的答案作废，不产生流水，回合照常轮转
func (s *Session) CloseQuestion(a Actor) (*Outcome, error) {
	if !a.Jury && !a.Admin {
		return nil, apperrors.Newf(apperrors.ErrNotJury, "%s 不是对局 %d 的评委", a.NumeroH, s.Game.ID)
	}
	switch s.Game.Status {
	case models.GameStatusActive, models.GameStatusPaused:
	case models.GameStatusWaiting, models.GameStatusFinished:
		return nil, apperrors.Newf(apperrors.ErrInvalidStateTransition, "%s 状态下不能关闭题目", s.Game.Status)
	}
	if !s.hasOpenQuestion() {
		return nil, apperrors.New(apperrors.ErrUnknownQuestion, "当前没有未关闭的题目")
	}

	now := s.now()
	o := &Outcome{}
	voided := 0
	for _, answer := range s.Answers {
		if answer.Status.IsFinal() {
			continue
		}
		answer.Status = models.AnswerVoided
		answer.ValidatedBy = a.NumeroH
		answer.ValidatedAt = &now
		o.Answer = answer
		voided++
	}

	q := s.Question
	s.closeQuestion(o, models.QuestionClosed)
	o.emit(notify.KindQuestionClosed, s.Game.ID, a.NumeroH, map[string]interface{}{
		"question_id": q.ID,
		"voided":      voided,
	})
	s.advanceTurn(o)
	return o, nil
}

// closeQuestion 结束当前题目：裁决后为 validated，直接关闭为 closed
func (s *Session) closeQuestion(o *Outcome, status models.QuestionStatus) {
	now := s.now()
	s.Question.Status = status
	s.Question.ClosedAt = &now
	o.Question = s.Question
}

// ValidateMediaURL 媒体地址必须是绝对的 http(s) 地址
func ValidateMediaURL(raw string) error {
	if raw == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "媒体地址不能为空")
	}
	if len(raw) > maxMediaURLLength {
		return apperrors.Newf(apperrors.ErrInvalidParam, "媒体地址过长: %d", len(raw))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInvalidParam, "媒体地址格式错误")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.Newf(apperrors.ErrInvalidParam, "媒体地址必须是http(s)绝对地址: %s", raw)
	}
	return nil
}
