package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
)

// QuestionRepository 题目仓储接口
type QuestionRepository interface {
	BaseRepository
	Save(ctx context.Context, question *models.GameQuestion) error
	GetByID(ctx context.Context, id uint) (*models.GameQuestion, error)
	// OpenByGame 当前未关闭的题目，没有时返回 nil, nil
	OpenByGame(ctx context.Context, gameID uint) (*models.GameQuestion, error)
	ListByGame(ctx context.Context, gameID uint, pagination *Pagination) ([]*models.GameQuestion, error)
}

type questionRepo struct {
	*BaseRepo
}

// NewQuestionRepository 创建题目仓储
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Save 新建或更新题目
func (r *questionRepo) Save(ctx context.Context, question *models.GameQuestion) error {
	db := r.db.WithContext(ctx)
	if question.ID == 0 {
		return translate(db.Create(question).Error, apperrors.ErrDatabaseInsert, "题目")
	}
	return translate(db.Save(question).Error, apperrors.ErrDatabaseUpdate, "题目")
}

// GetByID 根据ID获取题目
func (r *questionRepo) GetByID(ctx context.Context, id uint) (*models.GameQuestion, error) {
	var q models.GameQuestion
	if err := r.db.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "题目")
	}
	return &q, nil
}

// OpenByGame 查询未关闭的题目
func (r *questionRepo) OpenByGame(ctx context.Context, gameID uint) (*models.GameQuestion, error) {
	var q models.GameQuestion
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND status IN ?", gameID,
			[]models.QuestionStatus{models.QuestionPending, models.QuestionAnswered}).
		Order("id DESC").
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "题目")
	}
	return &q, nil
}

// ListByGame 按出题顺序列出题目
func (r *questionRepo) ListByGame(ctx context.Context, gameID uint, pagination *Pagination) ([]*models.GameQuestion, error) {
	query := r.db.WithContext(ctx).Model(&models.GameQuestion{}).Where("game_id = ?", gameID)
	if pagination != nil {
		if err := query.Session(&gorm.Session{}).Count(&pagination.Total).Error; err != nil {
			return nil, translate(err, apperrors.ErrDatabaseQuery, "题目")
		}
	}

	var questions []*models.GameQuestion
	if err := query.Scopes(Paginate(pagination)).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "题目")
	}
	return questions, nil
}

// AnswerRepository 答案仓储接口
type AnswerRepository interface {
	BaseRepository
	Save(ctx context.Context, answer *models.GameAnswer) error
	GetByID(ctx context.Context, id uint) (*models.GameAnswer, error)
	ListByQuestion(ctx context.Context, questionID uint) ([]*models.GameAnswer, error)
}

type answerRepo struct {
	*BaseRepo
}

// NewAnswerRepository 创建答案仓储
func NewAnswerRepository(db *gorm.DB) AnswerRepository {
	return &answerRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Save 新建或更新答案
func (r *answerRepo) Save(ctx context.Context, answer *models.GameAnswer) error {
	db := r.db.WithContext(ctx)
	if answer.ID == 0 {
		return translate(db.Create(answer).Error, apperrors.ErrDatabaseInsert, "答案")
	}
	return translate(db.Save(answer).Error, apperrors.ErrDatabaseUpdate, "答案")
}

// GetByID 根据ID获取答案
func (r *answerRepo) GetByID(ctx context.Context, id uint) (*models.GameAnswer, error) {
	var a models.GameAnswer
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "答案")
	}
	return &a, nil
}

// ListByQuestion 列出题目的全部答案
func (r *answerRepo) ListByQuestion(ctx context.Context, questionID uint) ([]*models.GameAnswer, error) {
	var answers []*models.GameAnswer
	err := r.db.WithContext(ctx).
		Where("question_id = ?", questionID).
		Order("id ASC").
		Find(&answers).Error
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "答案")
	}
	return answers, nil
}
