package repository

import (
	"context"

	"gorm.io/gorm"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
)

// GameFilter 对局列表筛选条件
type GameFilter struct {
	Status  models.GameStatus
	NumeroH string // 创建人、评委或成员
}

// GameRepository 对局仓储接口
type GameRepository interface {
	BaseRepository
	Create(ctx context.Context, game *models.Game) error
	Save(ctx context.Context, game *models.Game) error
	GetByID(ctx context.Context, id uint) (*models.Game, error)
	GetForUpdate(ctx context.Context, id uint) (*models.Game, error)
	GetJury(ctx context.Context, id uint) (string, error)
	List(ctx context.Context, filter GameFilter, pagination *Pagination) ([]*models.Game, error)
}

// gameRepo 对局仓储实现
type gameRepo struct {
	*BaseRepo
}

// NewGameRepository 创建对局仓储
func NewGameRepository(db *gorm.DB) GameRepository {
	return &gameRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建对局
func (r *gameRepo) Create(ctx context.Context, game *models.Game) error {
	return translate(r.db.WithContext(ctx).Create(game).Error, apperrors.ErrDatabaseInsert, "对局")
}

// Save 保存对局
func (r *gameRepo) Save(ctx context.Context, game *models.Game) error {
	return translate(r.db.WithContext(ctx).Save(game).Error, apperrors.ErrDatabaseUpdate, "对局")
}

// GetByID 根据ID获取对局
func (r *gameRepo) GetByID(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := r.db.WithContext(ctx).First(&game, id).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "对局")
	}
	return &game, nil
}

// GetForUpdate 加锁读取对局
func (r *gameRepo) GetForUpdate(ctx context.Context, id uint) (*models.Game, error) {
	var game models.Game
	if err := r.forUpdate(ctx).First(&game, id).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "对局")
	}
	return &game, nil
}

// GetJury 获取对局评委
func (r *gameRepo) GetJury(ctx context.Context, id uint) (string, error) {
	var game models.Game
	err := r.db.WithContext(ctx).Select("id", "jury_numero_h").First(&game, id).Error
	if err != nil {
		return "", translate(err, apperrors.ErrDatabaseQuery, "对局")
	}
	return game.JuryNumeroH, nil
}

// List 分页查询对局，按创建时间倒序
func (r *gameRepo) List(ctx context.Context, filter GameFilter, pagination *Pagination) ([]*models.Game, error) {
	query := r.db.WithContext(ctx).Model(&models.Game{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.NumeroH != "" {
		members := r.db.Model(&models.GamePlayer{}).Select("game_id").Where("numero_h = ?", filter.NumeroH)
		query = query.Where("created_by = ? OR jury_numero_h = ? OR id IN (?)",
			filter.NumeroH, filter.NumeroH, members)
	}

	if pagination != nil {
		if err := query.Session(&gorm.Session{}).Count(&pagination.Total).Error; err != nil {
			return nil, translate(err, apperrors.ErrDatabaseQuery, "对局")
		}
	}

	var games []*models.Game
	err := query.Scopes(Paginate(pagination)).Order("id DESC").Find(&games).Error
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "对局")
	}
	return games, nil
}
