package repository

import (
	"context"

	"gorm.io/gorm"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
)

// PlayerRepository 对局成员仓储接口
type PlayerRepository interface {
	BaseRepository
	Save(ctx context.Context, player *models.GamePlayer) error
	ListByGame(ctx context.Context, gameID uint) ([]*models.GamePlayer, error)
	ListByGameForUpdate(ctx context.Context, gameID uint) ([]*models.GamePlayer, error)
	GetByGameAndNumeroH(ctx context.Context, gameID uint, numeroH string) (*models.GamePlayer, error)
}

type playerRepo struct {
	*BaseRepo
}

// NewPlayerRepository 创建成员仓储
func NewPlayerRepository(db *gorm.DB) PlayerRepository {
	return &playerRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Save 新建或更新成员，ID为0时插入
func (r *playerRepo) Save(ctx context.Context, player *models.GamePlayer) error {
	db := r.db.WithContext(ctx)
	if player.ID == 0 {
		return translate(db.Create(player).Error, apperrors.ErrDatabaseInsert, "对局成员")
	}
	return translate(db.Save(player).Error, apperrors.ErrDatabaseUpdate, "对局成员")
}

// ListByGame 按加入顺序列出成员
func (r *playerRepo) ListByGame(ctx context.Context, gameID uint) ([]*models.GamePlayer, error) {
	var players []*models.GamePlayer
	err := r.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("join_order ASC").
		Find(&players).Error
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "对局成员")
	}
	return players, nil
}

// ListByGameForUpdate 加锁列出成员
func (r *playerRepo) ListByGameForUpdate(ctx context.Context, gameID uint) ([]*models.GamePlayer, error) {
	var players []*models.GamePlayer
	err := r.forUpdate(ctx).
		Where("game_id = ?", gameID).
		Order("join_order ASC").
		Find(&players).Error
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "对局成员")
	}
	return players, nil
}

// GetByGameAndNumeroH 查询单个成员
func (r *playerRepo) GetByGameAndNumeroH(ctx context.Context, gameID uint, numeroH string) (*models.GamePlayer, error) {
	var player models.GamePlayer
	err := r.db.WithContext(ctx).
		Where("game_id = ? AND numero_h = ?", gameID, numeroH).
		First(&player).Error
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "对局成员")
	}
	return &player, nil
}
