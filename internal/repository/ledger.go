package repository

import (
	"context"

	"gorm.io/gorm"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
)

// DepositRepository 奖池仓储接口
type DepositRepository interface {
	BaseRepository
	Create(ctx context.Context, deposit *models.GameDeposit) error
	Save(ctx context.Context, deposit *models.GameDeposit) error
	GetByGame(ctx context.Context, gameID uint) (*models.GameDeposit, error)
	GetByGameForUpdate(ctx context.Context, gameID uint) (*models.GameDeposit, error)
}

type depositRepo struct {
	*BaseRepo
}

// NewDepositRepository 创建奖池仓储
func NewDepositRepository(db *gorm.DB) DepositRepository {
	return &depositRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 开设奖池
func (r *depositRepo) Create(ctx context.Context, deposit *models.GameDeposit) error {
	return translate(r.db.WithContext(ctx).Create(deposit).Error, apperrors.ErrDatabaseInsert, "奖池")
}

// Save 保存奖池
func (r *depositRepo) Save(ctx context.Context, deposit *models.GameDeposit) error {
	return translate(r.db.WithContext(ctx).Save(deposit).Error, apperrors.ErrDatabaseUpdate, "奖池")
}

// GetByGame 查询对局奖池
func (r *depositRepo) GetByGame(ctx context.Context, gameID uint) (*models.GameDeposit, error) {
	var d models.GameDeposit
	if err := r.db.WithContext(ctx).Where("game_id = ?", gameID).First(&d).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "奖池")
	}
	return &d, nil
}

// GetByGameForUpdate 加锁查询对局奖池
func (r *depositRepo) GetByGameForUpdate(ctx context.Context, gameID uint) (*models.GameDeposit, error) {
	var d models.GameDeposit
	if err := r.forUpdate(ctx).Where("game_id = ?", gameID).First(&d).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "奖池")
	}
	return &d, nil
}

// TransactionFilter 流水筛选条件
type TransactionFilter struct {
	Type     models.TransactionType
	PlayerID uint
}

// LedgerRepository 对局流水仓储接口，只追加
type LedgerRepository interface {
	BaseRepository
	Append(ctx context.Context, tx *models.GameTransaction) error
	ListByGame(ctx context.Context, gameID uint, filter TransactionFilter, pagination *Pagination) ([]*models.GameTransaction, error)
	SumByPlayer(ctx context.Context, gameID uint) (map[uint]int64, error)
	SumDepositDelta(ctx context.Context, gameID uint) (int64, error)
	CountByAnswer(ctx context.Context, answerID uint) (int64, error)
}

type ledgerRepo struct {
	*BaseRepo
}

// NewLedgerRepository 创建流水仓储
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Append 追加流水
func (r *ledgerRepo) Append(ctx context.Context, tx *models.GameTransaction) error {
	if tx.ID != 0 {
		return apperrors.New(apperrors.ErrDataIntegrity, "流水只能追加")
	}
	return translate(r.db.WithContext(ctx).Create(tx).Error, apperrors.ErrDatabaseInsert, "流水")
}

// ListByGame 按写入顺序分页列出流水
func (r *ledgerRepo) ListByGame(ctx context.Context, gameID uint, filter TransactionFilter, pagination *Pagination) ([]*models.GameTransaction, error) {
	query := r.db.WithContext(ctx).Model(&models.GameTransaction{}).Where("game_id = ?", gameID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.PlayerID != 0 {
		query = query.Where("player_id = ?", filter.PlayerID)
	}

	if pagination != nil {
		if err := query.Session(&gorm.Session{}).Count(&pagination.Total).Error; err != nil {
			return nil, translate(err, apperrors.ErrDatabaseQuery, "流水")
		}
	}

	var txs []*models.GameTransaction
	if err := query.Scopes(Paginate(pagination)).Order("id ASC").Find(&txs).Error; err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "流水")
	}
	return txs, nil
}

// SumByPlayer 每个玩家的流水金额合计
func (r *ledgerRepo) SumByPlayer(ctx context.Context, gameID uint) (map[uint]int64, error) {
	var rows []struct {
		PlayerID uint
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&models.GameTransaction{}).
		Select("player_id, COALESCE(SUM(amount), 0) AS total").
		Where("game_id = ? AND player_id IS NOT NULL", gameID).
		Group("player_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err, apperrors.ErrDatabaseQuery, "流水")
	}

	sums := make(map[uint]int64, len(rows))
	for _, row := range rows {
		sums[row.PlayerID] = row.Total
	}
	return sums, nil
}

// SumDepositDelta 入池流水以外的奖池变动合计
func (r *ledgerRepo) SumDepositDelta(ctx context.Context, gameID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.GameTransaction{}).
		Select("COALESCE(SUM(deposit_after - deposit_before), 0)").
		Where("game_id = ? AND type <> ?", gameID, models.TxDepositPayment).
		Scan(&total).Error
	if err != nil {
		return 0, translate(err, apperrors.ErrDatabaseQuery, "流水")
	}
	return total, nil
}

// CountByAnswer 答案对应的流水条数，正常情况下最多一条
func (r *ledgerRepo) CountByAnswer(ctx context.Context, answerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GameTransaction{}).
		Where("answer_id = ?", answerID).
		Count(&count).Error
	if err != nil {
		return 0, translate(err, apperrors.ErrDatabaseQuery, "流水")
	}
	return count, nil
}
