package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/edu-challenge/internal/database"
	"github.com/wfunc/edu-challenge/internal/models"
)

// SetupTestDB 为测试套件创建内存数据库
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		panic(err)
	}

	// 内存库每个连接各自独立，只保留一个连接
	sqlDB, err := db.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		panic(err)
	}
	return db
}

// CleanupTestDB 关闭测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// TestDB 创建测试数据库并在测试结束时关闭
func TestDB(t *testing.T) *gorm.DB {
	db := SetupTestDB()
	t.Cleanup(func() { CleanupTestDB(db) })
	return db
}

// SeedGame 写入一局等待中的对局、奖池和两名玩家
func SeedGame(t *testing.T, db *gorm.DB, deposit int64) (*models.Game, []*models.GamePlayer, *models.GameDeposit) {
	game := &models.Game{
		Status:        models.GameStatusWaiting,
		CurrentCycle:  1,
		DepositAmount: deposit,
		JuryNumeroH:   "H-jury",
		CreatedBy:     "H-creator",
	}
	require.NoError(t, db.Create(game).Error)

	players := []*models.GamePlayer{
		{GameID: game.ID, NumeroH: "H-p1", Role: models.RolePlayer1, IsActive: true, JoinOrder: 0},
		{GameID: game.ID, NumeroH: "H-p2", Role: models.RolePlayer2, IsActive: true, JoinOrder: 1},
	}
	require.NoError(t, db.Create(&players).Error)

	d := &models.GameDeposit{GameID: game.ID, InitialAmount: deposit, CurrentAmount: deposit}
	require.NoError(t, db.Create(d).Error)

	return game, players, d
}

// AssertBalance 验证玩家余额和负债次数
func AssertBalance(t *testing.T, db *gorm.DB, gameID uint, numeroH string, balance int64, debtCount int) {
	var p models.GamePlayer
	require.NoError(t, db.Where("game_id = ? AND numero_h = ?", gameID, numeroH).First(&p).Error)
	assert.Equal(t, balance, p.Balance, "%s 余额", numeroH)
	assert.Equal(t, debtCount, p.DebtCount, "%s 负债次数", numeroH)
}

// AssertDeposit 验证奖池余额
func AssertDeposit(t *testing.T, db *gorm.DB, gameID uint, current int64) {
	var d models.GameDeposit
	require.NoError(t, db.Where("game_id = ?", gameID).First(&d).Error)
	assert.Equal(t, current, d.CurrentAmount, "奖池余额")
}
