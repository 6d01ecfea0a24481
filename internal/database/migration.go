package database

import (
	"fmt"

	"github.com/wfunc/edu-challenge/internal/logger"
	"github.com/wfunc/edu-challenge/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移全局数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 获取迁移锁，避免多个进程同时迁移同一个SQLite文件
	CleanupStaleLocks()
	if dbPath := getDBPath(DB); dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	return Migrate(DB)
}

// Migrate 迁移指定连接的表结构并补充索引
func Migrate(db *gorm.DB) error {
	logger.Info("开始数据库迁移...")

	for _, model := range models.AllModels() {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// 复合索引，AutoMigrate 标签之外补充
var extraIndexes = []struct {
	name string
	sql  string
}{
	{"idx_game_transactions_game_id_id", "CREATE INDEX IF NOT EXISTS idx_game_transactions_game_id_id ON game_transactions(game_id, id)"},
	{"idx_game_transactions_game_player", "CREATE INDEX IF NOT EXISTS idx_game_transactions_game_player ON game_transactions(game_id, player_id)"},
	{"idx_game_questions_game_status", "CREATE INDEX IF NOT EXISTS idx_game_questions_game_status ON game_questions(game_id, status)"},
	{"idx_game_players_game_order", "CREATE INDEX IF NOT EXISTS idx_game_players_game_order ON game_players(game_id, join_order)"},
}

// createIndexes 创建数据库索引
func createIndexes(db *gorm.DB) {
	for _, idx := range extraIndexes {
		if err := db.Exec(idx.sql).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx.name), zap.Error(err))
		}
	}
	logger.Info("数据库索引创建完成")
}
