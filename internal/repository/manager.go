package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	txManager TransactionManager

	// 仓储实例（懒加载）
	gameOnce sync.Once
	game     GameRepository

	playerOnce sync.Once
	player     PlayerRepository

	questionOnce sync.Once
	question     QuestionRepository

	answerOnce sync.Once
	answer     AnswerRepository

	depositOnce sync.Once
	deposit     DepositRepository

	ledgerOnce sync.Once
	ledger     LedgerRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{
		db:        db,
		txManager: NewTransactionManager(db),
	}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Transaction 获取事务管理器
func (m *Manager) Transaction() TransactionManager {
	return m.txManager
}

// Game 获取对局仓储
func (m *Manager) Game() GameRepository {
	m.gameOnce.Do(func() {
		m.game = NewGameRepository(m.db)
	})
	return m.game
}

// Player 获取成员仓储
func (m *Manager) Player() PlayerRepository {
	m.playerOnce.Do(func() {
		m.player = NewPlayerRepository(m.db)
	})
	return m.player
}

// Question 获取题目仓储
func (m *Manager) Question() QuestionRepository {
	m.questionOnce.Do(func() {
		m.question = NewQuestionRepository(m.db)
	})
	return m.question
}

// Answer 获取答案仓储
func (m *Manager) Answer() AnswerRepository {
	m.answerOnce.Do(func() {
		m.answer = NewAnswerRepository(m.db)
	})
	return m.answer
}

// Deposit 获取奖池仓储
func (m *Manager) Deposit() DepositRepository {
	m.depositOnce.Do(func() {
		m.deposit = NewDepositRepository(m.db)
	})
	return m.deposit
}

// Ledger 获取流水仓储
func (m *Manager) Ledger() LedgerRepository {
	m.ledgerOnce.Do(func() {
		m.ledger = NewLedgerRepository(m.db)
	})
	return m.ledger
}

// WithTransaction 在事务中执行操作
func (m *Manager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	return m.txManager.WithTransaction(ctx, fn)
}

// WithReadOnlyTransaction 在只读事务中执行操作
func (m *Manager) WithReadOnlyTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	return m.txManager.WithTransactionOptions(ctx, &TxOptions{ReadOnly: true}, fn)
}
