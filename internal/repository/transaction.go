package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/wfunc/edu-challenge/internal/database"
	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

// TransactionManager 事务管理器接口
type TransactionManager interface {
	// WithTransaction 在事务中执行函数，fn 返回错误时整体回滚
	WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error
	// WithTransactionOptions 使用选项在事务中执行函数
	WithTransactionOptions(ctx context.Context, opts *TxOptions, fn func(tx *Transaction) error) error
}

// TxOptions 事务选项
type TxOptions struct {
	// IsolationLevel 事务隔离级别，SQLite 忽略
	IsolationLevel sql.IsolationLevel
	// ReadOnly 是否只读事务
	ReadOnly bool
}

// Transaction 事务包装器，提供事务内的仓储实例
type Transaction struct {
	tx *gorm.DB

	game     GameRepository
	player   PlayerRepository
	question QuestionRepository
	answer   AnswerRepository
	deposit  DepositRepository
	ledger   LedgerRepository
}

// txManager 事务管理器实现
type txManager struct {
	db *gorm.DB
}

// NewTransactionManager 创建事务管理器
func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &txManager{db: db}
}

// WithTransaction 在事务中执行函数
func (m *txManager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	return m.WithTransactionOptions(ctx, nil, fn)
}

// WithTransactionOptions 使用选项在事务中执行函数
func (m *txManager) WithTransactionOptions(ctx context.Context, opts *TxOptions, fn func(tx *Transaction) error) error {
	var sqlOpts *sql.TxOptions
	if opts != nil && database.SupportsRowLocks(m.db) {
		sqlOpts = &sql.TxOptions{Isolation: opts.IsolationLevel, ReadOnly: opts.ReadOnly}
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Transaction{tx: tx})
	}, sqlOpts)
	if err == nil {
		return nil
	}
	// 业务错误原样返回，其余归为事务错误
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Wrap(err, apperrors.ErrTransaction, fmt.Sprintf("事务执行失败: %v", err))
}

// GetDB 获取事务中的数据库实例
func (t *Transaction) GetDB() *gorm.DB {
	return t.tx
}

// Game 获取事务中的对局仓储
func (t *Transaction) Game() GameRepository {
	if t.game == nil {
		t.game = &gameRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.game
}

// Player 获取事务中的成员仓储
func (t *Transaction) Player() PlayerRepository {
	if t.player == nil {
		t.player = &playerRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.player
}

// Question 获取事务中的题目仓储
func (t *Transaction) Question() QuestionRepository {
	if t.question == nil {
		t.question = &questionRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.question
}

// Answer 获取事务中的答案仓储
func (t *Transaction) Answer() AnswerRepository {
	if t.answer == nil {
		t.answer = &answerRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.answer
}

// Deposit 获取事务中的奖池仓储
func (t *Transaction) Deposit() DepositRepository {
	if t.deposit == nil {
		t.deposit = &depositRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.deposit
}

// Ledger 获取事务中的流水仓储
func (t *Transaction) Ledger() LedgerRepository {
	if t.ledger == nil {
		t.ledger = &ledgerRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.ledger
}
