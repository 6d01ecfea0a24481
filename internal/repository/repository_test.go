package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
	"github.com/wfunc/edu-challenge/internal/models"
)

// RepositoryTestSuite 仓储测试套件
type RepositoryTestSuite struct {
	suite.Suite
	db      *gorm.DB
	manager *Manager
	ctx     context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	s.db = SetupTestDB()
	s.manager = NewManager(s.db)
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	CleanupTestDB(s.db)
}

func (s *RepositoryTestSuite) appendTx(gameID uint, txType models.TransactionType, player *models.GamePlayer, amount, before, after int64) *models.GameTransaction {
	tx := &models.GameTransaction{
		GameID:        gameID,
		OrderNo:       uuid.NewString(),
		Type:          txType,
		Amount:        amount,
		DepositBefore: before,
		DepositAfter:  after,
	}
	if player != nil {
		tx.PlayerID = &player.ID
		tx.NumeroH = &player.NumeroH
	}
	s.Require().NoError(s.manager.Ledger().Append(s.ctx, tx))
	return tx
}

func (s *RepositoryTestSuite) TestGameCRUD() {
	game, _, _ := SeedGame(s.T(), s.db, 50000)

	found, err := s.manager.Game().GetByID(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(models.GameStatusWaiting, found.Status)

	found.Status = models.GameStatusActive
	found.CurrentPlayerTurn = "H-p1"
	s.Require().NoError(s.manager.Game().Save(s.ctx, found))

	locked, err := s.manager.Game().GetForUpdate(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal("H-p1", locked.CurrentPlayerTurn)

	jury, err := s.manager.Game().GetJury(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal("H-jury", jury)

	_, err = s.manager.Game().GetByID(s.ctx, 9999)
	s.True(apperrors.Is(err, apperrors.ErrNotFound))
}

func (s *RepositoryTestSuite) TestGameList() {
	first, _, _ := SeedGame(s.T(), s.db, 50000)
	second, _, _ := SeedGame(s.T(), s.db, 50000)
	second.Status = models.GameStatusFinished
	s.Require().NoError(s.db.Save(second).Error)

	p := NewPagination(1, 10)
	games, err := s.manager.Game().List(s.ctx, GameFilter{}, p)
	s.Require().NoError(err)
	s.Equal(int64(2), p.Total)
	s.Equal(second.ID, games[0].ID)

	games, err = s.manager.Game().List(s.ctx, GameFilter{Status: models.GameStatusWaiting}, nil)
	s.Require().NoError(err)
	s.Require().Len(games, 1)
	s.Equal(first.ID, games[0].ID)

	games, err = s.manager.Game().List(s.ctx, GameFilter{NumeroH: "H-p2"}, nil)
	s.Require().NoError(err)
	s.Len(games, 2)

	games, err = s.manager.Game().List(s.ctx, GameFilter{NumeroH: "H-stranger"}, nil)
	s.Require().NoError(err)
	s.Empty(games)
}

func (s *RepositoryTestSuite) TestPlayers() {
	game, _, _ := SeedGame(s.T(), s.db, 50000)

	guest := &models.GamePlayer{GameID: game.ID, NumeroH: "H-guest", Role: models.RoleGuest, IsActive: true, JoinOrder: 2}
	s.Require().NoError(s.manager.Player().Save(s.ctx, guest))
	s.NotZero(guest.ID)

	players, err := s.manager.Player().ListByGameForUpdate(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Require().Len(players, 3)
	s.Equal("H-p1", players[0].NumeroH)
	s.Equal("H-guest", players[2].NumeroH)

	// 离开后 is_active 写回 false
	guest.IsActive = false
	s.Require().NoError(s.manager.Player().Save(s.ctx, guest))
	found, err := s.manager.Player().GetByGameAndNumeroH(s.ctx, game.ID, "H-guest")
	s.Require().NoError(err)
	s.False(found.IsActive)

	dup := &models.GamePlayer{GameID: game.ID, NumeroH: "H-p1", Role: models.RoleGuest, IsActive: true, JoinOrder: 3}
	err = s.manager.Player().Save(s.ctx, dup)
	s.True(apperrors.Is(err, apperrors.ErrAlreadyExists))
}

func (s *RepositoryTestSuite) TestQuestionsAndAnswers() {
	game, players, _ := SeedGame(s.T(), s.db, 50000)

	open, err := s.manager.Question().OpenByGame(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Nil(open)

	q := &models.GameQuestion{GameID: game.ID, AskedBy: "H-p1", Type: models.QuestionText, Content: "q", CycleNumber: 1, Status: models.QuestionPending}
	s.Require().NoError(s.manager.Question().Save(s.ctx, q))

	open, err = s.manager.Question().OpenByGame(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Require().NotNil(open)
	s.Equal(q.ID, open.ID)

	content := "a"
	a := &models.GameAnswer{GameID: game.ID, QuestionID: q.ID, PlayerID: players[1].ID, NumeroH: "H-p2", Content: &content, Status: models.AnswerPending}
	s.Require().NoError(s.manager.Answer().Save(s.ctx, a))

	dup := &models.GameAnswer{GameID: game.ID, QuestionID: q.ID, PlayerID: players[1].ID, NumeroH: "H-p2", Status: models.AnswerPending}
	s.True(apperrors.Is(s.manager.Answer().Save(s.ctx, dup), apperrors.ErrAlreadyExists))

	answers, err := s.manager.Answer().ListByQuestion(s.ctx, q.ID)
	s.Require().NoError(err)
	s.Require().Len(answers, 1)
	s.Equal("a", *answers[0].Content)

	q.Status = models.QuestionClosed
	s.Require().NoError(s.manager.Question().Save(s.ctx, q))
	open, err = s.manager.Question().OpenByGame(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Nil(open)

	p := NewPagination(1, 10)
	list, err := s.manager.Question().ListByGame(s.ctx, game.ID, p)
	s.Require().NoError(err)
	s.Len(list, 1)
	s.Equal(int64(1), p.Total)
}

func (s *RepositoryTestSuite) TestLedgerSums() {
	game, players, _ := SeedGame(s.T(), s.db, 50000)
	p1, p2 := players[0], players[1]

	s.appendTx(game.ID, models.TxDepositPayment, nil, 50000, 0, 50000)
	s.appendTx(game.ID, models.TxGain, p2, 10000, 50000, 40000)
	s.appendTx(game.ID, models.TxPenalty, p1, -5000, 40000, 45000)
	s.appendTx(game.ID, models.TxVoluntaryRefusal, p2, -10000, 45000, 55000)
	s.appendTx(game.ID, models.TxDepositRecharge, nil, 2000, 55000, 57000)

	sums, err := s.manager.Ledger().SumByPlayer(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(int64(-5000), sums[p1.ID])
	s.Equal(int64(0), sums[p2.ID])

	delta, err := s.manager.Ledger().SumDepositDelta(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(int64(7000), delta)

	p := NewPagination(1, 2)
	page, err := s.manager.Ledger().ListByGame(s.ctx, game.ID, TransactionFilter{}, p)
	s.Require().NoError(err)
	s.Equal(int64(5), p.Total)
	s.Require().Len(page, 2)
	s.Equal(models.TxDepositPayment, page[0].Type)
	s.Less(page[0].ID, page[1].ID)

	byPlayer, err := s.manager.Ledger().ListByGame(s.ctx, game.ID, TransactionFilter{PlayerID: p2.ID}, nil)
	s.Require().NoError(err)
	s.Len(byPlayer, 2)

	gains, err := s.manager.Ledger().ListByGame(s.ctx, game.ID, TransactionFilter{Type: models.TxGain}, nil)
	s.Require().NoError(err)
	s.Len(gains, 1)
}

func (s *RepositoryTestSuite) TestLedgerAppendOnly() {
	game, players, _ := SeedGame(s.T(), s.db, 50000)
	tx := s.appendTx(game.ID, models.TxGain, players[1], 10000, 50000, 40000)

	s.True(apperrors.Is(s.manager.Ledger().Append(s.ctx, tx), apperrors.ErrDataIntegrity))

	tx.Amount = 1
	s.Error(s.db.Save(tx).Error)
	s.Error(s.db.Delete(tx).Error)

	var stored models.GameTransaction
	s.Require().NoError(s.db.First(&stored, tx.ID).Error)
	s.Equal(int64(10000), stored.Amount)
}

func (s *RepositoryTestSuite) TestDepositForUpdate() {
	game, _, _ := SeedGame(s.T(), s.db, 50000)
	d, err := s.manager.Deposit().GetByGameForUpdate(s.ctx, game.ID)
	s.Require().NoError(err)
	d.CurrentAmount = 3000
	s.Require().NoError(s.manager.Deposit().Save(s.ctx, d))

	again, err := s.manager.Deposit().GetByGame(s.ctx, game.ID)
	s.Require().NoError(err)
	s.Equal(int64(3000), again.CurrentAmount)
}

// 事务内返回错误时全部回滚
func (s *RepositoryTestSuite) TestTransactionRollback() {
	game, _, _ := SeedGame(s.T(), s.db, 50000)
	boom := errors.New("boom")

	err := s.manager.WithTransaction(s.ctx, func(tx *Transaction) error {
		d, err := tx.Deposit().GetByGameForUpdate(s.ctx, game.ID)
		if err != nil {
			return err
		}
		d.CurrentAmount = 1
		if err := tx.Deposit().Save(s.ctx, d); err != nil {
			return err
		}
		return boom
	})
	s.True(apperrors.Is(err, apperrors.ErrTransaction))
	s.ErrorIs(err, boom)
	AssertDeposit(s.T(), s.db, game.ID, 50000)

	// 业务错误原样透出
	err = s.manager.WithTransaction(s.ctx, func(tx *Transaction) error {
		return apperrors.New(apperrors.ErrInsufficientDeposit)
	})
	s.True(apperrors.Is(err, apperrors.ErrInsufficientDeposit))

	err = s.manager.WithReadOnlyTransaction(s.ctx, func(tx *Transaction) error {
		_, err := tx.Ledger().SumDepositDelta(s.ctx, game.ID)
		return err
	})
	s.NoError(err)
}

func (s *RepositoryTestSuite) TestPagination() {
	p := NewPagination(0, 0)
	s.Equal(1, p.Page)
	s.Equal(20, p.PageSize)
	s.Equal(0, p.Offset())

	p = NewPagination(3, 1000)
	s.Equal(200, p.PageSize)
	s.Equal(400, p.Offset())
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
