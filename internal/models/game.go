package models

import (
	"time"
)

// Game 挑战赛对局表
type Game struct {
	BaseModel
	Status            GameStatus `gorm:"size:20;not null;index" json:"status"`
	CurrentPlayerTurn string     `gorm:"size:64" json:"current_player_turn"` // 当前回合玩家numero_h
	CurrentCycle      int        `gorm:"not null" json:"current_cycle"`
	DepositAmount     int64      `gorm:"not null" json:"deposit_amount"` // 创建时的奖池金额快照
	JuryNumeroH       string     `gorm:"size:64;index" json:"jury_numero_h"`
	CreatedBy         string     `gorm:"size:64;not null" json:"created_by"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// TableName 指定表名
func (Game) TableName() string {
	return "games"
}

// GamePlayer 对局成员表
type GamePlayer struct {
	BaseModel
	GameID    uint       `gorm:"not null;uniqueIndex:idx_game_player" json:"game_id"`
	NumeroH   string     `gorm:"size:64;not null;uniqueIndex:idx_game_player" json:"numero_h"`
	Role      PlayerRole `gorm:"size:20;not null" json:"role"`
	Balance   int64      `gorm:"not null" json:"balance"`
	DebtCount int        `gorm:"not null" json:"debt_count"`
	IsActive  bool       `gorm:"not null" json:"is_active"`
	JoinOrder int        `gorm:"not null" json:"join_order"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// TableName 指定表名
func (GamePlayer) TableName() string {
	return "game_players"
}

// GameQuestion 题目表
type GameQuestion struct {
	BaseModel
	GameID      uint           `gorm:"not null;index" json:"game_id"`
	AskedBy     string         `gorm:"size:64;not null" json:"asked_by"`
	Type        QuestionType   `gorm:"size:20;not null" json:"type"`
	Content     string         `gorm:"type:text" json:"content"`
	MediaURL    string         `gorm:"size:1024" json:"media_url,omitempty"`
	CycleNumber int            `gorm:"not null" json:"cycle_number"`
	Status      QuestionStatus `gorm:"size:20;not null;index" json:"status"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}

// TableName 指定表名
func (GameQuestion) TableName() string {
	return "game_questions"
}

// GameAnswer 答案表
type GameAnswer struct {
	BaseModel
	GameID             uint         `gorm:"not null;index" json:"game_id"`
	QuestionID         uint         `gorm:"not null;uniqueIndex:idx_question_answerer" json:"question_id"`
	PlayerID           uint         `gorm:"not null" json:"player_id"`
	NumeroH            string       `gorm:"size:64;not null;uniqueIndex:idx_question_answerer" json:"numero_h"`
	Content            *string      `gorm:"type:text" json:"content"`
	MediaURL           string       `gorm:"size:1024" json:"media_url,omitempty"`
	IsVoluntaryRefusal bool         `gorm:"not null" json:"is_voluntary_refusal"`
	Status             AnswerStatus `gorm:"size:20;not null;index" json:"status"`
	PointsEarned       int64        `gorm:"not null" json:"points_earned"`
	ValidatedBy        string       `gorm:"size:64" json:"validated_by,omitempty"`
	ValidatedAt        *time.Time   `json:"validated_at,omitempty"`
}

// TableName 指定表名
func (GameAnswer) TableName() string {
	return "game_answers"
}
