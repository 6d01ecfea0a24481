package notify

import (
	"context"
	"sync"
	"time"
)

// Kind 通知类型
type Kind string

const (
	KindGameStarted      Kind = "game_started"
	KindGamePaused       Kind = "game_paused"
	KindGameResumed      Kind = "game_resumed"
	KindGameFinished     Kind = "game_finished"
	KindTurnChanged      Kind = "turn_changed"
	KindQuestionAsked    Kind = "question_asked"
	KindAnswerSubmitted  Kind = "answer_submitted"
	KindAnswerValidated  Kind = "answer_validated"
	KindQuestionClosed   Kind = "question_closed"
	KindDepositRecharged Kind = "deposit_recharged"
	KindDepositLow       Kind = "deposit_low"
	KindPlayerJoined     Kind = "player_joined"
	KindPlayerLeft       Kind = "player_left"
)

// Event 对局通知事件
type Event struct {
	GameID    uint                   `json:"game_id"`
	NumeroH   string                 `json:"numero_h,omitempty"`
	Kind      Kind                   `json:"kind"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// NewEvent 创建事件
func NewEvent(kind Kind, gameID uint, numeroH string, data map[string]interface{}) Event {
	return Event{
		GameID:    gameID,
		NumeroH:   numeroH,
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// Dispatcher 通知分发接口，发出即忘，不返回错误
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// Nop 丢弃所有事件
type Nop struct{}

// Dispatch 实现Dispatcher
func (Nop) Dispatch(context.Context, Event) {}

// Multi 多驱动扇出
type Multi []Dispatcher

// Dispatch 依次分发到所有驱动
func (m Multi) Dispatch(ctx context.Context, ev Event) {
	for _, d := range m {
		d.Dispatch(ctx, ev)
	}
}

// Recorder 记录分发的事件，测试和调试使用
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Dispatch 实现Dispatcher
func (r *Recorder) Dispatch(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events 返回已记录事件的副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds 返回已记录事件的类型
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
