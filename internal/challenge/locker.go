package challenge

import (
	"context"
	"sync"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

// GameLocker 按对局ID串行化命令，不同对局互不影响
type GameLocker struct {
	mu    sync.Mutex
	locks map[uint]*gameLock
}

type gameLock struct {
	ch   chan struct{}
	refs int
}

// NewGameLocker 创建对局锁
func NewGameLocker() *GameLocker {
	return &GameLocker{locks: make(map[uint]*gameLock)}
}

// Acquire 获取对局锁，ctx取消时放弃等待
func (l *GameLocker) Acquire(ctx context.Context, gameID uint) (func(), error) {
	l.mu.Lock()
	gl, ok := l.locks[gameID]
	if !ok {
		gl = &gameLock{ch: make(chan struct{}, 1)}
		l.locks[gameID] = gl
	}
	gl.refs++
	l.mu.Unlock()

	select {
	case gl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(gameID, gl)
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrTimeout, "等待对局锁超时")
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-gl.ch
			l.release(gameID, gl)
		})
	}, nil
}

func (l *GameLocker) release(gameID uint, gl *gameLock) {
	l.mu.Lock()
	gl.refs--
	if gl.refs == 0 {
		delete(l.locks, gameID)
	}
	l.mu.Unlock()
}

// Size 当前持有或等待中的对局数
func (l *GameLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
