package challenge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/wfunc/edu-challenge/internal/errors"
)

func TestGameLockerSerializesSameGame(t *testing.T) {
	l := NewGameLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(ctx, 1)
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.Size())
}

func TestGameLockerIndependentGames(t *testing.T) {
	l := NewGameLocker()
	ctx := context.Background()

	unlock1, err := l.Acquire(ctx, 1)
	require.NoError(t, err)
	defer unlock1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock2, err := l.Acquire(ctx2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Size())
	unlock2()
	assert.Equal(t, 1, l.Size())
}

func TestGameLockerTimeout(t *testing.T) {
	l := NewGameLocker()
	unlock, err := l.Acquire(context.Background(), 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, 7)
	assert.True(t, apperrors.Is(err, apperrors.ErrTimeout))

	// 重复解锁无副作用
	unlock()
	unlock()
	assert.Equal(t, 0, l.Size())

	again, err := l.Acquire(context.Background(), 7)
	require.NoError(t, err)
	again()
}

func TestValidateMediaURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"https", "https://cdn.example.com/a.mp3", false},
		{"http with query", "http://media.local:8080/v.mp4?t=1", false},
		{"empty", "", true},
		{"relative", "/files/a.mp3", true},
		{"ftp", "ftp://cdn.example.com/a.mp3", true},
		{"no host", "https:///a.mp3", true},
		{"too long", "https://cdn.example.com/" + strings.Repeat("a", maxMediaURLLength), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMediaURL(tt.raw)
			if tt.wantErr {
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRulesFromDefaults(t *testing.T) {
	r := DefaultRules()
	assert.Equal(t, int64(50000), r.InitialDeposit)
	assert.Equal(t, int64(10000), r.GainPoints)
	assert.Equal(t, int64(5000), r.WrongPenalty)
	assert.Equal(t, 2, r.DebtCap)
	assert.LessOrEqual(t, r.DebtCap, MaxDebtCap)
}
