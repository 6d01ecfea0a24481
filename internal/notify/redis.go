package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/edu-challenge/internal/config"
	"github.com/wfunc/edu-challenge/internal/logger"
)

const (
	publishTimeout   = 2 * time.Second
	defaultQueueSize = 256
)

// Publisher Redis发布能力，*redis.Client 满足该接口
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher 通过 Redis PUBLISH 转发事件给平台的通知服务。
// 事件先进入缓冲队列，由后台协程逐条发布，Dispatch 不等待网络
type RedisPublisher struct {
	client  Publisher
	channel string

	queue     chan Event
	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRedisPublisher 创建Redis发布器并启动发布协程，queueSize<=0 时使用默认值
func NewRedisPublisher(client Publisher, channel string, queueSize int) *RedisPublisher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := &RedisPublisher{
		client:  client,
		channel: channel,
		queue:   make(chan Event, queueSize),
		quit:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// NewRedisClient 按配置创建Redis客户端
func NewRedisClient(cfg config.RedisNotifyConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Dispatch 实现Dispatcher，队列已满或已关闭时丢弃并记录日志
func (p *RedisPublisher) Dispatch(_ context.Context, ev Event) {
	select {
	case <-p.quit:
		logger.LogNotify("redis", string(ev.Kind), ev.GameID, ErrPublisherClosed)
		return
	default:
	}

	select {
	case p.queue <- ev:
	default:
		logger.LogNotify("redis", string(ev.Kind), ev.GameID, ErrBufferFull)
	}
}

// Close 停止接收新事件，发布完队列中剩余的事件后返回
func (p *RedisPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
	return nil
}

func (p *RedisPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.queue:
			p.publish(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.queue:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *RedisPublisher) publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.LogNotify("redis", string(ev.Kind), ev.GameID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.client.Publish(ctx, p.channel, payload).Err()
	logger.LogNotify("redis", string(ev.Kind), ev.GameID, err)
}
