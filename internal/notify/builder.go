package notify

import (
	"io"

	"github.com/wfunc/edu-challenge/internal/config"
	"github.com/wfunc/edu-challenge/internal/logger"
	"go.uber.org/zap"
)

// Build 按配置组装通知驱动，返回的closer按顺序关闭Redis发布队列和连接
func Build(cfg config.NotifyConfig, hub *Hub) (Dispatcher, []io.Closer) {
	var (
		drivers Multi
		closers []io.Closer
	)

	for _, name := range cfg.Drivers {
		switch name {
		case "websocket":
			if hub != nil {
				drivers = append(drivers, hub)
			}
		case "redis":
			client := NewRedisClient(cfg.Redis)
			publisher := NewRedisPublisher(client, cfg.Redis.Channel, cfg.Redis.QueueSize)
			// 先排空发布队列再断开连接
			closers = append(closers, publisher, client)
			drivers = append(drivers, publisher)
		case "none":
		default:
			logger.Warn("忽略未知通知驱动", zap.String("driver", name))
		}
	}

	logger.Info("通知驱动已加载", zap.Strings("drivers", cfg.Drivers))

	switch len(drivers) {
	case 0:
		return Nop{}, closers
	case 1:
		return drivers[0], closers
	default:
		return drivers, closers
	}
}
