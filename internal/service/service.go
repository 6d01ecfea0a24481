package service

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/edu-challenge/internal/auth"
	"github.com/wfunc/edu-challenge/internal/challenge"
	"github.com/wfunc/edu-challenge/internal/config"
	"github.com/wfunc/edu-challenge/internal/notify"
	"github.com/wfunc/edu-challenge/internal/repository"
)

// Config 服务配置
type Config struct {
	Rules      challenge.Rules
	AdminRoles []string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Rules:      challenge.DefaultRules(),
		AdminRoles: []string{"admin"},
	}
}

// ConfigFrom 从应用配置构建服务配置
func ConfigFrom(cfg *config.Config) *Config {
	return &Config{
		Rules:      challenge.RulesFromConfig(cfg.Challenge),
		AdminRoles: cfg.Security.AdminRoles,
	}
}

// Services 服务集合
type Services struct {
	Challenge ChallengeService
	Repos     *repository.Manager
	Policy    auth.AuthorizationPolicy
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, config *Config, dispatcher notify.Dispatcher, log *zap.Logger) *Services {
	if config == nil {
		config = DefaultConfig()
	}

	// 初始化仓储
	repos := repository.NewManager(db)

	// 评委取自对局记录，管理员取自令牌角色
	policy := auth.NewRolePolicy(repos.Game(), auth.TokenRoles{}, config.AdminRoles)

	return &Services{
		Challenge: NewChallengeService(repos, policy, dispatcher, config.Rules, log),
		Repos:     repos,
		Policy:    policy,
	}
}
