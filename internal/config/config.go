package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	System    SystemConfig    `mapstructure:"system"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT        JWTConfig `mapstructure:"jwt"`
	AdminRoles []string  `mapstructure:"admin_roles"` // 身份服务下发的管理员角色
}

// JWTConfig 身份令牌配置（令牌由外部身份服务签发）
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// ChallengeConfig 教育挑战赛规则配置
type ChallengeConfig struct {
	InitialDeposit      int64 `mapstructure:"initial_deposit"`
	GainPoints          int64 `mapstructure:"gain_points"`
	WrongPenalty        int64 `mapstructure:"wrong_penalty"`
	RefusalPenalty      int64 `mapstructure:"refusal_penalty"`
	DebtCap             int   `mapstructure:"debt_cap"`
	LowDepositThreshold int64 `mapstructure:"low_deposit_threshold"`
	MaxInitialDeposit   int64 `mapstructure:"max_initial_deposit"` // 单局开设奖池上限
	MaxRecharge         int64 `mapstructure:"max_recharge"`        // 单次充值上限
}

// NotifyConfig 通知分发配置
type NotifyConfig struct {
	Drivers   []string              `mapstructure:"drivers"` // websocket, redis, none
	Redis     RedisNotifyConfig     `mapstructure:"redis"`
	WebSocket WebSocketNotifyConfig `mapstructure:"websocket"`
}

// RedisNotifyConfig Redis发布配置
type RedisNotifyConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	Channel   string `mapstructure:"channel"`
	QueueSize int    `mapstructure:"queue_size"` // 待发布事件缓冲
}

// WebSocketNotifyConfig WebSocket推送配置
type WebSocketNotifyConfig struct {
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	SendBuffer      int           `mapstructure:"send_buffer"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Timezone string `mapstructure:"timezone"`
	MaxProcs int    `mapstructure:"max_procs"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("EDU_CHALLENGE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		SetDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		var loaded *Config
		if loaded, err = unmarshal(v); err != nil {
			return
		}
		cfg = loaded
	})

	return err
}

// Load 从指定viper实例解析配置（测试与工具使用，不影响全局配置）
func Load(vp *viper.Viper) (*Config, error) {
	SetDefaults(vp)
	return unmarshal(vp)
}

func unmarshal(vp *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDefaults 设置默认配置值
func SetDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/edu-challenge.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "edu-challenge.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.secret", "change-me-in-production")
	v.SetDefault("security.jwt.issuer", "identity-service")
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.admin_roles", []string{"admin"})

	// 挑战赛规则默认配置
	v.SetDefault("challenge.initial_deposit", 50000)
	v.SetDefault("challenge.gain_points", 10000)
	v.SetDefault("challenge.wrong_penalty", 5000)
	v.SetDefault("challenge.refusal_penalty", 10000)
	v.SetDefault("challenge.debt_cap", 2)
	v.SetDefault("challenge.low_deposit_threshold", 10000)
	v.SetDefault("challenge.max_initial_deposit", 10000000)
	v.SetDefault("challenge.max_recharge", 10000000)

	// 通知默认配置
	v.SetDefault("notify.drivers", []string{"websocket"})
	v.SetDefault("notify.redis.addr", "127.0.0.1:6379")
	v.SetDefault("notify.redis.db", 0)
	v.SetDefault("notify.redis.channel", "edu-challenge:events")
	v.SetDefault("notify.redis.queue_size", 256)
	v.SetDefault("notify.websocket.read_buffer_size", 1024)
	v.SetDefault("notify.websocket.write_buffer_size", 1024)
	v.SetDefault("notify.websocket.ping_interval", "30s")
	v.SetDefault("notify.websocket.send_buffer", 64)
}

// Validate 校验配置
func (c *Config) Validate() error {
	ch := c.Challenge
	if ch.InitialDeposit <= 0 {
		return fmt.Errorf("challenge.initial_deposit 必须大于0")
	}
	if ch.GainPoints <= 0 || ch.WrongPenalty <= 0 || ch.RefusalPenalty <= 0 {
		return fmt.Errorf("challenge 奖惩分值必须大于0")
	}
	// 负债次数上限是硬约束，不允许配置超过2
	if ch.DebtCap < 1 || ch.DebtCap > 2 {
		return fmt.Errorf("challenge.debt_cap 必须在1到2之间, 当前: %d", ch.DebtCap)
	}
	if ch.LowDepositThreshold < 0 {
		return fmt.Errorf("challenge.low_deposit_threshold 不能为负数")
	}
	if ch.MaxInitialDeposit <= 0 || ch.MaxRecharge <= 0 {
		return fmt.Errorf("challenge.max_initial_deposit 和 challenge.max_recharge 必须大于0")
	}
	if ch.InitialDeposit > ch.MaxInitialDeposit {
		return fmt.Errorf("challenge.initial_deposit %d 超过上限 %d", ch.InitialDeposit, ch.MaxInitialDeposit)
	}
	for _, d := range c.Notify.Drivers {
		switch d {
		case "websocket", "redis", "none":
		default:
			return fmt.Errorf("不支持的通知驱动: %s", d)
		}
	}
	return nil
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg, err := unmarshal(v)
		if err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}
