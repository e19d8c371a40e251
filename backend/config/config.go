package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port   int    `mapstructure:"port"`
		NodeID string `mapstructure:"node_id"`
	} `mapstructure:"running"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret     string        `mapstructure:"secret"`
		AccessTTL  time.Duration `mapstructure:"access_ttl"`
		RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	} `mapstructure:"auth"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
}

// WebsocketConfig 协作通道的保护参数
type WebsocketConfig struct {
	MaxConnectionsPerUser int           `mapstructure:"max_connections_per_user"`
	ConnectionTTL         time.Duration `mapstructure:"connection_ttl"`
	RateLimitMessages     int           `mapstructure:"rate_limit_messages"`
	RateLimitWindow       time.Duration `mapstructure:"rate_limit_window"`
	MaxMessageBytes       int           `mapstructure:"max_message_bytes"`
	MaxOps                int           `mapstructure:"max_ops"`
}

// Norm 填充零值字段的默认值
func (w *WebsocketConfig) Norm() {
	if w.MaxConnectionsPerUser <= 0 {
		w.MaxConnectionsPerUser = 5
	}
	if w.ConnectionTTL <= 0 {
		w.ConnectionTTL = 300 * time.Second
	}
	if w.RateLimitMessages <= 0 {
		w.RateLimitMessages = 30
	}
	if w.RateLimitWindow <= 0 {
		w.RateLimitWindow = 10 * time.Second
	}
	if w.MaxMessageBytes <= 0 {
		w.MaxMessageBytes = 256 * 1024
	}
	if w.MaxOps <= 0 {
		w.MaxOps = 1000
	}
}

func Init() (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	v.SetConfigName("collabConfig")
	v.SetConfigType("yaml")
	// 兼容从项目根目录或 backend 目录启动
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.Websocket.Norm()
	if cfg.Auth.AccessTTL <= 0 {
		cfg.Auth.AccessTTL = 30 * time.Minute
	}
	if cfg.Auth.RefreshTTL <= 0 {
		cfg.Auth.RefreshTTL = 7 * 24 * time.Hour
	}
	return cfg, nil
}
