package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port       int           `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel   string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait" validate:"gtfield=PingPeriod"`
	WriteWait  time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer int           `mapstructure:"send_buffer" validate:"min=1"`
	Secret     string        `mapstructure:"secret" validate:"required"`
	ServerKey  string        `mapstructure:"server_key"`

	// Backpressure is what happens to a socket that cannot keep up.
	Backpressure string `mapstructure:"backpressure" validate:"oneof=kick drop log"`

	JWT      JWT      `mapstructure:"jwt"`
	MQTT     MQTT     `mapstructure:"mqtt"`
	Redis    Redis    `mapstructure:"redis"`
	Database Database `mapstructure:"database"`
	Rate     Rate     `mapstructure:"rate"`
}

type JWT struct {
	Secret    string        `mapstructure:"secret" validate:"required"`
	AccessTTL time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
}

type MQTT struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port        int           `mapstructure:"port" validate:"min=1,max=65535"`
	KeepAlive   time.Duration `mapstructure:"keepalive"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	QoS         byte          `mapstructure:"qos" validate:"max=2"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
}

// Redis switches the group layer to the multi-node one when Addr is set.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Database enables Postgres presence and user lookups when URL is set.
type Database struct {
	URL       string `mapstructure:"url"`
	UserTable string `mapstructure:"user_table"`
}

type Rate struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

func (r Rate) Enabled() bool { return r.Limit > 0 && r.Interval > 0 }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "dev-session-secret")
	v.SetDefault("server_key", "")
	v.SetDefault("backpressure", "kick")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", "24h")

	v.SetDefault("mqtt.enabled", true)
	v.SetDefault("mqtt.host", "broker.emqx.io")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.keepalive", "60s")
	v.SetDefault("mqtt.topic_prefix", "chess/user/")
	v.SetDefault("mqtt.timeout", "3s")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chess")

	v.SetDefault("database.url", "")
	v.SetDefault("database.user_table", "auth_app_user")

	v.SetDefault("rate.limit", 50)
	v.SetDefault("rate.interval", "1s")
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
// A missing file is fine: defaults and CHESS_* environment variables apply.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("CHESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Watch re-decodes the file on every change and hands the result to fn.
// Only settings that are safe to change live should be applied by fn.
func Watch(v *viper.Viper, fn func(*Config, error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(decode(v))
	})
	v.WatchConfig()
}
