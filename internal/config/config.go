package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kostaaa1/bililive/internal/cache"
	"github.com/Kostaaa1/bililive/internal/logger"
	"github.com/Kostaaa1/bililive/internal/server"
	"github.com/Kostaaa1/bililive/internal/sink"
	"github.com/Kostaaa1/bililive/internal/store"
	"github.com/Kostaaa1/bililive/pkg/bilibili"
	"github.com/Kostaaa1/bililive/pkg/bilibili/live"
)

const EnvPrefix = "BILILIVE"

type Config struct {
	Log     logger.Config        `mapstructure:"log"`
	Account bilibili.Credentials `mapstructure:"account"`
	Network NetworkConfig        `mapstructure:"network"`
	Live    LiveConfig           `mapstructure:"live"`
	Rooms   []uint64             `mapstructure:"rooms"`
	Redis   sink.RedisConfig     `mapstructure:"redis"`
	Sink    sink.Config          `mapstructure:"sink"`
	Cache   cache.Config         `mapstructure:"cache"`
	Store   store.Config         `mapstructure:"store"`
	Server  server.Config        `mapstructure:"server"`
}

type NetworkConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	APIRetryMax      int           `mapstructure:"api_retry_max"`
	APIRetryInterval time.Duration `mapstructure:"api_retry_interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type LiveConfig struct {
	live.Options  `mapstructure:",squash"`
	RawMessageLog bool          `mapstructure:"raw_message_log"`
	GiftCacheTTL  time.Duration `mapstructure:"gift_cache_ttl"`
}

// Load reads path, or config.yaml from . and ./config when path is empty.
// A missing default file is not an error. BILILIVE_* environment variables
// override file values, e.g. BILILIVE_LIVE_HEARTBEAT_TIMEOUT=90s.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv also reaches keys that are
// absent from the file.
func setDefaults(v *viper.Viper) {
	d := live.DefaultOptions()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service", "bililive")

	v.SetDefault("account.uid", 0)
	v.SetDefault("account.sessdata", "")
	v.SetDefault("account.bili_jct", "")
	v.SetDefault("account.buvid3", "")

	v.SetDefault("network.user_agent", bilibili.DefaultUserAgent)
	v.SetDefault("network.api_retry_max", 3)
	v.SetDefault("network.api_retry_interval", "3s")
	v.SetDefault("network.timeout", "10s")

	v.SetDefault("live.connect_interval", d.ConnectInterval.String())
	v.SetDefault("live.reconnect_interval", d.ReconnectInterval.String())
	v.SetDefault("live.handshake_timeout", d.HandshakeTimeout.String())
	v.SetDefault("live.heartbeat_delay", d.HeartbeatDelay.String())
	v.SetDefault("live.heartbeat_interval", d.HeartbeatInterval.String())
	v.SetDefault("live.heartbeat_timeout", d.HeartbeatTimeout.String())
	v.SetDefault("live.complete_event", d.CompleteEvent)
	v.SetDefault("live.raw_message_log", false)
	v.SetDefault("live.gift_cache_ttl", "1h")
	v.SetDefault("live.risk.enabled", d.Risk.Enabled)
	v.SetDefault("live.risk.interval", d.Risk.Interval.String())
	v.SetDefault("live.risk.threshold", d.Risk.Threshold)
	v.SetDefault("live.risk.window", d.Risk.Window)

	v.SetDefault("rooms", []uint64{})

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("sink.drivers", []string{sink.DriverLog})
	v.SetDefault("sink.channel", sink.DefaultChannel)
	v.SetDefault("sink.kafka.brokers", "localhost:9092")
	v.SetDefault("sink.kafka.topic", sink.DefaultTopic)
	v.SetDefault("sink.kafka.flush_timeout", "5s")
	v.SetDefault("sink.archive.region", "ap-northeast-1")
	v.SetDefault("sink.archive.bucket", "")
	v.SetDefault("sink.archive.prefix", "bililive")
	v.SetDefault("sink.archive.batch_size", 1000)
	v.SetDefault("sink.archive.flush_interval", "1m")
	v.SetDefault("sink.archive.retries", 3)
	v.SetDefault("sink.archive.timeout", "5s")

	v.SetDefault("cache.driver", cache.DriverMemory)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("store.path", "bililive.sqlite")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
}

func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	l := c.Live
	positive("live.connect_interval", l.ConnectInterval)
	positive("live.reconnect_interval", l.ReconnectInterval)
	positive("live.handshake_timeout", l.HandshakeTimeout)
	positive("live.heartbeat_delay", l.HeartbeatDelay)
	positive("live.heartbeat_interval", l.HeartbeatInterval)
	positive("live.heartbeat_timeout", l.HeartbeatTimeout)
	positive("live.gift_cache_ttl", l.GiftCacheTTL)
	positive("network.timeout", c.Network.Timeout)
	if c.Network.APIRetryMax < 1 {
		errs = append(errs, fmt.Errorf("network.api_retry_max must be at least 1, got %d", c.Network.APIRetryMax))
	}
	if c.Network.APIRetryInterval < 0 {
		errs = append(errs, fmt.Errorf("network.api_retry_interval must not be negative, got %s", c.Network.APIRetryInterval))
	}

	if l.Risk.Enabled {
		positive("live.risk.interval", l.Risk.Interval)
		if l.Risk.Threshold < 0 || l.Risk.Threshold > 100 {
			errs = append(errs, fmt.Errorf("live.risk.threshold must be within 0-100, got %v", l.Risk.Threshold))
		}
		if l.Risk.Window < 1 {
			errs = append(errs, fmt.Errorf("live.risk.window must be at least 1, got %d", l.Risk.Window))
		}
	}
	return errors.Join(errs...)
}
