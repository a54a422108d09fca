package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/voicecall/internal/app/call"
	"github.com/dkeye/voicecall/internal/retry"
)

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type CallConfig struct {
	RingTimeout     time.Duration `mapstructure:"ring_timeout"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	MaxICERestarts  int           `mapstructure:"max_ice_restarts"`
	EventBuffer     int           `mapstructure:"event_buffer"`
}

type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type ICEConfig struct {
	STUNURLs     []string      `mapstructure:"stun_urls"`
	TURNEndpoint string        `mapstructure:"turn_endpoint"`
	TURNToken    string        `mapstructure:"turn_token"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type SignalConfig struct {
	URL        string  `mapstructure:"url"`
	SendBuffer int     `mapstructure:"send_buffer"`
	RateLimit  float64 `mapstructure:"rate_limit"`
	RateBurst  int     `mapstructure:"rate_burst"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Log    LogConfig    `mapstructure:"log"`
	Call   CallConfig   `mapstructure:"call"`
	Retry  RetryConfig  `mapstructure:"retry"`
	ICE    ICEConfig    `mapstructure:"ice"`
	Signal SignalConfig `mapstructure:"signal"`
	Store  StoreConfig  `mapstructure:"store"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "voicecall-dev-secret")

	v.SetDefault("log.level", "info")

	v.SetDefault("call.ring_timeout", "30s")
	v.SetDefault("call.disconnect_grace", "5s")
	v.SetDefault("call.max_ice_restarts", 3)
	v.SetDefault("call.event_buffer", 64)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("ice.stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("ice.turn_endpoint", "")
	v.SetDefault("ice.turn_token", "")
	v.SetDefault("ice.timeout", "5s")

	v.SetDefault("signal.url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("signal.send_buffer", 32)
	v.SetDefault("signal.rate_limit", 20.0)
	v.SetDefault("signal.rate_burst", 40)

	v.SetDefault("store.sqlite_path", "voicecall.db")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// VOICECALL_* variables override both, e.g. VOICECALL_CALL_RING_TIMEOUT=45s.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("voicecall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("config ready")
	return &cfg, nil
}

// LogLevel parses log.level, falling back to info.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: c.Retry.InitialDelay,
		Multiplier:   c.Retry.Multiplier,
		MaxDelay:     c.Retry.MaxDelay,
	}
}

func (c *Config) CallOptions() call.Options {
	opts := call.DefaultOptions()
	if c.Call.RingTimeout > 0 {
		opts.RingTimeout = c.Call.RingTimeout
	}
	if c.Call.DisconnectGrace > 0 {
		opts.DisconnectGrace = c.Call.DisconnectGrace
	}
	opts.MaxICERestarts = c.Call.MaxICERestarts
	if c.Call.EventBuffer > 0 {
		opts.EventBuffer = c.Call.EventBuffer
	}
	opts.Retry = c.RetryPolicy()
	return opts
}
