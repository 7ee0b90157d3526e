package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const MinJWTSecretLen = 32

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	NodeID   string `mapstructure:"node_id"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`

	Secret         string   `mapstructure:"secret"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	PeersTimeout time.Duration `mapstructure:"peers_timeout"`
	JoinRate     RateConfig    `mapstructure:"join_rate"`

	Redis        RedisConfig `mapstructure:"redis"`
	DatabasePath string      `mapstructure:"database_path"`
	ICEServers   []ICEServer `mapstructure:"ice_servers"`

	v *viper.Viper
}

// Load reads config/config.<CONFIG_ENV>.yaml (default "dev") with MESHCALL_*
// environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("MESHCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("node", cfg.NodeID).Msg("config ready")
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("peers_timeout", "5s")
	v.SetDefault("join_rate.limit", 5)
	v.SetDefault("join_rate.interval", "10s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database_path", "data/meshcall.db")
	v.SetDefault("secret", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("node_id", "")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < MinJWTSecretLen {
		errs = append(errs, fmt.Errorf("jwt_secret must be at least %d characters", MinJWTSecretLen))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.PingPeriod <= 0 || c.WriteWait <= 0 || c.PeersTimeout <= 0 {
		errs = append(errs, errors.New("ping_period, write_wait and peers_timeout must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.JoinRate.Limit <= 0 || c.JoinRate.Interval <= 0 {
		errs = append(errs, errors.New("join_rate limit and interval must be positive"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// Level is the parsed log_level, info when unset.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WatchLogLevel re-reads the config file on change and applies a new
// log_level. Nothing else is reloaded.
func (c *Config) WatchLogLevel(apply func(zerolog.Level)) {
	if c.v == nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		raw := c.v.GetString("log_level")
		lvl, err := zerolog.ParseLevel(raw)
		if err != nil {
			log.Warn().Err(err).Str("module", "config").Str("file", e.Name).Msg("ignoring bad log_level")
			return
		}
		c.LogLevel = raw
		apply(lvl)
		log.Info().Str("module", "config").Str("file", e.Name).Str("level", lvl.String()).Msg("log level reloaded")
	})
	c.v.WatchConfig()
}
