package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all flashbox configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Badger  BadgerConfig  `mapstructure:"badger"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig defines HTTP listener settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig defines the session cookie and where alerts live in it.
type SessionConfig struct {
	Backend    string        `mapstructure:"backend"` // "redis" or "memory"
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	Secure     bool          `mapstructure:"secure"`
	AlertKey   string        `mapstructure:"alert_key"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// BadgerConfig defines the durable session mirror. An empty path disables it.
type BadgerConfig struct {
	Path       string        `mapstructure:"path"`
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".flashbox"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("flashbox")
		v.SetConfigType("yaml")
	}

	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("session.backend", "redis")
	v.SetDefault("session.cookie_name", "flashbox_session")
	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.alert_key", "alert")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("badger.path", "./badger-data")
	v.SetDefault("badger.gc_interval", "5m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("FLASHBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("session backend redis requires redis.addr")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must not be negative")
	}
	return nil
}
