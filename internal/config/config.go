// Package config loads dankutility settings using Viper.
package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/tangthinker/dankutility/internal/backup"
)

// AppName is used for config, state and runtime directory names.
const AppName = "dankutility"

// DefaultPeriod is the production backup interval.
const DefaultPeriod = 6 * time.Hour

// ErrInvalidConfig indicates configuration validation failed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config 存储运行配置
type Config struct {
	SourceDir string        `mapstructure:"source_dir"` // 手动指定的 Mods 目录
	DestDir   string        `mapstructure:"dest_dir"`   // 手动指定的备份目录
	Period    time.Duration `mapstructure:"period"`     // 备份间隔
	LogFile   string        `mapstructure:"log_file"`
	LogLevel  string        `mapstructure:"log_level"`
	Socket    string        `mapstructure:"socket"`
}

// HasManualPaths reports whether both locations are configured explicitly.
func (c *Config) HasManualPaths() bool {
	return c.SourceDir != "" && c.DestDir != ""
}

// LockFile is the single-instance lock path, kept next to the socket.
func (c *Config) LockFile() string {
	return c.Socket + ".lock"
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Period < backup.MinPeriod {
		return errors.Wrapf(ErrInvalidConfig, "period %s is shorter than %s", c.Period, backup.MinPeriod)
	}
	if (c.SourceDir == "") != (c.DestDir == "") {
		return errors.Wrap(ErrInvalidConfig, "source_dir and dest_dir must be set together")
	}
	if c.Socket == "" {
		return errors.Wrap(ErrInvalidConfig, "socket path is empty")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log_level %q", c.LogLevel)
	}
	return nil
}

// New returns a Viper instance with defaults, search paths and environment
// binding set up.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))

	v.SetEnvPrefix("DANKUTILITY")
	v.AutomaticEnv()

	v.SetDefault("source_dir", "")
	v.SetDefault("dest_dir", "")
	v.SetDefault("period", DefaultPeriod)
	v.SetDefault("log_file", filepath.Join(xdg.StateHome, AppName, AppName+".log"))
	v.SetDefault("log_level", "info")
	v.SetDefault("socket", filepath.Join(xdg.RuntimeDir, AppName, AppName+".sock"))

	return v
}

// Load reads the configuration into a Config.
// If path is empty, a missing config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
