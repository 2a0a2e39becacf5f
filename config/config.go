// Package config loads engine settings from defaults, an optional config
// file and FATIGUE_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/personalization"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
	"github.com/YuminosukeSato/fatigo/pkg/log"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "FATIGUE"

// Defaults.
const (
	DefaultKeepBackups      = 5
	DefaultMinSamples       = 10
	DefaultRefitEvery       = 100
	DefaultBufferSize       = 1000
	DefaultFeatureSpace     = "extended"
	DefaultExtractionBudget = 5 * time.Millisecond
	DefaultLogLevel         = "info"
)

// Config holds every engine setting.
type Config struct {
	DataDir          string                   `mapstructure:"data_dir"`
	ModelDir         string                   `mapstructure:"model_dir"`
	ProfilePath      string                   `mapstructure:"profile_path"`
	KeepBackups      int                      `mapstructure:"keep_backups"`
	MinSamples       int                      `mapstructure:"min_samples"`
	RefitEvery       int                      `mapstructure:"refit_every"`
	BufferSize       int                      `mapstructure:"buffer_size"`
	FeatureSpace     string                   `mapstructure:"feature_space"`
	ExtractionBudget time.Duration            `mapstructure:"extraction_budget"`
	LogLevel         string                   `mapstructure:"log_level"`
	Schedule         personalization.Schedule `mapstructure:"schedule"`
}

// Default returns the built-in configuration rooted at the XDG data home.
func Default() Config {
	c := Config{
		DataDir:          DefaultDataDir(),
		KeepBackups:      DefaultKeepBackups,
		MinSamples:       DefaultMinSamples,
		RefitEvery:       DefaultRefitEvery,
		BufferSize:       DefaultBufferSize,
		FeatureSpace:     DefaultFeatureSpace,
		ExtractionBudget: DefaultExtractionBudget,
		LogLevel:         DefaultLogLevel,
		Schedule:         personalization.DefaultSchedule(),
	}
	c.fillPaths()
	return c
}

// WithDataDir returns the default configuration rooted at dir.
func WithDataDir(dir string) Config {
	return Default().RootAt(dir)
}

// RootAt moves the data directory and the paths derived from it.
func (c Config) RootAt(dir string) Config {
	c.DataDir = dir
	c.ModelDir = ""
	c.ProfilePath = ""
	c.fillPaths()
	return c
}

func (c *Config) fillPaths() {
	if c.ModelDir == "" {
		c.ModelDir = filepath.Join(c.DataDir, "models")
	}
	if c.ProfilePath == "" {
		c.ProfilePath = filepath.Join(c.DataDir, "user_profile.json")
	}
}

// Load merges defaults, the config file at path (when non-empty, or the
// default path when it exists) and FATIGUE_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("model_dir", "")
	v.SetDefault("profile_path", "")
	v.SetDefault("keep_backups", def.KeepBackups)
	v.SetDefault("min_samples", def.MinSamples)
	v.SetDefault("refit_every", def.RefitEvery)
	v.SetDefault("buffer_size", def.BufferSize)
	v.SetDefault("feature_space", def.FeatureSpace)
	v.SetDefault("extraction_budget", def.ExtractionBudget)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultConfigPath()); err == nil {
			path = DefaultConfigPath()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "unmarshal config")
	}
	if len(c.Schedule) == 0 {
		c.Schedule = def.Schedule
	}
	c.fillPaths()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.NewValidationError("data_dir", "is required", c.DataDir)
	}
	positive := []struct {
		name string
		v    int
	}{
		{"keep_backups", c.KeepBackups},
		{"min_samples", c.MinSamples},
		{"refit_every", c.RefitEvery},
		{"buffer_size", c.BufferSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return errors.NewValidationError(p.name, "must be positive", p.v)
		}
	}
	if c.BufferSize < c.MinSamples {
		return errors.NewValidationError("buffer_size", "must hold at least min_samples", c.BufferSize)
	}
	if c.ExtractionBudget <= 0 {
		return errors.NewValidationError("extraction_budget", "must be positive", c.ExtractionBudget)
	}
	if _, err := features.ParseSpace(c.FeatureSpace); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.Schedule.Validate()
}

// Space returns the parsed feature space.
func (c Config) Space() features.Space {
	s, _ := features.ParseSpace(c.FeatureSpace)
	return s
}
