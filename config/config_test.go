package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/fatigo/features"
	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	return dir
}

func TestDefaults(t *testing.T) {
	dir := isolate(t)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "fatigo"), c.DataDir)
	assert.Equal(t, filepath.Join(c.DataDir, "models"), c.ModelDir)
	assert.Equal(t, filepath.Join(c.DataDir, "user_profile.json"), c.ProfilePath)
	assert.Equal(t, 5, c.KeepBackups)
	assert.Equal(t, 10, c.MinSamples)
	assert.Equal(t, 5*time.Millisecond, c.ExtractionBudget)
	assert.Equal(t, features.SpaceExtended, c.Space())
	assert.Len(t, c.Schedule, 4)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "fatigo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /tmp/fatigo-test
keep_backups: 3
feature_space: live
extraction_budget: 10ms
schedule:
  - min_sessions: 0
    weight: 0
  - min_sessions: 3
    weight: 0.5
`), 0o644))
	t.Setenv("FATIGUE_MIN_SAMPLES", "25")
	t.Setenv("FATIGUE_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fatigo-test", c.DataDir)
	assert.Equal(t, "/tmp/fatigo-test/models", c.ModelDir)
	assert.Equal(t, 3, c.KeepBackups)
	assert.Equal(t, 25, c.MinSamples)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, features.SpaceLive, c.Space())
	assert.Equal(t, 10*time.Millisecond, c.ExtractionBudget)
	require.Len(t, c.Schedule, 2)
	assert.Equal(t, 0.5, c.Schedule.MLWeight(4))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	cases := map[string]func(*Config){
		"keep":     func(c *Config) { c.KeepBackups = 0 },
		"buffer":   func(c *Config) { c.BufferSize = 5 },
		"budget":   func(c *Config) { c.ExtractionBudget = 0 },
		"space":    func(c *Config) { c.FeatureSpace = "webcam" },
		"level":    func(c *Config) { c.LogLevel = "loud" },
		"schedule": func(c *Config) { c.Schedule[1].Weight = 1 },
		"data_dir": func(c *Config) { c.DataDir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(&c)
			var verr *errors.ValidationError
			assert.True(t, errors.As(c.Validate(), &verr))
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestWithDataDir(t *testing.T) {
	c := WithDataDir("/srv/fatigo")
	assert.Equal(t, "/srv/fatigo/models", c.ModelDir)
	assert.Equal(t, "/srv/fatigo/user_profile.json", c.ProfilePath)
	assert.NoError(t, c.Validate())
}
