package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/plancost/test"
)

func TestApplyDefaultAndFile(t *testing.T) {
	t.Setenv(EnvPath, "")
	Use(Default())
	t.Cleanup(func() { Use(Default()) })

	require.Equal(t, 10, Active().Explore.Bins)

	root := test.RootPath(t)
	require.NoError(t, Apply(filepath.Join(root, "samples", "config.example.json")))

	cfg := Active()
	assert.Equal(t, 12, cfg.Explore.Bins)
	assert.Equal(t, 2, cfg.Explore.Parallelism)
	assert.Equal(t, Duration(90*time.Second), cfg.Explore.Timeout)
	assert.Equal(t, 256, cfg.Stats.CacheSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0.6, cfg.Insights.HotspotCriticalPercent)
	assert.Equal(t, 0.25, cfg.Insights.HotspotWarningPercent, "unset keys keep defaults")
	assert.Equal(t, 12, cfg.Diff.MaxItems)
	assert.Equal(t, 5.0, cfg.Diff.MinCostDelta)

	require.NoError(t, Apply(""))
	assert.Equal(t, Default(), Active())
}

func TestApplyYAML(t *testing.T) {
	t.Setenv(EnvPath, "")
	t.Cleanup(func() { Use(Default()) })

	require.NoError(t, Apply(filepath.Join(test.RootPath(t), "samples", "config.example.yaml")))

	cfg := Active()
	assert.Equal(t, 8, cfg.Explore.Bins)
	assert.Equal(t, Duration(45*time.Second), cfg.Explore.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 10.0, cfg.Diff.MinPercentChange)
	assert.Equal(t, 128, cfg.Stats.CacheSize)
}

func TestApplyFromEnvironment(t *testing.T) {
	t.Cleanup(func() { Use(Default()) })
	t.Setenv(EnvPath, filepath.Join(test.RootPath(t), "samples", "config.example.yaml"))

	require.NoError(t, Apply(""))
	assert.Equal(t, 8, Active().Explore.Bins)
}

func TestApplyMissingFile(t *testing.T) {
	require.Error(t, Apply(filepath.Join(os.TempDir(), "does-not-exist.json")))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("explore:\n  bins: 0\n"), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "explore.bins")
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	for name, body := range map[string]string{
		"zero":     "explore:\n  timeout: 0s\n",
		"negative": "explore:\n  timeout: -5s\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "timeout.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := Load(path)
			require.ErrorContains(t, err, "explore.timeout must be positive")
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"explore": {"timeout": "soon"}}`), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "parse config")
}
