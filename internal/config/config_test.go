package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "camera0", cfg.Stream)
	assert.InDelta(t, 1.10, cfg.Preprocess.Gamma, 1e-9)
	assert.InDelta(t, 2.5, cfg.Preprocess.CLAHEClip, 1e-9)
	assert.Equal(t, 8, cfg.Preprocess.CLAHEGrid)
	assert.False(t, cfg.Preprocess.DebugOverlay)

	assert.False(t, cfg.Tuning.Enabled)
	assert.InDelta(t, 90.0, cfg.Tuning.DarkMeanThr, 1e-9)
	assert.InDelta(t, 170.0, cfg.Tuning.BrightMeanThr, 1e-9)
	assert.InDelta(t, 35.0, cfg.Tuning.LowContrastStdThr, 1e-9)
	assert.Equal(t, 245, cfg.Tuning.SatThr)
	assert.Equal(t, 10, cfg.Tuning.DarkThr)
	assert.InDelta(t, 0.12, cfg.Tuning.SatRatioThr, 1e-9)
	assert.InDelta(t, 0.12, cfg.Tuning.DarkRatioThr, 1e-9)
	assert.InDelta(t, 0.05, cfg.Tuning.GammaStep, 1e-9)
	assert.InDelta(t, 0.08, cfg.Tuning.GammaStepSaturated, 1e-9)
	assert.InDelta(t, 0.2, cfg.Tuning.CLAHEStep, 1e-9)
	assert.InDelta(t, 0.70, cfg.Tuning.GammaMin, 1e-9)
	assert.InDelta(t, 1.60, cfg.Tuning.GammaMax, 1e-9)
	assert.InDelta(t, 1.2, cfg.Tuning.CLAHEMin, 1e-9)
	assert.InDelta(t, 3.8, cfg.Tuning.CLAHEMax, 1e-9)
	assert.InDelta(t, 2.3, cfg.Tuning.CLAHETarget, 1e-9)
	assert.InDelta(t, 0.15, cfg.Tuning.EMAAlpha, 1e-9)
	assert.Equal(t, 8, cfg.Tuning.UpdateEveryN)
	assert.Equal(t, 250*time.Millisecond, cfg.Tuning.MinUpdateInterval.Std())

	assert.Equal(t, "synthetic", cfg.Source.Kind)
	assert.Equal(t, 8080, cfg.Server.HealthPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STREAM_ID", "front-cam")
	t.Setenv("AUTO_TUNE_ENABLE", "true")
	t.Setenv("AUTO_TUNE_GAMMA_STEP", "0.10")
	t.Setenv("AUTO_TUNE_UPDATE_EVERY_N", "4")
	t.Setenv("AUTO_TUNE_MIN_UPDATE_INTERVAL_MS", "500")
	t.Setenv("SOURCE_KIND", "dir")
	t.Setenv("SOURCE_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "front-cam", cfg.Stream)
	assert.True(t, cfg.Tuning.Enabled)
	assert.InDelta(t, 0.10, cfg.Tuning.GammaStep, 1e-9)
	assert.Equal(t, 4, cfg.Tuning.UpdateEveryN)
	assert.Equal(t, 500*time.Millisecond, cfg.Tuning.MinUpdateInterval.Std())
	assert.Equal(t, "dir", cfg.Source.Kind)
}

func TestLoad_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preprocess.yaml")
	body := `
stream: yard-cam
preprocess:
  gamma: 1.25
  clahe_grid: 16
tuning:
  enabled: true
  min_update_interval: 750ms
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("PREPROCESS_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "yard-cam", cfg.Stream)
	assert.InDelta(t, 1.25, cfg.Preprocess.Gamma, 1e-9)
	assert.Equal(t, 16, cfg.Preprocess.CLAHEGrid)
	assert.True(t, cfg.Tuning.Enabled)
	assert.Equal(t, 750*time.Millisecond, cfg.Tuning.MinUpdateInterval.Std())
	// Values not named in the file keep their env/default values.
	assert.InDelta(t, 2.5, cfg.Preprocess.CLAHEClip, 1e-9)
}

func TestLoad_FileOverlayRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preprocess.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_field: 1\n"), 0o644))
	t.Setenv("PREPROCESS_CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"inverted gamma bounds", func(c *Config) { c.Tuning.GammaMin = 2.0 }, "gamma bounds inverted"},
		{"inverted clahe bounds", func(c *Config) { c.Tuning.CLAHEMin = 4.0 }, "clahe bounds inverted"},
		{"non-positive gamma min", func(c *Config) { c.Tuning.GammaMin = 0; c.Tuning.GammaMax = 1 }, "gamma_min must be positive"},
		{"alpha zero", func(c *Config) { c.Tuning.EMAAlpha = 0 }, "ema_alpha"},
		{"alpha above one", func(c *Config) { c.Tuning.EMAAlpha = 1.5 }, "ema_alpha"},
		{"negative step", func(c *Config) { c.Tuning.CLAHEStep = -0.1 }, "step sizes"},
		{"sat thr out of range", func(c *Config) { c.Tuning.SatThr = 300 }, "luma thresholds"},
		{"dark above sat", func(c *Config) { c.Tuning.DarkThr = 250 }, "dark_thr"},
		{"ratio out of range", func(c *Config) { c.Tuning.SatRatioThr = 1.5 }, "ratio thresholds"},
		{"mean thresholds inverted", func(c *Config) { c.Tuning.DarkMeanThr = 200 }, "dark_mean_thr"},
		{"target outside bounds", func(c *Config) { c.Tuning.CLAHETarget = 5.0 }, "clahe_target"},
		{"update every n zero", func(c *Config) { c.Tuning.UpdateEveryN = 0 }, "update_every_n"},
		{"negative interval", func(c *Config) { c.Tuning.MinUpdateInterval = Duration(-time.Second) }, "min_update_interval"},
		{"grid zero", func(c *Config) { c.Preprocess.CLAHEGrid = 0 }, "clahe_grid"},
		{"empty stream", func(c *Config) { c.Stream = "" }, "STREAM_ID"},
		{"dir source without dir", func(c *Config) { c.Source.Kind = "dir"; c.Source.Dir = "" }, "SOURCE_DIR"},
		{"bad source kind", func(c *Config) { c.Source.Kind = "rtsp" }, "unsupported source kind"},
		{"zero fps", func(c *Config) { c.Source.FPS = 0 }, "fps"},
		{"checkpoint without redis", func(c *Config) { c.Checkpoint.Enabled = true; c.Checkpoint.RedisURL = "" }, "CHECKPOINT_REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
