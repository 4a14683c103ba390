package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Stream     string           `yaml:"stream"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Tuning     TuningConfig     `yaml:"tuning"`
	Source     SourceConfig     `yaml:"source"`
	Output     OutputConfig     `yaml:"output"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Server     ServerConfig     `yaml:"server"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Log        LogConfig        `yaml:"log"`
}

// PreprocessConfig holds the boot operating point and the fixed CLAHE grid.
type PreprocessConfig struct {
	Gamma        float64 `yaml:"gamma"`
	CLAHEClip    float64 `yaml:"clahe_clip"`
	CLAHEGrid    int     `yaml:"clahe_grid"`
	DebugOverlay bool    `yaml:"debug_overlay"`
}

// TuningConfig is the immutable auto-tune parameter set. It is validated once
// at startup and passed by reference thereafter.
type TuningConfig struct {
	Enabled bool `yaml:"enabled"`

	DarkMeanThr       float64 `yaml:"dark_mean_thr"`
	BrightMeanThr     float64 `yaml:"bright_mean_thr"`
	LowContrastStdThr float64 `yaml:"low_contrast_std_thr"`

	SatThr       int     `yaml:"sat_thr"`
	DarkThr      int     `yaml:"dark_thr"`
	SatRatioThr  float64 `yaml:"sat_ratio_thr"`
	DarkRatioThr float64 `yaml:"dark_ratio_thr"`

	GammaStep          float64 `yaml:"gamma_step"`
	GammaStepSaturated float64 `yaml:"gamma_step_saturated"`
	CLAHEStep          float64 `yaml:"clahe_step"`

	GammaMin float64 `yaml:"gamma_min"`
	GammaMax float64 `yaml:"gamma_max"`
	CLAHEMin float64 `yaml:"clahe_min"`
	CLAHEMax float64 `yaml:"clahe_max"`

	// CLAHETarget is the nominal set-point the clip limit relaxes toward
	// when contrast is already fine. It is deliberately distinct from the
	// boot clip value.
	CLAHETarget float64 `yaml:"clahe_target"`

	EMAAlpha          float64  `yaml:"ema_alpha"`
	UpdateEveryN      int      `yaml:"update_every_n"`
	MinUpdateInterval Duration `yaml:"min_update_interval"`
}

type SourceConfig struct {
	Kind string  `yaml:"kind"` // "dir" or "synthetic"
	Dir  string  `yaml:"dir"`
	FPS  float64 `yaml:"fps"`
	Loop bool    `yaml:"loop"`

	// Synthetic source shape.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"` // empty discards transformed frames
}

type CheckpointConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url"`
}

type ServerConfig struct {
	HealthPort int `yaml:"health_port"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load builds the configuration from environment variables, applies the
// optional YAML overlay named by PREPROCESS_CONFIG_FILE, and validates it.
// Validation failure is fatal to the caller: undefined bounds make clamping
// undefined, so no frame may be processed with an invalid config.
func Load() (*Config, error) {
	cfg := &Config{
		Stream: getEnv("STREAM_ID", "camera0"),
		Preprocess: PreprocessConfig{
			Gamma:        getEnvFloat("PREPROCESS_GAMMA", 1.10),
			CLAHEClip:    getEnvFloat("PREPROCESS_CLAHE_CLIP", 2.5),
			CLAHEGrid:    getEnvInt("PREPROCESS_CLAHE_GRID", 8),
			DebugOverlay: getEnvBool("PREPROCESS_DEBUG_OVERLAY", false),
		},
		Tuning: TuningConfig{
			Enabled:            getEnvBool("AUTO_TUNE_ENABLE", false),
			DarkMeanThr:        getEnvFloat("AUTO_TUNE_DARK_MEAN_THR", 90.0),
			BrightMeanThr:      getEnvFloat("AUTO_TUNE_BRIGHT_MEAN_THR", 170.0),
			LowContrastStdThr:  getEnvFloat("AUTO_TUNE_LOW_CONTRAST_STD_THR", 35.0),
			SatThr:             getEnvInt("AUTO_TUNE_SAT_THR", 245),
			DarkThr:            getEnvInt("AUTO_TUNE_DARK_THR", 10),
			SatRatioThr:        getEnvFloat("AUTO_TUNE_SAT_RATIO_THR", 0.12),
			DarkRatioThr:       getEnvFloat("AUTO_TUNE_DARK_RATIO_THR", 0.12),
			GammaStep:          getEnvFloat("AUTO_TUNE_GAMMA_STEP", 0.05),
			GammaStepSaturated: getEnvFloat("AUTO_TUNE_GAMMA_STEP_SATURATED", 0.08),
			CLAHEStep:          getEnvFloat("AUTO_TUNE_CLAHE_STEP", 0.2),
			GammaMin:           getEnvFloat("AUTO_TUNE_GAMMA_MIN", 0.70),
			GammaMax:           getEnvFloat("AUTO_TUNE_GAMMA_MAX", 1.60),
			CLAHEMin:           getEnvFloat("AUTO_TUNE_CLAHE_MIN", 1.2),
			CLAHEMax:           getEnvFloat("AUTO_TUNE_CLAHE_MAX", 3.8),
			CLAHETarget:        getEnvFloat("AUTO_TUNE_CLAHE_TARGET", 2.3),
			EMAAlpha:           getEnvFloat("AUTO_TUNE_EMA_ALPHA", 0.15),
			UpdateEveryN:       getEnvInt("AUTO_TUNE_UPDATE_EVERY_N", 8),
			MinUpdateInterval:  Duration(time.Duration(getEnvInt("AUTO_TUNE_MIN_UPDATE_INTERVAL_MS", 250)) * time.Millisecond),
		},
		Source: SourceConfig{
			Kind:   getEnv("SOURCE_KIND", "synthetic"),
			Dir:    getEnv("SOURCE_DIR", ""),
			FPS:    getEnvFloat("SOURCE_FPS", 30.0),
			Loop:   getEnvBool("SOURCE_LOOP", false),
			Width:  getEnvInt("SOURCE_WIDTH", 640),
			Height: getEnvInt("SOURCE_HEIGHT", 480),
		},
		Output: OutputConfig{
			Dir: getEnv("OUTPUT_DIR", ""),
		},
		Checkpoint: CheckpointConfig{
			Enabled:  getEnvBool("CHECKPOINT_ENABLED", false),
			RedisURL: getEnv("CHECKPOINT_REDIS_URL", "redis://localhost:6379"),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", ""),
			Insecure: getEnvBool("TRACING_INSECURE", true),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if path := getEnv("PREPROCESS_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate enforces the physical constraints of the tuning parameter set.
func (c *Config) Validate() error {
	t := c.Tuning

	if t.GammaMin > t.GammaMax {
		return fmt.Errorf("gamma bounds inverted: min %.3f > max %.3f", t.GammaMin, t.GammaMax)
	}
	if t.CLAHEMin > t.CLAHEMax {
		return fmt.Errorf("clahe bounds inverted: min %.3f > max %.3f", t.CLAHEMin, t.CLAHEMax)
	}
	if t.GammaMin <= 0 {
		return fmt.Errorf("gamma_min must be positive, got %.3f", t.GammaMin)
	}
	if t.EMAAlpha <= 0 || t.EMAAlpha > 1 {
		return fmt.Errorf("ema_alpha must be in (0,1], got %.3f", t.EMAAlpha)
	}
	if t.GammaStep < 0 || t.GammaStepSaturated < 0 || t.CLAHEStep < 0 {
		return fmt.Errorf("step sizes must be non-negative (gamma_step=%.3f gamma_step_saturated=%.3f clahe_step=%.3f)",
			t.GammaStep, t.GammaStepSaturated, t.CLAHEStep)
	}
	if t.SatThr < 0 || t.SatThr > 255 || t.DarkThr < 0 || t.DarkThr > 255 {
		return fmt.Errorf("luma thresholds must be in [0,255] (sat_thr=%d dark_thr=%d)", t.SatThr, t.DarkThr)
	}
	if t.DarkThr >= t.SatThr {
		return fmt.Errorf("dark_thr %d must be below sat_thr %d", t.DarkThr, t.SatThr)
	}
	if t.SatRatioThr < 0 || t.SatRatioThr > 1 || t.DarkRatioThr < 0 || t.DarkRatioThr > 1 {
		return fmt.Errorf("ratio thresholds must be in [0,1] (sat=%.3f dark=%.3f)", t.SatRatioThr, t.DarkRatioThr)
	}
	if t.DarkMeanThr >= t.BrightMeanThr {
		return fmt.Errorf("dark_mean_thr %.1f must be below bright_mean_thr %.1f", t.DarkMeanThr, t.BrightMeanThr)
	}
	if t.CLAHETarget < t.CLAHEMin || t.CLAHETarget > t.CLAHEMax {
		return fmt.Errorf("clahe_target %.2f outside clahe bounds [%.2f, %.2f]", t.CLAHETarget, t.CLAHEMin, t.CLAHEMax)
	}
	if t.UpdateEveryN < 1 {
		return fmt.Errorf("update_every_n must be >= 1, got %d", t.UpdateEveryN)
	}
	if t.MinUpdateInterval < 0 {
		return fmt.Errorf("min_update_interval must be non-negative, got %s", t.MinUpdateInterval)
	}

	if c.Preprocess.CLAHEGrid < 1 {
		return fmt.Errorf("clahe_grid must be >= 1, got %d", c.Preprocess.CLAHEGrid)
	}
	if c.Stream == "" {
		return fmt.Errorf("STREAM_ID is required")
	}
	switch c.Source.Kind {
	case "dir":
		if c.Source.Dir == "" {
			return fmt.Errorf("SOURCE_DIR is required for dir source")
		}
	case "synthetic":
		if c.Source.Width < 1 || c.Source.Height < 1 {
			return fmt.Errorf("synthetic source dimensions must be positive (%dx%d)", c.Source.Width, c.Source.Height)
		}
	default:
		return fmt.Errorf("unsupported source kind %q", c.Source.Kind)
	}
	if c.Source.FPS <= 0 {
		return fmt.Errorf("source fps must be positive, got %.2f", c.Source.FPS)
	}
	if c.Checkpoint.Enabled && c.Checkpoint.RedisURL == "" {
		return fmt.Errorf("CHECKPOINT_REDIS_URL is required when checkpointing is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
