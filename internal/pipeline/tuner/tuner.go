// Package tuner implements the adaptive exposure controller: a small
// discrete-time control loop that nudges gamma and the CLAHE clip limit
// toward better exposure, bounded, rate-limited and driven by smoothed
// brightness statistics.
package tuner

import (
	"time"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

// Config is the immutable controller parameter set. Values are normalized in
// New; the caller validates physical constraints at startup.
type Config struct {
	Enabled bool

	DarkMeanThr       float64
	BrightMeanThr     float64
	LowContrastStdThr float64

	SatRatioThr  float64
	DarkRatioThr float64

	GammaStep          float64
	GammaStepSaturated float64
	CLAHEStep          float64

	GammaMin float64
	GammaMax float64
	CLAHEMin float64
	CLAHEMax float64

	// CLAHETarget is the nominal clip set-point the contrast rule relaxes
	// toward when contrast is fine, with a +-relaxDeadBand dead-band around
	// it to prevent chatter.
	CLAHETarget float64

	UpdateEveryN      int
	MinUpdateInterval time.Duration
}

const (
	// commitEpsilon is the minimum change in either component that counts
	// as a real parameter change and resets the wall-clock gate.
	commitEpsilon = 1e-6

	// Dead-band half-width and asymmetric relax factors around CLAHETarget.
	relaxDeadBand   = 0.2
	relaxDownFactor = 0.5
	relaxUpFactor   = 0.3

	defaultCLAHETarget = 2.3
)

type Signal string

const (
	SignalHold       Signal = "hold"
	SignalSaturation Signal = "saturation"
	SignalBrighten   Signal = "brighten"
	SignalDarken     Signal = "darken"
)

// Controller tick decisions, used as the metrics label.
const (
	DecisionDisabled         = "disabled"
	DecisionSkipFrameGate    = "skip_frame_gate"
	DecisionSkipIntervalGate = "skip_interval_gate"
	DecisionHold             = "hold"
	DecisionCommit           = "commit"
)

// Contrast-rule actions reported in diagnostics.
const (
	ContrastBoost     = "boost"
	ContrastRelaxDown = "relax_down"
	ContrastRelaxUp   = "relax_up"
	ContrastHold      = "hold"
)

// Diagnostics describes one controller tick for logging and telemetry.
type Diagnostics struct {
	FrameCount     uint64
	Signal         Signal
	ContrastAction string
	Decision       string
	GammaBefore    float64
	GammaAfter     float64
	ClipBefore     float64
	ClipAfter      float64
	Committed      bool
}

// Controller owns the live operating point and the scheduling state for one
// stream. It is not goroutine-safe: the pipeline serializes Tick calls under
// its single-writer discipline.
type Controller struct {
	cfg Config

	gamma float64
	clahe float64

	frameCount uint64
	lastUpdate time.Time

	nowFn func() time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the wall-clock source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.nowFn = now }
}

// New builds a controller starting from the given boot operating point.
// The boot point is clamped into the configured bounds, so the bounds
// invariant holds immediately after construction.
func New(boot model.TuningParameters, cfg Config, opts ...Option) *Controller {
	cfg = normalize(cfg)
	c := &Controller{
		cfg:   cfg,
		gamma: clamp(boot.Gamma, cfg.GammaMin, cfg.GammaMax),
		clahe: clamp(boot.CLAHEClip, cfg.CLAHEMin, cfg.CLAHEMax),
		nowFn: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithSeed builds a controller warm-started from a persisted operating
// point. The seed is applied as a bounded move: at most one regular step per
// component away from the boot point, so a stale checkpoint cannot jump the
// parameters.
func NewWithSeed(boot model.TuningParameters, cfg Config, seed *model.TuningParameters, opts ...Option) *Controller {
	c := New(boot, cfg, opts...)
	if seed == nil {
		return c
	}
	c.gamma = boundedWarmStart(c.gamma, seed.Gamma, c.cfg.GammaStep, c.cfg.GammaMin, c.cfg.GammaMax)
	c.clahe = boundedWarmStart(c.clahe, seed.CLAHEClip, c.cfg.CLAHEStep, c.cfg.CLAHEMin, c.cfg.CLAHEMax)
	return c
}

func normalize(cfg Config) Config {
	if cfg.GammaMax < cfg.GammaMin {
		cfg.GammaMax = cfg.GammaMin
	}
	if cfg.CLAHEMax < cfg.CLAHEMin {
		cfg.CLAHEMax = cfg.CLAHEMin
	}
	if cfg.GammaStep < 0 {
		cfg.GammaStep = 0
	}
	if cfg.GammaStepSaturated < 0 {
		cfg.GammaStepSaturated = 0
	}
	if cfg.CLAHEStep < 0 {
		cfg.CLAHEStep = 0
	}
	if cfg.CLAHETarget == 0 {
		cfg.CLAHETarget = defaultCLAHETarget
	}
	cfg.CLAHETarget = clamp(cfg.CLAHETarget, cfg.CLAHEMin, cfg.CLAHEMax)
	if cfg.UpdateEveryN < 1 {
		cfg.UpdateEveryN = 1
	}
	if cfg.MinUpdateInterval < 0 {
		cfg.MinUpdateInterval = 0
	}
	return cfg
}

// Params returns the current operating point.
func (c *Controller) Params() model.TuningParameters {
	return model.TuningParameters{Gamma: c.gamma, CLAHEClip: c.clahe}
}

// FrameCount returns how many frames the scheduling gate has observed.
func (c *Controller) FrameCount() uint64 {
	return c.frameCount
}

// Tick runs one controller step for an accepted frame. The frame counter
// advances on every call regardless of gate outcome; the decision policy runs
// only when both the frame gate and the wall-clock gate are open. A committed
// change resets the wall-clock gate; a no-op tick does not, so a genuinely
// warranted change is never delayed by earlier no-ops.
func (c *Controller) Tick(smoothed model.BrightnessStats) (model.TuningParameters, Diagnostics) {
	c.frameCount++

	diag := Diagnostics{
		FrameCount:     c.frameCount,
		Signal:         SignalHold,
		ContrastAction: ContrastHold,
		GammaBefore:    c.gamma,
		GammaAfter:     c.gamma,
		ClipBefore:     c.clahe,
		ClipAfter:      c.clahe,
	}

	if !c.cfg.Enabled {
		diag.Decision = DecisionDisabled
		return c.Params(), diag
	}
	if c.frameCount%uint64(c.cfg.UpdateEveryN) != 0 {
		diag.Decision = DecisionSkipFrameGate
		return c.Params(), diag
	}
	now := c.nowFn()
	if now.Sub(c.lastUpdate) < c.cfg.MinUpdateInterval {
		diag.Decision = DecisionSkipIntervalGate
		return c.Params(), diag
	}

	gamma := c.gamma
	clahe := c.clahe

	if smoothed.SatRatio > c.cfg.SatRatioThr {
		// Saturation override: counter white-out aggressively and skip the
		// brightness/contrast rules for this tick.
		diag.Signal = SignalSaturation
		gamma = max(c.cfg.GammaMin, gamma-c.cfg.GammaStepSaturated)
		clahe = max(c.cfg.CLAHEMin, clahe-c.cfg.CLAHEStep)
	} else {
		switch {
		case smoothed.Mean < c.cfg.DarkMeanThr || smoothed.DarkRatio > c.cfg.DarkRatioThr:
			diag.Signal = SignalBrighten
			gamma = min(c.cfg.GammaMax, gamma+c.cfg.GammaStep)
		case smoothed.Mean > c.cfg.BrightMeanThr:
			diag.Signal = SignalDarken
			gamma = max(c.cfg.GammaMin, gamma-c.cfg.GammaStep)
		}

		if smoothed.Std < c.cfg.LowContrastStdThr {
			diag.ContrastAction = ContrastBoost
			clahe = min(c.cfg.CLAHEMax, clahe+c.cfg.CLAHEStep)
		} else {
			// Contrast is fine: relax the clip limit toward the nominal
			// set-point, holding still inside the dead-band.
			switch {
			case clahe > c.cfg.CLAHETarget+relaxDeadBand:
				diag.ContrastAction = ContrastRelaxDown
				clahe = max(c.cfg.CLAHEMin, clahe-c.cfg.CLAHEStep*relaxDownFactor)
			case clahe < c.cfg.CLAHETarget-relaxDeadBand:
				diag.ContrastAction = ContrastRelaxUp
				clahe = min(c.cfg.CLAHEMax, clahe+c.cfg.CLAHEStep*relaxUpFactor)
			}
		}
	}

	if abs(gamma-c.gamma) > commitEpsilon || abs(clahe-c.clahe) > commitEpsilon {
		c.gamma = clamp(gamma, c.cfg.GammaMin, c.cfg.GammaMax)
		c.clahe = clamp(clahe, c.cfg.CLAHEMin, c.cfg.CLAHEMax)
		c.lastUpdate = now
		diag.Decision = DecisionCommit
		diag.Committed = true
	} else {
		diag.Decision = DecisionHold
	}
	diag.GammaAfter = c.gamma
	diag.ClipAfter = c.clahe
	return c.Params(), diag
}

// boundedWarmStart moves base toward seed by at most one step, clamped.
func boundedWarmStart(base, seed, step, lo, hi float64) float64 {
	seed = clamp(seed, lo, hi)
	delta := seed - base
	if delta > step {
		delta = step
	}
	if delta < -step {
		delta = -step
	}
	return clamp(base+delta, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
