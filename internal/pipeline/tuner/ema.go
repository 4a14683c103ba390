package tuner

import "github.com/tidbots/image-preprocess/internal/domain/model"

// Smoother maintains the exponential moving average of brightness statistics,
// S' = (1-a)*S + a*X per field. It starts from the zero snapshot and must be
// fed exactly once per accepted frame, before the rate gate is consulted, so
// the controller always sees the post-update value for the current frame.
type Smoother struct {
	alpha float64
	value model.BrightnessStats
}

func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Observe folds one frame's snapshot into the running estimate and returns
// the updated value.
func (s *Smoother) Observe(x model.BrightnessStats) model.BrightnessStats {
	a := s.alpha
	s.value.Mean = (1-a)*s.value.Mean + a*x.Mean
	s.value.Std = (1-a)*s.value.Std + a*x.Std
	s.value.SatRatio = (1-a)*s.value.SatRatio + a*x.SatRatio
	s.value.DarkRatio = (1-a)*s.value.DarkRatio + a*x.DarkRatio
	return s.value
}

// Value returns the current smoothed estimate without updating it.
func (s *Smoother) Value() model.BrightnessStats {
	return s.value
}
