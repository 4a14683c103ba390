package tuner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

func TestSmoother_SingleObservation(t *testing.T) {
	s := NewSmoother(0.15)
	got := s.Observe(model1())

	// From the zero start, one observation contributes exactly alpha of
	// each field.
	assert.InDelta(t, 0.15*60, got.Mean, 1e-12)
	assert.InDelta(t, 0.15*40, got.Std, 1e-12)
	assert.InDelta(t, 0.15*0.2, got.SatRatio, 1e-12)
	assert.InDelta(t, 0.15*0.1, got.DarkRatio, 1e-12)
	assert.Equal(t, got, s.Value())
}

func TestSmoother_ConvergesToConstantInput(t *testing.T) {
	s := NewSmoother(0.15)
	x := model1()

	var got = s.Value()
	for i := 0; i < 100; i++ {
		got = s.Observe(x)
	}
	assert.InDelta(t, x.Mean, got.Mean, 1e-4)
	assert.InDelta(t, x.Std, got.Std, 1e-4)
	assert.InDelta(t, x.SatRatio, got.SatRatio, 1e-6)
	assert.InDelta(t, x.DarkRatio, got.DarkRatio, 1e-6)
}

func TestSmoother_AlphaOneTracksInputExactly(t *testing.T) {
	s := NewSmoother(1.0)
	x := model1()
	assert.Equal(t, x, s.Observe(x))

	x.Mean = 200
	assert.Equal(t, x, s.Observe(x))
}

func TestSmoother_DampensSpike(t *testing.T) {
	s := NewSmoother(0.15)
	base := model1()
	for i := 0; i < 50; i++ {
		s.Observe(base)
	}

	spike := base
	spike.Mean = 255
	got := s.Observe(spike)

	// One outlier frame moves the estimate by only a fraction of the jump.
	assert.Less(t, got.Mean, base.Mean+0.16*(spike.Mean-base.Mean))
	assert.Greater(t, got.Mean, base.Mean)
}

func model1() model.BrightnessStats {
	return model.BrightnessStats{Mean: 60, Std: 40, SatRatio: 0.2, DarkRatio: 0.1}
}
