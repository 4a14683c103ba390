package stats

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

func uniformFrame(w, h int, v uint8) *model.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = v
		img.Pix[i+1] = v
		img.Pix[i+2] = v
		img.Pix[i+3] = 255
	}
	return model.NewFrame("test", 1, img)
}

func TestComputer_UniformImage(t *testing.T) {
	c := NewComputer(245, 10)
	got, err := c.Compute(uniformFrame(16, 16, 128))
	require.NoError(t, err)

	assert.InDelta(t, 128, got.Mean, 1e-9)
	assert.InDelta(t, 0, got.Std, 1e-6)
	assert.Zero(t, got.SatRatio)
	assert.Zero(t, got.DarkRatio)
}

func TestComputer_SaturationAndDarkRatios(t *testing.T) {
	c := NewComputer(245, 10)

	// 4x4 image: top row white (saturated), bottom row black (dark), the
	// middle two rows mid-gray.
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		var v uint8 = 128
		switch y {
		case 0:
			v = 255
		case 3:
			v = 0
		}
		for x := 0; x < 4; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off] = v
			img.Pix[off+1] = v
			img.Pix[off+2] = v
			img.Pix[off+3] = 255
		}
	}

	got, err := c.Compute(model.NewFrame("test", 1, img))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got.SatRatio, 1e-9)
	assert.InDelta(t, 0.25, got.DarkRatio, 1e-9)
	assert.InDelta(t, (255.0+0.0+2*128.0)/4.0, got.Mean, 1e-9)
	assert.Greater(t, got.Std, 0.0)
}

func TestComputer_ThresholdsAreStrict(t *testing.T) {
	c := NewComputer(245, 10)

	// Luma exactly at a threshold counts for neither ratio.
	atSat, err := c.Compute(uniformFrame(4, 4, 245))
	require.NoError(t, err)
	assert.Zero(t, atSat.SatRatio)

	above, err := c.Compute(uniformFrame(4, 4, 246))
	require.NoError(t, err)
	assert.Equal(t, 1.0, above.SatRatio)

	atDark, err := c.Compute(uniformFrame(4, 4, 10))
	require.NoError(t, err)
	assert.Zero(t, atDark.DarkRatio)

	below, err := c.Compute(uniformFrame(4, 4, 9))
	require.NoError(t, err)
	assert.Equal(t, 1.0, below.DarkRatio)
}

func TestComputer_NonOriginBounds(t *testing.T) {
	c := NewComputer(245, 10)
	img := image.NewRGBA(image.Rect(10, 20, 14, 24))
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		for x := img.Rect.Min.X; x < img.Rect.Max.X; x++ {
			off := img.PixOffset(x, y)
			img.Pix[off] = 200
			img.Pix[off+1] = 200
			img.Pix[off+2] = 200
			img.Pix[off+3] = 255
		}
	}

	got, err := c.Compute(model.NewFrame("test", 1, img))
	require.NoError(t, err)
	assert.InDelta(t, 200, got.Mean, 1e-9)
}

func TestComputer_InvalidFrame(t *testing.T) {
	c := NewComputer(245, 10)

	tests := []struct {
		name  string
		frame *model.Frame
	}{
		{"nil image", &model.Frame{Stream: "test"}},
		{"empty bounds", model.NewFrame("test", 1, image.NewRGBA(image.Rectangle{}))},
		{"truncated buffer", &model.Frame{Stream: "test", Img: &image.RGBA{
			Pix:    make([]uint8, 8),
			Stride: 16,
			Rect:   image.Rect(0, 0, 4, 4),
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compute(tt.frame)
			assert.ErrorIs(t, err, model.ErrInvalidFrame)
		})
	}
}
