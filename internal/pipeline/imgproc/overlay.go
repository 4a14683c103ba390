package imgproc

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

var overlayColor = color.RGBA{R: 255, G: 255, B: 0, A: 255}

// DrawOverlay burns the current operating point and smoothed statistics onto
// a copy of the frame. It is a pure function of its inputs: the source image
// is not mutated and no state is kept between calls.
func DrawOverlay(img *image.RGBA, params model.TuningParameters, grid int, stats model.BrightnessStats) *image.RGBA {
	out := cloneRGBA(img)

	lines := []string{
		fmt.Sprintf("gamma=%.2f clahe=%.2f grid=%d", params.Gamma, params.CLAHEClip, grid),
		fmt.Sprintf("mean=%.1f std=%.1f sat=%.2f dark=%.2f", stats.Mean, stats.Std, stats.SatRatio, stats.DarkRatio),
	}

	d := font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(overlayColor),
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		d.Dot = fixed.P(10, 25+i*20)
		d.DrawString(line)
	}
	return out
}
