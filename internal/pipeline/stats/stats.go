// Package stats derives per-frame brightness statistics from raw frames.
package stats

import (
	"math"

	"github.com/tidbots/image-preprocess/internal/domain/model"
	"github.com/tidbots/image-preprocess/internal/pipeline/imgproc"
)

// Computer computes BrightnessStats over the Rec.601 luma of a frame.
// It is pure: given the same frame and thresholds it always produces the
// same snapshot.
type Computer struct {
	SatThr  uint8 // luma above this counts toward SatRatio
	DarkThr uint8 // luma below this counts toward DarkRatio
}

func NewComputer(satThr, darkThr uint8) Computer {
	return Computer{SatThr: satThr, DarkThr: darkThr}
}

// Compute returns the brightness snapshot for one frame, or ErrInvalidFrame
// (wrapped) when the frame carries no usable pixels. On error the caller must
// skip the frame entirely.
func (c Computer) Compute(f *model.Frame) (model.BrightnessStats, error) {
	if err := f.Validate(); err != nil {
		return model.BrightnessStats{}, err
	}

	b := f.Img.Bounds()
	w, h := b.Dx(), b.Dy()
	total := float64(w * h)

	var sum, sumSq float64
	var satCount, darkCount int
	for y := 0; y < h; y++ {
		off := f.Img.PixOffset(b.Min.X, b.Min.Y+y)
		row := f.Img.Pix[off : off+w*4]
		for x := 0; x < w; x++ {
			l := imgproc.Luma8(row[x*4], row[x*4+1], row[x*4+2])
			lf := float64(l)
			sum += lf
			sumSq += lf * lf
			if l > c.SatThr {
				satCount++
			}
			if l < c.DarkThr {
				darkCount++
			}
		}
	}

	mean := sum / total
	variance := sumSq/total - mean*mean
	if variance < 0 {
		variance = 0
	}

	return model.BrightnessStats{
		Mean:      mean,
		Std:       math.Sqrt(variance),
		SatRatio:  float64(satCount) / total,
		DarkRatio: float64(darkCount) / total,
	}, nil
}
