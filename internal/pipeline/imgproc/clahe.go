package imgproc

import (
	"image"
	"math"
)

// ApplyCLAHE runs clip-limited adaptive histogram equalization over the luma
// channel and rescales the color channels by the luma ratio, approximating
// the usual L-channel enhancement without a full colorspace round trip.
//
// The image is divided into grid x grid tiles. Each tile gets an equalization
// LUT built from its clipped histogram; per-pixel output is the bilinear
// interpolation of the four surrounding tile LUTs, which suppresses tile-seam
// artifacts. The clip limit bounds per-bin mass to clip times the uniform
// share, limiting noise amplification in flat regions.
//
// The input is never mutated. grid is clamped to at least 2.
func ApplyCLAHE(img *image.RGBA, clip float64, grid int) *image.RGBA {
	if grid < 2 {
		grid = 2
	}
	if clip < 1.0 {
		clip = 1.0
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := cloneRGBA(img)
	if w < grid || h < grid {
		return out
	}

	luma := lumaPlane(img)

	tileW := (w + grid - 1) / grid
	tileH := (h + grid - 1) / grid

	// Per-tile equalization LUTs.
	luts := make([][256]uint8, grid*grid)
	for ty := 0; ty < grid; ty++ {
		y0, y1 := ty*tileH, (ty+1)*tileH
		if y1 > h {
			y1 = h
		}
		for tx := 0; tx < grid; tx++ {
			x0, x1 := tx*tileW, (tx+1)*tileW
			if x1 > w {
				x1 = w
			}
			luts[ty*grid+tx] = tileLUT(luma, w, x0, y0, x1, y1, clip)
		}
	}

	// Bilinear interpolation between the four neighboring tile LUTs.
	for y := 0; y < h; y++ {
		gy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(math.Floor(gy))
		wy := gy - float64(ty0)
		ty0, ty1, wy := clampTilePair(ty0, wy, grid)

		for x := 0; x < w; x++ {
			gx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(math.Floor(gx))
			wx := gx - float64(tx0)
			tx0, tx1, wx := clampTilePair(tx0, wx, grid)

			v := luma[y*w+x]
			top := (1-wx)*float64(luts[ty0*grid+tx0][v]) + wx*float64(luts[ty0*grid+tx1][v])
			bot := (1-wx)*float64(luts[ty1*grid+tx0][v]) + wx*float64(luts[ty1*grid+tx1][v])
			newL := clampU8(int32(math.Round((1-wy)*top + wy*bot)))

			off := out.PixOffset(x, y)
			scaleLuma(out.Pix[off:off+4], v, newL)
		}
	}
	return out
}

// tileLUT builds the clipped-histogram equalization LUT for one tile.
func tileLUT(luma []uint8, stride, x0, y0, x1, y1 int, clip float64) [256]uint8 {
	var hist [256]int
	n := (x1 - x0) * (y1 - y0)
	if n <= 0 {
		var identity [256]uint8
		for i := range identity {
			identity[i] = uint8(i)
		}
		return identity
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[luma[y*stride+x]]++
		}
	}

	clipLimit := int(clip * float64(n) / 256.0)
	if clipLimit < 1 {
		clipLimit = 1
	}

	excess := 0
	for i := range hist {
		if hist[i] > clipLimit {
			excess += hist[i] - clipLimit
			hist[i] = clipLimit
		}
	}
	// Redistribute clipped mass uniformly; the remainder goes to the lowest
	// bins so total mass is preserved exactly.
	bonus := excess / 256
	rest := excess % 256
	for i := range hist {
		hist[i] += bonus
		if i < rest {
			hist[i]++
		}
	}

	var lut [256]uint8
	cdf := 0
	for i := range hist {
		cdf += hist[i]
		lut[i] = clampU8(int32(math.Round(float64(cdf) * 255.0 / float64(n))))
	}
	return lut
}

// clampTilePair clamps a tile index pair and interpolation weight to the
// grid, holding the edge LUT constant beyond the outermost tile centers.
func clampTilePair(t0 int, weight float64, grid int) (int, int, float64) {
	if t0 < 0 {
		return 0, 0, 0
	}
	if t0 >= grid-1 {
		return grid - 1, grid - 1, 0
	}
	return t0, t0 + 1, weight
}

// scaleLuma rescales one RGBA pixel so its luma moves from oldL to newL.
func scaleLuma(px []uint8, oldL, newL uint8) {
	if oldL == newL {
		return
	}
	if oldL == 0 {
		px[0], px[1], px[2] = newL, newL, newL
		return
	}
	scale := float64(newL) / float64(oldL)
	px[0] = clampU8(int32(math.Round(float64(px[0]) * scale)))
	px[1] = clampU8(int32(math.Round(float64(px[1]) * scale)))
	px[2] = clampU8(int32(math.Round(float64(px[2]) * scale)))
}
