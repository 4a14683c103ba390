package imgproc

import "image"

// ApplyGamma remaps intensities through out = in^(1/gamma) using a cached
// 256-entry lookup table. A non-positive gamma leaves the image unchanged.
// The input is never mutated; the result is a new origin-anchored image.
func ApplyGamma(img *image.RGBA, gamma float64) *image.RGBA {
	out := cloneRGBA(img)
	if gamma <= 0 {
		return out
	}

	table := gammaLUTs.get(gamma)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = table[out.Pix[i]]
		out.Pix[i+1] = table[out.Pix[i+1]]
		out.Pix[i+2] = table[out.Pix[i+2]]
	}
	return out
}
