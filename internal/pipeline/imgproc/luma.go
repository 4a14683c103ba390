package imgproc

import "image"

// Luma8 converts an 8-bit RGB triple to Rec.601 luma.
func Luma8(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// lumaPlane extracts the luma channel of an RGBA image as a tightly packed
// row-major plane.
func lumaPlane(img *image.RGBA) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for x := 0; x < w; x++ {
			plane[y*w+x] = Luma8(row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return plane
}

// cloneRGBA copies an image into a fresh origin-anchored buffer.
func cloneRGBA(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*out.Stride:y*out.Stride+w*4], img.Pix[src:src+w*4])
	}
	return out
}

func clampU8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
