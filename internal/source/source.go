// Package source provides the local frame suppliers used by the binary:
// paced directory playback and a synthetic generator. Real deployments feed
// the pipeline inbox from their own transport instead.
package source

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tidbots/image-preprocess/internal/domain/model"
)

// DirSource plays back the image files of a directory in name order, paced
// at a fixed frame rate.
type DirSource struct {
	stream  string
	paths   []string
	idx     int
	seq     uint64
	loop    bool
	limiter *rate.Limiter
}

func NewDirSource(stream, dir string, fps float64, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in source dir %s", dir)
	}
	sort.Strings(paths)

	return &DirSource{
		stream:  stream,
		paths:   paths,
		loop:    loop,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
	}, nil
}

func (s *DirSource) Next(ctx context.Context) (*model.Frame, error) {
	if s.idx >= len(s.paths) {
		if !s.loop {
			return nil, io.EOF
		}
		s.idx = 0
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	path := s.paths[s.idx]
	s.idx++

	img, err := loadRGBA(path)
	if err != nil {
		return nil, err
	}
	s.seq++
	return model.NewFrame(s.stream, s.seq, img), nil
}

func loadRGBA(path string) (*image.RGBA, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer fh.Close()

	decoded, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}

	b := decoded.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), decoded, b.Min, draw.Src)
	return rgba, nil
}

// SyntheticSource generates an endless stream of gradient frames whose
// brightness drifts over time, useful for load runs and soak-testing the
// controller without a camera.
type SyntheticSource struct {
	stream  string
	width   int
	height  int
	seq     uint64
	limiter *rate.Limiter
}

func NewSyntheticSource(stream string, width, height int, fps float64) *SyntheticSource {
	return &SyntheticSource{
		stream:  stream,
		width:   width,
		height:  height,
		limiter: rate.NewLimiter(rate.Limit(fps), 1),
	}
}

func (s *SyntheticSource) Next(ctx context.Context) (*model.Frame, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	s.seq++

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	// Horizontal gradient with a slow global brightness drift so the
	// controller has something to chase.
	drift := int32(s.seq % 128)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			v := clamp255(int32(x*255/max(1, s.width-1)) - drift)
			off := img.PixOffset(x, y)
			img.Pix[off] = v
			img.Pix[off+1] = v
			img.Pix[off+2] = v
			img.Pix[off+3] = 255
		}
	}
	return model.NewFrame(s.stream, s.seq, img), nil
}

func clamp255(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
