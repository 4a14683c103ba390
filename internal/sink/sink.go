// Package sink holds the output ends of the pipeline.
package sink

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/tidbots/image-preprocess/internal/domain/model"
	"github.com/tidbots/image-preprocess/internal/pipeline"
)

// DirSink writes each processed frame as a PNG into a directory. When the
// pipeline attached a debug overlay it is written alongside the frame.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) Emit(_ context.Context, f *model.Frame, diag pipeline.Diagnostics) error {
	name := fmt.Sprintf("%s-%08d.png", f.Stream, f.Seq)
	if err := writePNG(filepath.Join(s.dir, name), f.Img); err != nil {
		return err
	}
	if diag.Debug != nil {
		dbg := fmt.Sprintf("%s-%08d-debug.png", f.Stream, f.Seq)
		if err := writePNG(filepath.Join(s.dir, dbg), diag.Debug); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output %s: %w", path, err)
	}
	if err := png.Encode(fh, img); err != nil {
		fh.Close()
		return fmt.Errorf("encode output %s: %w", path, err)
	}
	return fh.Close()
}

// Discard drops processed frames. The pipeline metrics and checkpoints still
// run, which makes it the default for controller soak runs.
type Discard struct{}

func (Discard) Emit(context.Context, *model.Frame, pipeline.Diagnostics) error { return nil }
