package model

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidFrame marks a frame that cannot be processed (nil or empty pixel
// buffer). Callers skip the frame entirely; no output is emitted for it.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is one captured image plus the metadata stamped by its source.
// The pixel buffer is owned by the frame; stages produce new frames rather
// than mutating the input in place.
type Frame struct {
	ID         uuid.UUID
	Stream     string
	Seq        uint64
	CapturedAt time.Time
	Img        *image.RGBA
}

// NewFrame stamps identity and capture time onto an image.
func NewFrame(stream string, seq uint64, img *image.RGBA) *Frame {
	return &Frame{
		ID:         uuid.New(),
		Stream:     stream,
		Seq:        seq,
		CapturedAt: time.Now(),
		Img:        img,
	}
}

// Validate reports ErrInvalidFrame for frames that carry no pixels.
func (f *Frame) Validate() error {
	if f == nil || f.Img == nil {
		return fmt.Errorf("nil pixel buffer: %w", ErrInvalidFrame)
	}
	b := f.Img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return fmt.Errorf("empty bounds %v: %w", b, ErrInvalidFrame)
	}
	if len(f.Img.Pix) < f.Img.PixOffset(b.Max.X-1, b.Max.Y-1)+4 {
		return fmt.Errorf("truncated pixel buffer (%d bytes for %v): %w", len(f.Img.Pix), b, ErrInvalidFrame)
	}
	return nil
}

// WithImage returns a copy of the frame metadata carrying a different image.
// Used by transform stages to emit an output frame with the input's identity.
func (f *Frame) WithImage(img *image.RGBA) *Frame {
	out := *f
	out.Img = img
	return &out
}
