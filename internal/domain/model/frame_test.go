package model

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_Validate(t *testing.T) {
	tests := []struct {
		name    string
		frame   *Frame
		wantErr bool
	}{
		{
			name:    "valid",
			frame:   NewFrame("camera0", 1, image.NewRGBA(image.Rect(0, 0, 4, 4))),
			wantErr: false,
		},
		{
			name:    "nil image",
			frame:   &Frame{Stream: "camera0"},
			wantErr: true,
		},
		{
			name:    "empty bounds",
			frame:   NewFrame("camera0", 1, image.NewRGBA(image.Rectangle{})),
			wantErr: true,
		},
		{
			name: "truncated buffer",
			frame: &Frame{Stream: "camera0", Img: &image.RGBA{
				Pix:    make([]uint8, 4),
				Stride: 16,
				Rect:   image.Rect(0, 0, 4, 4),
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFrame)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewFrame_StampsIdentity(t *testing.T) {
	a := NewFrame("camera0", 1, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	b := NewFrame("camera0", 2, image.NewRGBA(image.Rect(0, 0, 2, 2)))

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "camera0", a.Stream)
	assert.Equal(t, uint64(1), a.Seq)
	assert.False(t, a.CapturedAt.IsZero())
}

func TestFrame_WithImage(t *testing.T) {
	in := NewFrame("camera0", 7, image.NewRGBA(image.Rect(0, 0, 2, 2)))
	replacement := image.NewRGBA(image.Rect(0, 0, 2, 2))

	out := in.WithImage(replacement)
	require.NotSame(t, in, out)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Seq, out.Seq)
	assert.Same(t, replacement, out.Img)
	assert.NotSame(t, in.Img, out.Img)
}
