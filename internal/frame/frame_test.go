package frame

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		img     *Image
		wantErr error
	}{
		{"nil", nil, ErrEmptyImage},
		{"zero width", &Image{Width: 0, Height: 2, Format: FormatBGR24}, ErrEmptyImage},
		{"unknown format", &Image{Width: 1, Height: 1, Format: "yuv420p", Pix: []byte{0, 0}}, ErrUnknownFormat},
		{"short buffer", &Image{Width: 2, Height: 2, Format: FormatBGR24, Pix: make([]byte, 11)}, ErrShortBuffer},
		{"ok", &Image{Width: 2, Height: 2, Format: FormatBGR24, Pix: make([]byte, 12)}, nil},
		{"oversized buffer ok", &Image{Width: 1, Height: 1, Format: FormatGray, Pix: make([]byte, 4)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.img.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestToImageSwapsBGR(t *testing.T) {
	img := &Image{Width: 2, Height: 1, Format: FormatBGR24, Pix: []byte{
		10, 20, 30, // b g r
		0, 0, 255,
	}}

	out, err := img.ToImage()
	require.NoError(t, err)
	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)

	assert.Equal(t, color.RGBA{R: 30, G: 20, B: 10, A: 255}, rgba.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, rgba.RGBAAt(1, 0))
}

func TestToImageFormats(t *testing.T) {
	rgb := &Image{Width: 1, Height: 1, Format: FormatRGB24, Pix: []byte{1, 2, 3}}
	out, err := rgb.ToImage()
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, out.(*image.RGBA).RGBAAt(0, 0))

	gray := &Image{Width: 2, Height: 1, Format: FormatGray, Pix: []byte{7, 9}}
	out, err = gray.ToImage()
	require.NoError(t, err)
	assert.Equal(t, color.Gray{Y: 9}, out.(*image.Gray).GrayAt(1, 0))

	_, err = (&Image{}).ToImage()
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestSize(t *testing.T) {
	assert.Equal(t, 640*480*3, Size(640, 480, FormatBGR24))
	assert.Equal(t, 4, Size(1, 1, FormatRGBA))
	assert.Equal(t, 0, Size(1, 1, "nv12"))
}
