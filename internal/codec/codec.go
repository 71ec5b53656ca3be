// Package codec turns cached frames into the JPEG payloads served on retrieval.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/zsiec/framecast/internal/frame"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 70

// ErrEmptyImage is returned for nil or zero-area input.
var ErrEmptyImage = errors.New("codec: empty image")

// ClampQuality forces q into the range the JPEG encoder accepts.
func ClampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

// TargetSize returns the output dimensions for an image of width x height
// capped at maxWidth. Aspect ratio is kept and height never drops below 1.
func TargetSize(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	h := int(math.Round(float64(height) * float64(maxWidth) / float64(width)))
	if h < 1 {
		h = 1
	}
	return maxWidth, h
}

// Encode downscales img to maxWidth when it is wider and encodes it as JPEG.
// A non-positive maxWidth leaves the size unchanged.
func Encode(img image.Image, maxWidth, quality int) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), maxWidth)
	if w != b.Dx() {
		img = imaging.Resize(img, w, h, imaging.Linear)
	}

	var buf bytes.Buffer
	buf.Grow(w * h / 4)
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(ClampQuality(quality))); err != nil {
		return nil, fmt.Errorf("codec: jpeg encode: %w", err)
	}
	if buf.Len() == 0 {
		return nil, errors.New("codec: encoder produced no output")
	}
	return buf.Bytes(), nil
}

// EncodeRaw converts a raw capture buffer and encodes it.
func EncodeRaw(raw *frame.Image, maxWidth, quality int) ([]byte, error) {
	img, err := raw.ToImage()
	if err != nil {
		if errors.Is(err, frame.ErrEmptyImage) {
			return nil, ErrEmptyImage
		}
		return nil, fmt.Errorf("codec: %w", err)
	}
	return Encode(img, maxWidth, quality)
}

// Encoder binds a quality setting for callers that carry configuration.
type Encoder struct {
	quality int
}

// NewEncoder returns an Encoder with the given quality, clamped.
func NewEncoder(quality int) *Encoder {
	return &Encoder{quality: ClampQuality(quality)}
}

func (e *Encoder) Quality() int {
	return e.quality
}

// Encode encodes a raw frame at the bound quality.
func (e *Encoder) Encode(raw *frame.Image, maxWidth int) ([]byte, error) {
	return EncodeRaw(raw, maxWidth, e.quality)
}
