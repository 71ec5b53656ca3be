// Package frame holds the raw decoded images produced by the video source and
// the sequence-numbered records kept in the frame store.
package frame

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// PixelFormat describes the byte layout of Image.Pix.
type PixelFormat string

const (
	FormatBGR24 PixelFormat = "bgr24"
	FormatRGB24 PixelFormat = "rgb24"
	FormatRGBA  PixelFormat = "rgba"
	FormatGray  PixelFormat = "gray"
)

// BytesPerPixel returns the pixel stride of the format, or 0 if unknown.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatBGR24, FormatRGB24:
		return 3
	case FormatRGBA:
		return 4
	case FormatGray:
		return 1
	}
	return 0
}

var (
	ErrEmptyImage    = errors.New("frame: empty image")
	ErrUnknownFormat = errors.New("frame: unknown pixel format")
	ErrShortBuffer   = errors.New("frame: pixel buffer shorter than dimensions")
)

// Image is a tightly packed raw image as read from the capture pipe.
type Image struct {
	Width  int
	Height int
	Format PixelFormat
	Pix    []byte
}

// Size returns the number of bytes one frame of the given geometry occupies.
func Size(width, height int, format PixelFormat) int {
	return width * height * format.BytesPerPixel()
}

// Validate checks the dimensions against the buffer length.
func (img *Image) Validate() error {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return ErrEmptyImage
	}
	if img.Format.BytesPerPixel() == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, img.Format)
	}
	if want := Size(img.Width, img.Height, img.Format); len(img.Pix) < want {
		return fmt.Errorf("%w: have %d, want %d", ErrShortBuffer, len(img.Pix), want)
	}
	return nil
}

// ToImage converts the raw buffer into an image.Image. Gray frames become
// *image.Gray, everything else *image.RGBA.
func (img *Image) ToImage() (image.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	rect := image.Rect(0, 0, img.Width, img.Height)
	n := img.Width * img.Height

	switch img.Format {
	case FormatGray:
		out := image.NewGray(rect)
		copy(out.Pix, img.Pix[:n])
		return out, nil
	case FormatRGBA:
		out := image.NewRGBA(rect)
		copy(out.Pix, img.Pix[:n*4])
		return out, nil
	}

	out := image.NewRGBA(rect)
	src := img.Pix
	bgr := img.Format == FormatBGR24
	for i := 0; i < n; i++ {
		s, d := i*3, i*4
		if bgr {
			out.Pix[d], out.Pix[d+1], out.Pix[d+2] = src[s+2], src[s+1], src[s]
		} else {
			out.Pix[d], out.Pix[d+1], out.Pix[d+2] = src[s], src[s+1], src[s+2]
		}
		out.Pix[d+3] = 0xff
	}
	return out, nil
}

// Record is a captured frame tagged with the sequence number of the tick that
// produced it. Records are immutable once built and are shared read-only.
type Record struct {
	Seq        uint64
	Image      *Image
	CapturedAt time.Time
}

// NewRecord builds a record stamped with the current time.
func NewRecord(seq uint64, img *Image) *Record {
	return &Record{Seq: seq, Image: img, CapturedAt: time.Now()}
}
