package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbinani/screenshot"
)

const (
	// MinJPEGQuality and MaxJPEGQuality bound the accepted JPEG quality range.
	MinJPEGQuality = 1
	MaxJPEGQuality = 95
)

// Settings holds the encoding parameters for a single capture. It is an
// immutable snapshot; build a new value to change parameters between cycles.
type Settings struct {
	Format      Format
	JPEGQuality int // only used for JPEG
}

// Image is one encoded screenshot of the primary display.
type Image struct {
	Data      []byte
	Format    Format
	Timestamp time.Time // UTC capture time
}

// FileName builds the canonical timestamp-derived file name for the image,
// e.g. "20240115T093005.123456789Z_myhost.jpg".
func (img *Image) FileName(source string) string {
	ts := img.Timestamp.UTC().Format("20060102T150405.000000000") + "Z"
	if source == "" {
		return ts + img.Format.Extension()
	}
	return ts + "_" + source + img.Format.Extension()
}

// ParseFileNameTime recovers the capture timestamp from a file name produced
// by FileName. The second return value is false if the name does not start
// with a timestamp.
func ParseFileNameTime(name string) (time.Time, bool) {
	base := name
	if idx := strings.IndexByte(base, '_'); idx >= 0 {
		base = base[:idx]
	} else {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	base = strings.TrimSuffix(base, "Z")

	ts, err := time.ParseInLocation("20060102T150405.000000000", base, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Capturer produces a single still image of the primary display on demand.
type Capturer interface {
	Capture(settings Settings) (*Image, error)
}

// screenCapturer implements Capturer against the real display.
type screenCapturer struct{}

// NewScreenCapturer creates a Capturer that grabs the primary display.
func NewScreenCapturer() Capturer {
	return &screenCapturer{}
}

// Capture grabs the primary display and encodes it per settings.
func (c *screenCapturer) Capture(settings Settings) (*Image, error) {
	numDisplays := screenshot.NumActiveDisplays()
	if numDisplays == 0 {
		return nil, &CaptureError{Reason: ReasonNoDisplaySession}
	}

	frame, err := screenshot.CaptureRect(primaryDisplayBounds(numDisplays))
	if err != nil {
		return nil, &CaptureError{Reason: ReasonNoDisplaySession, InnerError: err}
	}

	data, err := Encode(frame, settings)
	if err != nil {
		return nil, err
	}

	return &Image{
		Data:      data,
		Format:    settings.Format,
		Timestamp: time.Now().UTC(),
	}, nil
}

// primaryDisplayBounds finds the display anchored at (0,0), which is the
// primary on every platform the screenshot library supports. Falls back to
// display 0 if no display is anchored there.
func primaryDisplayBounds(numDisplays int) image.Rectangle {
	for i := 0; i < numDisplays; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		if bounds.Min.X == 0 && bounds.Min.Y == 0 {
			return bounds
		}
	}
	return screenshot.GetDisplayBounds(0)
}

// Encode encodes a frame per the given settings. The JPEG quality is clamped
// to the accepted range.
func Encode(frame image.Image, settings Settings) ([]byte, error) {
	var buf bytes.Buffer

	switch settings.Format {
	case FormatPNG:
		if err := png.Encode(&buf, frame); err != nil {
			return nil, &CaptureError{Reason: ReasonEncodeFailed, InnerError: err}
		}
	case FormatJPEG:
		quality := settings.JPEGQuality
		if quality < MinJPEGQuality {
			quality = MinJPEGQuality
		}
		if quality > MaxJPEGQuality {
			quality = MaxJPEGQuality
		}
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
			return nil, &CaptureError{Reason: ReasonEncodeFailed, InnerError: err}
		}
	default:
		return nil, &CaptureError{
			Reason:     ReasonEncodeFailed,
			InnerError: fmt.Errorf("unsupported image format: %q", settings.Format),
		}
	}

	return buf.Bytes(), nil
}
