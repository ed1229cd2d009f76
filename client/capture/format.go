package capture

import (
	"fmt"
	"strings"
)

// Format is the encoding applied to captured frames.
type Format string

const (
	FormatJPEG Format = "JPEG"
	FormatPNG  Format = "PNG"
)

// ParseFormat normalizes a format name from configuration. "JPG" is accepted
// as an alias for JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "JPEG", "JPG":
		return FormatJPEG, nil
	case "PNG":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("unsupported image format: %q", s)
	}
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// MimeType returns the MIME type for the format.
func (f Format) MimeType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}
