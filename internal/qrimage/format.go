package qrimage

import (
	"fmt"
	"strings"
)

// ImageFormat selects the encoding of generated QR images.
type ImageFormat string

const (
	FormatSVG ImageFormat = "svg"
	FormatPNG ImageFormat = "png"
	// FormatJPEG is reserved for single-image downloads served elsewhere;
	// bulk sets reject it.
	FormatJPEG ImageFormat = "jpeg"
)

// ParseFormat maps a case-insensitive name to an ImageFormat.
func ParseFormat(s string) (ImageFormat, error) {
	switch f := ImageFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatSVG, FormatPNG, FormatJPEG:
		return f, nil
	case "jpg":
		return FormatJPEG, nil
	}
	return "", &GenerationError{Op: "parse format", Err: fmt.Errorf("unknown image format %q", s)}
}

// Extension returns the file extension (without dot) for a set format.
// Only SVG and PNG are valid for bulk sets; anything else is a
// *GenerationError.
func (f ImageFormat) Extension() (string, error) {
	switch f {
	case FormatSVG:
		return "svg", nil
	case FormatPNG:
		return "png", nil
	}
	return "", &GenerationError{Op: "extension", Err: fmt.Errorf("unsupported set format %q", string(f))}
}

// ContentType returns the MIME type of a single image in this format.
func (f ImageFormat) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// GenerationError reports a failure composing or encoding an image.
type GenerationError struct {
	URL string
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("qrimage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("qrimage %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
