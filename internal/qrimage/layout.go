package qrimage

import (
	"math"
	"unicode/utf8"
)

// Canvas geometry, in pixels. The QR block sits at the top, the caption
// block below it; everything is centred horizontally.
const (
	ImageWidth = 1000
	QRSize     = 800
	Margin     = 100
	FontSize   = 32
	LineHeight = 1.35
	// CharsPerLine is a hard split; words are not kept together.
	CharsPerLine = 36
	// LogoSize is the edge of the square brand badge over the QR centre.
	// Error correction level High tolerates the covered modules.
	LogoSize = QRSize * 22 / 100
)

// WrapLines splits s into chunks of at most width runes. An empty string
// yields a single empty line so every image carries a caption block.
func WrapLines(s string, width int) []string {
	if width < 1 {
		width = 1
	}
	if s == "" {
		return []string{""}
	}

	lines := make([]string, 0, utf8.RuneCountInString(s)/width+1)
	start, count := 0, 0
	for i := range s {
		if count == width {
			lines = append(lines, s[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(lines, s[start:])
}

// ImageHeight returns the canvas height for a caption of lineCount lines,
// rounded up because rasterizers need whole pixels.
func ImageHeight(lineCount int) int {
	if lineCount < 1 {
		lineCount = 1
	}
	h := 2*Margin + QRSize + Margin +
		float64(lineCount-1)*FontSize*LineHeight +
		FontSize + Margin
	return int(math.Ceil(h))
}

// captionBaseline returns the y coordinate of line i's baseline.
func captionBaseline(i int) float64 {
	return Margin + QRSize + Margin + FontSize + float64(i)*FontSize*LineHeight
}

// qrOrigin returns the top-left corner of the QR block.
func qrOrigin() (x, y int) {
	return (ImageWidth - QRSize) / 2, Margin
}
