// Package qrimage synthesizes branded QR-code images for short links and
// packs whole sets of them into zip archives.
//
// Each image is a fixed-width canvas: the QR code on top with the brand
// badge over its centre, and the destination URL underneath, hard-wrapped
// every 36 characters. The same scene is emitted as SVG markup or drawn onto
// an RGBA canvas and encoded as PNG.
package qrimage

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"runtime"
	"strings"
)

// Image is one composed QR image. SVG holds the vector markup; the rest is
// the scene the rasterizer needs to draw the same picture.
type Image struct {
	URL    string
	SVG    []byte
	Width  int
	Height int
	Lines  []string

	bits [][]bool
}

// Synthesizer renders images for one brand and short-link domain.
type Synthesizer struct {
	brand       Brand
	domain      string
	concurrency int
}

// Option customises a Synthesizer.
type Option func(*Synthesizer)

// WithConcurrency caps how many images are composed at once in a set.
func WithConcurrency(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewSynthesizer returns a Synthesizer for brand, building destination URLs
// as https://{domain}/{shortUrl}.
func NewSynthesizer(brand Brand, domain string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		brand:       brand,
		domain:      strings.TrimSuffix(domain, "/"),
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DestinationURL returns the public URL a short link's QR code points at.
func (s *Synthesizer) DestinationURL(shortURL string) string {
	return fmt.Sprintf("https://%s/%s", s.domain, shortURL)
}

// ComposeBrandedImage lays out the branded image for url and returns it with
// its integer height.
func (s *Synthesizer) ComposeBrandedImage(url string) (*Image, error) {
	bits, err := matrix(url)
	if err != nil {
		return nil, &GenerationError{URL: url, Op: "encode qr", Err: err}
	}

	lines := WrapLines(url, CharsPerLine)
	img := &Image{
		URL:    url,
		Width:  ImageWidth,
		Height: ImageHeight(len(lines)),
		Lines:  lines,
		bits:   bits,
	}
	img.SVG = s.compositeSVG(img)
	return img, nil
}

func (s *Synthesizer) compositeSVG(img *Image) []byte {
	var b bytes.Buffer
	qx, qy := qrOrigin()

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		img.Width, img.Height, img.Width, img.Height)
	b.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)

	b.WriteString(vectorQR(img.bits, s.brand.Hex(),
		fmt.Sprintf(`x="%d" y="%d" width="%d" height="%d"`, qx, qy, QRSize, QRSize)))

	s.writeLogoSVG(&b)

	for i, line := range img.Lines {
		fmt.Fprintf(&b, `<text x="%d" y="%.2f" font-family="'Go Mono', monospace" font-size="%d" text-anchor="middle" fill="#000000">`,
			img.Width/2, captionBaseline(i), FontSize)
		b.WriteString(escapeText(line))
		b.WriteString(`</text>`)
	}

	b.WriteString(`</svg>`)
	return b.Bytes()
}

// logoBox returns the badge square: outer edge, border width and origin.
func logoBox() (x, y, size, border int) {
	qx, qy := qrOrigin()
	size = LogoSize
	border = size / 14
	return qx + (QRSize-size)/2, qy + (QRSize-size)/2, size, border
}

func (s *Synthesizer) writeLogoSVG(b *bytes.Buffer) {
	x, y, size, border := logoBox()
	inner := size - 2*border
	fmt.Fprintf(b, `<g><rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, x, y, size, size, s.brand.Hex())
	fmt.Fprintf(b, `<rect x="%d" y="%d" width="%d" height="%d" fill="#ffffff"/>`, x+border, y+border, inner, inner)
	fmt.Fprintf(b, `<text x="%d" y="%d" font-family="'Go Mono', monospace" font-weight="bold" font-size="%d" text-anchor="middle" dominant-baseline="central" fill="%s">`,
		x+size/2, y+size/2, monogramSize(s.brand.Monogram), s.brand.Hex())
	b.WriteString(escapeText(s.brand.Monogram))
	b.WriteString(`</text></g>`)
}

// escapeText escapes s for use as SVG character data.
func escapeText(s string) string {
	var sb strings.Builder
	// Writes to a strings.Builder cannot fail.
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

// monogramSize picks a font size that fits the monogram inside the badge.
func monogramSize(monogram string) int {
	n := len(monogram)
	if n < 2 {
		n = 2
	}
	// Go Mono glyphs advance 0.6em; leave a quarter of the badge as padding.
	size := int(float64(LogoSize) * 0.75 / (0.6 * float64(n)))
	if size > LogoSize/2 {
		size = LogoSize / 2
	}
	return size
}
