package qrimage

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// matrix encodes content as a QR code with high error correction and no
// quiet zone. true marks a dark module.
func matrix(content string) ([][]bool, error) {
	q, err := qrcode.New(content, qrcode.High)
	if err != nil {
		return nil, err
	}
	q.DisableBorder = true
	return q.Bitmap(), nil
}

// modulePath returns SVG path data drawing every dark module, one subpath
// per horizontal run, in module units.
func modulePath(bits [][]bool) string {
	var b strings.Builder
	for y, row := range bits {
		for x := 0; x < len(row); {
			if !row[x] {
				x++
				continue
			}
			run := 0
			for x+run < len(row) && row[x+run] {
				run++
			}
			fmt.Fprintf(&b, "M%d %dh%dv1h-%dz", x, y, run, run)
			x += run
		}
	}
	return b.String()
}

// RenderVectorImage returns a minimal SVG of the QR code for url: no margin,
// brand-coloured modules on a transparent background, scaled by viewBox.
func (s *Synthesizer) RenderVectorImage(url string) (string, error) {
	bits, err := matrix(url)
	if err != nil {
		return "", &GenerationError{URL: url, Op: "encode qr", Err: err}
	}
	return vectorQR(bits, s.brand.Hex(), ""), nil
}

// vectorQR renders bits as an <svg> element. attrs is inserted verbatim,
// used to position the code when nested in the composite.
func vectorQR(bits [][]bool, fill, attrs string) string {
	n := len(bits)
	if attrs != "" {
		attrs = " " + attrs
	}
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg"%s viewBox="0 0 %d %d" shape-rendering="crispEdges"><path fill="%s" d="%s"/></svg>`,
		attrs, n, n, fill, modulePath(bits),
	)
}
