package qrimage

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	fontsOnce sync.Once
	fontsErr  error
	monoFont  *opentype.Font
	boldFont  *opentype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if monoFont, fontsErr = opentype.Parse(gomono.TTF); fontsErr != nil {
			return
		}
		boldFont, fontsErr = opentype.Parse(gomonobold.TTF)
	})
	return fontsErr
}

// Rasterize draws img onto a white RGBA canvas of exactly img.Width by
// img.Height pixels and encodes it as PNG.
func (s *Synthesizer) Rasterize(img *Image) ([]byte, error) {
	if img.Width <= 0 || img.Height <= 0 {
		return nil, &GenerationError{URL: img.URL, Op: "rasterize", Err: fmt.Errorf("invalid canvas %dx%d", img.Width, img.Height)}
	}
	if err := loadFonts(); err != nil {
		return nil, &GenerationError{URL: img.URL, Op: "load font", Err: err}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	s.drawModules(canvas, img.bits)
	if err := s.drawLogo(canvas); err != nil {
		return nil, &GenerationError{URL: img.URL, Op: "draw logo", Err: err}
	}
	if err := drawCaption(canvas, img.Lines); err != nil {
		return nil, &GenerationError{URL: img.URL, Op: "draw caption", Err: err}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, &GenerationError{URL: img.URL, Op: "encode png", Err: err}
	}
	return buf.Bytes(), nil
}

// drawModules scales the module matrix into the QR block with
// nearest-neighbour sampling so module edges stay sharp.
func (s *Synthesizer) drawModules(dst *image.RGBA, bits [][]bool) {
	n := len(bits)
	if n == 0 {
		return
	}
	src := image.NewPaletted(image.Rect(0, 0, n, n), color.Palette{color.Transparent, s.brand.Color})
	for y, row := range bits {
		for x, dark := range row {
			if dark {
				src.SetColorIndex(x, y, 1)
			}
		}
	}

	qx, qy := qrOrigin()
	draw.NearestNeighbor.Scale(dst, image.Rect(qx, qy, qx+QRSize, qy+QRSize), src, src.Bounds(), draw.Over, nil)
}

func (s *Synthesizer) drawLogo(dst *image.RGBA) error {
	x, y, size, border := logoBox()
	outer := image.Rect(x, y, x+size, y+size)
	draw.Draw(dst, outer, image.NewUniform(s.brand.Color), image.Point{}, draw.Src)
	draw.Draw(dst, outer.Inset(border), image.White, image.Point{}, draw.Src)

	face, err := opentype.NewFace(boldFont, &opentype.FaceOptions{
		Size:    float64(monogramSize(s.brand.Monogram)),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	d := &font.Drawer{Dst: dst, Src: image.NewUniform(s.brand.Color), Face: face}
	width := d.MeasureString(s.brand.Monogram)
	metrics := face.Metrics()
	// Centre the cap height on the badge centre.
	baseline := fixed.I(y+size/2) + (metrics.Ascent-metrics.Descent)/2
	d.Dot = fixed.Point26_6{X: fixed.I(x+size/2) - width/2, Y: baseline}
	d.DrawString(s.brand.Monogram)
	return nil
}

func drawCaption(dst *image.RGBA, lines []string) error {
	face, err := opentype.NewFace(monoFont, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	defer face.Close()

	d := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	width := dst.Bounds().Dx()
	for i, line := range lines {
		advance := d.MeasureString(line)
		d.Dot = fixed.Point26_6{
			X: (fixed.I(width) - advance) / 2,
			Y: fixed.Int26_6(captionBaseline(i) * 64),
		}
		d.DrawString(line)
	}
	return nil
}
