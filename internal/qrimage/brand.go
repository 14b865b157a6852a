package qrimage

import (
	"fmt"
	"image/color"

	"github.com/fpang/qr-bulk-generator/internal/config"
)

// Brand is the visual identity stamped onto every QR image: the module
// colour and the monogram badge drawn over the centre of the code.
type Brand struct {
	Variant  string
	Color    color.RGBA
	Monogram string
}

var brands = map[string]Brand{
	config.BrandGov:    {Variant: config.BrandGov, Color: color.RGBA{R: 0x38, G: 0x4a, B: 0x51, A: 0xff}, Monogram: "GO"},
	config.BrandEdu:    {Variant: config.BrandEdu, Color: color.RGBA{R: 0x1b, G: 0x3c, B: 0x87, A: 0xff}, Monogram: "EDU"},
	config.BrandHealth: {Variant: config.BrandHealth, Color: color.RGBA{R: 0x0b, G: 0x6e, B: 0x4f, A: 0xff}, Monogram: "H"},
}

// BrandFor returns the brand for a configured variant.
func BrandFor(variant string) (Brand, error) {
	b, ok := brands[variant]
	if !ok {
		return Brand{}, &config.ConfigurationError{Key: config.EnvBrandVariant, Err: fmt.Errorf("unknown brand variant %q", variant)}
	}
	return b, nil
}

// Hex returns the brand colour as #rrggbb.
func (b Brand) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", b.Color.R, b.Color.G, b.Color.B)
}
