package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// ParseBackground parses a hex colour ("#rrggbb", "#rgb", with or without the
// leading '#') into an opaque colour.
func ParseBackground(s string) (color.NRGBA, error) {
	hex := strings.TrimSpace(s)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(strings.ToLower(hex))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid background colour %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// HexString formats c as "#rrggbb", dropping alpha.
func HexString(c color.Color) string {
	cf, _ := colorful.MakeColor(c)
	return cf.Hex()
}

// Flatten composites img over a solid bg and returns an opaque image. Opaque
// inputs are returned unchanged.
func Flatten(img image.Image, bg color.Color) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
