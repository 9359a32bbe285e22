package graphics

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// defaultFace is the built-in face used for text measurement. The core
// does not rasterize glyphs; it only needs deterministic metrics so text
// nodes can report an intrinsic size during layout.
var defaultFace font.Face = basicfont.Face7x13

// TextMetrics describes the measured bounds of a single line of text.
type TextMetrics struct {
	Width    float64
	Height   float64
	Ascent   float64
	Baseline float64
}

// MeasureText measures a single line of text with the built-in face.
func MeasureText(text string) TextMetrics {
	advance := font.MeasureString(defaultFace, text)
	metrics := defaultFace.Metrics()
	ascent := fixedToFloat(metrics.Ascent)
	return TextMetrics{
		Width:    fixedToFloat(advance),
		Height:   fixedToFloat(metrics.Height),
		Ascent:   ascent,
		Baseline: ascent,
	}
}

// fixedToFloat converts a 26.6 fixed-point value to float64 pixels.
func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
