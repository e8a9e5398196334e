// Package colorutil provides shared color utilities for the receipt pipeline.
package colorutil

import (
	"image/color"
)

// Overlay and fill colors used throughout the application.
var (
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// Luminance returns the Rec. 709 relative luminance of 8-bit RGB components,
// on the same 0-255 scale as the inputs.
func Luminance(r, g, b uint8) float64 {
	return 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
}

// ChannelSpread returns max(r,g,b) - min(r,g,b), a cheap chroma measure.
// Near-grey pixels have a small spread.
func ChannelSpread(r, g, b uint8) uint8 {
	return max(r, g, b) - min(r, g, b)
}
