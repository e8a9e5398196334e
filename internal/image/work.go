// Package image provides the pixel-buffer side of the receipt pipeline:
// bounded working copies, format decoding and encoding, and debug overlays.
package image

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Default bounds for the two working resolutions.
const (
	DefaultWorkMaxSide     = 2200
	DefaultAnalysisMaxSide = 720
)

// ErrEmptyImage is returned for images with zero width or height.
var ErrEmptyImage = errors.New("image: empty image")

// WorkImage is a downscaled RGBA copy of a source image together with the
// factor that was applied to get there.
type WorkImage struct {
	Image  *image.RGBA
	Width  int
	Height int
	Scale  float64 // work size / source size, never above 1
}

// BuildWorkImage returns a fresh RGBA copy of img whose longer side is at
// most maxSide pixels. Smaller images are copied at their own size.
func BuildWorkImage(img image.Image, maxSide int) (*WorkImage, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyImage
	}

	scale := 1.0
	if maxSide > 0 {
		scale = math.Min(1, float64(maxSide)/float64(max(w, h)))
	}
	ww := max(1, int(math.Round(float64(w)*scale)))
	hh := max(1, int(math.Round(float64(h)*scale)))

	dst := image.NewRGBA(image.Rect(0, 0, ww, hh))
	if ww == w && hh == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}

	return &WorkImage{Image: dst, Width: ww, Height: hh, Scale: scale}, nil
}

// Downscale builds the analysis buffer for an already bounded work image.
// RatioX and RatioY map analysis coordinates back to work coordinates.
func (w *WorkImage) Downscale(maxSide int) (analysis *WorkImage, ratioX, ratioY float64, err error) {
	analysis, err = BuildWorkImage(w.Image, maxSide)
	if err != nil {
		return nil, 0, 0, err
	}
	ratioX = float64(w.Width) / float64(analysis.Width)
	ratioY = float64(w.Height) / float64(analysis.Height)
	return analysis, ratioX, ratioY, nil
}

// ToRGBA returns img as an RGBA buffer anchored at the origin. The result
// never aliases img.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
