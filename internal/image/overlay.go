package image

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"receipt-geometry/pkg/geometry"
)

// DrawQuad returns a copy of img with the quad outlined in c. Corner markers
// are drawn as small filled squares so the corner order is visible.
func DrawQuad(img image.Image, q geometry.Quad, c color.RGBA, thickness int) *image.RGBA {
	canvas := ToRGBA(img)
	if thickness < 1 {
		thickness = 1
	}
	for i := range q {
		a := q[i]
		b := q[(i+1)%4]
		drawLine(canvas, a, b, c, thickness)
	}
	for i, p := range q {
		// Marker size grows with the corner index: tl smallest, bl largest.
		fillSquare(canvas, int(math.Round(p.X)), int(math.Round(p.Y)), thickness*(2+i), c)
	}
	return canvas
}

// MaskImage renders a binary paper mask as a grayscale image.
func MaskImage(mask []uint8, width, height int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range mask {
		if v != 0 {
			g.Pix[i] = 255
		}
	}
	return g
}

// SaveDebug writes img as PNG into dir, named after prefix and the current
// time, and returns the path written.
func SaveDebug(dir, prefix string, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create debug dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", prefix, time.Now().UnixNano()))
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("failed to save debug image: %w", err)
	}
	return path, nil
}

// drawLine draws a thick line with Bresenham's algorithm, clipping to the
// canvas.
func drawLine(img *image.RGBA, a, b geometry.Point2D, c color.RGBA, thickness int) {
	x0, y0 := int(math.Round(a.X)), int(math.Round(a.Y))
	x1, y1 := int(math.Round(b.X)), int(math.Round(b.Y))
	dx := abs(x1 - x0)
	dy := abs(y1 - y0)
	sx, sy := 1, 1
	if x0 >= x1 {
		sx = -1
	}
	if y0 >= y1 {
		sy = -1
	}
	err := dx - dy
	for {
		fillSquare(img, x0, y0, thickness, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func fillSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	r := image.Rect(cx-size/2, cy-size/2, cx-size/2+size, cy-size/2+size).Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
