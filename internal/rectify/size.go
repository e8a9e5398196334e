package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"receipt-geometry/pkg/geometry"
)

// ErrOutputTooSmall is returned when the rectified output would be smaller
// than the minimum side on either axis.
var ErrOutputTooSmall = errors.New("rectify: output too small")

// OutputSize returns the rectified size for q: the longer of each pair of
// opposite edges, rounded. Sizes above maxSide are scaled down uniformly.
func OutputSize(q geometry.Quad, minSide, maxSide int) (width, height int, err error) {
	width = int(math.Round(math.Max(q.TopWidth(), q.BottomWidth())))
	height = int(math.Round(math.Max(q.LeftHeight(), q.RightHeight())))

	if width < minSide || height < minSide {
		return 0, 0, fmt.Errorf("%w: %dx%d below %d", ErrOutputTooSmall, width, height, minSide)
	}

	if maxSide > 0 && (width > maxSide || height > maxSide) {
		scale := math.Min(float64(maxSide)/float64(width), float64(maxSide)/float64(height))
		width = max(1, int(math.Round(float64(width)*scale)))
		height = max(1, int(math.Round(float64(height)*scale)))
	}
	return width, height, nil
}

// CropBounds returns the axis-aligned crop used when no homography exists:
// the quad's bounding box with mins floored and maxes ceiled, clamped to a
// width x height buffer.
func CropBounds(q geometry.Quad, width, height, minSide int) (image.Rectangle, error) {
	b := q.Bounds()
	minX := int(math.Floor(b.X))
	minY := int(math.Floor(b.Y))
	maxX := int(math.Ceil(b.MaxX()))
	maxY := int(math.Ceil(b.MaxY()))

	cropX := clampInt(minX, 0, width-1)
	cropY := clampInt(minY, 0, height-1)
	cropW := clampInt(maxX-cropX, 1, width-cropX)
	cropH := clampInt(maxY-cropY, 1, height-cropY)
	if cropW < minSide || cropH < minSide {
		return image.Rectangle{}, fmt.Errorf("%w: crop %dx%d below %d", ErrOutputTooSmall, cropW, cropH, minSide)
	}
	return image.Rect(cropX, cropY, cropX+cropW, cropY+cropH), nil
}

// Crop copies r out of src into a new buffer anchored at the origin.
func Crop(src *image.RGBA, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	sb := src.Bounds()
	draw.Draw(dst, dst.Bounds(), src, sb.Min.Add(r.Min), draw.Src)
	return dst
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
