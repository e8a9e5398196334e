package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrPointCount is matched (via errors.Is) by every PointCountError.
var ErrPointCount = errors.New("geometry: expected exactly 4 points")

// PointCountError reports a corner set that does not have four points.
type PointCountError struct {
	Got int
}

func (e *PointCountError) Error() string {
	return fmt.Sprintf("geometry: expected exactly 4 points, got %d", e.Got)
}

// Is reports whether target is ErrPointCount.
func (e *PointCountError) Is(target error) bool {
	return target == ErrPointCount
}

// PolygonArea returns the unsigned area of a simple polygon using the
// shoelace formula.
func PolygonArea(points []Point2D) float64 {
	var area float64
	n := len(points)
	for i := 0; i < n; i++ {
		p1 := points[i]
		p2 := points[(i+1)%n]
		area += p1.X*p2.Y - p2.X*p1.Y
	}
	return math.Abs(area) * 0.5
}

// OrderCorners assigns four points of arbitrary order to top-left,
// top-right, bottom-right and bottom-left.
//
// TL minimizes x+y, BR maximizes x+y, TR maximizes x-y and BL minimizes x-y.
// When several points share an extreme value the earliest one wins, so the
// result for a convex quad does not depend on input order.
func OrderCorners(points []Point2D) (Quad, error) {
	if len(points) != 4 {
		return Quad{}, &PointCountError{Got: len(points)}
	}

	tl, br, tr, bl := 0, 0, 0, 0
	for i := 1; i < 4; i++ {
		p := points[i]
		sum := p.X + p.Y
		diff := p.X - p.Y
		if sum < points[tl].X+points[tl].Y {
			tl = i
		}
		if sum > points[br].X+points[br].Y {
			br = i
		}
		if diff > points[tr].X-points[tr].Y {
			tr = i
		}
		if diff < points[bl].X-points[bl].Y {
			bl = i
		}
	}

	return Quad{points[tl], points[tr], points[br], points[bl]}, nil
}
