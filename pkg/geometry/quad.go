package geometry

import (
	"math"
)

// Corner indexes into a Quad.
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomRight
	BottomLeft
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomRight:
		return "bottom-right"
	case BottomLeft:
		return "bottom-left"
	default:
		return "unknown"
	}
}

// Quad is a quadrilateral in pixel space, always ordered
// top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point2D

// BoxQuad returns the axis-aligned quad spanning the given pixel bounds.
func BoxQuad(minX, minY, maxX, maxY float64) Quad {
	return Quad{
		{X: minX, Y: minY},
		{X: maxX, Y: minY},
		{X: maxX, Y: maxY},
		{X: minX, Y: maxY},
	}
}

// TopWidth returns the length of the top edge.
func (q Quad) TopWidth() float64 { return q[TopLeft].Distance(q[TopRight]) }

// BottomWidth returns the length of the bottom edge.
func (q Quad) BottomWidth() float64 { return q[BottomLeft].Distance(q[BottomRight]) }

// LeftHeight returns the length of the left edge.
func (q Quad) LeftHeight() float64 { return q[TopLeft].Distance(q[BottomLeft]) }

// RightHeight returns the length of the right edge.
func (q Quad) RightHeight() float64 { return q[TopRight].Distance(q[BottomRight]) }

// MinEdge returns the shortest of the four edges.
func (q Quad) MinEdge() float64 {
	return math.Min(math.Min(q.TopWidth(), q.BottomWidth()), math.Min(q.LeftHeight(), q.RightHeight()))
}

// Area returns the polygon area of the quad (shoelace formula).
func (q Quad) Area() float64 {
	return PolygonArea(q[:])
}

// Centroid returns the mean of the four corners.
func (q Quad) Centroid() Point2D {
	return Centroid(q[:])
}

// Bounds returns the axis-aligned bounding box of the quad.
func (q Quad) Bounds() Rect {
	return BoundingBox(q[:])
}

// Scale multiplies every corner by independent x and y factors.
func (q Quad) Scale(sx, sy float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = Point2D{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// Expand pushes each corner away from the centroid by factor and clamps the
// result to [0, width-1] x [0, height-1].
func (q Quad) Expand(factor float64, width, height int) Quad {
	c := q.Centroid()
	maxX := float64(width - 1)
	maxY := float64(height - 1)
	var out Quad
	for i, p := range q {
		e := c.Add(p.Sub(c).Scale(factor))
		out[i] = Point2D{X: Clamp(e.X, 0, maxX), Y: Clamp(e.Y, 0, maxY)}
	}
	return out
}

// Normalize converts the quad to resolution-independent coordinates by
// dividing by the buffer dimensions. Each value is clamped to [0,1].
func (q Quad) Normalize(width, height int) NormalizedQuad {
	w := float64(max(width, 1))
	h := float64(max(height, 1))
	var out NormalizedQuad
	for i, p := range q {
		out[i] = NormalizedPoint{X: Clamp(p.X/w, 0, 1), Y: Clamp(p.Y/h, 0, 1)}
	}
	return out
}

// QuadLimits bounds how small a quad may be relative to the buffer it lives
// in before it is considered degenerate.
type QuadLimits struct {
	MinSpan      float64 `yaml:"min_span"`       // absolute minimum edge length in pixels
	MinSpanRatio float64 `yaml:"min_span_ratio"` // minimum edge length as a fraction of min(W,H)
	MinAreaRatio float64 `yaml:"min_area_ratio"` // minimum area as a fraction of W*H
}

// DefaultQuadLimits returns the limits used by both detection and
// rectification.
func DefaultQuadLimits() QuadLimits {
	return QuadLimits{MinSpan: 14, MinSpanRatio: 0.08, MinAreaRatio: 0.04}
}

// Allows reports whether every edge of q is at least
// max(MinSpan, min(W,H)*MinSpanRatio) long and its area is at least
// W*H*MinAreaRatio.
func (l QuadLimits) Allows(q Quad, width, height int) bool {
	minSpan := math.Max(l.MinSpan, float64(min(width, height))*l.MinSpanRatio)
	if q.MinEdge() < minSpan {
		return false
	}
	return q.Area() >= float64(width)*float64(height)*l.MinAreaRatio
}
