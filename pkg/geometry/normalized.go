package geometry

import (
	"encoding/json"
	"fmt"
)

// NormalizedPoint is a point expressed as a fraction of the image size.
type NormalizedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NormalizedQuad is the corner set exchanged with the corner-adjustment UI:
// four points in [0,1], ordered top-left, top-right, bottom-right,
// bottom-left. It marshals as a 4-element JSON array of {x, y} objects.
type NormalizedQuad [4]NormalizedPoint

// DefaultNormalizedQuad is the centered rectangle offered for manual
// adjustment when detection finds nothing.
func DefaultNormalizedQuad() NormalizedQuad {
	return NormalizedQuad{
		{X: 0.06, Y: 0.06},
		{X: 0.94, Y: 0.06},
		{X: 0.94, Y: 0.94},
		{X: 0.06, Y: 0.94},
	}
}

// Clamped returns a copy with every coordinate limited to [0,1].
func (n NormalizedQuad) Clamped() NormalizedQuad {
	var out NormalizedQuad
	for i, p := range n {
		out[i] = NormalizedPoint{X: Clamp(p.X, 0, 1), Y: Clamp(p.Y, 0, 1)}
	}
	return out
}

// Ordered re-sorts the points into canonical corner order. Points coming back
// from drag handles may have been crossed over by the user.
func (n NormalizedQuad) Ordered() NormalizedQuad {
	pts := make([]Point2D, 4)
	for i, p := range n {
		pts[i] = Point2D{X: p.X, Y: p.Y}
	}
	// Four points never produce a count error.
	q, _ := OrderCorners(pts)
	var out NormalizedQuad
	for i, p := range q {
		out[i] = NormalizedPoint{X: p.X, Y: p.Y}
	}
	return out
}

// ToPixels maps the quad onto a width x height buffer. Coordinates are
// clamped to [0,1] and scaled by (width-1, height-1) so that 1.0 lands on the
// last pixel.
func (n NormalizedQuad) ToPixels(width, height int) Quad {
	sx := float64(width - 1)
	sy := float64(height - 1)
	var out Quad
	for i, p := range n.Clamped() {
		out[i] = Point2D{X: p.X * sx, Y: p.Y * sy}
	}
	return out
}

// UnmarshalJSON requires exactly four points.
func (n *NormalizedQuad) UnmarshalJSON(data []byte) error {
	var pts []NormalizedPoint
	if err := json.Unmarshal(data, &pts); err != nil {
		return fmt.Errorf("decode corners: %w", err)
	}
	if len(pts) != 4 {
		return &PointCountError{Got: len(pts)}
	}
	copy(n[:], pts)
	return nil
}

// ParseNormalizedQuad decodes a JSON corner array and returns it in canonical
// order.
func ParseNormalizedQuad(data []byte) (NormalizedQuad, error) {
	var q NormalizedQuad
	if err := json.Unmarshal(data, &q); err != nil {
		return NormalizedQuad{}, err
	}
	return q.Ordered(), nil
}
