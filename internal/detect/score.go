package detect

import (
	"math"

	"receipt-geometry/pkg/geometry"
)

// AspectWeight rates a height/width ratio: upright receipt shapes score
// highest, near-square shapes less, wide or flat shapes least.
func AspectWeight(aspect float64, p Params) float64 {
	switch {
	case aspect >= p.PortraitAspectMin && aspect <= p.PortraitAspectMax:
		return p.PortraitWeight
	case aspect >= p.SquareAspectMin && aspect < p.PortraitAspectMin:
		return p.SquareWeight
	default:
		return p.FlatWeight
	}
}

// CenterWeight favours boxes whose center is close to the image center.
func CenterWeight(box ComponentBox, width, height int, p Params) float64 {
	cx := float64(box.MinX+box.MaxX) / 2
	cy := float64(box.MinY+box.MaxY) / 2
	halfW := float64(width) / 2
	halfH := float64(height) / 2
	dx := math.Abs(cx-halfW) / halfW
	dy := math.Abs(cy-halfH) / halfH
	return geometry.Clamp(1-(dx*p.CenterWeightX+dy*p.CenterWeightY), p.CenterFloor, 1)
}

// Score returns areaRatio * aspectWeight * centerWeight * edgePenalty for a
// component in a width x height buffer.
func Score(box ComponentBox, width, height int, p Params) float64 {
	aspect := float64(box.Height()) / float64(max(1, box.Width()))
	areaRatio := float64(box.Area) / float64(width*height)

	edge := 1.0
	if box.TouchesEdge {
		edge = p.EdgePenalty
	}
	return areaRatio * AspectWeight(aspect, p) * CenterWeight(box, width, height, p) * edge
}

// SelectBest scores every component and returns the highest scorer. Only a
// strictly greater score replaces the current best, so among equal scores
// the first component in raster order wins. The returned component's quad is
// its extremal quad when the limits allow it, else its bounding box.
func SelectBest(components []Component, width, height int, p Params) (Result, bool) {
	var best Result
	found := false
	for _, c := range components {
		box := c.Box
		box.Score = Score(box, width, height, p)
		if found && box.Score <= best.Box.Score {
			continue
		}

		corners := c.Extremes
		fallback := false
		if !p.Quad.Allows(corners, width, height) {
			corners = box.Quad()
			fallback = true
		}
		best = Result{Box: box, Corners: corners, BoxFallback: fallback, Width: width, Height: height}
		found = true
	}
	return best, found
}
