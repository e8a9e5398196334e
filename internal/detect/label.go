package detect

import (
	"math"

	"receipt-geometry/pkg/geometry"
)

// ComponentBox summarises one connected paper region.
type ComponentBox struct {
	MinX, MinY  int
	MaxX, MaxY  int
	Area        int
	TouchesEdge bool
	Score       float64
}

// Width returns the inclusive pixel width of the box.
func (b ComponentBox) Width() int { return b.MaxX - b.MinX + 1 }

// Height returns the inclusive pixel height of the box.
func (b ComponentBox) Height() int { return b.MaxY - b.MinY + 1 }

// Quad returns the axis-aligned quad through the box's extreme pixels.
func (b ComponentBox) Quad() geometry.Quad {
	return geometry.BoxQuad(float64(b.MinX), float64(b.MinY), float64(b.MaxX), float64(b.MaxY))
}

// Component is a connected region that survived the area filter, with its
// extremal pixels: top-left minimises x+y, top-right maximises x-y,
// bottom-right maximises x+y and bottom-left minimises x-y.
type Component struct {
	Box      ComponentBox
	Extremes geometry.Quad
}

// AreaBounds returns the inclusive pixel-count range a component must fall
// in to be kept, for a buffer of the given pixel count.
func AreaBounds(pixels int, p Params) (minArea, maxArea int) {
	minArea = int(math.Floor(float64(pixels) * p.MinAreaRatio))
	maxArea = int(math.Floor(float64(pixels) * p.MaxAreaRatio))
	return minArea, maxArea
}

// Label finds the 4-connected regions of m in raster order and returns those
// whose area lies within AreaBounds. Scores are left at zero.
//
// The flood fill uses a single queue sized to the pixel count, shared by all
// components, so a component of any size never grows the stack.
func Label(m *Mask, p Params) []Component {
	w, h := m.Width, m.Height
	pixels := w * h
	if pixels == 0 {
		return nil
	}
	minArea, maxArea := AreaBounds(pixels, p)

	visited := make([]bool, pixels)
	queue := make([]int32, pixels)
	margin := p.EdgeMargin

	var out []Component
	for start := 0; start < pixels; start++ {
		if m.Pix[start] == 0 || visited[start] {
			continue
		}

		head, tail := 0, 0
		queue[tail] = int32(start)
		tail++
		visited[start] = true

		box := ComponentBox{MinX: w, MinY: h}
		minSum, maxSum := math.MaxInt, math.MinInt
		minDiff, maxDiff := math.MaxInt, math.MinInt
		var tl, tr, br, bl geometry.Point2D

		for head < tail {
			idx := int(queue[head])
			head++
			x, y := idx%w, idx/w

			box.Area++
			box.MinX = min(box.MinX, x)
			box.MinY = min(box.MinY, y)
			box.MaxX = max(box.MaxX, x)
			box.MaxY = max(box.MaxY, y)
			if x <= margin || y <= margin || x >= w-1-margin || y >= h-1-margin {
				box.TouchesEdge = true
			}

			sum, diff := x+y, x-y
			pt := geometry.Point2D{X: float64(x), Y: float64(y)}
			if sum < minSum {
				minSum, tl = sum, pt
			}
			if sum > maxSum {
				maxSum, br = sum, pt
			}
			if diff > maxDiff {
				maxDiff, tr = diff, pt
			}
			if diff < minDiff {
				minDiff, bl = diff, pt
			}

			// Left, right, up, down.
			if x > 0 {
				tail = push(m, visited, queue, tail, idx-1)
			}
			if x < w-1 {
				tail = push(m, visited, queue, tail, idx+1)
			}
			if y > 0 {
				tail = push(m, visited, queue, tail, idx-w)
			}
			if y < h-1 {
				tail = push(m, visited, queue, tail, idx+w)
			}
		}

		if box.Area < minArea || box.Area > maxArea {
			continue
		}
		out = append(out, Component{Box: box, Extremes: geometry.Quad{tl, tr, br, bl}})
	}
	return out
}

func push(m *Mask, visited []bool, queue []int32, tail, idx int) int {
	if m.Pix[idx] == 0 || visited[idx] {
		return tail
	}
	visited[idx] = true
	queue[tail] = int32(idx)
	return tail + 1
}
