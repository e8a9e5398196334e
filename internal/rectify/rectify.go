// Package rectify flattens a receipt quad into an upright rectangular image.
package rectify

import (
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"receipt-geometry/internal/logging"
	"receipt-geometry/pkg/geometry"
)

// ErrInvalidQuad is returned for quads too small or too thin to rectify.
var ErrInvalidQuad = errors.New("rectify: invalid quad")

// Params holds the rectification limits.
type Params struct {
	MinOutputSide int                 `yaml:"min_output_side"`
	MaxOutputSide int                 `yaml:"max_output_side"`
	ExpandScale   float64             `yaml:"expand_scale"`
	Quad          geometry.QuadLimits `yaml:"quad"`
	Workers       int                 `yaml:"workers"` // warp goroutines, 0 = one per CPU
}

// DefaultParams returns the standard limits.
func DefaultParams() Params {
	return Params{
		MinOutputSide: 120,
		MaxOutputSide: 2000,
		ExpandScale:   1.01,
		Quad:          geometry.DefaultQuadLimits(),
	}
}

// WithWorkers returns a copy of params using n warp goroutines.
func (p Params) WithWorkers(n int) Params {
	p.Workers = n
	return p
}

// WithExpandScale returns a copy of params with a custom safety margin.
func (p Params) WithExpandScale(scale float64) Params {
	p.ExpandScale = scale
	return p
}

// Validate rejects unusable limits.
func (p Params) Validate() error {
	switch {
	case p.MinOutputSide < 1:
		return fmt.Errorf("rectify: min_output_side %d below 1", p.MinOutputSide)
	case p.MaxOutputSide < p.MinOutputSide:
		return fmt.Errorf("rectify: max_output_side %d below min_output_side %d", p.MaxOutputSide, p.MinOutputSide)
	case p.ExpandScale < 1:
		return fmt.Errorf("rectify: expand_scale %.3f below 1", p.ExpandScale)
	case p.Workers < 0:
		return fmt.Errorf("rectify: negative workers %d", p.Workers)
	}
	return nil
}

// Result is a rectified receipt.
type Result struct {
	Image  *image.RGBA
	Width  int
	Height int
	Warped bool          // false when the bounding-box crop was used
	Source geometry.Quad // expanded quad in source pixels
}

// Rectifier warps quads out of work images.
type Rectifier struct {
	params Params
	log    *logrus.Entry
}

// New creates a rectifier. A nil log discards diagnostics.
func New(p Params, log *logrus.Entry) *Rectifier {
	return &Rectifier{params: p, log: logging.OrDiscard(log)}
}

// Params returns the rectifier's limits.
func (r *Rectifier) Params() Params { return r.params }

// Rectify flattens the region of work described by the normalized quad. The
// corners are re-ordered first, since they may come back from a drag UI in
// any order.
func (r *Rectifier) Rectify(work *image.RGBA, n geometry.NormalizedQuad) (*Result, error) {
	b := work.Bounds()
	q := n.Ordered().ToPixels(b.Dx(), b.Dy())
	return r.RectifyQuad(work, q)
}

// RectifyQuad flattens the region of work inside q, given in work pixels in
// tl, tr, br, bl order.
//
// If no perspective transform exists for q the bounding box of q is cropped
// instead and Result.Warped is false. ErrInvalidQuad and ErrOutputTooSmall
// are returned when no usable output exists. work is not modified.
func (r *Rectifier) RectifyQuad(work *image.RGBA, q geometry.Quad) (*Result, error) {
	b := work.Bounds()
	w, h := b.Dx(), b.Dy()
	if !r.params.Quad.Allows(q, w, h) {
		return nil, ErrInvalidQuad
	}

	src := q.Expand(r.params.ExpandScale, w, h)
	outW, outH, err := OutputSize(src, r.params.MinOutputSide, r.params.MaxOutputSide)
	if err != nil {
		return nil, err
	}

	dstRect := geometry.BoxQuad(0, 0, float64(outW-1), float64(outH-1))
	hom, err := SolveHomography(dstRect, src)
	if errors.Is(err, ErrSingular) {
		crop, err := CropBounds(src, w, h, r.params.MinOutputSide)
		if err != nil {
			return nil, err
		}
		r.log.WithFields(logrus.Fields{
			"crop": crop.String(),
		}).Info("homography singular, using bounding-box crop")
		out := Crop(work, crop)
		return &Result{Image: out, Width: crop.Dx(), Height: crop.Dy(), Source: src}, nil
	}
	if err != nil {
		return nil, err
	}

	out := Warp(work, hom, outW, outH, r.params.Workers)
	r.log.WithFields(logrus.Fields{
		"width":      outW,
		"height":     outH,
		"homography": mat.Formatted(hom.Matrix(), mat.Squeeze()),
	}).Debug("rectified")
	return &Result{Image: out, Width: outW, Height: outH, Warped: true, Source: src}, nil
}
