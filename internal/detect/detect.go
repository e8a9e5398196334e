// Package detect locates the boundary of a single paper receipt in a photo.
//
// The paper finder segments bright, low-chroma pixels, cleans the mask with a
// majority filter, labels 4-connected regions and scores each surviving
// region by size, shape, position and border contact. The best region's
// extremal pixels become the receipt quad.
package detect

import (
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/logging"
	"receipt-geometry/pkg/geometry"
)

// ErrNoReceipt is returned when no region qualifies as a receipt.
var ErrNoReceipt = errors.New("detect: no receipt found")

// ErrContourUnavailable is returned by NewContourFinder in builds without
// the opencv tag.
var ErrContourUnavailable = errors.New("detect: contour finder requires the opencv build tag")

// Finder kinds accepted by NewFinder.
const (
	FinderPaper   = "paper"
	FinderContour = "contour"
)

// Result is the outcome of a finder on one buffer, in that buffer's pixel
// coordinates.
type Result struct {
	Box         ComponentBox
	Corners     geometry.Quad
	BoxFallback bool // corners are the bounding box, the extremal quad was too small
	Width       int
	Height      int
}

// Finder locates a receipt quad in an RGBA buffer.
type Finder interface {
	FindReceipt(img *image.RGBA) (*Result, error)
}

// NewFinder returns the finder registered under kind.
func NewFinder(kind string, p Params, log *logrus.Entry) (Finder, error) {
	switch kind {
	case "", FinderPaper:
		return NewPaperFinder(p, log), nil
	case FinderContour:
		return NewContourFinder(p, log)
	default:
		return nil, fmt.Errorf("detect: unknown finder %q", kind)
	}
}

// Analysis exposes the intermediate products of the paper finder.
type Analysis struct {
	Thresholds Thresholds
	Mask       *Mask // smoothed
	Components []Component
	Best       *Result
}

// PaperFinder is the segmentation-based finder.
type PaperFinder struct {
	params Params
	log    *logrus.Entry
}

// NewPaperFinder creates a paper finder. A nil log discards diagnostics.
func NewPaperFinder(p Params, log *logrus.Entry) *PaperFinder {
	return &PaperFinder{params: p, log: logging.OrDiscard(log)}
}

// Analyze runs the full paper pipeline and keeps every intermediate.
func (f *PaperFinder) Analyze(img *image.RGBA) *Analysis {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	raw, th := Segment(img, f.params)
	mask := Smooth(raw, f.params.SmoothMajority)
	comps := Label(mask, f.params)

	f.log.WithFields(logrus.Fields{
		"width":         w,
		"height":        h,
		"mean_lum":      th.MeanLum,
		"mean_spread":   th.MeanSpread,
		"lum_thresh":    th.Lum,
		"spread_thresh": th.Spread,
		"paper_pixels":  mask.Count(),
		"components":    len(comps),
	}).Debug("paper segmentation")

	a := &Analysis{Thresholds: th, Mask: mask, Components: comps}
	if best, ok := SelectBest(comps, w, h, f.params); ok {
		a.Best = &best
		f.log.WithFields(logrus.Fields{
			"score":        best.Box.Score,
			"area":         best.Box.Area,
			"touches_edge": best.Box.TouchesEdge,
			"box_fallback": best.BoxFallback,
		}).Debug("selected receipt component")
	}
	return a
}

// FindReceipt implements Finder.
func (f *PaperFinder) FindReceipt(img *image.RGBA) (*Result, error) {
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, scanimage.ErrEmptyImage
	}
	a := f.Analyze(img)
	if a.Best == nil {
		return nil, ErrNoReceipt
	}
	return a.Best, nil
}

// Detection is a receipt quad at work resolution.
type Detection struct {
	Analysis Result        // finder result at analysis resolution
	Corners  geometry.Quad // expanded, in work pixels
	Width    int
	Height   int
}

// Normalized returns the corners as fractions of the work size.
func (d *Detection) Normalized() geometry.NormalizedQuad {
	return d.Corners.Normalize(d.Width, d.Height)
}

// Detector runs a finder on a downscaled analysis copy of the work image and
// maps the result back.
type Detector struct {
	params Params
	finder Finder
	log    *logrus.Entry
}

// New creates a detector backed by the paper finder.
func New(p Params, log *logrus.Entry) *Detector {
	log = logging.OrDiscard(log)
	return &Detector{params: p, finder: NewPaperFinder(p, log), log: log}
}

// WithFinder returns a copy of d that uses f.
func (d *Detector) WithFinder(f Finder) *Detector {
	c := *d
	c.finder = f
	return &c
}

// Params returns the detector's parameters.
func (d *Detector) Params() Params { return d.params }

// Detect finds the receipt in work, a buffer already bounded to the work
// resolution. The returned corners are expanded by Params.ExpandScale and
// clamped to work.
func (d *Detector) Detect(work *image.RGBA) (*Detection, error) {
	b := work.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, scanimage.ErrEmptyImage
	}

	wi := &scanimage.WorkImage{Image: work, Width: w, Height: h, Scale: 1}
	analysis, rx, ry, err := wi.Downscale(d.params.AnalysisMaxSide)
	if err != nil {
		return nil, err
	}

	res, err := d.finder.FindReceipt(analysis.Image)
	if err != nil {
		return nil, err
	}

	corners := res.Corners.Scale(rx, ry).Expand(d.params.ExpandScale, w, h)
	d.log.WithFields(logrus.Fields{
		"analysis_width":  analysis.Width,
		"analysis_height": analysis.Height,
		"ratio_x":         rx,
		"ratio_y":         ry,
	}).Debug("mapped detection to work resolution")

	return &Detection{Analysis: *res, Corners: corners, Width: w, Height: h}, nil
}
