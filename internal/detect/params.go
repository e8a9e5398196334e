package detect

import (
	"fmt"

	"receipt-geometry/pkg/geometry"
)

// Params holds every tunable of paper detection. The scoring weights are
// hand-tuned; they are exposed here so they can be adjusted from
// configuration.
type Params struct {
	// Segmentation thresholds, derived from the image means.
	LumOffset    float64 `yaml:"lum_offset"`
	LumMin       float64 `yaml:"lum_min"`
	LumMax       float64 `yaml:"lum_max"`
	SpreadFactor float64 `yaml:"spread_factor"`
	SpreadMin    float64 `yaml:"spread_min"`
	SpreadMax    float64 `yaml:"spread_max"`

	// Minimum number of set pixels in a 3x3 window for the smoothed mask.
	SmoothMajority int `yaml:"smooth_majority"`

	// Component area filter as fractions of the pixel count, inclusive.
	MinAreaRatio float64 `yaml:"min_area_ratio"`
	MaxAreaRatio float64 `yaml:"max_area_ratio"`

	// Distance from the frame, in pixels, at which a component counts as
	// touching the border.
	EdgeMargin int `yaml:"edge_margin"`

	// Aspect (height/width) bands and their weights.
	PortraitAspectMin float64 `yaml:"portrait_aspect_min"`
	PortraitAspectMax float64 `yaml:"portrait_aspect_max"`
	SquareAspectMin   float64 `yaml:"square_aspect_min"`
	PortraitWeight    float64 `yaml:"portrait_weight"`
	SquareWeight      float64 `yaml:"square_weight"`
	FlatWeight        float64 `yaml:"flat_weight"`

	// Center weight: 1 - (dx*CenterWeightX + dy*CenterWeightY), floored.
	CenterWeightX float64 `yaml:"center_weight_x"`
	CenterWeightY float64 `yaml:"center_weight_y"`
	CenterFloor   float64 `yaml:"center_floor"`

	EdgePenalty float64 `yaml:"edge_penalty"`

	Quad geometry.QuadLimits `yaml:"quad"`

	// Safety margin applied to the detected quad, about its centroid.
	ExpandScale float64 `yaml:"expand_scale"`

	// Longest side of the buffer the finder runs on.
	AnalysisMaxSide int `yaml:"analysis_max_side"`

	// Contour finder: how many of the largest contours to try, and the
	// minimum area of the 4-vertex approximation as a fraction of W*H.
	ContourCandidates   int     `yaml:"contour_candidates"`
	ContourMinAreaRatio float64 `yaml:"contour_min_area_ratio"`
}

// DefaultParams returns the detection parameters tuned for phone photos of a
// single receipt on a darker or more colorful background.
func DefaultParams() Params {
	return Params{
		LumOffset:    14,
		LumMin:       145,
		LumMax:       236,
		SpreadFactor: 1.2,
		SpreadMin:    18,
		SpreadMax:    62,

		SmoothMajority: 5,

		MinAreaRatio: 0.08,
		MaxAreaRatio: 0.96,

		EdgeMargin: 0,

		PortraitAspectMin: 1.05,
		PortraitAspectMax: 4.4,
		SquareAspectMin:   0.42,
		PortraitWeight:    1.0,
		SquareWeight:      0.78,
		FlatWeight:        0.42,

		CenterWeightX: 0.55,
		CenterWeightY: 0.75,
		CenterFloor:   0.2,

		EdgePenalty: 0.74,

		Quad: geometry.DefaultQuadLimits(),

		ExpandScale: 1.03,

		AnalysisMaxSide: 720,

		ContourCandidates:   8,
		ContourMinAreaRatio: 0.12,
	}
}

// WithAreaRange returns a copy of params with a custom component area range.
func (p Params) WithAreaRange(minRatio, maxRatio float64) Params {
	p.MinAreaRatio = minRatio
	p.MaxAreaRatio = maxRatio
	return p
}

// WithExpandScale returns a copy of params with a custom safety margin.
func (p Params) WithExpandScale(scale float64) Params {
	p.ExpandScale = scale
	return p
}

// WithAnalysisMaxSide returns a copy of params that analyses at most side
// pixels along the longer edge. Zero analyses at work resolution.
func (p Params) WithAnalysisMaxSide(side int) Params {
	p.AnalysisMaxSide = side
	return p
}

// Validate rejects parameter sets that cannot produce a detection.
func (p Params) Validate() error {
	switch {
	case p.LumMin > p.LumMax:
		return fmt.Errorf("detect: lum_min %.1f above lum_max %.1f", p.LumMin, p.LumMax)
	case p.SpreadMin > p.SpreadMax:
		return fmt.Errorf("detect: spread_min %.1f above spread_max %.1f", p.SpreadMin, p.SpreadMax)
	case p.SmoothMajority < 1 || p.SmoothMajority > 9:
		return fmt.Errorf("detect: smooth_majority %d outside 1..9", p.SmoothMajority)
	case p.MinAreaRatio <= 0 || p.MinAreaRatio > 1:
		return fmt.Errorf("detect: min_area_ratio %.3f outside (0,1]", p.MinAreaRatio)
	case p.MaxAreaRatio <= 0 || p.MaxAreaRatio > 1:
		return fmt.Errorf("detect: max_area_ratio %.3f outside (0,1]", p.MaxAreaRatio)
	case p.MinAreaRatio > p.MaxAreaRatio:
		return fmt.Errorf("detect: min_area_ratio %.3f above max_area_ratio %.3f", p.MinAreaRatio, p.MaxAreaRatio)
	case p.EdgeMargin < 0:
		return fmt.Errorf("detect: negative edge_margin %d", p.EdgeMargin)
	case p.ExpandScale < 1:
		return fmt.Errorf("detect: expand_scale %.3f below 1", p.ExpandScale)
	case p.AnalysisMaxSide < 0:
		return fmt.Errorf("detect: negative analysis_max_side %d", p.AnalysisMaxSide)
	}
	return nil
}
