// Package scan runs the receipt pipeline end to end: bound the input to the
// work resolution, find the receipt, and flatten it.
//
// An Engine holds only immutable configuration and a logger, so one Engine
// may serve concurrent calls.
package scan

import (
	"errors"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"receipt-geometry/internal/detect"
	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/logging"
	"receipt-geometry/internal/rectify"
	"receipt-geometry/pkg/geometry"
)

// Options configures an Engine.
type Options struct {
	WorkMaxSide int            `yaml:"work_max_side"`
	Finder      string         `yaml:"finder"` // detect.FinderPaper or detect.FinderContour
	JPEGQuality int            `yaml:"jpeg_quality"`
	Detect      detect.Params  `yaml:"detect"`
	Rectify     rectify.Params `yaml:"rectify"`
}

// DefaultOptions returns the standard pipeline configuration.
func DefaultOptions() Options {
	return Options{
		WorkMaxSide: scanimage.DefaultWorkMaxSide,
		Finder:      detect.FinderPaper,
		JPEGQuality: scanimage.DefaultJPEGQuality,
		Detect:      detect.DefaultParams(),
		Rectify:     rectify.DefaultParams(),
	}
}

// Validate checks every nested parameter set.
func (o Options) Validate() error {
	if o.WorkMaxSide < 1 {
		return fmt.Errorf("scan: work_max_side %d below 1", o.WorkMaxSide)
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return fmt.Errorf("scan: jpeg_quality %d outside 1..100", o.JPEGQuality)
	}
	if err := o.Detect.Validate(); err != nil {
		return err
	}
	return o.Rectify.Validate()
}

// Engine is the receipt pipeline.
type Engine struct {
	opts      Options
	detector  *detect.Detector
	rectifier *rectify.Rectifier
	log       *logrus.Entry
}

// New builds an engine. A nil log discards diagnostics.
func New(opts Options, log *logrus.Entry) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log = logging.OrDiscard(log)

	finder, err := detect.NewFinder(opts.Finder, opts.Detect, log.WithField("stage", "detect"))
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:      opts,
		detector:  detect.New(opts.Detect, log.WithField("stage", "detect")).WithFinder(finder),
		rectifier: rectify.New(opts.Rectify, log.WithField("stage", "rectify")),
		log:       log,
	}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Work bounds img to the work resolution.
func (e *Engine) Work(img image.Image) (*scanimage.WorkImage, error) {
	return scanimage.BuildWorkImage(img, e.opts.WorkMaxSide)
}

// DetectWork finds the receipt and returns the work image it was found in
// along with the full detection.
func (e *Engine) DetectWork(img image.Image) (*scanimage.WorkImage, *detect.Detection, error) {
	work, err := e.Work(img)
	if err != nil {
		return nil, nil, err
	}
	det, err := e.detector.Detect(work.Image)
	if err != nil {
		return work, nil, err
	}
	return work, det, nil
}

// Detect returns the receipt corners as fractions of the image size.
// ErrEmptyImage and detect.ErrNoReceipt mean no receipt; callers should
// offer geometry.DefaultNormalizedQuad instead.
func (e *Engine) Detect(img image.Image) (geometry.NormalizedQuad, error) {
	_, det, err := e.DetectWork(img)
	if err != nil {
		return geometry.NormalizedQuad{}, err
	}
	return det.Normalized(), nil
}

// Rectify flattens the region of img described by q. q may list its corners
// in any order. rectify.ErrInvalidQuad and rectify.ErrOutputTooSmall mean no
// usable output exists; a singular transform is absorbed by cropping.
func (e *Engine) Rectify(img image.Image, q geometry.NormalizedQuad) (*rectify.Result, error) {
	work, err := e.Work(img)
	if err != nil {
		return nil, err
	}
	return e.rectifyWork(work, q)
}

func (e *Engine) rectifyWork(work *scanimage.WorkImage, q geometry.NormalizedQuad) (*rectify.Result, error) {
	return e.rectifier.Rectify(work.Image, q)
}

// AutoCrop detects and flattens the receipt in one go. On any failure it
// returns img unchanged and false.
func (e *Engine) AutoCrop(img image.Image) (image.Image, bool) {
	work, det, err := e.DetectWork(img)
	if err != nil {
		e.logSoft("auto-crop detection", err)
		return img, false
	}
	res, err := e.rectifyWork(work, det.Normalized())
	if err != nil {
		e.logSoft("auto-crop rectification", err)
		return img, false
	}
	return res.Image, true
}

// IsSoft reports whether err is an expected "nothing usable" outcome rather
// than a fault.
func IsSoft(err error) bool {
	return errors.Is(err, scanimage.ErrEmptyImage) ||
		errors.Is(err, scanimage.ErrNotImage) ||
		errors.Is(err, scanimage.ErrDecode) ||
		errors.Is(err, detect.ErrNoReceipt) ||
		errors.Is(err, rectify.ErrInvalidQuad) ||
		errors.Is(err, rectify.ErrOutputTooSmall)
}

func (e *Engine) logSoft(what string, err error) {
	entry := e.log.WithError(err)
	if IsSoft(err) {
		entry.Info(what + " skipped")
		return
	}
	entry.Warn(what + " failed")
}
