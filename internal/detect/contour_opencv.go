//go:build opencv

package detect

import (
	"fmt"
	"image"
	"sort"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/logging"
	"receipt-geometry/pkg/geometry"
)

// ContourFinder looks for the largest contour that approximates to four
// vertices after Canny edge detection.
type ContourFinder struct {
	params Params
	log    *logrus.Entry
}

// NewContourFinder creates an OpenCV-backed finder.
func NewContourFinder(p Params, log *logrus.Entry) (Finder, error) {
	return &ContourFinder{params: p, log: logging.OrDiscard(log)}, nil
}

// FindReceipt implements Finder.
func (f *ContourFinder) FindReceipt(img *image.RGBA) (*Result, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, scanimage.ErrEmptyImage
	}

	src, err := rgbaToMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// Convert to grayscale
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorRGBAToGray)

	// Blur to reduce noise
	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: 5, Y: 5}, 0, 0, gocv.BorderDefault)

	// Canny edge detection
	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 50, 150)

	contours := gocv.FindContours(edges, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	type candidate struct {
		idx  int
		area float64
	}
	cands := make([]candidate, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		cands = append(cands, candidate{idx: i, area: gocv.ContourArea(contours.At(i))})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].area > cands[j].area })
	if len(cands) > f.params.ContourCandidates {
		cands = cands[:f.params.ContourCandidates]
	}

	imgArea := float64(w * h)
	for _, c := range cands {
		contour := contours.At(c.idx)
		epsilon := 0.02 * gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, epsilon, true)
		if approx.Size() != 4 {
			approx.Close()
			continue
		}
		area := gocv.ContourArea(approx)
		if area <= imgArea*f.params.ContourMinAreaRatio {
			approx.Close()
			continue
		}

		pts := make([]geometry.Point2D, 0, 4)
		for _, p := range approx.ToPoints() {
			pts = append(pts, geometry.Point2D{X: float64(p.X), Y: float64(p.Y)})
		}
		approx.Close()

		corners, err := geometry.OrderCorners(pts)
		if err != nil {
			return nil, err
		}
		bounds := corners.Bounds()
		box := ComponentBox{
			MinX:  int(bounds.X),
			MinY:  int(bounds.Y),
			MaxX:  int(bounds.MaxX()),
			MaxY:  int(bounds.MaxY()),
			Area:  int(area),
			Score: area / imgArea,
		}
		f.log.WithFields(logrus.Fields{
			"contours": contours.Size(),
			"area":     area,
		}).Debug("contour quad found")
		return &Result{Box: box, Corners: corners, Width: w, Height: h}, nil
	}

	f.log.WithField("contours", contours.Size()).Debug("no 4-vertex contour")
	return nil, ErrNoReceipt
}

// rgbaToMat copies img into a 4-channel OpenCV Mat.
func rgbaToMat(img *image.RGBA) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, 0, w*h*4)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		buf = append(buf, img.Pix[off:off+w*4]...)
	}
	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, buf)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to create mat: %w", err)
	}
	return mat, nil
}
