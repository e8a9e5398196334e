package rectify

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"receipt-geometry/pkg/geometry"
)

// ErrSingular is returned when the four correspondences do not define a
// usable perspective transform, typically because three corners are
// collinear or two coincide.
var ErrSingular = errors.New("rectify: singular homography")

const (
	// pivotEpsilon is the smallest pivot magnitude accepted by the solver.
	pivotEpsilon = 1e-10
	// denEpsilon is the smallest projective denominator treated as finite.
	denEpsilon = 1e-8
	// maxReprojection is the largest corner error, in pixels, accepted after
	// solving.
	maxReprojection = 0.5
)

// Homography is a planar perspective transform with h33 fixed to 1:
//
//	x' = (H11 x + H12 y + H13) / (H31 x + H32 y + 1)
//	y' = (H21 x + H22 y + H23) / (H31 x + H32 y + 1)
type Homography struct {
	H11, H12, H13 float64
	H21, H22, H23 float64
	H31, H32      float64
}

// Apply maps (x, y). ok is false when the point maps to infinity.
func (h Homography) Apply(x, y float64) (px, py float64, ok bool) {
	den := h.H31*x + h.H32*y + 1
	if math.Abs(den) < denEpsilon {
		return 0, 0, false
	}
	px = (h.H11*x + h.H12*y + h.H13) / den
	py = (h.H21*x + h.H22*y + h.H23) / den
	return px, py, true
}

// Matrix returns the transform as a 3x3 matrix.
func (h Homography) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h.H11, h.H12, h.H13,
		h.H21, h.H22, h.H23,
		h.H31, h.H32, 1,
	})
}

// SolveHomography returns the transform mapping each corner of from onto the
// matching corner of to.
//
// The eight unknowns are solved from an 8x9 augmented system by Gauss-Jordan
// elimination with partial pivoting. A pivot below 1e-10 fails. The result
// is then checked against the input: a corner that maps to infinity or lands
// more than half a pixel from its target also fails. Three collinear target
// corners can yield a solvable system whose transform sends the fourth
// corner to infinity; the check turns that into ErrSingular.
func SolveHomography(from, to geometry.Quad) (Homography, error) {
	a := mat.NewDense(8, 9, nil)
	for i := 0; i < 4; i++ {
		x, y := from[i].X, from[i].Y
		u, v := to[i].X, to[i].Y
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, v})
	}

	sol, err := gaussJordan(a)
	if err != nil {
		return Homography{}, err
	}
	h := Homography{
		H11: sol[0], H12: sol[1], H13: sol[2],
		H21: sol[3], H22: sol[4], H23: sol[5],
		H31: sol[6], H32: sol[7],
	}

	for i := 0; i < 4; i++ {
		px, py, ok := h.Apply(from[i].X, from[i].Y)
		if !ok || math.Hypot(px-to[i].X, py-to[i].Y) > maxReprojection {
			return Homography{}, ErrSingular
		}
	}
	return h, nil
}

// gaussJordan reduces the n x (n+1) augmented matrix a in place and returns
// its last column.
func gaussJordan(a *mat.Dense) ([]float64, error) {
	n, _ := a.Dims()
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a.At(row, col)) > math.Abs(a.At(pivot, col)) {
				pivot = row
			}
		}
		if math.Abs(a.At(pivot, col)) < pivotEpsilon {
			return nil, ErrSingular
		}
		if pivot != col {
			swapRows(a, pivot, col)
		}

		pr := a.RawRowView(col)
		pv := pr[col]
		for j := col; j <= n; j++ {
			pr[j] /= pv
		}

		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			r := a.RawRowView(row)
			factor := r[col]
			if factor == 0 {
				continue
			}
			for j := col; j <= n; j++ {
				r[j] -= factor * pr[j]
			}
		}
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = a.At(i, n)
	}
	return out, nil
}

func swapRows(a *mat.Dense, i, j int) {
	ri := a.RawRowView(i)
	rj := a.RawRowView(j)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}
