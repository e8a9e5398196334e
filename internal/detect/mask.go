package detect

import (
	"image"

	"gonum.org/v1/gonum/stat"

	"receipt-geometry/pkg/colorutil"
	"receipt-geometry/pkg/geometry"
)

// Mask is a binary per-pixel classification; 1 marks paper.
type Mask struct {
	Pix    []uint8
	Width  int
	Height int
}

// NewMask allocates an empty mask.
func NewMask(width, height int) *Mask {
	return &Mask{Pix: make([]uint8, width*height), Width: width, Height: height}
}

// At returns the mask value at (x, y).
func (m *Mask) At(x, y int) uint8 { return m.Pix[y*m.Width+x] }

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		n += int(v)
	}
	return n
}

// Thresholds records the adaptive thresholds used for one segmentation.
type Thresholds struct {
	MeanLum    float64
	MeanSpread float64
	Lum        float64
	Spread     float64
}

// Segment classifies every pixel of img as paper or not. A pixel is paper
// when it is at least as bright as the adaptive luminance threshold and no
// more saturated than the adaptive spread threshold. img is not modified.
func Segment(img *image.RGBA, p Params) (*Mask, Thresholds) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h

	lum := make([]float64, n)
	spread := make([]float64, n)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			r, g, bl := row[x*4], row[x*4+1], row[x*4+2]
			lum[y*w+x] = colorutil.Luminance(r, g, bl)
			spread[y*w+x] = float64(colorutil.ChannelSpread(r, g, bl))
		}
	}

	th := Thresholds{
		MeanLum:    stat.Mean(lum, nil),
		MeanSpread: stat.Mean(spread, nil),
	}
	th.Lum = geometry.Clamp(th.MeanLum+p.LumOffset, p.LumMin, p.LumMax)
	th.Spread = geometry.Clamp(th.MeanSpread*p.SpreadFactor, p.SpreadMin, p.SpreadMax)

	mask := NewMask(w, h)
	for i := range mask.Pix {
		if lum[i] >= th.Lum && spread[i] <= th.Spread {
			mask.Pix[i] = 1
		}
	}
	return mask, th
}

// Smooth applies a 3x3 majority filter: an interior pixel is set when at
// least minCount of the nine pixels in its window are set. Border pixels are
// always cleared. The input mask is not modified.
func Smooth(m *Mask, minCount int) *Mask {
	w, h := m.Width, m.Height
	out := NewMask(w, h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			count := 0
			for oy := -1; oy <= 1; oy++ {
				row := (y + oy) * w
				for ox := -1; ox <= 1; ox++ {
					count += int(m.Pix[row+x+ox])
				}
			}
			if count >= minCount {
				out.Pix[y*w+x] = 1
			}
		}
	}
	return out
}
