package rectify

import (
	"image"
	"math"
	"runtime"
	"sync"
)

// Warp fills a width x height buffer by inverse mapping: every output pixel
// (x, y) is sent through h into src and sampled bilinearly. Pixels that map
// to infinity or outside src, less a one-pixel interpolation margin, are
// opaque white. Alpha is always opaque.
//
// Rows are split into horizontal stripes processed concurrently by up to
// workers goroutines; workers <= 0 uses one per CPU. The output does not
// depend on the worker count.
func Warp(src *image.RGBA, h Homography, width, height, workers int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width <= 0 || height <= 0 {
		return dst
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, height)
	rowsPerWorker := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		startY := w * rowsPerWorker
		if startY >= height {
			break
		}
		endY := min(startY+rowsPerWorker, height)

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			warpRows(dst, src, h, yStart, yEnd)
		}(startY, endY)
	}
	wg.Wait()

	return dst
}

func warpRows(dst, src *image.RGBA, h Homography, yStart, yEnd int) {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	maxX := float64(sw - 1)
	maxY := float64(sh - 1)
	width := dst.Bounds().Dx()

	for y := yStart; y < yEnd; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < width; x++ {
			o := x * 4
			sx, sy, ok := h.Apply(float64(x), float64(y))
			if !ok || sx < 0 || sy < 0 || sx >= maxX || sy >= maxY {
				row[o], row[o+1], row[o+2], row[o+3] = 255, 255, 255, 255
				continue
			}

			x0 := int(math.Floor(sx))
			y0 := int(math.Floor(sy))
			x1 := min(x0+1, sw-1)
			y1 := min(y0+1, sh-1)
			dx := sx - float64(x0)
			dy := sy - float64(y0)

			i00 := src.PixOffset(sb.Min.X+x0, sb.Min.Y+y0)
			i10 := src.PixOffset(sb.Min.X+x1, sb.Min.Y+y0)
			i01 := src.PixOffset(sb.Min.X+x0, sb.Min.Y+y1)
			i11 := src.PixOffset(sb.Min.X+x1, sb.Min.Y+y1)

			for c := 0; c < 3; c++ {
				v00 := float64(src.Pix[i00+c])
				v10 := float64(src.Pix[i10+c])
				v01 := float64(src.Pix[i01+c])
				v11 := float64(src.Pix[i11+c])
				top := v00 + (v10-v00)*dx
				bottom := v01 + (v11-v01)*dx
				row[o+c] = uint8(math.Round(top + (bottom-top)*dy))
			}
			row[o+3] = 255
		}
	}
}
