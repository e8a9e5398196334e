package scan

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-geometry/internal/detect"
	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/rectify"
	"receipt-geometry/pkg/geometry"
)

var (
	tableTop = color.RGBA{R: 60, G: 50, B: 45, A: 255}
	paper    = color.RGBA{R: 245, G: 244, B: 240, A: 255}
	wall     = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func receiptPhoto(w, h int, receipt image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), tableTop)
	fill(img, receipt, paper)
	return img
}

// withBleed scatters paper-coloured pixels over share of the background
// outside receipt, using a fixed seed.
func withBleed(img *image.RGBA, receipt image.Rectangle, share float64, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if image.Pt(x, y).In(receipt) {
				continue
			}
			if rng.Float64() < share {
				img.SetRGBA(x, y, paper)
			}
		}
	}
	return img
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Bounds(), c)
	return img
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultOptions(), nil)
	require.NoError(t, err)
	return e
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestDetectAndRectifyScenario(t *testing.T) {
	e := newEngine(t)
	receipt := image.Rect(200, 150, 1000, 1450)
	img := withBleed(receiptPhoto(1200, 1600, receipt), receipt, 0.04, 42)

	q, err := e.Detect(img)
	require.NoError(t, err)
	for i, p := range q {
		assert.True(t, p.X >= 0.05 && p.X <= 0.95 && p.Y >= 0.05 && p.Y <= 0.95,
			"%s corner %v", geometry.Corner(i), p)
	}

	res, err := e.Rectify(img, q)
	require.NoError(t, err)
	assert.True(t, res.Warped)
	// 800x1300 plus the 3% detection and 1% rectification margins.
	assert.InDelta(t, 832, res.Width, 25)
	assert.InDelta(t, 1352, res.Height, 40)
	assert.LessOrEqual(t, res.Width, 2000)
	assert.LessOrEqual(t, res.Height, 2000)

	// The middle of the output is paper.
	c := res.Image.RGBAAt(res.Width/2, res.Height/2)
	assert.InDelta(t, int(paper.R), int(c.R), 2)
}

func TestDetectSolidWall(t *testing.T) {
	_, err := newEngine(t).Detect(solid(640, 480, wall))
	assert.ErrorIs(t, err, detect.ErrNoReceipt)
	assert.True(t, IsSoft(err))
}

func TestDetectEmptyImage(t *testing.T) {
	_, err := newEngine(t).Detect(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.ErrorIs(t, err, scanimage.ErrEmptyImage)
}

func TestRectifyLargeInputIsBounded(t *testing.T) {
	e := newEngine(t)
	img := solid(4400, 3000, paper)

	res, err := e.Rectify(img, geometry.NormalizedQuad{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}})
	require.NoError(t, err)
	// Work resolution caps the source at 2200 px, the output cap at 2000.
	assert.Equal(t, 2000, res.Width)
	assert.InDelta(t, 1364, res.Height, 2)
}

func TestRectifyTinyQuad(t *testing.T) {
	e := newEngine(t)
	q := geometry.NormalizedQuad{{X: 0.5, Y: 0.5}, {X: 0.51, Y: 0.5}, {X: 0.51, Y: 0.51}, {X: 0.5, Y: 0.51}}
	_, err := e.Rectify(solid(1000, 1000, paper), q)
	assert.ErrorIs(t, err, rectify.ErrInvalidQuad)
	assert.True(t, IsSoft(err))
}

func TestAutoCrop(t *testing.T) {
	e := newEngine(t)

	img := receiptPhoto(600, 800, image.Rect(100, 75, 500, 725))
	out, ok := e.AutoCrop(img)
	require.True(t, ok)
	assert.NotEqual(t, img.Bounds(), out.Bounds())

	w := solid(600, 800, wall)
	out, ok = e.AutoCrop(w)
	assert.False(t, ok)
	assert.True(t, out == image.Image(w), "failure returns the input unchanged")
}

func TestAutoCropFile(t *testing.T) {
	e := newEngine(t)
	img := receiptPhoto(600, 800, image.Rect(100, 75, 500, 725))

	f, ok := e.AutoCropFile("IMG_0001.png", encodePNG(t, img))
	require.True(t, ok)
	assert.Equal(t, "IMG_0001-scan.png", f.Name)
	assert.Equal(t, "image/png", f.MIME)
	assert.True(t, f.Warped)
	decoded, mt, err := scanimage.Decode(f.Data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mt)
	assert.Equal(t, f.Width, decoded.Bounds().Dx())

	f, ok = e.AutoCropFile("IMG_0002.jpeg", encodeJPEG(t, img))
	require.True(t, ok)
	assert.Equal(t, "IMG_0002-scan.jpg", f.Name)
	assert.Equal(t, "image/jpeg", f.MIME)
}

func TestAutoCropFileSoftFailures(t *testing.T) {
	e := newEngine(t)

	text := []byte("total: 12.40 EUR\n")
	f, ok := e.AutoCropFile("notes.txt", text)
	assert.False(t, ok)
	assert.Equal(t, "notes.txt", f.Name)
	assert.Equal(t, text, f.Data)

	data := encodePNG(t, solid(300, 300, wall))
	f, ok = e.AutoCropFile("wall.png", data)
	assert.False(t, ok)
	assert.Equal(t, data, f.Data)
	assert.Equal(t, "image/png", f.MIME)
}

func TestFlattenFileWithDefaultQuad(t *testing.T) {
	e := newEngine(t)
	data := encodeJPEG(t, solid(400, 300, wall))

	f, err := e.FlattenFile("wall.webp", data, geometry.DefaultNormalizedQuad())
	require.NoError(t, err)
	assert.Equal(t, "wall-scan.jpg", f.Name)
	assert.Equal(t, "image/jpeg", f.MIME)
	assert.True(t, f.Warped)
	// 0.88 of the last pixel index, plus the 1% margin.
	assert.InDelta(t, 355, f.Width, 2)
	assert.InDelta(t, 265, f.Height, 2)
}

func TestTruncatedImageIsSoft(t *testing.T) {
	e := newEngine(t)
	data := encodePNG(t, solid(64, 64, paper))[:40]

	_, err := e.DetectFile(data)
	assert.ErrorIs(t, err, scanimage.ErrDecode)
	assert.True(t, IsSoft(err))

	_, err = e.FlattenFile("cut.png", data, geometry.DefaultNormalizedQuad())
	assert.True(t, IsSoft(err))

	f, ok := e.AutoCropFile("cut.png", data)
	assert.False(t, ok)
	assert.Equal(t, data, f.Data)
	assert.Equal(t, "image/png", f.MIME)
}

func TestDetectFileRejectsNonImage(t *testing.T) {
	_, err := newEngine(t).DetectFile([]byte("<html><body>receipt</body></html>"))
	assert.ErrorIs(t, err, scanimage.ErrNotImage)
	assert.True(t, IsSoft(err))
}

func TestConcurrentDetect(t *testing.T) {
	e := newEngine(t)
	img := receiptPhoto(600, 800, image.Rect(100, 75, 500, 725))
	want, err := e.Detect(img)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]geometry.NormalizedQuad, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Detect(img)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, want, results[i])
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Finder = "hough"
	_, err := New(opts, nil)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.JPEGQuality = 0
	_, err = New(opts, nil)
	assert.Error(t, err)

	opts = DefaultOptions()
	opts.Detect = opts.Detect.WithAreaRange(0.9, 0.1)
	_, err = New(opts, nil)
	assert.Error(t, err)
}

func TestIsSoft(t *testing.T) {
	assert.True(t, IsSoft(fmt.Errorf("wrapped: %w", rectify.ErrOutputTooSmall)))
	assert.True(t, IsSoft(fmt.Errorf("upload: %w", scanimage.ErrDecode)))
	assert.False(t, IsSoft(rectify.ErrSingular))
	assert.False(t, IsSoft(fmt.Errorf("disk full")))
}
