package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipt-geometry/internal/config"
	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/scan"
	"receipt-geometry/pkg/geometry"
)

var (
	tableTop = color.RGBA{R: 60, G: 50, B: 45, A: 255}
	paper    = color.RGBA{R: 245, G: 244, B: 240, A: 255}
	wall     = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func receiptPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 600, 800))
	fill(img, img.Bounds(), tableTop)
	fill(img, image.Rect(100, 75, 500, 725), paper)
	return encodePNG(t, img)
}

func wallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 300, 300))
	fill(img, img.Bounds(), wall)
	return encodePNG(t, img)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func upload(t *testing.T, path, name string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if data != nil {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func testConfig() config.Server {
	return config.Default().Server
}

func newRoutes(t *testing.T, cfg config.Server) http.Handler {
	t.Helper()
	e, err := scan.New(scan.DefaultOptions(), nil)
	require.NoError(t, err)
	return NewHandler(e, cfg, nil).Routes()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDetect(t *testing.T, rec *httptest.ResponseRecorder) DetectResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DetectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	rec := serve(newRoutes(t, testConfig()), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "version")
}

func TestDetectFindsReceipt(t *testing.T) {
	rec := serve(newRoutes(t, testConfig()), upload(t, "/detect", "r.png", receiptPNG(t), nil))
	resp := decodeDetect(t, rec)
	assert.True(t, resp.Detected)
	for _, p := range resp.Corners {
		assert.True(t, p.X > 0.05 && p.X < 0.95 && p.Y > 0.05 && p.Y < 0.95, "%v", p)
	}
}

func TestDetectFallsBackToDefaultQuad(t *testing.T) {
	h := newRoutes(t, testConfig())
	tests := map[string][]byte{
		"wall":      wallPNG(t),
		"not image": []byte("just some text"),
		"truncated": wallPNG(t)[:40],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			resp := decodeDetect(t, serve(h, upload(t, "/detect", "x", data, nil)))
			assert.False(t, resp.Detected)
			assert.Equal(t, geometry.DefaultNormalizedQuad(), resp.Corners)
		})
	}
}

func TestFlatten(t *testing.T) {
	h := newRoutes(t, testConfig())
	corners, err := json.Marshal(geometry.DefaultNormalizedQuad())
	require.NoError(t, err)

	rec := serve(h, upload(t, "/flatten", "wall.png", wallPNG(t), map[string]string{"corners": string(corners)}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "wall-scan.png")

	img, mt, err := scanimage.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/png", mt)
	// 0.88 of 299 px, widened by 1%.
	assert.InDelta(t, 266, img.Bounds().Dx(), 2)
}

func TestFlattenRejectsBadCorners(t *testing.T) {
	h := newRoutes(t, testConfig())
	tests := []struct {
		name    string
		corners string
		status  int
	}{
		{"missing", "", http.StatusBadRequest},
		{"not json", "corners", http.StatusBadRequest},
		{"three points", `[{"x":0,"y":0},{"x":1,"y":0},{"x":1,"y":1}]`, http.StatusBadRequest},
		{"tiny", `[{"x":0.5,"y":0.5},{"x":0.51,"y":0.5},{"x":0.51,"y":0.51},{"x":0.5,"y":0.51}]`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := map[string]string{}
			if tt.corners != "" {
				fields["corners"] = tt.corners
			}
			rec := serve(h, upload(t, "/flatten", "wall.png", wallPNG(t), fields))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAutoCrop(t *testing.T) {
	h := newRoutes(t, testConfig())

	rec := serve(h, upload(t, "/autocrop", "r.png", receiptPNG(t), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(HeaderCropped))
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	data := wallPNG(t)
	rec = serve(h, upload(t, "/autocrop", "wall.png", data, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", rec.Header().Get(HeaderCropped))
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestUploadErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 1024
	h := newRoutes(t, cfg)

	rec := serve(h, upload(t, "/detect", "big.png", make([]byte, 4096), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(h, upload(t, "/detect", "", nil, map[string]string{"note": "no file"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/detect", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigin = "https://receipts.example"
	rec := serve(newRoutes(t, cfg), httptest.NewRequest(http.MethodOptions, "/flatten", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://receipts.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, HeaderCropped, rec.Header().Get("Access-Control-Expose-Headers"))
}

type stubScanner struct {
	delay time.Duration
	err   error
}

func (s stubScanner) DetectFile([]byte) (geometry.NormalizedQuad, error) {
	time.Sleep(s.delay)
	return geometry.NormalizedQuad{}, s.err
}

func (s stubScanner) FlattenFile(string, []byte, geometry.NormalizedQuad) (*scan.File, error) {
	return nil, s.err
}

func (s stubScanner) AutoCropFile(name string, data []byte) (*scan.File, bool) {
	return &scan.File{Name: name, Data: data}, false
}

func TestHardFailureIs500(t *testing.T) {
	h := NewHandler(stubScanner{err: errors.New("disk on fire")}, testConfig(), nil).Routes()
	rec := serve(h, upload(t, "/detect", "x.png", []byte("x"), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	h := NewHandler(stubScanner{delay: 200 * time.Millisecond}, cfg, nil).Routes()
	rec := serve(h, upload(t, "/detect", "x.png", []byte("x"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAttachmentNameIsQuoted(t *testing.T) {
	h := NewHandler(stubScanner{}, testConfig(), nil).Routes()
	rec := serve(h, upload(t, "/autocrop", `my "best" receipt.png`, []byte{1, 2, 3}, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, `my "best" receipt.png`, params["filename"])
}

func TestAutoCropUnknownTypeIsOctetStream(t *testing.T) {
	h := NewHandler(stubScanner{}, testConfig(), nil).Routes()
	rec := serve(h, upload(t, "/autocrop", "notes.bin", []byte{1, 2, 3}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "false", rec.Header().Get(HeaderCropped))
}
