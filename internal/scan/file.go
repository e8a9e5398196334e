package scan

import (
	"bytes"

	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/rectify"
	"receipt-geometry/pkg/geometry"
)

// File is an encoded image with its name and MIME type.
type File struct {
	Name   string
	MIME   string
	Data   []byte
	Width  int
	Height int
	Warped bool
}

// DetectFile sniffs, decodes and runs Detect on encoded image bytes.
func (e *Engine) DetectFile(data []byte) (geometry.NormalizedQuad, error) {
	img, _, err := scanimage.Decode(data)
	if err != nil {
		return geometry.NormalizedQuad{}, err
	}
	return e.Detect(img)
}

// FlattenFile rectifies the quad out of an encoded image and encodes the
// result: PNG input stays PNG, anything else becomes JPEG. The output is
// named after name with a "-scan" suffix.
func (e *Engine) FlattenFile(name string, data []byte, q geometry.NormalizedQuad) (*File, error) {
	img, mt, err := scanimage.Decode(data)
	if err != nil {
		return nil, err
	}
	res, err := e.Rectify(img, q)
	if err != nil {
		return nil, err
	}
	return e.encode(name, mt, res)
}

func (e *Engine) encode(name, inputMIME string, res *rectify.Result) (*File, error) {
	var buf bytes.Buffer
	out, err := scanimage.Encode(&buf, res.Image, inputMIME, e.opts.JPEGQuality)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:   scanimage.ScanFileName(name, out),
		MIME:   out,
		Data:   buf.Bytes(),
		Width:  res.Width,
		Height: res.Height,
		Warped: res.Warped,
	}, nil
}

// AutoCropFile detects and flattens the receipt in an encoded image. When
// anything fails the input is returned as is, with false.
func (e *Engine) AutoCropFile(name string, data []byte) (*File, bool) {
	orig := &File{Name: name, Data: data}
	img, mt, err := scanimage.Decode(data)
	orig.MIME = mt
	if err != nil {
		e.logSoft("auto-crop decode", err)
		return orig, false
	}
	b := img.Bounds()
	orig.Width, orig.Height = b.Dx(), b.Dy()

	work, det, err := e.DetectWork(img)
	if err != nil {
		e.logSoft("auto-crop detection", err)
		return orig, false
	}
	res, err := e.rectifyWork(work, det.Normalized())
	if err != nil {
		e.logSoft("auto-crop rectification", err)
		return orig, false
	}
	f, err := e.encode(name, mt, res)
	if err != nil {
		e.logSoft("auto-crop encode", err)
		return orig, false
	}
	return f, true
}
